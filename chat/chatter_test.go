package chat

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galechat/galechat/format"
)

func TestLoginJoinsDefaultChannel(t *testing.T) {
	env := newTestEnv()

	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	assert.Equal(t, "general", alice.ActiveChannel())
	assert.True(t, env.reg.DefaultChannel().IsListening("Alice"))
	assert.Equal(t, []string{"You have joined general."}, env.delivery.inbox("Alice"))

	again, err := env.reg.Login("alice")
	require.NoError(t, err)
	assert.Same(t, alice, again, "login is idempotent per identity")
}

func TestChatEndToEnd(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("A")
	require.NoError(t, err)
	_, err = env.reg.Login("B")
	require.NoError(t, err)
	env.delivery.clear()

	require.NoError(t, alice.Chat("hi"))

	assert.Equal(t, []string{"A: hi"}, env.delivery.inbox("A"))
	assert.Equal(t, []string{"A: hi"}, env.delivery.inbox("B"))
}

func TestChatMutedIsSilentlyDropped(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	_, err = env.reg.Login("Bob")
	require.NoError(t, err)
	env.reg.DefaultChannel().Mute("Alice")
	env.delivery.clear()

	require.NoError(t, alice.Chat("hi"), "a muted chatter gets no error, the message just vanishes")
	assert.Empty(t, env.delivery.inbox("Bob"))
	assert.Empty(t, env.delivery.inbox("Alice"))
}

func TestChatPermissionDenied(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	env.perms.deny("Alice", "chat.general")

	err = alice.Chat("hi")
	assert.True(t, errors.Is(err, ErrPermissionDenied))
}

func TestChatCensorsBeforeFormatting(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	env.reg.DefaultChannel().CensorWord("fool", "")
	env.delivery.clear()

	require.NoError(t, alice.Chat("you fool"))
	assert.Equal(t, []string{"Alice: you ****"}, env.delivery.inbox("Alice"))
}

func TestLeaveActiveChannelForbidden(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)

	err = alice.Leave(env.reg.DefaultChannel(), "")
	assert.True(t, errors.Is(err, ErrCannotLeaveActiveChannel))
	assert.True(t, env.reg.DefaultChannel().IsListening("Alice"))
}

func TestLeaveNonActiveChannel(t *testing.T) {
	env := newTestEnv()
	trade, err := env.reg.CreateChannel("trade")
	require.NoError(t, err)
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	require.NoError(t, alice.Join(trade, "", false))
	env.delivery.clear()

	require.NoError(t, alice.Leave(trade, ""))
	assert.False(t, trade.IsListening("Alice"))
	assert.Equal(t, []string{"general"}, alice.Channels())
	assert.Equal(t, []string{"You have left trade."}, env.delivery.inbox("Alice"))
}

func TestKickFromDefaultChannelForbidden(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)

	err = alice.Kick(env.reg.DefaultChannel(), nil)
	assert.True(t, errors.Is(err, ErrCannotActOnDefaultChannel))
}

func TestKickFromActiveChannelFallsBackToDefault(t *testing.T) {
	env := newTestEnv()
	trade, err := env.reg.CreateChannel("trade")
	require.NoError(t, err)
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	require.NoError(t, alice.Join(trade, "", true))
	require.Equal(t, "trade", alice.ActiveChannel())
	env.delivery.clear()

	reason := format.Parse("spamming")
	require.NoError(t, alice.Kick(trade, reason))

	assert.Equal(t, "general", alice.ActiveChannel(), "a kicked chatter is never left without an active channel")
	assert.False(t, trade.IsListening("Alice"))
	assert.True(t, env.reg.DefaultChannel().IsListening("Alice"))
	assert.Contains(t, env.delivery.inbox("Alice"), "Kicked from trade: spamming")
}

func TestBanFromDefaultChannelForbidden(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)

	err = alice.Ban(env.reg.DefaultChannel(), nil)
	assert.True(t, errors.Is(err, ErrCannotActOnDefaultChannel))
}

func TestBanKicksAndBlocksRejoin(t *testing.T) {
	env := newTestEnv()
	trade, err := env.reg.CreateChannel("trade")
	require.NoError(t, err)
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	require.NoError(t, alice.Join(trade, "", true))

	require.NoError(t, alice.Ban(trade, nil))
	assert.True(t, trade.IsBanned("Alice"))
	assert.False(t, trade.IsListening("Alice"))
	assert.Equal(t, "general", alice.ActiveChannel())

	err = alice.Join(trade, "", false)
	assert.True(t, errors.Is(err, ErrAccessDenied))
	assert.False(t, trade.IsListening("Alice"))
}

func TestJoinChannelGate(t *testing.T) {
	env := newTestEnv()
	trade, err := env.reg.CreateChannel("trade")
	require.NoError(t, err)
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)

	t.Run("already active", func(t *testing.T) {
		err := env.reg.JoinChannel(alice, env.reg.DefaultChannel(), "")
		assert.True(t, errors.Is(err, ErrAlreadyActiveMember))
	})

	t.Run("banned", func(t *testing.T) {
		trade.Ban("Alice", false, nil)
		env.delivery.clear()
		err := env.reg.JoinChannel(alice, trade, "")
		assert.True(t, errors.Is(err, ErrAccessDenied))
		assert.Equal(t, []string{"You have been banned from trade!"}, env.delivery.inbox("Alice"))
		trade.Unban("Alice")
	})

	t.Run("invite only", func(t *testing.T) {
		trade.SetInviteOnly(true)
		err := env.reg.JoinChannel(alice, trade, "")
		assert.True(t, errors.Is(err, ErrInviteOnly))

		alice.Invite(trade)
		require.NoError(t, env.reg.JoinChannel(alice, trade, ""))
		assert.Equal(t, "trade", alice.ActiveChannel())

		// reset for the following subtests
		trade.SetInviteOnly(false)
		require.NoError(t, env.reg.JoinChannel(alice, env.reg.DefaultChannel(), ""))
		require.NoError(t, alice.Leave(trade, ""))
	})

	t.Run("permission", func(t *testing.T) {
		env.perms.deny("Alice", "join.trade")
		err := env.reg.JoinChannel(alice, trade, "")
		assert.True(t, errors.Is(err, ErrPermissionDenied))
	})

	t.Run("password", func(t *testing.T) {
		bob, err := env.reg.Login("Bob")
		require.NoError(t, err)
		trade.SetPassword("sesame")

		err = env.reg.JoinChannel(bob, trade, "")
		assert.True(t, errors.Is(err, ErrPasswordRequired))

		err = env.reg.JoinChannel(bob, trade, "mellon")
		assert.True(t, errors.Is(err, ErrAccessDenied))

		require.NoError(t, env.reg.JoinChannel(bob, trade, "SESAME"))
		assert.Equal(t, "trade", bob.ActiveChannel())
		assert.True(t, trade.IsListening("Bob"))
	})
}

func TestPrivateMessageAndReply(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	bob, err := env.reg.Login("Bob")
	require.NoError(t, err)
	env.delivery.clear()

	assert.True(t, errors.Is(bob.Reply("hello?"), ErrNoLastSender))

	alice.SendPrivateMessage(bob, "psst")
	assert.Equal(t, []string{"From Alice: psst"}, env.delivery.inbox("Bob"))
	assert.Equal(t, []string{"To Bob: psst"}, env.delivery.inbox("Alice"))
	assert.Equal(t, "Alice", bob.LastSender())

	env.delivery.clear()
	require.NoError(t, bob.Reply("what"))
	assert.Equal(t, []string{"From Bob: what"}, env.delivery.inbox("Alice"))
	assert.Equal(t, []string{"To Alice: what"}, env.delivery.inbox("Bob"))
	assert.Equal(t, "Bob", alice.LastSender())
}

func TestFormatOverride(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	_, err = env.reg.Login("Bob")
	require.NoError(t, err)
	alice.SetFormatOverride(format.KindChat, "<{NAME}> {MESSAGE}")
	env.delivery.clear()

	require.NoError(t, alice.Chat("hi"))
	assert.Equal(t, []string{"<Alice> hi"}, env.delivery.inbox("Bob"))

	alice.SetFormatOverride(format.KindChat, "")
	env.delivery.clear()
	require.NoError(t, alice.Chat("hi"))
	assert.Equal(t, []string{"Alice: hi"}, env.delivery.inbox("Bob"))
}

func TestLogoutBroadcastsLeaveAndDetaches(t *testing.T) {
	env := newTestEnv()
	env.reg.SetAutoSave(true)
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	alice.SetQuitMessage("gone fishing")
	_, err = env.reg.Login("Bob")
	require.NoError(t, err)
	env.delivery.clear()

	// the default leave format carries no quit message placeholder, install
	// one that does
	env.reg.defaults[format.KindLeave] = format.Parse("{NAME} left: {QUIT_MESSAGE}")
	alice.SetFormatOverride(format.KindLeave, "{NAME} left: {QUIT_MESSAGE}")

	require.NoError(t, env.reg.Logout("Alice"))

	assert.Contains(t, env.delivery.inbox("Bob"), "Alice left: gone fishing")
	assert.False(t, env.reg.DefaultChannel().IsListening("Alice"))
	_, err = env.reg.LookupChatter("Alice")
	assert.True(t, errors.Is(err, ErrChatterNotFound))

	saved, ok := env.saver.chatters["alice"]
	require.True(t, ok, "logout persists the chatter snapshot")
	assert.Equal(t, "gone fishing", saved.QuitMessage)
}

func TestResumeChatter(t *testing.T) {
	env := newTestEnv()
	_, err := env.reg.CreateChannel("trade")
	require.NoError(t, err)
	_, err = env.reg.CreateChannel("vault")
	require.NoError(t, err)

	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	trade, _ := env.reg.LookupChannel("trade")
	require.NoError(t, env.reg.JoinChannel(alice, trade, ""))
	alice.SetQuitMessage("brb")
	vault, _ := env.reg.LookupChannel("vault")
	alice.Invite(vault)
	alice.SetFormatOverride(format.KindChat, "<{NAME}> {MESSAGE}")
	rec := alice.Record()
	require.NoError(t, env.reg.Logout("Alice"))

	restored, err := env.reg.ResumeChatter(rec)
	require.NoError(t, err)
	assert.Equal(t, "trade", restored.ActiveChannel())
	assert.ElementsMatch(t, []string{"general", "trade"}, restored.Channels())
	assert.True(t, restored.IsInvitedTo(vault))
	assert.Equal(t, "brb", restored.QuitMessage())
	assert.Equal(t, "<{NAME}> {MESSAGE}", restored.FormatFor(format.KindChat).Source())
	assert.True(t, trade.IsListening("Alice"))
}

func TestResumeChatterFallsBackToDefaultChannel(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	rec := alice.Record()
	rec.ActiveChannel = "nonexistent"
	require.NoError(t, env.reg.Logout("Alice"))

	restored, err := env.reg.ResumeChatter(rec)
	require.NoError(t, err)
	assert.Equal(t, "general", restored.ActiveChannel())
}

func TestResumeChatterNeverVisibleHalfRestored(t *testing.T) {
	env := newTestEnv()
	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	alice.SetQuitMessage("gone fishing")
	alice.SetFormatOverride(format.KindChat, "<{NAME}> {MESSAGE}")
	rec := alice.Record()
	require.NoError(t, env.reg.Logout("Alice"))

	// the moment the chatter is visible through the registry, its record
	// fields must already be restored
	type snapshot struct {
		quitMessage string
		chatFormat  string
	}
	got := make(chan snapshot, 1)
	go func() {
		for {
			chatter, err := env.reg.LookupChatter("Alice")
			if err != nil {
				continue
			}
			got <- snapshot{chatter.QuitMessage(), chatter.FormatFor(format.KindChat).Source()}
			return
		}
	}()

	_, err = env.reg.ResumeChatter(rec)
	require.NoError(t, err)

	select {
	case s := <-got:
		assert.Equal(t, "gone fishing", s.quitMessage)
		assert.Equal(t, "<{NAME}> {MESSAGE}", s.chatFormat)
	case <-time.After(time.Second):
		t.Fatal("chatter never became visible")
	}
}

func TestObserverNotifications(t *testing.T) {
	env := newTestEnv()
	obs := &memObserver{}
	env.reg.Subscribe(obs)

	alice, err := env.reg.Login("Alice")
	require.NoError(t, err)
	trade, err := env.reg.CreateChannel("trade")
	require.NoError(t, err)
	require.NoError(t, alice.Join(trade, "", false))
	require.NoError(t, alice.Chat("hi"))
	require.NoError(t, alice.Leave(trade, ""))

	assert.Equal(t, []string{"Alice@general", "Alice@trade"}, obs.joined)
	assert.Equal(t, []string{"Alice@trade"}, obs.left)
	assert.Equal(t, []string{"general/Alice: Alice: hi"}, obs.broadcasts)
}

func TestSaveAllAndAutoSave(t *testing.T) {
	env := newTestEnv()
	trade, err := env.reg.CreateChannel("trade")
	require.NoError(t, err)
	_, err = env.reg.Login("Alice")
	require.NoError(t, err)

	assert.Empty(t, env.saver.channels, "auto-save starts disabled")

	require.NoError(t, env.reg.SaveAll())
	assert.Contains(t, env.saver.channels, "general")
	assert.Contains(t, env.saver.channels, "trade")
	assert.Contains(t, env.saver.chatters, "alice")

	env.reg.SetAutoSave(true)
	trade.SetRadius(25)
	assert.Equal(t, 25, env.saver.channels["trade"].Radius, "auto-save persists every mutation")
}
