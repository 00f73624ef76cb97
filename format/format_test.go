package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute(t *testing.T) {
	tpl := Parse("{NAME}: {MESSAGE}")
	assert.True(t, tpl.Substitute(PlaceholderName, "Walker"))
	assert.True(t, tpl.Substitute(PlaceholderMessage, "hello there"))
	assert.Equal(t, "Walker: hello there", tpl.String())
}

func TestSubstituteAbsentIsNoOp(t *testing.T) {
	tpl := Parse("{NAME} has joined the game.")
	assert.False(t, tpl.Substitute(PlaceholderMessage, "ignored"))
	assert.True(t, tpl.Substitute(PlaceholderName, "Walker"))
	assert.Equal(t, "Walker has joined the game.", tpl.String())
}

func TestSubstituteOverwrites(t *testing.T) {
	tpl := Parse("{NAME}: {MESSAGE}")
	tpl.Substitute(PlaceholderMessage, "first")
	tpl.Substitute(PlaceholderMessage, "second")
	tpl.Substitute(PlaceholderName, "A")
	assert.Equal(t, "A: second", tpl.String())
}

func TestNoSecondExpansion(t *testing.T) {
	// a hostile message body must not be able to inject a placeholder token
	tpl := Parse("{NAME}: {MESSAGE}")
	tpl.Substitute(PlaceholderName, "Mallory")
	tpl.Substitute(PlaceholderMessage, "gotcha {NAME} and %NAME%")
	assert.Equal(t, "Mallory: gotcha {NAME} and %NAME%", tpl.String())
}

func TestUnsubstitutedRendersToken(t *testing.T) {
	tpl := Parse("{NAME} has left the game. ({QUIT_MESSAGE})")
	tpl.Substitute(PlaceholderName, "Walker")
	assert.Equal(t, "Walker has left the game. ({QUIT_MESSAGE})", tpl.String())
}

func TestLiteralBraces(t *testing.T) {
	tpl := Parse("look at {this} and {NOT CLOSED and {}")
	assert.Equal(t, "look at {this} and {NOT CLOSED and {}", tpl.String())
}

func TestCloneDoesNotShareValues(t *testing.T) {
	def := Parse("[{CHANNEL}] {MESSAGE}")
	a := def.Clone()
	b := def.Clone()
	a.Substitute(PlaceholderMessage, "from a")
	b.Substitute(PlaceholderMessage, "from b")
	a.Substitute(PlaceholderChannel, "general")
	b.Substitute(PlaceholderChannel, "general")
	assert.Equal(t, "[general] from a", a.String())
	assert.Equal(t, "[general] from b", b.String())
}

func TestSetDefaults(t *testing.T) {
	set := Set{
		KindChat: Parse("{NAME}: {MESSAGE}"),
	}
	tpl := set.Get(KindChat)
	tpl.Substitute(PlaceholderName, "A")
	tpl.Substitute(PlaceholderMessage, "hi")
	assert.Equal(t, "A: hi", tpl.String())
	// defaults stay clean
	assert.Equal(t, "{NAME}: {MESSAGE}", set.Get(KindChat).String())
	// unconfigured kind falls back to a plain message template
	fallback := set.Get(KindPrivateMessage)
	fallback.Substitute(PlaceholderMessage, "psst")
	assert.Equal(t, "psst", fallback.String())
}

func TestKindNodes(t *testing.T) {
	k, ok := KindFromNode("leave-message-format")
	assert.True(t, ok)
	assert.Equal(t, KindLeave, k)
	assert.Contains(t, KindLeave.Placeholders(), PlaceholderQuitMessage)
	_, ok = KindFromNode("nope")
	assert.False(t, ok)
}
