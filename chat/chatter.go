package chat

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/galechat/galechat/format"
	"github.com/galechat/galechat/types"
)

// Chatter is one participant. It holds the subscribed channel set, the
// single active channel unqualified chat calls target, pending invites and
// the last private-message sender. Channels are referenced by name only,
// resolution goes through the registry.
type Chatter struct {
	reg  *Registry
	name string

	mu          sync.RWMutex
	channels    map[string]struct{}
	invites     map[string]struct{}
	active      string
	quitMessage string
	lastSender  string
	formats     map[format.Kind]*format.Template
}

func newChatter(reg *Registry, name string) *Chatter {
	return &Chatter{
		reg:      reg,
		name:     name,
		channels: make(map[string]struct{}),
		invites:  make(map[string]struct{}),
		formats:  make(map[format.Kind]*format.Template),
	}
}

func (c *Chatter) Name() string {
	return c.name
}

// ActiveChannel returns the channel unqualified chat calls target. The empty
// string marks the not-yet-joined initial state.
func (c *Chatter) ActiveChannel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Channels returns a sorted snapshot of the subscribed channel names.
func (c *Chatter) Channels() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.channels))
	for name := range c.channels {
		out = append(out, name)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (c *Chatter) QuitMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quitMessage
}

// SetQuitMessage overrides the text rendered into the leave message on
// disconnect.
func (c *Chatter) SetQuitMessage(message string) {
	c.mu.Lock()
	c.quitMessage = message
	c.mu.Unlock()
	c.save()
}

// FormatFor returns the chatter's template for the kind: the per-chatter
// override when one is set, the configured default otherwise.
func (c *Chatter) FormatFor(kind format.Kind) *format.Template {
	c.mu.RLock()
	if tpl, ok := c.formats[kind]; ok {
		c.mu.RUnlock()
		return tpl.Clone()
	}
	c.mu.RUnlock()
	return c.reg.defaults.Get(kind)
}

// SetFormatOverride installs a per-chatter template override for the kind.
// An empty source removes the override.
func (c *Chatter) SetFormatOverride(kind format.Kind, source string) {
	c.mu.Lock()
	if source == "" {
		delete(c.formats, kind)
	} else {
		c.formats[kind] = format.Parse(source)
	}
	c.mu.Unlock()
	c.save()
}

// Chat sends a message to the active channel.
func (c *Chatter) Chat(message string) error {
	channel, err := c.reg.LookupChannel(c.ActiveChannel())
	if err != nil {
		return err
	}
	return c.ChatTo(channel, message)
}

// ChatTo sends a message to the given channel without switching the active
// channel. Checks run in order: permission, mute (a muted chatter's message
// is silently dropped), censorship, template formatting, broadcast.
func (c *Chatter) ChatTo(channel *Channel, message string) error {
	if !c.reg.hasPermission(c.name, "chat."+channel.Name()) {
		return errors.Wrapf(ErrPermissionDenied, "chat in %s", channel.Name())
	}
	if channel.IsMuted(c.name) {
		// muted means invisible, not erroring
		return nil
	}
	message = channel.Censor(message)
	tpl := c.FormatFor(format.KindChat)
	tpl.Substitute(format.PlaceholderName, c.name)
	tpl.Substitute(format.PlaceholderMessage, message)
	tpl.Substitute(format.PlaceholderChannel, channel.Name())
	channel.Broadcast(c.name, tpl.String())
	return nil
}

// Join subscribes the chatter to the channel and optionally makes it the
// active channel. The join message (override, or the channel's own) is
// delivered to the joining chatter only, not broadcast. Access checks
// (banned, invite-only, password, permission) are the caller's contract,
// the ban list is still enforced here to hold the listener invariant.
func (c *Chatter) Join(channel *Channel, message string, makeActive bool) error {
	if channel.IsBanned(c.name) {
		return errors.Wrapf(ErrAccessDenied, "banned from %s", channel.Name())
	}
	channel.AddListener(c.name)
	c.mu.Lock()
	c.channels[strings.ToLower(channel.Name())] = struct{}{}
	if makeActive {
		c.active = channel.Name()
	}
	c.mu.Unlock()
	if message == "" {
		tpl := channel.JoinMessage()
		tpl.Substitute(format.PlaceholderName, c.name)
		tpl.Substitute(format.PlaceholderChannel, channel.Name())
		message = tpl.String()
	}
	c.deliver(message)
	c.save()
	c.reg.notifyJoined(c.name, channel.Name())
	return nil
}

// Leave unsubscribes the chatter from the channel. Leaving the active
// channel is forbidden. The leave message is delivered to the leaving
// chatter only.
func (c *Chatter) Leave(channel *Channel, message string) error {
	c.mu.Lock()
	if strings.EqualFold(channel.Name(), c.active) {
		c.mu.Unlock()
		return errors.Wrapf(ErrCannotLeaveActiveChannel, "leave %s", channel.Name())
	}
	delete(c.channels, strings.ToLower(channel.Name()))
	c.mu.Unlock()
	channel.RemoveListener(c.name)
	if message == "" {
		tpl := channel.LeaveMessage()
		tpl.Substitute(format.PlaceholderName, c.name)
		tpl.Substitute(format.PlaceholderChannel, channel.Name())
		tpl.Substitute(format.PlaceholderQuitMessage, c.QuitMessage())
		message = tpl.String()
	}
	c.deliver(message)
	c.save()
	c.reg.notifyLeft(c.name, channel.Name())
	return nil
}

// Ban bans the chatter from the channel, kicking it if currently a
// listener.
func (c *Chatter) Ban(channel *Channel, reason *format.Template) error {
	if channel.Equals(c.reg.DefaultChannel()) {
		return errors.Wrapf(ErrCannotActOnDefaultChannel, "ban from %s", channel.Name())
	}
	channel.Ban(c.name, true, reason)
	return nil
}

// Kick removes the chatter from the channel with a kick-flavored leave
// message. Kicking from the default channel is forbidden. A chatter whose
// active channel is the kicked channel is first auto-joined to the default
// channel so it is never left without an active channel.
func (c *Chatter) Kick(channel *Channel, reason *format.Template) error {
	def := c.reg.DefaultChannel()
	if channel.Equals(def) {
		return errors.Wrapf(ErrCannotActOnDefaultChannel, "kick from %s", channel.Name())
	}
	if strings.EqualFold(channel.Name(), c.ActiveChannel()) {
		if err := c.Join(def, "", true); err != nil {
			return err
		}
	}
	message := fmt.Sprintf("Kicked from %s", channel.Name())
	if reason != nil {
		message += ": " + reason.String()
	}
	return c.Leave(channel, message)
}

// Invite invites the chatter to the channel. Only meaningful as a join
// precondition for invite-only channels.
func (c *Chatter) Invite(channel *Channel) {
	c.mu.Lock()
	c.invites[strings.ToLower(channel.Name())] = struct{}{}
	c.mu.Unlock()
	c.save()
}

// RevokeInvite withdraws a pending invite.
func (c *Chatter) RevokeInvite(channel *Channel) {
	c.mu.Lock()
	delete(c.invites, strings.ToLower(channel.Name()))
	c.mu.Unlock()
	c.save()
}

func (c *Chatter) IsInvitedTo(channel *Channel) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.invites[strings.ToLower(channel.Name())]
	return ok
}

// Invites returns a sorted snapshot of the channels the chatter is invited to.
func (c *Chatter) Invites() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.invites))
	for name := range c.invites {
		out = append(out, name)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// SendPrivateMessage delivers a private message pair: the incoming copy to
// the target, the outgoing copy back to the sender. The target's
// last-private-sender is set so it can reply.
func (c *Chatter) SendPrivateMessage(target *Chatter, message string) {
	incoming := c.FormatFor(format.KindPrivateMessage)
	incoming.Substitute(format.PlaceholderName, c.name)
	incoming.Substitute(format.PlaceholderMessage, message)
	incoming.Substitute(format.PlaceholderAddress, "From")
	target.deliver(incoming.String())

	outgoing := c.FormatFor(format.KindPrivateMessage)
	outgoing.Substitute(format.PlaceholderName, target.Name())
	outgoing.Substitute(format.PlaceholderMessage, message)
	outgoing.Substitute(format.PlaceholderAddress, "To")
	c.deliver(outgoing.String())

	target.setLastSender(c.name)
}

// Reply sends a private message back to the last chatter that sent one.
func (c *Chatter) Reply(message string) error {
	c.mu.RLock()
	last := c.lastSender
	c.mu.RUnlock()
	if last == "" {
		return ErrNoLastSender
	}
	target, err := c.reg.LookupChatter(last)
	if err != nil {
		return err
	}
	c.SendPrivateMessage(target, message)
	return nil
}

// LastSender returns the identity of the most recent private-message
// sender, empty if there is none.
func (c *Chatter) LastSender() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSender
}

func (c *Chatter) setLastSender(name string) {
	c.mu.Lock()
	c.lastSender = name
	c.mu.Unlock()
}

// Record returns the persisted snapshot of the chatter.
func (c *Chatter) Record() types.ChatterRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	formats := make(types.JSONStringMap, len(c.formats))
	for kind, tpl := range c.formats {
		formats[kind.String()] = tpl.Source()
	}
	return types.ChatterRecord{
		Name:          c.name,
		Channels:      setToSlice(c.channels),
		Invites:       setToSlice(c.invites),
		ActiveChannel: c.active,
		QuitMessage:   c.quitMessage,
		Formats:       formats,
	}
}

func (c *Chatter) deliver(message string) {
	if err := c.reg.deliver(c.name, message); err != nil {
		// offline chatters simply miss the notice
		return
	}
}

func (c *Chatter) save() {
	c.reg.saveChatter(c)
}
