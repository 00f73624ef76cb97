package chat

import (
	"sort"
	"strings"
	"sync"

	"github.com/antonmedv/expr/vm"
	"github.com/pkg/errors"

	"github.com/galechat/galechat/censor"
	"github.com/galechat/galechat/format"
	"github.com/galechat/galechat/globals"
	"github.com/galechat/galechat/types"
)

// Channel is a named broadcast group. It owns the membership and
// access-control state and the fan-out algorithm. Listeners, banned and
// muted entries are identities, resolution to live chatters happens at
// delivery time through the registry.
type Channel struct {
	reg  *Registry
	name string

	mu            sync.RWMutex
	radius        int
	password      string
	inviteOnly    bool
	formatTpl     *format.Template
	joinMessage   *format.Template
	leaveMessage  *format.Template
	banMessage    *format.Template
	filterSource  string
	filterProg    *vm.Program
	banned        map[string]struct{}
	muted         map[string]struct{}
	listeners     map[string]struct{}
	relay         Relay
	censoredWords *censor.Filter
}

func newChannel(reg *Registry, name string) *Channel {
	defaults := reg.defaults
	return &Channel{
		reg:           reg,
		name:          name,
		formatTpl:     format.Parse("{" + format.PlaceholderMessage + "}"),
		joinMessage:   defaults.Get(format.KindJoin),
		leaveMessage:  defaults.Get(format.KindLeave),
		banMessage:    defaults.Get(format.KindBan),
		banned:        make(map[string]struct{}),
		muted:         make(map[string]struct{}),
		listeners:     make(map[string]struct{}),
		censoredWords: censor.NewFilter(),
	}
}

// Name returns the channel name. Names are unique case-insensitively.
func (c *Channel) Name() string {
	return c.name
}

// Equals compares channels by name, case-insensitively.
func (c *Channel) Equals(other *Channel) bool {
	return other != nil && strings.EqualFold(c.name, other.name)
}

func (c *Channel) Radius() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.radius
}

// SetRadius sets the audibility radius. Zero or negative means unbounded.
func (c *Channel) SetRadius(radius int) {
	c.mu.Lock()
	c.radius = radius
	c.mu.Unlock()
	c.save()
}

func (c *Channel) HasPassword() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.password != ""
}

// CheckPassword reports whether the candidate matches the channel password.
// Comparison is case-insensitive simple equality.
func (c *Channel) CheckPassword(candidate string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strings.EqualFold(c.password, candidate)
}

// SetPassword gates join behind the password. Empty disables the gate.
func (c *Channel) SetPassword(password string) {
	c.mu.Lock()
	c.password = password
	c.mu.Unlock()
	c.save()
}

func (c *Channel) IsInviteOnly() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inviteOnly
}

func (c *Channel) SetInviteOnly(inviteOnly bool) {
	c.mu.Lock()
	c.inviteOnly = inviteOnly
	c.mu.Unlock()
	c.save()
}

// Format returns a clone of the channel message format.
func (c *Channel) Format() *format.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.formatTpl.Clone()
}

func (c *Channel) SetFormat(source string) {
	c.mu.Lock()
	c.formatTpl = format.Parse(source)
	c.mu.Unlock()
	c.save()
}

// JoinMessage returns a clone of the message delivered to a joining chatter.
func (c *Channel) JoinMessage() *format.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joinMessage.Clone()
}

func (c *Channel) SetJoinMessage(source string) {
	c.mu.Lock()
	c.joinMessage = format.Parse(source)
	c.mu.Unlock()
	c.save()
}

// LeaveMessage returns a clone of the message delivered to a leaving chatter.
func (c *Channel) LeaveMessage() *format.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leaveMessage.Clone()
}

func (c *Channel) SetLeaveMessage(source string) {
	c.mu.Lock()
	c.leaveMessage = format.Parse(source)
	c.mu.Unlock()
	c.save()
}

// BanMessage returns a clone of the message shown to banned chatters.
func (c *Channel) BanMessage() *format.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.banMessage.Clone()
}

func (c *Channel) SetBanMessage(source string) {
	c.mu.Lock()
	c.banMessage = format.Parse(source)
	c.mu.Unlock()
	c.save()
}

// Filter returns the broadcast filter expression source, empty if unset.
func (c *Channel) Filter() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filterSource
}

// SetFilter compiles and installs a broadcast filter expression evaluated
// per listener during fan-out. An empty expression removes the filter.
func (c *Channel) SetFilter(source string) error {
	prog, err := compileFilter(source)
	if err != nil {
		return errors.Wrap(err, "could not compile broadcast filter")
	}
	c.mu.Lock()
	c.filterSource = source
	c.filterProg = prog
	c.mu.Unlock()
	c.save()
	return nil
}

// Mute stops a chatter from originating chat in the channel. A muted member
// may remain a listener.
func (c *Channel) Mute(name string) {
	c.mu.Lock()
	c.muted[strings.ToLower(name)] = struct{}{}
	c.mu.Unlock()
	c.save()
}

func (c *Channel) Unmute(name string) {
	c.mu.Lock()
	delete(c.muted, strings.ToLower(name))
	c.mu.Unlock()
	c.save()
}

func (c *Channel) IsMuted(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.muted[strings.ToLower(name)]
	return ok
}

// Ban records the identity in the ban list, independent of current
// membership: banning an offline chatter is still recorded. With alsoKick,
// an online listener is put through the chatter-level kick workflow first.
func (c *Channel) Ban(name string, alsoKick bool, reason *format.Template) {
	if alsoKick {
		if chatter, err := c.reg.LookupChatter(name); err == nil {
			if err := chatter.Kick(c, reason); err != nil {
				globals.AppLogger.Debug("kick during ban failed", "channel", c.name, "chatter", name, "error", err)
			}
		}
	}
	c.mu.Lock()
	c.banned[strings.ToLower(name)] = struct{}{}
	// a banned identity may never remain a listener
	delete(c.listeners, strings.ToLower(name))
	c.mu.Unlock()
	c.save()
}

func (c *Channel) Unban(name string) {
	c.mu.Lock()
	delete(c.banned, strings.ToLower(name))
	c.mu.Unlock()
	c.save()
}

func (c *Channel) IsBanned(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.banned[strings.ToLower(name)]
	return ok
}

// CensorWord censors a word in the channel. An empty replacement blanks the
// word with '*' runs of equal length.
func (c *Channel) CensorWord(word, replacement string) {
	c.censoredWords.Add(word, replacement)
	c.save()
}

func (c *Channel) UncensorWord(word string) {
	c.censoredWords.Remove(word)
	c.save()
}

// Censor applies the channel's censored word list to the message text.
func (c *Channel) Censor(message string) string {
	return c.censoredWords.Apply(message)
}

// AddListener subscribes an identity to the channel broadcasts. It is
// idempotent and returns whether the set changed. Banned identities are
// refused.
func (c *Channel) AddListener(name string) bool {
	key := strings.ToLower(name)
	c.mu.Lock()
	if _, banned := c.banned[key]; banned {
		c.mu.Unlock()
		return false
	}
	if _, ok := c.listeners[key]; ok {
		c.mu.Unlock()
		return false
	}
	c.listeners[key] = struct{}{}
	c.mu.Unlock()
	c.save()
	return true
}

// RemoveListener unsubscribes an identity, returns whether the set changed.
func (c *Channel) RemoveListener(name string) bool {
	key := strings.ToLower(name)
	c.mu.Lock()
	if _, ok := c.listeners[key]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.listeners, key)
	c.mu.Unlock()
	c.save()
	return true
}

func (c *Channel) IsListening(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.listeners[strings.ToLower(name)]
	return ok
}

// Listeners returns a sorted snapshot of the listener identities.
func (c *Channel) Listeners() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.listeners))
	for name := range c.listeners {
		out = append(out, name)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// NoListeners returns the number of listeners.
func (c *Channel) NoListeners() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

// AttachRelay attaches a relay bridge. Pass nil to detach.
func (c *Channel) AttachRelay(relay Relay) {
	c.mu.Lock()
	c.relay = relay
	c.mu.Unlock()
}

func (c *Channel) RelayBridge() Relay {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relay
}

// Broadcast wraps the already formatted message in the channel format and
// fans it out to every eligible listener. Delivery failures for individual
// listeners are swallowed, one unreachable listener must not block the rest.
// After local fan-out the message goes to the attached relay exactly once
// (never echoing a relay-originated message back) and to the recorder.
func (c *Channel) Broadcast(sender, message string) {
	c.mu.RLock()
	wrapped := c.formatTpl.Clone()
	listeners := make([]string, 0, len(c.listeners))
	for name := range c.listeners {
		listeners = append(listeners, name)
	}
	radius := c.radius
	relay := c.relay
	prog := c.filterProg
	c.mu.RUnlock()

	if wrapped.Substitute(format.PlaceholderMessage, message) {
		wrapped.Substitute(format.PlaceholderChannel, c.name)
		message = wrapped.String()
	}

	pos := c.reg.positioner
	for _, listener := range listeners {
		if !canHear(pos, sender, listener, radius) {
			continue
		}
		if prog != nil {
			distance, spatial := 0.0, false
			if pos != nil {
				distance, spatial = pos.Distance(sender, listener)
			}
			env := FilterEnv{
				Channel:  c.name,
				Sender:   sender,
				Listener: listener,
				Distance: distance,
				Spatial:  spatial,
			}
			if !runFilter(prog, env) {
				continue
			}
		}
		if err := c.reg.deliver(listener, message); err != nil {
			globals.AppLogger.Debug("could not deliver broadcast", "channel", c.name, "listener", listener, "error", err)
		}
	}

	// Outbound only enqueues, so calling it inline keeps the per-sender
	// message order intact without blocking the fan-out.
	if relay != nil && relay.Enabled() && !strings.EqualFold(sender, relay.Name()) {
		relay.Outbound(message)
	}

	c.reg.record(c.name, sender, message)
	c.reg.notifyBroadcast(c.name, sender, message)
}

// Record returns the persisted snapshot of the channel.
func (c *Channel) Record() types.ChannelRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec := types.ChannelRecord{
		Name:          c.name,
		Radius:        c.radius,
		Password:      c.password,
		InviteOnly:    c.inviteOnly,
		Format:        c.formatTpl.Source(),
		JoinMessage:   c.joinMessage.Source(),
		LeaveMessage:  c.leaveMessage.Source(),
		BanMessage:    c.banMessage.Source(),
		Filter:        c.filterSource,
		Banned:        setToSlice(c.banned),
		Muted:         setToSlice(c.muted),
		CensoredWords: types.JSONStringMap(c.censoredWords.Words()),
		Listeners:     setToSlice(c.listeners),
	}
	if c.relay != nil {
		rec.Relay = c.relay.Name()
	}
	return rec
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Channel) save() {
	c.reg.saveChannel(c)
}
