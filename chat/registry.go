package chat

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/galechat/galechat/format"
	"github.com/galechat/galechat/globals"
	"github.com/galechat/galechat/types"
)

// Saver persists channel and chatter snapshots. The registry calls it
// synchronously on every mutation while auto-save is on, and from SaveAll
// for periodic full flushes.
type Saver interface {
	SaveChannel(record types.ChannelRecord) error
	SaveChatter(record types.ChatterRecord) error
}

// Options wires the collaborator capabilities into a registry. Everything
// except Defaults and DefaultChannel may be nil.
type Options struct {
	Defaults       format.Set
	DefaultChannel string
	Deliverer      Deliverer
	Permissioner   Permissioner
	Positioner     Positioner
	Recorder       Recorder
	Saver          Saver
}

// Registry is the explicit context object holding the channel and chatter
// registries and the collaborator capabilities. It is passed by reference
// into every channel and chatter, there is no ambient singleton.
type Registry struct {
	defaults       format.Set
	defaultChannel string
	deliverer      Deliverer
	permissioner   Permissioner
	positioner     Positioner
	recorder       Recorder
	saver          Saver

	mu       sync.RWMutex
	channels map[string]*Channel
	chatters map[string]*Chatter
	autoSave bool

	obsMu     sync.RWMutex
	observers []Observer
}

// NewRegistry creates a registry and its default channel. Auto-save starts
// disabled so initial loading does not write everything straight back.
func NewRegistry(opts Options) *Registry {
	reg := &Registry{
		defaults:       opts.Defaults,
		defaultChannel: opts.DefaultChannel,
		deliverer:      opts.Deliverer,
		permissioner:   opts.Permissioner,
		positioner:     opts.Positioner,
		recorder:       opts.Recorder,
		saver:          opts.Saver,
		channels:       make(map[string]*Channel),
		chatters:       make(map[string]*Chatter),
	}
	if reg.defaults == nil {
		reg.defaults = format.Set{}
	}
	channel := newChannel(reg, opts.DefaultChannel)
	reg.channels[strings.ToLower(opts.DefaultChannel)] = channel
	return reg
}

// SetAutoSave toggles synchronous persistence of every mutation.
func (r *Registry) SetAutoSave(autoSave bool) {
	r.mu.Lock()
	r.autoSave = autoSave
	r.mu.Unlock()
}

// Subscribe registers an observer for core state change notifications.
func (r *Registry) Subscribe(obs Observer) {
	r.obsMu.Lock()
	r.observers = append(r.observers, obs)
	r.obsMu.Unlock()
}

// DefaultChannel returns the configured default channel.
func (r *Registry) DefaultChannel() *Channel {
	channel, err := r.LookupChannel(r.defaultChannel)
	if err != nil {
		// the default channel is created in NewRegistry and never removed
		panic(err)
	}
	return channel
}

// CreateChannel adds a new channel under the given name.
func (r *Registry) CreateChannel(name string) (*Channel, error) {
	key := strings.ToLower(name)
	r.mu.Lock()
	if _, ok := r.channels[key]; ok {
		r.mu.Unlock()
		return nil, errors.Errorf("channel %q already exists", name)
	}
	channel := newChannel(r, name)
	r.channels[key] = channel
	r.mu.Unlock()
	r.saveChannel(channel)
	return channel, nil
}

// LoadChannel restores a channel from its persisted record, replacing any
// channel of the same name. Relay attachment is the caller's business, the
// record only names the bridge.
func (r *Registry) LoadChannel(rec types.ChannelRecord) (*Channel, error) {
	channel := newChannel(r, rec.Name)
	channel.radius = rec.Radius
	channel.password = rec.Password
	channel.inviteOnly = rec.InviteOnly
	if rec.Format != "" {
		channel.formatTpl = format.Parse(rec.Format)
	}
	if rec.JoinMessage != "" {
		channel.joinMessage = format.Parse(rec.JoinMessage)
	}
	if rec.LeaveMessage != "" {
		channel.leaveMessage = format.Parse(rec.LeaveMessage)
	}
	if rec.BanMessage != "" {
		channel.banMessage = format.Parse(rec.BanMessage)
	}
	if rec.Filter != "" {
		prog, err := compileFilter(rec.Filter)
		if err != nil {
			return nil, errors.Wrapf(err, "channel %s", rec.Name)
		}
		channel.filterSource = rec.Filter
		channel.filterProg = prog
	}
	for _, name := range rec.Banned {
		channel.banned[strings.ToLower(name)] = struct{}{}
	}
	for _, name := range rec.Muted {
		channel.muted[strings.ToLower(name)] = struct{}{}
	}
	for word, replacement := range rec.CensoredWords {
		channel.censoredWords.Add(word, replacement)
	}
	for _, name := range rec.Listeners {
		if _, banned := channel.banned[strings.ToLower(name)]; banned {
			continue
		}
		channel.listeners[strings.ToLower(name)] = struct{}{}
	}
	r.mu.Lock()
	r.channels[strings.ToLower(rec.Name)] = channel
	r.mu.Unlock()
	return channel, nil
}

// LookupChannel resolves a channel by name, case-insensitively.
func (r *Registry) LookupChannel(name string) (*Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if channel, ok := r.channels[strings.ToLower(name)]; ok {
		return channel, nil
	}
	return nil, errors.Wrap(ErrChannelNotFound, name)
}

// Channels returns a snapshot of all channels sorted by name.
func (r *Registry) Channels() []*Channel {
	r.mu.RLock()
	channels := lo.Values(r.channels)
	r.mu.RUnlock()
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name() < channels[j].Name() })
	return channels
}

// LookupChatter resolves a chatter by name, case-insensitively.
func (r *Registry) LookupChatter(name string) (*Chatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if chatter, ok := r.chatters[strings.ToLower(name)]; ok {
		return chatter, nil
	}
	return nil, errors.Wrap(ErrChatterNotFound, name)
}

// Chatters returns a snapshot of all connected chatters sorted by name.
func (r *Registry) Chatters() []*Chatter {
	r.mu.RLock()
	chatters := lo.Values(r.chatters)
	r.mu.RUnlock()
	sort.Slice(chatters, func(i, j int) bool { return chatters[i].Name() < chatters[j].Name() })
	return chatters
}

// Login creates the chatter on first contact and joins it to the default
// channel. Logging in an already known chatter returns the existing one.
func (r *Registry) Login(name string) (*Chatter, error) {
	key := strings.ToLower(name)
	r.mu.Lock()
	if chatter, ok := r.chatters[key]; ok {
		r.mu.Unlock()
		return chatter, nil
	}
	chatter := newChatter(r, name)
	r.chatters[key] = chatter
	r.mu.Unlock()
	if err := chatter.Join(r.DefaultChannel(), "", true); err != nil {
		return nil, err
	}
	return chatter, nil
}

// ResumeChatter restores a chatter from its persisted record: channel set,
// invites, active channel (falling back to the default channel when the
// persisted one is gone) and format overrides.
func (r *Registry) ResumeChatter(rec types.ChatterRecord) (*Chatter, error) {
	key := strings.ToLower(rec.Name)
	r.mu.Lock()
	if chatter, ok := r.chatters[key]; ok {
		r.mu.Unlock()
		return chatter, nil
	}
	// Fill in the record fields before the chatter becomes visible through
	// the map, concurrent lookups must never see a half-restored chatter.
	chatter := newChatter(r, rec.Name)
	chatter.quitMessage = rec.QuitMessage
	for node, source := range rec.Formats {
		if kind, ok := format.KindFromNode(node); ok {
			chatter.formats[kind] = format.Parse(source)
		}
	}
	r.chatters[key] = chatter
	r.mu.Unlock()

	for _, name := range rec.Channels {
		channel, err := r.LookupChannel(name)
		if err != nil {
			continue
		}
		if err := chatter.Join(channel, "", false); err != nil {
			globals.AppLogger.Debug("could not rejoin channel", "chatter", rec.Name, "channel", name, "error", err)
		}
	}
	active, err := r.LookupChannel(rec.ActiveChannel)
	if err != nil {
		active = r.DefaultChannel()
	}
	for _, name := range rec.Invites {
		if channel, err := r.LookupChannel(name); err == nil {
			chatter.Invite(channel)
		}
	}
	if err := chatter.Join(active, "", true); err != nil {
		return nil, err
	}
	return chatter, nil
}

// Logout detaches a chatter: the leave format is broadcast to its active
// channel (with the quit message override, if any), the chatter state is
// persisted, and the chatter is removed from every listener set and from
// the registry.
func (r *Registry) Logout(name string) error {
	chatter, err := r.LookupChatter(name)
	if err != nil {
		return err
	}
	if active, err := r.LookupChannel(chatter.ActiveChannel()); err == nil {
		tpl := chatter.FormatFor(format.KindLeave)
		tpl.Substitute(format.PlaceholderName, chatter.Name())
		tpl.Substitute(format.PlaceholderChannel, active.Name())
		tpl.Substitute(format.PlaceholderQuitMessage, chatter.QuitMessage())
		active.Broadcast(chatter.Name(), tpl.String())
	}
	if r.saver != nil {
		if err := r.saver.SaveChatter(chatter.Record()); err != nil {
			globals.AppLogger.Error("could not persist chatter on logout", "chatter", name, "error", err)
		}
	}
	for _, channel := range r.Channels() {
		channel.RemoveListener(name)
	}
	r.mu.Lock()
	delete(r.chatters, strings.ToLower(name))
	r.mu.Unlock()
	return nil
}

// JoinChannel runs the full join gate for a chatter: active-membership,
// ban, invite-only, permission and password checks, in that order, then the
// chatter-level join making the channel active. A banned chatter gets the
// channel's ban message delivered instead of an error detail.
func (r *Registry) JoinChannel(chatter *Chatter, channel *Channel, password string) error {
	if strings.EqualFold(channel.Name(), chatter.ActiveChannel()) {
		return errors.Wrap(ErrAlreadyActiveMember, channel.Name())
	}
	if channel.IsBanned(chatter.Name()) {
		tpl := channel.BanMessage()
		tpl.Substitute(format.PlaceholderName, chatter.Name())
		tpl.Substitute(format.PlaceholderChannel, channel.Name())
		chatter.deliver(tpl.String())
		return errors.Wrapf(ErrAccessDenied, "banned from %s", channel.Name())
	}
	if channel.IsInviteOnly() && !chatter.IsInvitedTo(channel) {
		return errors.Wrap(ErrInviteOnly, channel.Name())
	}
	if !r.hasPermission(chatter.Name(), "join."+channel.Name()) {
		return errors.Wrapf(ErrPermissionDenied, "join %s", channel.Name())
	}
	if channel.HasPassword() {
		if password == "" {
			return errors.Wrap(ErrPasswordRequired, channel.Name())
		}
		if !channel.CheckPassword(password) {
			return errors.Wrap(ErrAccessDenied, channel.Name())
		}
	}
	return chatter.Join(channel, "", true)
}

// SaveAll flushes every channel and chatter snapshot to the saver.
func (r *Registry) SaveAll() error {
	if r.saver == nil {
		return nil
	}
	for _, channel := range r.Channels() {
		if err := r.saver.SaveChannel(channel.Record()); err != nil {
			return errors.Wrapf(err, "channel %s", channel.Name())
		}
	}
	for _, chatter := range r.Chatters() {
		if err := r.saver.SaveChatter(chatter.Record()); err != nil {
			return errors.Wrapf(err, "chatter %s", chatter.Name())
		}
	}
	return nil
}

// HasPermission checks the identity against the configured permissioner.
// Without one, everything is allowed.
func (r *Registry) HasPermission(identity, node string) bool {
	return r.hasPermission(identity, node)
}

func (r *Registry) deliver(identity, message string) error {
	if r.deliverer == nil {
		return nil
	}
	return r.deliverer.Deliver(identity, message)
}

func (r *Registry) hasPermission(identity, node string) bool {
	if r.permissioner == nil {
		return true
	}
	return r.permissioner.HasPermission(identity, node)
}

func (r *Registry) record(channel, sender, text string) {
	if r.recorder == nil {
		return
	}
	rec := types.ChatRecord{
		Channel:   channel,
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now(),
	}
	if err := rec.CreateId(); err != nil {
		globals.AppLogger.Error("could not hash chat record", "error", err)
		return
	}
	r.recorder.Record(rec)
}

func (r *Registry) notifyJoined(chatter, channel string) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, obs := range r.observers {
		obs.OnChatterJoined(chatter, channel)
	}
}

func (r *Registry) notifyLeft(chatter, channel string) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, obs := range r.observers {
		obs.OnChatterLeft(chatter, channel)
	}
}

func (r *Registry) notifyBroadcast(channel, sender, text string) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, obs := range r.observers {
		obs.OnMessageBroadcast(channel, sender, text)
	}
}

func (r *Registry) saveChannel(channel *Channel) {
	r.mu.RLock()
	autoSave := r.autoSave
	saver := r.saver
	r.mu.RUnlock()
	if !autoSave || saver == nil {
		return
	}
	if err := saver.SaveChannel(channel.Record()); err != nil {
		globals.AppLogger.Error("could not persist channel", "channel", channel.Name(), "error", err)
	}
}

func (r *Registry) saveChatter(chatter *Chatter) {
	r.mu.RLock()
	autoSave := r.autoSave
	saver := r.saver
	r.mu.RUnlock()
	if !autoSave || saver == nil {
		return
	}
	if err := saver.SaveChatter(chatter.Record()); err != nil {
		globals.AppLogger.Error("could not persist chatter", "chatter", chatter.Name(), "error", err)
	}
}
