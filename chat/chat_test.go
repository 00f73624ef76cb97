package chat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/galechat/galechat/format"
	"github.com/galechat/galechat/types"
)

// test doubles for the collaborator capabilities

type memDeliverer struct {
	mu      sync.Mutex
	inboxes map[string][]string
	offline map[string]struct{}
}

func newMemDeliverer() *memDeliverer {
	return &memDeliverer{
		inboxes: make(map[string][]string),
		offline: make(map[string]struct{}),
	}
}

func (d *memDeliverer) Deliver(identity, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.offline[strings.ToLower(identity)]; ok {
		return fmt.Errorf("identity %s is offline", identity)
	}
	d.inboxes[strings.ToLower(identity)] = append(d.inboxes[strings.ToLower(identity)], text)
	return nil
}

func (d *memDeliverer) setOffline(identity string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline[strings.ToLower(identity)] = struct{}{}
}

func (d *memDeliverer) inbox(identity string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.inboxes[strings.ToLower(identity)]...)
}

func (d *memDeliverer) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inboxes = make(map[string][]string)
}

type stubPermissioner struct {
	mu     sync.Mutex
	denied map[string]struct{} // "<identity>|<node>"
}

func newStubPermissioner() *stubPermissioner {
	return &stubPermissioner{denied: make(map[string]struct{})}
}

func (p *stubPermissioner) deny(identity, node string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denied[strings.ToLower(identity)+"|"+node] = struct{}{}
}

func (p *stubPermissioner) HasPermission(identity, node string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.denied[strings.ToLower(identity)+"|"+node]
	return !ok
}

type stubPositioner struct {
	mu        sync.Mutex
	distances map[string]float64 // "a|b", lowercase, sorted
}

func newStubPositioner() *stubPositioner {
	return &stubPositioner{distances: make(map[string]float64)}
}

func pairKey(a, b string) string {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (p *stubPositioner) place(a, b string, distance float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.distances[pairKey(a, b)] = distance
}

func (p *stubPositioner) Distance(a, b string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.distances[pairKey(a, b)]
	return d, ok
}

type memRecorder struct {
	mu      sync.Mutex
	records []types.ChatRecord
}

func (r *memRecorder) Record(record types.ChatRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *memRecorder) all() []types.ChatRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ChatRecord(nil), r.records...)
}

type memSaver struct {
	mu       sync.Mutex
	channels map[string]types.ChannelRecord
	chatters map[string]types.ChatterRecord
}

func newMemSaver() *memSaver {
	return &memSaver{
		channels: make(map[string]types.ChannelRecord),
		chatters: make(map[string]types.ChatterRecord),
	}
}

func (s *memSaver) SaveChannel(record types.ChannelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[strings.ToLower(record.Name)] = record
	return nil
}

func (s *memSaver) SaveChatter(record types.ChatterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatters[strings.ToLower(record.Name)] = record
	return nil
}

type memObserver struct {
	mu         sync.Mutex
	joined     []string // "<chatter>@<channel>"
	left       []string
	broadcasts []string // "<channel>/<sender>: <text>"
}

func (o *memObserver) OnChatterJoined(chatter, channel string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.joined = append(o.joined, chatter+"@"+channel)
}

func (o *memObserver) OnChatterLeft(chatter, channel string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.left = append(o.left, chatter+"@"+channel)
}

func (o *memObserver) OnMessageBroadcast(channel, sender, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.broadcasts = append(o.broadcasts, channel+"/"+sender+": "+text)
}

func testDefaults() format.Set {
	return format.Set{
		format.KindChat:           format.Parse("{NAME}: {MESSAGE}"),
		format.KindJoin:           format.Parse("You have joined {CHANNEL}."),
		format.KindLeave:          format.Parse("You have left {CHANNEL}."),
		format.KindBan:            format.Parse("You have been banned from {CHANNEL}!"),
		format.KindPrivateMessage: format.Parse("{ADDRESS} {NAME}: {MESSAGE}"),
	}
}

type testEnv struct {
	reg      *Registry
	delivery *memDeliverer
	perms    *stubPermissioner
	pos      *stubPositioner
	recorder *memRecorder
	saver    *memSaver
}

func newTestEnv() *testEnv {
	env := &testEnv{
		delivery: newMemDeliverer(),
		perms:    newStubPermissioner(),
		pos:      newStubPositioner(),
		recorder: &memRecorder{},
		saver:    newMemSaver(),
	}
	env.reg = NewRegistry(Options{
		Defaults:       testDefaults(),
		DefaultChannel: "general",
		Deliverer:      env.delivery,
		Permissioner:   env.perms,
		Positioner:     env.pos,
		Recorder:       env.recorder,
		Saver:          env.saver,
	})
	return env
}

// fakeRelay implements the Relay capability for tests.
type fakeRelay struct {
	mu       sync.Mutex
	enabled  bool
	outbound []string
	done     chan struct{}
}

func newFakeRelay(enabled bool) *fakeRelay {
	return &fakeRelay{enabled: enabled, done: make(chan struct{}, 16)}
}

func (f *fakeRelay) Name() string { return "relay:test" }

func (f *fakeRelay) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeRelay) Outbound(text string) {
	f.mu.Lock()
	f.outbound = append(f.outbound, text)
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
}

func (f *fakeRelay) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.outbound...)
}
