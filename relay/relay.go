package relay

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/galechat/galechat/chat"
	"github.com/galechat/galechat/globals"
)

// outboundQueueSize bounds the send buffer, a slow remote drops messages
// instead of stalling the broadcast path.
const outboundQueueSize = 256

// ErrAlreadyConnected is returned by Connect on a bridge that is already up.
var ErrAlreadyConnected = errors.New("relay: already connected")

// Transport moves relay lines to and from the remote endpoint. Implementations
// must be safe for one concurrent reader and one concurrent writer.
type Transport interface {
	Connect(ctx context.Context) error
	Send(sender, text string) error
	// Receive blocks until the next inbound line or a transport failure.
	Receive() (sender, text string, err error)
	Close() error
}

// Bridge ties one channel to one remote endpoint. Inbound remote lines are
// broadcast into the channel under the bridge identity, outbound broadcasts
// are queued to the transport. The bridge identity as broadcast sender is
// what keeps remote lines from echoing straight back out.
type Bridge struct {
	name      string
	transport Transport
	channel   *chat.Channel

	mu         sync.Mutex
	enabled    bool
	connecting bool
	connected  bool
	outbound   chan string
	done       chan struct{}
}

// NewBridge creates a disconnected bridge. The name doubles as the pseudo
// identity remote messages are broadcast under, it must not collide with a
// chatter name.
func NewBridge(name string, transport Transport, channel *chat.Channel) *Bridge {
	return &Bridge{
		name:      name,
		transport: transport,
		channel:   channel,
		enabled:   true,
	}
}

// Name returns the bridge identity.
func (b *Bridge) Name() string {
	return b.name
}

// Enabled reports whether the bridge currently forwards broadcasts.
func (b *Bridge) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled && b.connected
}

// SetEnabled pauses or resumes outbound forwarding without touching the
// connection.
func (b *Bridge) SetEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}

// Connect dials the transport and starts the read and write loops. Calling
// Connect on a connected bridge is an error, not a reconnect.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.connected || b.connecting {
		b.mu.Unlock()
		return errors.Wrap(ErrAlreadyConnected, b.name)
	}
	b.connecting = true
	b.mu.Unlock()

	if err := b.transport.Connect(ctx); err != nil {
		b.mu.Lock()
		b.connecting = false
		b.mu.Unlock()
		return errors.Wrapf(err, "relay %s", b.name)
	}

	b.mu.Lock()
	b.connecting = false
	b.connected = true
	b.outbound = make(chan string, outboundQueueSize)
	b.done = make(chan struct{})
	outbound, done := b.outbound, b.done
	b.mu.Unlock()

	go b.readLoop(done)
	go b.writeLoop(outbound, done)
	b.channel.AttachRelay(b)
	globals.AppLogger.Info("relay connected", "relay", b.name, "channel", b.channel.Name())
	return nil
}

// Disconnect tears the bridge down. It is idempotent.
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	close(b.done)
	b.mu.Unlock()

	b.channel.AttachRelay(nil)
	err := b.transport.Close()
	globals.AppLogger.Info("relay disconnected", "relay", b.name)
	return errors.Wrapf(err, "relay %s", b.name)
}

// Outbound queues a broadcast for the remote endpoint. When the queue is
// full or the bridge is down the message is dropped.
func (b *Bridge) Outbound(text string) {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	outbound := b.outbound
	b.mu.Unlock()
	select {
	case outbound <- text:
	default:
		globals.AppLogger.Warn("relay outbound queue full, dropping message", "relay", b.name)
	}
}

// Inbound broadcasts a remote line into the bridged channel. The remote
// sender is rendered into the text, the broadcast itself runs under the
// bridge identity.
func (b *Bridge) Inbound(sender, text string) {
	b.channel.Broadcast(b.name, sender+": "+text)
}

func (b *Bridge) readLoop(done chan struct{}) {
	for {
		sender, text, err := b.transport.Receive()
		if err != nil {
			select {
			case <-done:
			default:
				globals.AppLogger.Error("relay receive failed", "relay", b.name, "error", err)
				if err := b.Disconnect(); err != nil {
					globals.AppLogger.Debug("relay teardown", "relay", b.name, "error", err)
				}
			}
			return
		}
		b.Inbound(sender, text)
	}
}

func (b *Bridge) writeLoop(outbound chan string, done chan struct{}) {
	for {
		select {
		case text := <-outbound:
			if err := b.transport.Send(b.name, text); err != nil {
				globals.AppLogger.Error("relay send failed", "relay", b.name, "error", err)
			}
		case <-done:
			return
		}
	}
}
