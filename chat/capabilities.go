package chat

import "github.com/galechat/galechat/types"

// The capabilities the core consumes from the hosting application. All of
// them are optional: a nil Deliverer drops output, a nil Permissioner allows
// everything, a nil Positioner makes every channel unbounded, a nil Recorder
// keeps no history.

// Deliverer delivers formatted text to an identity. An offline identity must
// be reported as an error return, never a panic, so the broadcast fan-out
// can swallow it and move on.
type Deliverer interface {
	Deliver(identity string, text string) error
}

// Permissioner answers permission checks. Node strings follow the pattern
// "<action>.<channelName>", f.e. "chat.general" or "join.vip".
type Permissioner interface {
	HasPermission(identity string, node string) bool
}

// Positioner knows the spatial positions of identities. The second return
// value reports whether both identities are physically located, identities
// without a position (console, relay bridges) are always audible.
type Positioner interface {
	Distance(a, b string) (float64, bool)
}

// Recorder receives every broadcast message after local fan-out, f.e. for
// the chat log file and the persisted history.
type Recorder interface {
	Record(record types.ChatRecord)
}

// Relay is the per-channel bridge a channel forwards its traffic to. The
// concrete implementation lives outside the core (see the relay package).
type Relay interface {
	// Name returns the pseudo-identity inbound relay messages are
	// broadcast under. Broadcasts originated by this identity are not
	// forwarded back to the relay.
	Name() string
	Enabled() bool
	// Outbound sends the plain-text rendering of a broadcast to every
	// remote destination of the bridge. It is invoked fire-and-forget, a
	// slow or dead relay never delays local fan-out.
	Outbound(text string)
}
