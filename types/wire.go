package types

import (
	"encoding/json"
	"time"
)

const (
	WireMessageTypeChat    = "chat"
	WireMessageTypeCommand = "command"
	WireMessageTypeInfo    = "info"
	WireMessageTypeError   = "error"
)

// JSON-serialized WebsocketMessage is what is actually sent via the
// websocket connection.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WireChatMessage is a chat line sent to or received from a connected client.
type WireChatMessage struct {
	Nick      string    `json:"nick" mapstructure:"-"`
	Channel   string    `json:"channel" mapstructure:"channel"`
	Message   string    `json:"message" mapstructure:"message"`
	Timestamp time.Time `json:"timestamp" mapstructure:"-"`
}

// WireInfoMessage carries channel statistics to the clients.
type WireInfoMessage struct {
	Channel     string `json:"channel"`
	NoListeners int    `json:"no_listeners"`
}

// WireErrorMessage reports a rejected operation back to the client that
// attempted it.
type WireErrorMessage struct {
	Error string `json:"error"`
}
