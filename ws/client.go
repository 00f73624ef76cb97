package ws

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"

	"github.com/galechat/galechat/chat"
	"github.com/galechat/galechat/command"
	"github.com/galechat/galechat/globals"
	"github.com/galechat/galechat/types"
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	chatter *chat.Chatter

	doneChan chan struct{}

	// WaitGroup which keeps track of the running read/write loops and of the
	// registration handshake with the hub.
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, chatter *chat.Chatter, doneChan chan struct{}) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		chatter:  chatter,
		doneChan: doneChan,
	}
}

// Chatter returns the chatter this connection speaks for.
func (c *Client) Chatter() *chat.Chatter {
	return c.chatter
}

// SendChatHistory replays persisted chat records to this client only.
func (c *Client) SendChatHistory(records []types.ChatRecord, wg *sync.WaitGroup) {
	if wg != nil {
		defer wg.Done()
	}
	for _, record := range records {
		payload, err := marshalEvent(types.WireMessageTypeChat, types.WireChatMessage{
			Nick:      record.Sender,
			Channel:   record.Channel,
			Message:   record.Text,
			Timestamp: record.Timestamp,
		})
		if err != nil {
			globals.AppLogger.Error("could not marshal history record", "error", err)
			continue
		}
		c.hub.RLock()
		if _, ok := c.hub.clients[c.key()]; ok {
			c.Send <- payload
		}
		c.hub.RUnlock()
	}
}

// ReadLoop pumps messages from the websocket connection into the registry.
//
// The application runs ReadLoop in a per-connection goroutine, which makes
// sure there is at most one reader per connection.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
		c.Done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				globals.AppLogger.Debug("ws closed unexpectedly", "error", err)
			}
			return
		}
		message := types.WebsocketMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			globals.AppLogger.Debug("could not unmarshal ws message", "error", err)
			c.sendError("malformed message")
			continue
		}
		switch message.Event {
		case types.WireMessageTypeChat:
			chatMsgMap := make(map[string]interface{})
			if err := json.Unmarshal(message.Data, &chatMsgMap); err != nil {
				c.sendError("malformed chat message")
				continue
			}
			chatMsg := types.WireChatMessage{}
			if err := mapstructure.WeakDecode(chatMsgMap, &chatMsg); err != nil {
				globals.AppLogger.Debug("could not decode chat message", "error", err)
				c.sendError("malformed chat message")
				continue
			}
			c.handleLine(chatMsg.Channel, chatMsg.Message)
		default:
			c.sendError("unknown event " + message.Event)
		}
	}
}

// handleLine routes one line of input: command lines go to the dispatcher,
// everything else is chat.
func (c *Client) handleLine(channelName, line string) {
	if line == "" {
		return
	}
	if command.IsCommand(line) {
		reply, err := c.hub.Dispatcher.Execute(c.chatter, line)
		if err != nil {
			c.sendError(command.Explain(err))
			return
		}
		if reply != "" {
			if err := c.hub.Deliver(c.chatter.Name(), reply); err != nil {
				globals.AppLogger.Debug("could not deliver command reply", "error", err)
			}
		}
		return
	}
	var err error
	if channelName == "" {
		err = c.chatter.Chat(line)
	} else {
		var channel *chat.Channel
		channel, err = c.hub.Registry.LookupChannel(channelName)
		if err == nil {
			err = c.chatter.ChatTo(channel, line)
		}
	}
	if err != nil {
		c.sendError(command.Explain(err))
	}
}

// WriteLoop pumps messages from the Send channel to the websocket
// connection and keeps the connection alive with pings.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case payload, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(text string) {
	payload, err := marshalEvent(types.WireMessageTypeError, types.WireErrorMessage{Error: text})
	if err != nil {
		globals.AppLogger.Error("could not marshal error message", "error", err)
		return
	}
	select {
	case c.Send <- payload:
	default:
	}
}

func (c *Client) key() string {
	return strings.ToLower(c.chatter.Name())
}
