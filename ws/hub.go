package ws

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/galechat/galechat/chat"
	"github.com/galechat/galechat/command"
	"github.com/galechat/galechat/globals"
	"github.com/galechat/galechat/persistence"
	"github.com/galechat/galechat/types"
)

const (
	maxMessageSize         = 4096
	pongWait               = 2 * time.Minute
	pingPeriod             = time.Minute
	writeWait              = 10 * time.Second
	sendChannelSize        = 1000
	defaultChatHistorySize = 20
)

// Hub tracks the connected clients and routes text to them. There is one
// hub per process, the channel fan-out lives in the registry; the hub is
// the registry's deliverer.
type Hub struct {
	Registry   *chat.Registry
	Dispatcher *command.Dispatcher

	// persistence, may be nil
	Persister persistence.Persister

	historySize int

	// Registered clients by chatter identity.
	clients map[string]*Client

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(reg *chat.Registry, dispatcher *command.Dispatcher, persister persistence.Persister, historySize int) *Hub {
	if historySize <= 0 {
		historySize = defaultChatHistorySize
	}
	return &Hub{
		Registry:    reg,
		Dispatcher:  dispatcher,
		Persister:   persister,
		historySize: historySize,
		clients:     make(map[string]*Client),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
	}
}

// Run processes client registrations. It blocks, run it in its own
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Lock()
			h.clients[strings.ToLower(client.chatter.Name())] = client
			h.Unlock()
			client.Done()
		case client := <-h.Unregister:
			name := client.chatter.Name()
			h.Lock()
			current, ok := h.clients[strings.ToLower(name)]
			owned := ok && current == client
			if owned {
				delete(h.clients, strings.ToLower(name))
				close(client.Send)
			}
			h.Unlock()
			// a stale unregister after a quick reconnect must not log
			// the live session out
			if !owned {
				continue
			}
			if err := h.Registry.Logout(name); err != nil {
				globals.AppLogger.Debug("logout failed", "chatter", name, "error", err)
			}
		}
	}
}

// Deliver routes one line of text to the identity's connection. This is the
// deliverer capability the registry fans broadcasts out through.
func (h *Hub) Deliver(identity, text string) error {
	h.RLock()
	client, ok := h.clients[strings.ToLower(identity)]
	h.RUnlock()
	if !ok {
		return errors.Errorf("chatter %s is not connected", identity)
	}
	payload, err := marshalEvent(types.WireMessageTypeChat, types.WireChatMessage{
		Message:   text,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}
	select {
	case client.Send <- payload:
		return nil
	default:
		return errors.Errorf("send buffer of %s is full", identity)
	}
}

// OnChatterJoined pushes updated listener counts to all clients.
func (h *Hub) OnChatterJoined(chatter, channel string) {
	h.broadcastInfo(channel)
}

// OnChatterLeft pushes updated listener counts to all clients.
func (h *Hub) OnChatterLeft(chatter, channel string) {
	h.broadcastInfo(channel)
}

// OnMessageBroadcast is part of the observer interface, delivery already
// happened through Deliver.
func (h *Hub) OnMessageBroadcast(channel, sender, text string) {}

func (h *Hub) broadcastInfo(channelName string) {
	channel, err := h.Registry.LookupChannel(channelName)
	if err != nil {
		return
	}
	payload, err := marshalEvent(types.WireMessageTypeInfo, types.WireInfoMessage{
		Channel:     channel.Name(),
		NoListeners: channel.NoListeners(),
	})
	if err != nil {
		globals.AppLogger.Error("could not marshal info message", "error", err)
		return
	}
	h.RLock()
	defer h.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// History returns the most recent chat records of the channel, oldest
// first, ready to be replayed to a newly connected client.
func (h *Hub) History(channel string) []types.ChatRecord {
	if h.Persister == nil {
		return nil
	}
	records, err := h.Persister.GetChatHistory(channel, time.Time{}, time.Now(), 0, h.historySize)
	if err != nil {
		globals.AppLogger.Error("could not load chat history", "error", err)
		return nil
	}
	// persister order is newest first
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records
}

func marshalEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal event data")
	}
	return json.Marshal(types.WebsocketMessage{Event: event, Data: raw})
}
