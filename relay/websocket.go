package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wireLine is the JSON frame exchanged with the remote relay endpoint.
type wireLine struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// WebsocketTransport is a Transport over a single websocket connection.
type WebsocketTransport struct {
	url string

	writeMu sync.Mutex
	conn    *websocket.Conn
	pinger  *time.Ticker
	closed  chan struct{}
}

// NewWebsocketTransport prepares a transport for the given ws:// or wss://
// endpoint. The connection is made in Connect.
func NewWebsocketTransport(url string) *WebsocketTransport {
	return &WebsocketTransport{url: url}
}

// Connect dials the endpoint and starts the keepalive pinger.
func (t *WebsocketTransport) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return errors.Wrapf(err, "could not dial %s", t.url)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	t.writeMu.Lock()
	t.conn = conn
	t.pinger = time.NewTicker(pingPeriod)
	t.closed = make(chan struct{})
	t.writeMu.Unlock()
	go t.pingLoop()
	return nil
}

// Send writes one frame. Safe to call concurrently with the pinger.
func (t *WebsocketTransport) Send(sender, text string) error {
	payload, err := json.Marshal(wireLine{Sender: sender, Text: text})
	if err != nil {
		return errors.Wrap(err, "could not encode relay line")
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return errors.New("transport is not connected")
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// Receive blocks for the next frame.
func (t *WebsocketTransport) Receive() (string, string, error) {
	t.writeMu.Lock()
	conn := t.conn
	t.writeMu.Unlock()
	if conn == nil {
		return "", "", errors.New("transport is not connected")
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return "", "", err
	}
	var line wireLine
	if err := json.Unmarshal(payload, &line); err != nil {
		return "", "", errors.Wrap(err, "could not decode relay line")
	}
	return line.Sender, line.Text, nil
}

// Close shuts the connection down, unblocking any pending Receive.
func (t *WebsocketTransport) Close() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return nil
	}
	close(t.closed)
	t.pinger.Stop()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *WebsocketTransport) pingLoop() {
	for {
		t.writeMu.Lock()
		pinger, closed, conn := t.pinger, t.closed, t.conn
		t.writeMu.Unlock()
		if conn == nil {
			return
		}
		select {
		case <-pinger.C:
			t.writeMu.Lock()
			if t.conn != nil {
				_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = t.conn.WriteMessage(websocket.PingMessage, nil)
			}
			t.writeMu.Unlock()
		case <-closed:
			return
		}
	}
}
