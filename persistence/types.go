package persistence

import (
	"time"

	"github.com/pkg/errors"

	"github.com/galechat/galechat/config"
	"github.com/galechat/galechat/types"
)

// ErrNotFound is returned when the requested channel or chatter is not in
// the store.
var ErrNotFound = errors.New("not found")

// Persister stores channel and chatter snapshots and the chat history.
type Persister interface {
	StoreChannel(types.ChannelRecord) error
	GetChannel(name string) (types.ChannelRecord, error)
	GetChannels() ([]types.ChannelRecord, error)
	DeleteChannel(name string) error
	StoreChatter(types.ChatterRecord) error
	GetChatter(name string) (types.ChatterRecord, error)
	GetChatters() ([]types.ChatterRecord, error)
	DeleteChatter(name string) error
	StoreChats([]types.ChatRecord) error
	// GetChatHistory returns chat records for the channel, newest first.
	// Use fromTs/toTs to restrict the time range, and fromIdx/maxCount for
	// pagination. An empty channel matches all channels.
	GetChatHistory(channel string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]types.ChatRecord, error)
	Close() error
}

// NewPersister selects the backend from the configuration. An empty type
// means no persistence, in which case both return values are nil.
func NewPersister(cfg config.PersistenceConfig) (Persister, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "buntdb":
		return NewBuntPersister(cfg)
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	default:
		return nil, errors.Errorf("unknown persistence type %q", cfg.Type)
	}
}
