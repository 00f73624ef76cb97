package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/galechat/galechat/config"
	"github.com/galechat/galechat/types"
)

type BuntDBPersist struct {
	db *buntdb.DB
}

// NewBuntPersister opens the BuntDB file named by the DSN (":memory:" for a
// purely in-memory store) and creates the chat timestamp index.
func NewBuntPersister(cfg config.PersistenceConfig) (Persister, error) {
	db, err := buntdb.Open(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.CreateIndex("chatsts", "chat:*", buntdb.IndexJSON("timestamp")); err != nil {
		db.Close()
		return nil, err
	}
	return &BuntDBPersist{db: db}, nil
}

func (p *BuntDBPersist) StoreChannel(channel types.ChannelRecord) error {
	return p.storeDoc("channel:"+strings.ToLower(channel.Name), channel)
}

func (p *BuntDBPersist) GetChannel(name string) (types.ChannelRecord, error) {
	var channel types.ChannelRecord
	err := p.getDoc("channel:"+strings.ToLower(name), &channel)
	return channel, err
}

func (p *BuntDBPersist) GetChannels() ([]types.ChannelRecord, error) {
	channels := make([]types.ChannelRecord, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("channel:*", func(key, val string) bool {
			var channel types.ChannelRecord
			if err := json.Unmarshal([]byte(val), &channel); err == nil {
				channels = append(channels, channel)
			}
			return true
		})
	})
	return channels, err
}

func (p *BuntDBPersist) DeleteChannel(name string) error {
	return p.deleteDoc("channel:" + strings.ToLower(name))
}

func (p *BuntDBPersist) StoreChatter(chatter types.ChatterRecord) error {
	return p.storeDoc("chatter:"+strings.ToLower(chatter.Name), chatter)
}

func (p *BuntDBPersist) GetChatter(name string) (types.ChatterRecord, error) {
	var chatter types.ChatterRecord
	err := p.getDoc("chatter:"+strings.ToLower(name), &chatter)
	return chatter, err
}

func (p *BuntDBPersist) GetChatters() ([]types.ChatterRecord, error) {
	chatters := make([]types.ChatterRecord, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("chatter:*", func(key, val string) bool {
			var chatter types.ChatterRecord
			if err := json.Unmarshal([]byte(val), &chatter); err == nil {
				chatters = append(chatters, chatter)
			}
			return true
		})
	})
	return chatters, err
}

func (p *BuntDBPersist) DeleteChatter(name string) error {
	return p.deleteDoc("chatter:" + strings.ToLower(name))
}

func (p *BuntDBPersist) StoreChats(chats []types.ChatRecord) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, chat := range chats {
			doc, err := json.Marshal(chat)
			if err != nil {
				return err
			}
			if _, _, err := tx.Set("chat:"+chat.Id, string(doc), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) GetChatHistory(channel string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]types.ChatRecord, error) {
	chats := make([]types.ChatRecord, 0)
	fromCond := fmt.Sprintf(`{"timestamp":"%s"}`, fromTs.In(time.UTC).Format(time.RFC3339))
	toCond := fmt.Sprintf(`{"timestamp":"%s"}`, toTs.In(time.UTC).Format(time.RFC3339))
	err := p.db.View(func(tx *buntdb.Tx) error {
		currentNo := -1
		count := 0
		return tx.DescendRange("chatsts", toCond, fromCond, func(key, val string) bool {
			var chat types.ChatRecord
			if err := json.Unmarshal([]byte(val), &chat); err != nil {
				return true
			}
			if channel != "" && !strings.EqualFold(chat.Channel, channel) {
				return true
			}
			currentNo++
			if currentNo < fromIdx {
				return true
			}
			chats = append(chats, chat)
			count++
			return maxCount <= 0 || count < maxCount
		})
	})
	return chats, err
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}

func (p *BuntDBPersist) storeDoc(key string, value interface{}) error {
	doc, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(doc), nil)
		return err
	})
}

func (p *BuntDBPersist) getDoc(key string, value interface{}) error {
	return p.db.View(func(tx *buntdb.Tx) error {
		doc, err := tx.Get(key)
		if err == buntdb.ErrNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(doc), value)
	})
}

func (p *BuntDBPersist) deleteDoc(key string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}
