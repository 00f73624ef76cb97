package types

import (
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// ChatRecord is one broadcast message as it went out, kept for the history.
type ChatRecord struct {
	Id        string    `json:"id" gorm:"primaryKey" hash:"ignore"`
	Channel   string    `json:"channel"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateId derives the record id from a hash over the record contents.
func (r *ChatRecord) CreateId() error {
	hash, err := hashstructure.Hash(r, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	r.Id = fmt.Sprintf("%016x", hash)
	return nil
}
