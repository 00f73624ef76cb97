package persistence

import (
	"database/sql/driver"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/galechat/galechat/config"
	"github.com/galechat/galechat/types"
)

var _ driver.Valuer = &datatypes.JSON{}

type GormPersist struct {
	db *gorm.DB
}

// NewGormPersister opens the SQL backend selected by the configuration and
// migrates the schema.
func NewGormPersister(cfg config.PersistenceConfig) (Persister, error) {
	var dial gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dial = postgres.Open(cfg.DSN)
	case "sqlite":
		dial = sqlite.Open(cfg.DSN)
	default:
		return nil, errors.Errorf("invalid gorm configuration type %q", cfg.Type)
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.Migrator().AutoMigrate(&types.ChannelRecord{}, &types.ChatterRecord{}, &types.ChatRecord{}); err != nil {
		return nil, err
	}
	return &GormPersist{db: db}, nil
}

func (p *GormPersist) StoreChannel(channel types.ChannelRecord) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&channel).Error
}

func (p *GormPersist) GetChannel(name string) (types.ChannelRecord, error) {
	var channel types.ChannelRecord
	err := p.db.First(&channel, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return channel, errors.Wrap(ErrNotFound, name)
	}
	return channel, err
}

func (p *GormPersist) GetChannels() ([]types.ChannelRecord, error) {
	channels := make([]types.ChannelRecord, 0)
	err := p.db.Find(&channels).Error
	return channels, err
}

func (p *GormPersist) DeleteChannel(name string) error {
	return p.db.Delete(&types.ChannelRecord{}, "name = ?", name).Error
}

func (p *GormPersist) StoreChatter(chatter types.ChatterRecord) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&chatter).Error
}

func (p *GormPersist) GetChatter(name string) (types.ChatterRecord, error) {
	var chatter types.ChatterRecord
	err := p.db.First(&chatter, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chatter, errors.Wrap(ErrNotFound, name)
	}
	return chatter, err
}

func (p *GormPersist) GetChatters() ([]types.ChatterRecord, error) {
	chatters := make([]types.ChatterRecord, 0)
	err := p.db.Find(&chatters).Error
	return chatters, err
}

func (p *GormPersist) DeleteChatter(name string) error {
	return p.db.Delete(&types.ChatterRecord{}, "name = ?", name).Error
}

func (p *GormPersist) StoreChats(chats []types.ChatRecord) error {
	if len(chats) == 0 {
		return nil
	}
	return p.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&chats).Error
}

func (p *GormPersist) GetChatHistory(channel string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]types.ChatRecord, error) {
	chats := make([]types.ChatRecord, 0)
	query := p.db.Where("timestamp BETWEEN ? AND ?", fromTs, toTs)
	if channel != "" {
		query = query.Where("channel = ?", channel)
	}
	err := query.Order("timestamp DESC").Limit(maxCount).Offset(fromIdx).Find(&chats).Error
	return chats, err
}

func (p *GormPersist) Close() error {
	db, err := p.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
