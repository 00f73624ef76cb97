package types

import "time"

// ChannelRecord is the persisted snapshot of a channel. The json field names
// follow the historical document schema (channels.<name>.{radius, password,
// invite-only, ...}).
type ChannelRecord struct {
	Name          string          `json:"name" gorm:"primaryKey"`
	Radius        int             `json:"radius"`
	Password      string          `json:"password"`
	InviteOnly    bool            `json:"invite-only"`
	Format        string          `json:"format"`
	JoinMessage   string          `json:"join-message"`
	LeaveMessage  string          `json:"leave-message"`
	BanMessage    string          `json:"ban-message"`
	Filter        string          `json:"filter"`
	Banned        JSONStringSlice `json:"banned"`
	Muted         JSONStringSlice `json:"muted"`
	CensoredWords JSONStringMap   `json:"censored-words"`
	Listeners     JSONStringSlice `json:"listeners"`
	Relay         string          `json:"relay"`
	UpdatedAt     time.Time       `json:"-"`
}

// ChatterRecord is the persisted snapshot of a chatter
// (chatters.<name>.{channels, invites, active-channel}).
type ChatterRecord struct {
	Name          string          `json:"name" gorm:"primaryKey"`
	Channels      JSONStringSlice `json:"channels"`
	Invites       JSONStringSlice `json:"invites"`
	ActiveChannel string          `json:"active-channel"`
	QuitMessage   string          `json:"quit-message"`
	Formats       JSONStringMap   `json:"formats"`
	UpdatedAt     time.Time       `json:"-"`
}
