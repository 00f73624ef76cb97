package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigurationFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "galechat.toml")
	content := `
default_channel = "lobby"
log_level = "DEBUG"

[formats]
chat-format = "<{NAME}> {MESSAGE}"

[history]
history_size = 25

[persistence]
type = "buntdb"
dsn = ":memory:"

[chatlog]
directory = "/var/log/galechat"

[[channel]]
name = "trade"
radius = 100
invite_only = true

[channel.censored_words]
fool = ""

[[relay]]
name = "relay:irc"
channel = "trade"
url = "wss://relay.example.com/bridge"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := ReadConfiguration(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "lobby", cfg.DefaultChannel)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 25, cfg.HistoryConfig.HistorySize)
	assert.Equal(t, "buntdb", cfg.PersistenceConfig.Type)
	assert.Equal(t, ":memory:", cfg.PersistenceConfig.DSN)
	assert.Equal(t, "/var/log/galechat", cfg.ChatLogConfig.Directory)

	require.Len(t, cfg.ChannelConfigs, 1)
	assert.Equal(t, "trade", cfg.ChannelConfigs[0].Name)
	assert.Equal(t, 100, cfg.ChannelConfigs[0].Radius)
	assert.True(t, cfg.ChannelConfigs[0].InviteOnly)
	assert.Equal(t, map[string]string{"fool": ""}, cfg.ChannelConfigs[0].CensoredWords)

	require.Len(t, cfg.RelayConfigs, 1)
	assert.Equal(t, "relay:irc", cfg.RelayConfigs[0].Name)
	assert.Equal(t, "trade", cfg.RelayConfigs[0].Channel)

	assert.Equal(t, "<{NAME}> {MESSAGE}", cfg.Formats["chat-format"], "configured format wins")
	assert.Equal(t, "You have joined {CHANNEL}.", cfg.Formats["join-message-format"], "missing formats fall back to defaults")
}

func TestReadConfigurationDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.toml"), []byte("log_level = \"WARN\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.toml"), []byte("[persistence]\ntype = \"sqlite\"\ndsn = \"chat.db\"\n"), 0o644))

	cfg, err := ReadConfiguration(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.PersistenceConfig.Type)
}

func TestReadConfigurationMissingPath(t *testing.T) {
	_, err := ReadConfiguration(filepath.Join(t.TempDir(), "nope.toml"), nil)
	assert.Error(t, err)
}
