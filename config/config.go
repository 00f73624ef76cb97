package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/galechat/galechat/globals"
)

const (
	defaultChannelName = "general"
	defaultHistorySize = 100
)

var defaultFormats = map[string]string{
	"chat-format":            "{NAME}: {MESSAGE}",
	"join-message-format":    "You have joined {CHANNEL}.",
	"leave-message-format":   "You have left {CHANNEL}.",
	"ban-message-format":     "You have been banned from {CHANNEL}!",
	"private-message-format": "{ADDRESS} {NAME}: {MESSAGE}",
}

// Config is the global configuration object, filled from the TOML
// configuration file(s), environment (GALECHAT_ prefix) and command line.
type Config struct {
	DefaultChannel    string            `mapstructure:"default_channel"`
	LogLevel          string            `mapstructure:"log_level"`
	ListenAddress     string            `mapstructure:"listen_address"`
	Formats           map[string]string `mapstructure:"formats"`
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	ChatLogConfig     ChatLogConfig     `mapstructure:"chatlog"`
	ChannelConfigs    []ChannelConfig   `mapstructure:"channel"`
	RelayConfigs      []RelayConfig     `mapstructure:"relay"`
}

// HistoryConfig configures the in-memory message history sent to newly
// connected clients.
type HistoryConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// PersistenceConfig selects the persistence backend. Type is one of
// "buntdb", "sqlite" or "postgres"; an empty type disables persistence.
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// ChatLogConfig configures the plain-text chat log. An empty directory
// disables it.
type ChatLogConfig struct {
	Directory  string `mapstructure:"directory"`
	DateFormat string `mapstructure:"date_format"`
	TimeFormat string `mapstructure:"time_format"`
}

// Each ChannelConfig block declares a channel that exists from startup,
// independent of what the persistence backend holds.
type ChannelConfig struct {
	Name          string            `mapstructure:"name"`
	Radius        int               `mapstructure:"radius"`
	Password      string            `mapstructure:"password"`
	InviteOnly    bool              `mapstructure:"invite_only"`
	Format        string            `mapstructure:"format"`
	JoinMessage   string            `mapstructure:"join_message"`
	LeaveMessage  string            `mapstructure:"leave_message"`
	BanMessage    string            `mapstructure:"ban_message"`
	Filter        string            `mapstructure:"filter"`
	CensoredWords map[string]string `mapstructure:"censored_words"`
}

// Each RelayConfig block attaches a relay bridge to a channel.
type RelayConfig struct {
	Name    string `mapstructure:"name"`
	Channel string `mapstructure:"channel"`
	URL     string `mapstructure:"url"`
}

// GetFlagSet returns the command line flags shared by the binaries.
func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("default-channel", "d", "", "name of the default channel")
	flagSet.StringP("listen-address", "l", "", "listen address of the chat endpoint")
	flagSet.String("log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	return flagSet
}

// wordSepNormalizeFunc maps the - separator in flag names to the _ used in
// the configuration keys.
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at
// configPath, which can either point to a single TOML file or to a
// directory, in which case all *.toml files in the directory are
// concatenated. It returns a Config object with the defaults applied.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	if flagSet != nil {
		flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
		if err := viper.BindPFlags(flagSet); err != nil {
			globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
		}
	}
	viper.SetDefault("default_channel", defaultChannelName)
	viper.SetDefault("listen_address", "localhost:8000")
	viper.SetDefault("history.history_size", defaultHistorySize)
	viper.SetEnvPrefix("GALECHAT")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	if cfg.Formats == nil {
		cfg.Formats = make(map[string]string)
	}
	for node, source := range defaultFormats {
		if _, ok := cfg.Formats[node]; !ok {
			cfg.Formats[node] = source
		}
	}
	return &cfg, nil
}
