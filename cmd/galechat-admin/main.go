package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/galechat/galechat/config"
	"github.com/galechat/galechat/globals"
	"github.com/galechat/galechat/persistence"
	"github.com/galechat/galechat/types"
)

// A very simple CLI tool for the administration of galechat channels and chatters.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	log.SetFlags(0)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)

	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig.PersistenceConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show channel or chatter",
		Long:  `show is for printing chatter or channel information with a given name.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Show: " + strings.Join(args, " "))
		},
	}
	var cmdShowChannels = &cobra.Command{
		Use:   "channels",
		Short: "Show channels",
		Long:  `show channels lists all stored channels.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			channels, err := persister.GetChannels()
			if err != nil {
				globals.AppLogger.Error("could not get channels", "error", err)
				return
			}
			c, err := json.Marshal(channels)
			if err != nil {
				globals.AppLogger.Error("could not marshal channels", "error", err)
				return
			}
			fmt.Println(string(c))
		},
	}
	var cmdShowChannel = &cobra.Command{
		Use:   "channel [channel name]",
		Short: "Show channel",
		Long:  `show channel prints detail information about the channel with the given name.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			channel, err := persister.GetChannel(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get channel", "error", err)
				return
			}
			c, err := json.Marshal(channel)
			if err != nil {
				globals.AppLogger.Error("could not marshal channel", "error", err)
				return
			}
			fmt.Println(string(c))
		},
	}
	var cmdShowChatters = &cobra.Command{
		Use:   "chatters",
		Short: "Show chatters",
		Long:  `show chatters lists all stored chatters.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			chatters, err := persister.GetChatters()
			if err != nil {
				globals.AppLogger.Error("could not get chatters", "error", err)
				return
			}
			c, err := json.Marshal(chatters)
			if err != nil {
				globals.AppLogger.Error("could not marshal chatters", "error", err)
				return
			}
			fmt.Println(string(c))
		},
	}
	var cmdShowChatter = &cobra.Command{
		Use:   "chatter [chatter name]",
		Short: "Show chatter",
		Long:  `show chatter prints detail information about the chatter with the given name.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			chatter, err := persister.GetChatter(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get chatter", "error", err)
				return
			}
			c, err := json.Marshal(chatter)
			if err != nil {
				globals.AppLogger.Error("could not marshal chatter", "error", err)
				return
			}
			fmt.Println(string(c))
		},
	}
	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "delete channel or chatter",
		Long:  `delete removes the chatter or channel with a given name.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Delete: " + strings.Join(args, " "))
		},
	}
	var cmdDeleteChannel = &cobra.Command{
		Use:   "channel [channel name]",
		Short: "Delete channel",
		Long:  `delete channel removes the channel with the given name.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			err := persister.DeleteChannel(args[0])
			if err != nil {
				globals.AppLogger.Error("could not delete channel", "error", err)
				return
			}
		},
	}
	var cmdDeleteChatter = &cobra.Command{
		Use:   "chatter [chatter name]",
		Short: "Delete chatter",
		Long:  `delete chatter removes the chatter with the given name.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			err := persister.DeleteChatter(args[0])
			if err != nil {
				globals.AppLogger.Error("could not delete chatter", "error", err)
				return
			}
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update channel or chatter",
		Long:  `set creates or updates a channel or chatter.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Set: " + strings.Join(args, " "))
		},
	}
	var cmdSetChannel = &cobra.Command{
		Use:   "channel [channel definition]",
		Short: "Set channel",
		Long:  `set channel creates or updates a channel. If the channel definition is "-", the definition is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			dec := json.NewDecoder(r)
			channel := types.ChannelRecord{}
			err := dec.Decode(&channel)
			if err != nil {
				globals.AppLogger.Error("could not decode channel", "error", err)
				return
			}
			globals.AppLogger.Info("got channel", "channel", channel)
			if channel.Name == "" {
				globals.AppLogger.Error("no channel name")
				return
			}
			_, err = persister.GetChannel(channel.Name)
			if err != nil {
				globals.AppLogger.Info("channel does not exist, creating")
			}
			err = persister.StoreChannel(channel)
			if err != nil {
				globals.AppLogger.Error("could not store channel", "error", err)
				return
			}
		},
	}
	var cmdSetChatter = &cobra.Command{
		Use:   "chatter [chatter definition]",
		Short: "Set chatter",
		Long:  `set chatter creates or updates a chatter with the given definition. If the chatter definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			dec := json.NewDecoder(r)
			chatter := types.ChatterRecord{}
			err := dec.Decode(&chatter)
			if err != nil {
				globals.AppLogger.Error("could not decode chatter", "error", err)
				return
			}
			globals.AppLogger.Info("got chatter", "chatter", chatter)
			if chatter.Name == "" {
				globals.AppLogger.Error("no chatter name")
				return
			}
			err = persister.StoreChatter(chatter)
			if err != nil {
				globals.AppLogger.Error("could not store chatter", "error", err)
				return
			}
		},
	}
	var cmdBan = &cobra.Command{
		Use:   "ban [channel name] [chatter name]",
		Short: "Ban a chatter from a channel",
		Long:  `ban adds the chatter to the channel's ban list and removes it from the listeners.`,
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			channel, err := persister.GetChannel(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get channel", "error", err)
				return
			}
			name := strings.ToLower(args[1])
			for _, b := range channel.Banned {
				if b == name {
					return
				}
			}
			channel.Banned = append(channel.Banned, name)
			listeners := make(types.JSONStringSlice, 0, len(channel.Listeners))
			for _, l := range channel.Listeners {
				if l != name {
					listeners = append(listeners, l)
				}
			}
			channel.Listeners = listeners
			err = persister.StoreChannel(channel)
			if err != nil {
				globals.AppLogger.Error("could not store channel", "error", err)
				return
			}
		},
	}
	var cmdUnban = &cobra.Command{
		Use:   "unban [channel name] [chatter name]",
		Short: "Lift a ban",
		Long:  `unban removes the chatter from the channel's ban list.`,
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			channel, err := persister.GetChannel(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get channel", "error", err)
				return
			}
			name := strings.ToLower(args[1])
			banned := make(types.JSONStringSlice, 0, len(channel.Banned))
			for _, b := range channel.Banned {
				if b != name {
					banned = append(banned, b)
				}
			}
			channel.Banned = banned
			err = persister.StoreChannel(channel)
			if err != nil {
				globals.AppLogger.Error("could not store channel", "error", err)
				return
			}
		},
	}
	var cmdRadius = &cobra.Command{
		Use:   "radius [channel name] [radius]",
		Short: "Set the channel radius",
		Long:  `radius sets the audibility radius of a channel. 0 or less means the channel is heard everywhere.`,
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			radius, err := strconv.Atoi(args[1])
			if err != nil {
				globals.AppLogger.Error("radius is not a number", "error", err)
				return
			}
			channel, err := persister.GetChannel(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get channel", "error", err)
				return
			}
			channel.Radius = radius
			err = persister.StoreChannel(channel)
			if err != nil {
				globals.AppLogger.Error("could not store channel", "error", err)
				return
			}
		},
	}
	var cmdCensor = &cobra.Command{
		Use:   "censor [channel name] [word] [replacement]",
		Short: "Censor a word in a channel",
		Long:  `censor adds a word to the channel's censored words. Without a replacement, the word is replaced by a run of stars.`,
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			channel, err := persister.GetChannel(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get channel", "error", err)
				return
			}
			replacement := ""
			if len(args) > 2 {
				replacement = args[2]
			}
			if channel.CensoredWords == nil {
				channel.CensoredWords = types.JSONStringMap{}
			}
			channel.CensoredWords[strings.ToLower(args[1])] = replacement
			err = persister.StoreChannel(channel)
			if err != nil {
				globals.AppLogger.Error("could not store channel", "error", err)
				return
			}
		},
	}
	var cmdUncensor = &cobra.Command{
		Use:   "uncensor [channel name] [word]",
		Short: "Stop censoring a word",
		Long:  `uncensor removes a word from the channel's censored words.`,
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			channel, err := persister.GetChannel(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get channel", "error", err)
				return
			}
			delete(channel.CensoredWords, strings.ToLower(args[1]))
			err = persister.StoreChannel(channel)
			if err != nil {
				globals.AppLogger.Error("could not store channel", "error", err)
				return
			}
		},
	}
	var historyFrom, historyTo string
	var historyCount, historyOffset int
	var cmdHistory = &cobra.Command{
		Use:   "history [channel name]",
		Short: "Dump chat history",
		Long:  `history prints stored chat records for a channel, newest first. Without a channel name, records of all channels are printed.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			channel := ""
			if len(args) > 0 {
				channel = args[0]
			}
			var fromTs, toTs time.Time
			var err error
			if historyFrom != "" {
				fromTs, err = time.Parse(time.RFC3339, historyFrom)
				if err != nil {
					globals.AppLogger.Error("could not parse from timestamp", "error", err)
					return
				}
			}
			if historyTo != "" {
				toTs, err = time.Parse(time.RFC3339, historyTo)
				if err != nil {
					globals.AppLogger.Error("could not parse to timestamp", "error", err)
					return
				}
			}
			history, err := persister.GetChatHistory(channel, fromTs, toTs, historyOffset, historyCount)
			if err != nil {
				globals.AppLogger.Error("could not get chat history", "error", err)
				return
			}
			h, err := json.Marshal(history)
			if err != nil {
				globals.AppLogger.Error("could not marshal chat history", "error", err)
				return
			}
			fmt.Println(string(h))
		},
	}
	cmdHistory.Flags().StringVar(&historyFrom, "from", "", "only records at or after this RFC3339 timestamp")
	cmdHistory.Flags().StringVar(&historyTo, "to", "", "only records before this RFC3339 timestamp")
	cmdHistory.Flags().IntVar(&historyCount, "count", 100, "maximum number of records")
	cmdHistory.Flags().IntVar(&historyOffset, "offset", 0, "number of records to skip")
	var rootCmd = &cobra.Command{Use: "galechat-admin"}
	rootCmd.AddCommand(cmdShow)
	rootCmd.AddCommand(cmdDelete)
	rootCmd.AddCommand(cmdSet)
	rootCmd.AddCommand(cmdBan, cmdUnban, cmdCensor, cmdUncensor, cmdRadius, cmdHistory)
	cmdShow.AddCommand(cmdShowChannels, cmdShowChannel, cmdShowChatters, cmdShowChatter)
	cmdDelete.AddCommand(cmdDeleteChannel, cmdDeleteChatter)
	cmdSet.AddCommand(cmdSetChannel, cmdSetChatter)
	rootCmd.Execute()
}
