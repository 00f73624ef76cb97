package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/folkengine/goname"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"

	"github.com/galechat/galechat/chat"
	"github.com/galechat/galechat/chatlog"
	"github.com/galechat/galechat/command"
	"github.com/galechat/galechat/config"
	"github.com/galechat/galechat/format"
	"github.com/galechat/galechat/globals"
	"github.com/galechat/galechat/persistence"
	"github.com/galechat/galechat/relay"
	"github.com/galechat/galechat/types"
	"github.com/galechat/galechat/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

// persistSaver adapts the persister to the registry's saver capability.
type persistSaver struct {
	persister persistence.Persister
}

func (s persistSaver) SaveChannel(record types.ChannelRecord) error {
	return s.persister.StoreChannel(record)
}

func (s persistSaver) SaveChatter(record types.ChatterRecord) error {
	return s.persister.StoreChatter(record)
}

// chatRecorder buffers broadcast records in memory, the cron flush writes
// them out in batches.
type chatRecorder struct {
	mu      sync.Mutex
	pending []types.ChatRecord
}

func (r *chatRecorder) Record(record types.ChatRecord) {
	r.mu.Lock()
	r.pending = append(r.pending, record)
	r.mu.Unlock()
}

func (r *chatRecorder) Flush(persister persistence.Persister) {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	if err := persister.StoreChats(pending); err != nil {
		globals.AppLogger.Error("could not store chat records", "error", err)
	}
}

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		globals.AppLogger.Error("could not read configuration", "error", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}

	persister, err := persistence.NewPersister(cfg.PersistenceConfig)
	if err != nil {
		globals.AppLogger.Error("could not set up persistence", "error", err)
		os.Exit(1)
	}
	if persister != nil {
		defer persister.Close()
	}

	hub := ws.NewHub(nil, nil, persister, cfg.HistoryConfig.HistorySize)
	recorder := &chatRecorder{}
	opts := chat.Options{
		Defaults:       format.SetFromNodes(cfg.Formats),
		DefaultChannel: cfg.DefaultChannel,
		Deliverer:      hub,
	}
	if persister != nil {
		opts.Recorder = recorder
		opts.Saver = persistSaver{persister: persister}
	}
	reg := chat.NewRegistry(opts)
	hub.Registry = reg
	hub.Dispatcher = command.NewDispatcher(reg)
	reg.Subscribe(hub)

	if cfg.ChatLogConfig.Directory != "" {
		chatLogger, err := chatlog.New(cfg.ChatLogConfig.Directory, cfg.ChatLogConfig.DateFormat, cfg.ChatLogConfig.TimeFormat)
		if err != nil {
			globals.AppLogger.Error("could not set up chat log", "error", err)
			os.Exit(1)
		}
		defer chatLogger.Close()
		reg.Subscribe(chatLogger)
	}

	if persister != nil {
		records, err := persister.GetChannels()
		if err != nil {
			globals.AppLogger.Error("could not load channels", "error", err)
			os.Exit(1)
		}
		for _, record := range records {
			if _, err := reg.LoadChannel(record); err != nil {
				globals.AppLogger.Error("could not restore channel", "channel", record.Name, "error", err)
			}
		}
	}
	applyChannelConfigs(reg, cfg.ChannelConfigs)
	bridges := connectRelays(reg, cfg.RelayConfigs)
	defer func() {
		for _, bridge := range bridges {
			_ = bridge.Disconnect()
		}
	}()

	reg.SetAutoSave(persister != nil)

	if persister != nil {
		flusher := cron.New()
		_, err = flusher.AddFunc("@every 1m", func() {
			recorder.Flush(persister)
			if err := reg.SaveAll(); err != nil {
				globals.AppLogger.Error("could not flush registry", "error", err)
			}
		})
		if err != nil {
			globals.AppLogger.Error("could not schedule flush", "error", err)
			os.Exit(1)
		}
		flusher.Start()
		defer flusher.Stop()
		defer recorder.Flush(persister)
	}

	go hub.Run()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		if persister != nil {
			recorder.Flush(persister)
			if err := reg.SaveAll(); err != nil {
				globals.AppLogger.Error("could not flush registry on shutdown", "error", err)
			}
		}
		os.Exit(0)
	}()

	router := mux.NewRouter()
	router.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		websocketHandler(hub, persister, w, r)
	}).Methods(http.MethodGet)
	http.Handle("/", router)

	globals.AppLogger.Info("listening", "address", cfg.ListenAddress)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(cfg.ListenAddress, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(cfg.ListenAddress, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

// applyChannelConfigs makes sure every declared channel exists and carries
// the configured settings, whatever the persistence backend holds.
func applyChannelConfigs(reg *chat.Registry, configs []config.ChannelConfig) {
	for _, cc := range configs {
		channel, err := reg.LookupChannel(cc.Name)
		if err != nil {
			channel, err = reg.CreateChannel(cc.Name)
			if err != nil {
				globals.AppLogger.Error("could not create channel", "channel", cc.Name, "error", err)
				continue
			}
		}
		channel.SetRadius(cc.Radius)
		channel.SetPassword(cc.Password)
		channel.SetInviteOnly(cc.InviteOnly)
		if cc.Format != "" {
			channel.SetFormat(cc.Format)
		}
		if cc.JoinMessage != "" {
			channel.SetJoinMessage(cc.JoinMessage)
		}
		if cc.LeaveMessage != "" {
			channel.SetLeaveMessage(cc.LeaveMessage)
		}
		if cc.BanMessage != "" {
			channel.SetBanMessage(cc.BanMessage)
		}
		if cc.Filter != "" {
			if err := channel.SetFilter(cc.Filter); err != nil {
				globals.AppLogger.Error("could not set channel filter", "channel", cc.Name, "error", err)
			}
		}
		for word, replacement := range cc.CensoredWords {
			channel.CensorWord(word, replacement)
		}
	}
}

// connectRelays attaches and connects the configured relay bridges. A
// bridge that cannot connect is logged and skipped, chat runs without it.
func connectRelays(reg *chat.Registry, configs []config.RelayConfig) []*relay.Bridge {
	bridges := make([]*relay.Bridge, 0, len(configs))
	for _, rc := range configs {
		channel, err := reg.LookupChannel(rc.Channel)
		if err != nil {
			globals.AppLogger.Error("relay channel missing", "relay", rc.Name, "channel", rc.Channel)
			continue
		}
		bridge := relay.NewBridge(rc.Name, relay.NewWebsocketTransport(rc.URL), channel)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = bridge.Connect(ctx)
		cancel()
		if err != nil {
			globals.AppLogger.Error("could not connect relay", "relay", rc.Name, "error", err)
			continue
		}
		bridges = append(bridges, bridge)
	}
	return bridges
}

// Handle incoming websockets
func websocketHandler(hub *ws.Hub, persister persistence.Persister, w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = goname.New(goname.FantasyMap).FirstLast() + " (guest)"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close() //nolint

	chatter, err := resumeOrLogin(hub.Registry, persister, name)
	if err != nil {
		globals.AppLogger.Error("could not log chatter in", "chatter", name, "error", err)
		return
	}

	doneChan := make(chan struct{})
	client := ws.NewClient(hub, conn, chatter, doneChan)

	client.Add(1)
	hub.Register <- client
	// wait until the hub has actually picked the registration up, so the
	// history replay below reaches the new client
	client.Wait()
	defer func() {
		hub.Unregister <- client
	}()

	client.Add(2)
	go client.ReadLoop()
	go client.WriteLoop()

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go client.SendChatHistory(hub.History(chatter.ActiveChannel()), wg)
	wg.Wait()
	<-doneChan
}

// resumeOrLogin restores a known chatter from the store or creates a fresh
// one.
func resumeOrLogin(reg *chat.Registry, persister persistence.Persister, name string) (*chat.Chatter, error) {
	if persister != nil {
		record, err := persister.GetChatter(name)
		if err == nil {
			return reg.ResumeChatter(record)
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return nil, err
		}
	}
	return reg.Login(name)
}
