// moot - a multiplayer LLM chat client for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mootlabs/moot-tui/internal/cache"
	"github.com/mootlabs/moot-tui/internal/config"
	"github.com/mootlabs/moot-tui/internal/engine"
	"github.com/mootlabs/moot-tui/internal/model"
	"github.com/mootlabs/moot-tui/internal/realtime"
	"github.com/mootlabs/moot-tui/internal/store"
	"github.com/mootlabs/moot-tui/internal/ui/chat"
	"github.com/mootlabs/moot-tui/internal/ui/styles"

	apiclient "github.com/mootlabs/moot-tui/internal/api"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// Global program reference for messages posted from engine goroutines.
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

func sendToProgram(msg tea.Msg) {
	programMu.Lock()
	p := programRef
	programMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default ~/.moot/config.toml)")
		room        = flag.String("room", "", "room id to join (overrides config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("moot %s (%s)\n", Version, GitCommit)
		return
	}

	// Load configuration.
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "moot: %v\n", err)
		os.Exit(1)
	}
	if *room != "" {
		cfg.Realtime.Room = *room
	}

	if err := run(cfg, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "moot: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string) error {
	// TUI output owns the terminal; route logs to a file.
	if f := openLogFile(); f != nil {
		log.SetOutput(f)
		defer f.Close()
	}

	// Local cache. Failure to open is not fatal: the cache only makes
	// restarts fast.
	var cacheDB *cache.Cache
	if cfg.Cache.Enabled {
		path, err := cfg.CachePath()
		if err == nil {
			cacheDB, err = cache.Open(path)
		}
		if err != nil {
			log.Printf("cache disabled: %v", err)
			cacheDB = nil
		} else {
			defer cacheDB.Close()
		}
	}

	storeClient := store.NewClient(cfg.Store.URL, cfg.Store.Key)
	completer := apiclient.NewClient(cfg.API.Endpoint, cfg.API.PluginEndpoint, cfg.API.Key)

	self := model.Presence{
		Key:   model.NewID(),
		Name:  cfg.User.Name,
		Color: cfg.User.Color,
	}
	if self.Color == "" {
		self.Color = model.PresenceColors[time.Now().UnixNano()%int64(len(model.PresenceColors))]
	}

	sessionCfg := engine.Config{
		Room:      model.Room{ID: cfg.Realtime.Room, Name: cfg.Realtime.Room},
		Self:      self,
		Store:     storeClient,
		Completer: completer,
		Plugins:   cfg.API.PluginKeys,
		OnUpdate: func() {
			sendToProgram(chat.SessionUpdatedMsg{})
		},
		OnToast: func(level engine.ToastLevel, msg string) {
			sendToProgram(chat.SessionToastMsg{Level: level, Text: msg})
		},
	}
	if cacheDB != nil {
		sessionCfg.Cache = cacheDB
	}
	session := engine.NewSession(sessionCfg)

	// Bootstrap from the store; fall back to cached snapshots offline.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	bootErr := session.Bootstrap(ctx)
	cancel()
	if bootErr != nil {
		log.Printf("bootstrap: %v", bootErr)
		if cacheDB != nil {
			if convs, err := cacheDB.ListConversations(cfg.Realtime.Room); err == nil {
				session.BootstrapLocal(convs)
			}
		}
	}

	// Realtime subscription. The client stays usable without it; remote
	// changes just stop flowing.
	var sub *engine.Subscriber
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, dialErr := realtime.Dial(dialCtx, cfg.Realtime.URL)
	dialCancel()
	if dialErr != nil {
		log.Printf("realtime dial: %v", dialErr)
	} else {
		defer conn.Close()
		sub = engine.NewSubscriber(session, conn)
	}

	// Build and start the UI.
	theme := styles.NewTheme()
	m := chat.New(theme, session, sub)
	p := tea.NewProgram(m, tea.WithAltScreen())

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	// Subscribe after the program exists so channel state changes reach
	// the UI as toasts.
	if sub != nil {
		go func() {
			subCtx, subCancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer subCancel()
			if err := sub.Start(subCtx); err != nil {
				log.Printf("realtime subscribe: %v", err)
			}
		}()
	}
	if bootErr != nil {
		go sendToProgram(chat.SessionToastMsg{
			Level: engine.ToastPersistent,
			Text:  "Could not reach the store; showing cached conversations",
		})
	}
	if dialErr != nil {
		go sendToProgram(chat.SessionToastMsg{
			Level: engine.ToastPersistent,
			Text:  "Live updates unavailable; changes from others will not appear",
		})
	}

	// Watch the config file so identity and key edits apply live.
	watcher := startConfigWatcher(configPath, func(next *config.Config) {
		completer.SetKey(next.API.Key)
		session.UpdateSelf(next.User.Name, next.User.Color)
		if sub != nil {
			sub.TrackSelf()
		}
		log.Printf("config reloaded: name=%s", next.User.Name)
	})
	if watcher != nil {
		defer watcher.Close()
	}

	_, err := p.Run()

	programMu.Lock()
	programRef = nil
	programMu.Unlock()

	return err
}

// startConfigWatcher reloads the config file on edit and hands each
// successfully parsed config to onReload.
func startConfigWatcher(configPath string, onReload func(*config.Config)) *config.Watcher {
	path := configPath
	if path == "" {
		var err error
		path, err = config.ConfigPathTOML()
		if err != nil {
			return nil
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	w, err := config.NewWatcher(path, onReload)
	if err != nil {
		log.Printf("config watcher: %v", err)
		return nil
	}
	if err := w.Watch(); err != nil {
		log.Printf("config watcher: %v", err)
		w.Close()
		return nil
	}
	return w
}

// openLogFile opens ~/.moot/moot.log for append.
func openLogFile() *os.File {
	dir, err := config.ConfigDir()
	if err != nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(dir+"/moot.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil
	}
	return f
}
