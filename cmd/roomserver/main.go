// Package main runs the room server: a single room reachable over WebSocket
// and, optionally, a line-oriented telnet port.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/broadcast"
	"github.com/cory-johannsen/roomserver/internal/config"
	"github.com/cory-johannsen/roomserver/internal/engine"
	"github.com/cory-johannsen/roomserver/internal/frontend/telnet"
	"github.com/cory-johannsen/roomserver/internal/frontend/websocket"
	"github.com/cory-johannsen/roomserver/internal/observability"
	"github.com/cory-johannsen/roomserver/internal/room"
	"github.com/cory-johannsen/roomserver/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	envFile := flag.String("env", ".env", "optional dotenv file with ROOM_ overrides")
	roomFile := flag.String("room", "", "room YAML file (overrides room.file)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("loading env file: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *roomFile != "" {
		cfg.Room.File = *roomFile
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	policy, err := room.ParseClosePolicy(cfg.Room.ClosePolicy)
	if err != nil {
		logger.Fatal("parsing close policy", zap.Error(err))
	}

	def := engine.DefaultRoom()
	if cfg.Room.File != "" {
		def, err = engine.LoadRoomFromFile(cfg.Room.File)
		if err != nil {
			logger.Fatal("loading room", zap.String("file", cfg.Room.File), zap.Error(err))
		}
	}
	logger.Info("room loaded",
		zap.String("room", def.ID),
		zap.Int("exits", len(def.Exits)),
		zap.Int("items", len(def.Items)),
	)

	// Build the room
	registry := room.NewRegistry()
	out := broadcast.New(registry, logger.Named("broadcast"))
	eng, err := engine.New(def, out, logger.Named("engine"))
	if err != nil {
		logger.Fatal("creating engine", zap.Error(err))
	}
	router := room.NewRouter(def.ID, registry, eng, out, policy, logger.Named("router"))
	sessions := room.SessionServer{Router: router, InboxSize: cfg.WebSocket.InboxSize}

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	wsAcceptor := websocket.NewAcceptor(cfg.WebSocket, sessions, router, logger.Named("websocket"))
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: wsAcceptor.ListenAndServe,
		StopFn:  wsAcceptor.Stop,
	})

	if cfg.Telnet.Enabled {
		telnetAcceptor := telnet.NewAcceptor(cfg.Telnet, sessions, logger.Named("telnet"))
		lifecycle.Add("telnet", &server.FuncService{
			StartFn: telnetAcceptor.ListenAndServe,
			StopFn:  telnetAcceptor.Stop,
		})
	}

	logger.Info("room server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("websocket_addr", cfg.WebSocket.Addr()),
		zap.String("websocket_path", cfg.WebSocket.Path),
		zap.Bool("telnet", cfg.Telnet.Enabled),
		zap.Stringer("close_policy", policy),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
