package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/spf13/pflag"

	"privmsg/internal/chat"
	"privmsg/internal/clock"
	"privmsg/internal/config"
	"privmsg/internal/database"
	"privmsg/internal/directory"
	"privmsg/internal/handler"
	"privmsg/internal/identity"
	"privmsg/internal/ledger"
	"privmsg/internal/notice"
	"privmsg/internal/notify"
	"privmsg/internal/policy"
	"privmsg/internal/readstate"
	"privmsg/internal/realtime"
	"privmsg/internal/store"
	"privmsg/internal/toggle"
)

const (
	presenceTTL       = 90 * time.Second
	workerConcurrency = 10
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile     string
		port        string
		migrateOnly bool
		runWorker   bool
	)
	flagSet := pflag.NewFlagSet("privmsg", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&port, "port", "", "listen port (overrides SERVER_PORT)")
	flagSet.BoolVar(&migrateOnly, "migrate-only", false, "apply the schema and exit")
	flagSet.BoolVar(&runWorker, "worker", true, "run the notice worker in this process when REDIS_URL is set")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// .envファイルを読み込み
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  %s not found, using environment only: %v\n", envFile, err)
	}

	// 環境変数を読み込み
	cfg := config.Load()
	if port != "" {
		cfg.ServerPort = port
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "privmsg"})
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// データベース接続を初期化
	db, dialect, err := database.Init(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, dialect); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if migrateOnly {
		logger.Info("✅ Schema applied", "driver", dialect)
		return nil
	}

	st := store.New(db, dialect)
	clk := clock.Real()

	// 機能トグル: YAMLファイルが優先、次にsettingsテーブル
	toggles := toggle.Chain{}
	if cfg.ToggleFile != "" {
		fileToggles, err := toggle.LoadFile(cfg.ToggleFile)
		if err != nil {
			return fmt.Errorf("failed to load toggles: %w", err)
		}
		toggles = append(toggles, fileToggles)
	}
	toggles = append(toggles, toggle.NewDBStore(st, logger))

	// リアルタイム配信
	hub := realtime.NewHub(cfg.AllowedOrigins, logger)
	defer hub.Close()

	var (
		presence  realtime.Presence = hub
		publisher notify.Publisher  = hub
	)
	if cfg.RedisURL != "" {
		redisPresence, err := realtime.NewRedisPresence(cfg.RedisURL, presenceTTL, logger)
		if err != nil {
			return err
		}
		defer redisPresence.Close()
		hub.SetSink(redisPresence)
		go redisPresence.Heartbeat(ctx, hub)
		presence = realtime.AnyPresence{hub, redisPresence}
	}
	if cfg.NatsURL != "" {
		bridge, err := realtime.ConnectNATS(cfg.NatsURL, hub, logger)
		if err != nil {
			return err
		}
		defer bridge.Close()
		if err := bridge.Start(); err != nil {
			return err
		}
		publisher = bridge
	}

	// 通知: Redisがあればasynq経由、なければ直接受信箱へ
	inbox := notice.NewInbox(st, clk, logger)
	var sender notify.Sender = inbox
	if cfg.RedisURL != "" {
		queue, err := notice.NewQueue(cfg.RedisURL, cfg.NoticeQueue, logger)
		if err != nil {
			return err
		}
		defer queue.Close()
		sender = queue

		if runWorker {
			worker, err := notice.NewWorker(cfg.RedisURL, cfg.NoticeQueue, workerConcurrency, inbox, logger)
			if err != nil {
				return err
			}
			go func() {
				if err := worker.Run(ctx); err != nil {
					logger.Error("notice worker stopped", "err", err)
				}
			}()
		}
	}

	dispatcher := notify.NewDispatcher(st, presence,
		notify.NewPush(publisher, st), notify.NewNotice(sender), clk,
		notify.Options{Window: cfg.NotifyThrottle, Timeout: cfg.NotifyTimeout, Realtime: cfg.RealtimeEnabled},
		logger)

	svc := chat.New(chat.Deps{
		Store:     st,
		Policy:    policy.New(toggles),
		Directory: directory.New(st, presence, clk, cfg.NotifyTimeout, logger),
		Ledger:    ledger.New(st, clk, logger),
		Reads:     readstate.New(st, clk, logger),
		Notifier:  dispatcher,
		Notices:   inbox,
		Clock:     clk,
		Logger:    logger,
	})

	// ハンドラー初期化
	h := handler.New(svc, identity.NewHeaderResolver(st), hub, logger)
	router := h.SetupRouter()

	// CORS対応
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", identity.HeaderUID},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Println("========================================")
	fmt.Println("  Private Messaging API Server")
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Server: http://localhost:%s\n", cfg.ServerPort)
	fmt.Printf("  WebSocket: ws://localhost:%s/ws\n", cfg.ServerPort)
	if dialect == database.MySQL {
		fmt.Printf("  Database: %s@%s:%s/%s\n", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	} else {
		fmt.Printf("  Database: sqlite %s\n", cfg.SQLitePath)
	}
	fmt.Printf("  Realtime: %v (redis=%v nats=%v)\n", cfg.RealtimeEnabled, cfg.RedisURL != "", cfg.NatsURL != "")
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	fmt.Println("========================================")

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("🚀 Server started successfully", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server gracefully stopped")
	return nil
}
