package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"

	"github.com/Billy-Davies-2/dartsync/internal/clickhouse"
	"github.com/Billy-Davies-2/dartsync/internal/config"
	"github.com/Billy-Davies-2/dartsync/internal/dal"
	grpcserver "github.com/Billy-Davies-2/dartsync/internal/grpc"
	"github.com/Billy-Davies-2/dartsync/internal/handlers"
	"github.com/Billy-Davies-2/dartsync/internal/logger"
	"github.com/Billy-Davies-2/dartsync/internal/mocks"
	"github.com/Billy-Davies-2/dartsync/internal/pubsub"
	"github.com/Billy-Davies-2/dartsync/internal/sensor"
	"github.com/Billy-Davies-2/dartsync/internal/session"
)

// analyticsBackend is what both the real and the mock ClickHouse client offer.
type analyticsBackend interface {
	session.Analytics
	handlers.Stats
	Close() error
}

func main() {
	// Initialize logger first
	logger.Init()

	logger.Info("Starting dartsync device")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Match log
	store := openStore(cfg)
	defer store.Close()

	// A descriptor saved by an earlier run wins, so a rejoining device keeps
	// the plan it started with.
	if saved, err := store.GetMatch(cfg.Match.ID); err == nil {
		logger.Info("Rejoining stored match", "match_id", saved.ID, "status", saved.Status)
		cfg.Match = *saved
	} else if !errors.Is(err, dal.ErrNotFound) {
		logger.Error("Failed to load match", "error", err, "match_id", cfg.Match.ID)
		log.Fatalf("Failed to load match: %v", err)
	}

	// Event transport (embedded NATS for local development, JetStream otherwise)
	transport, closeTransport := openTransport(cfg)
	defer closeTransport()

	// Analytics (mock ClickHouse in development)
	analytics := openAnalytics(ctx, cfg)
	defer analytics.Close()

	// Board input
	var (
		feed sensor.Feed
		sim  handlers.Simulator
	)
	if cfg.Dev {
		s := sensor.NewSimulator()
		feed, sim = s, s
		logger.Info("Using simulated dartboard")
	} else {
		feed = sensor.NewWebsocketFeed(cfg.BoardURL)
		logger.Info("Using dartboard bridge", "url", cfg.BoardURL)
	}
	board := sensor.NewAdapter(feed)
	input := board.Subscribe()
	board.Start(ctx)

	match, err := session.New(session.Config{
		Match:             cfg.Match,
		LocalID:           cfg.LocalID,
		SettleDelay:       cfg.SettleDelay,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		Grace:             cfg.DisconnectGrace,
	}, session.Deps{
		Transport: transport,
		Store:     store,
		Analytics: analytics,
		Input:     input,
	})
	if err != nil {
		logger.Error("Failed to start session", "error", err)
		log.Fatalf("Failed to start session: %v", err)
	}

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- match.Run(ctx)
	}()

	// gRPC health
	health := grpcserver.NewServer(match)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	go health.Run(ctx)

	go func() {
		lis, err := net.Listen("tcp", "0.0.0.0:"+cfg.GRPCPort)
		if err != nil {
			logger.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
			log.Fatalf("Failed to listen for gRPC: %v", err)
		}
		logger.Info("gRPC server starting", "address", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("Failed to serve gRPC", "error", err)
		}
	}()

	// HTTP
	api := handlers.NewAPIHandlers(match, sim, analytics)
	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTPPort,
		Handler:           api.Router(cfg.Dev),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			log.Fatal(err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		err = <-sessionDone
	case err = <-sessionDone:
	}
	stop()
	if err != nil {
		logger.Error("Session stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()
	<-board.Done()
	logger.Info("dartsync device stopped")
}

func openStore(cfg *config.Config) dal.MatchStore {
	switch cfg.DBDriver {
	case "sqlite":
		store, err := dal.NewSQLiteStore(cfg.SQLiteFile)
		if err != nil {
			logger.Error("Failed to initialize SQLite", "error", err)
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		logger.Info("Connected to SQLite database", "file", cfg.SQLiteFile)
		return store
	case "postgres":
		if cfg.Development() {
			store, err := mocks.NewMockPostgresStore(cfg.SQLiteFile)
			if err != nil {
				logger.Error("Failed to initialize mock Postgres", "error", err)
				log.Fatalf("Failed to initialize mock Postgres: %v", err)
			}
			return store
		}
		store, err := dal.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to initialize Postgres", "error", err)
			log.Fatalf("Failed to initialize Postgres: %v", err)
		}
		logger.Info("Connected to Postgres database")
		return store
	}
	logger.Info("Using in-memory match store")
	return dal.NewMemoryStore()
}

// openTransport returns the match transport and a func releasing it along
// with anything started for it.
func openTransport(cfg *config.Config) (pubsub.Transport, func()) {
	opts := pubsub.DefaultNATSOptions(cfg.Match.ID)
	opts.Prefix = cfg.NATSSubjectPrefix

	if cfg.NATSURL == "memory" {
		ep := mocks.NewMockNATS().Join(cfg.Match.ID)
		return ep, ep.Close
	}

	if cfg.Development() {
		logger.Info("Starting embedded NATS server for local development")
		embedded, err := pubsub.StartEmbedded(pubsub.EmbeddedOptions{})
		if err != nil {
			logger.Error("Failed to initialize embedded NATS", "error", err)
			log.Fatalf("Failed to initialize embedded NATS: %v", err)
		}
		opts.Storage = nats.MemoryStorage
		t, err := pubsub.DialNATS(embedded.ClientURL(), opts)
		if err != nil {
			embedded.Close()
			logger.Error("Failed to connect to embedded NATS", "error", err)
			log.Fatalf("Failed to connect to embedded NATS: %v", err)
		}
		return t, func() {
			t.Close()
			embedded.Close()
		}
	}

	logger.Info("Using real NATS JetStream for production")
	t, err := pubsub.DialNATS(cfg.NATSURL, opts)
	if err != nil {
		logger.Error("Failed to initialize NATS", "error", err, "url", cfg.NATSURL)
		log.Fatalf("Failed to initialize NATS: %v", err)
	}
	logger.Info("Connected to NATS", "url", cfg.NATSURL)
	return t, t.Close
}

func openAnalytics(ctx context.Context, cfg *config.Config) analyticsBackend {
	if cfg.Development() {
		return mocks.NewMockClickHouseClient()
	}

	client, err := clickhouse.NewClient(cfg.ClickHouseAddr, cfg.ClickHouseDB, cfg.ClickHouseUser, cfg.ClickHousePassword)
	if err != nil {
		logger.Error("Failed to initialize ClickHouse", "error", err, "address", cfg.ClickHouseAddr)
		log.Fatalf("Failed to initialize ClickHouse: %v", err)
	}
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.EnsureSchema(schemaCtx); err != nil {
		logger.Error("Failed to create ClickHouse schema", "error", err)
		log.Fatalf("Failed to create ClickHouse schema: %v", err)
	}
	logger.Info("Connected to ClickHouse", "address", cfg.ClickHouseAddr, "database", cfg.ClickHouseDB)
	return client
}
