package pubsub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/Billy-Davies-2/dartsync/internal/logger"
)

// EmbeddedServer is an in-process NATS server with JetStream, used for
// development and tests so no external infrastructure is needed.
type EmbeddedServer struct {
	server *server.Server
}

// EmbeddedOptions configures the embedded NATS server
type EmbeddedOptions struct {
	Port     int    // 0 or -1 picks a random free port
	Host     string // defaults to 127.0.0.1
	StoreDir string // JetStream storage directory, empty for a temp dir
}

// StartEmbedded starts the server and waits until it accepts connections.
func StartEmbedded(opts EmbeddedOptions) (*EmbeddedServer, error) {
	port := opts.Port
	if port == 0 {
		port = -1
	}
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}

	serverOpts := &server.Options{
		Host:      host,
		Port:      port,
		JetStream: true,
		NoSigs:    true,
	}
	if opts.StoreDir != "" {
		serverOpts.StoreDir = opts.StoreDir
	}

	ns, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	ns.SetLogger(newNATSLogger(), false, false)

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready after 10s")
	}

	logger.Info("Embedded NATS server started", "url", ns.ClientURL())
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL is the nats:// URL clients connect to.
func (e *EmbeddedServer) ClientURL() string {
	return e.server.ClientURL()
}

// Close shuts the server down and waits for it to exit.
func (e *EmbeddedServer) Close() {
	logger.Info("Shutting down embedded NATS server")
	e.server.Shutdown()
	e.server.WaitForShutdown()
}

// natsLogger routes server log lines into our logger under component=nats.
type natsLogger struct {
	log *slog.Logger
}

func newNATSLogger() *natsLogger {
	return &natsLogger{log: logger.With("component", "nats")}
}

func (l *natsLogger) Noticef(format string, v ...any) { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l *natsLogger) Warnf(format string, v ...any)   { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l *natsLogger) Errorf(format string, v ...any)  { l.log.Error(fmt.Sprintf(format, v...)) }
func (l *natsLogger) Fatalf(format string, v ...any)  { l.log.Error(fmt.Sprintf(format, v...), "fatal", true) }
func (l *natsLogger) Debugf(format string, v ...any)  { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l *natsLogger) Tracef(format string, v ...any)  { l.log.Debug(fmt.Sprintf(format, v...), "trace", true) }
