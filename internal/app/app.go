package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	stdnet "net"
	"net/http"
	"os"
	"time"

	servernet "metaverse/server/internal/net"
	"metaverse/server/internal/net/ws"
	"metaverse/server/internal/registry"
	"metaverse/server/internal/telemetry"
	"metaverse/server/logging"
	loggingSinks "metaverse/server/logging/sinks"
)

const (
	sinkConsole = "console"
	sinkJSON    = "json"
	sinkMemory  = "memory"

	shutdownTimeout = 10 * time.Second
)

type Config struct {
	Logger telemetry.Logger
	// Getenv resolves configuration. Defaults to os.Getenv.
	Getenv func(string) string
	// Listener overrides the listener derived from PORT.
	Listener stdnet.Listener
	// Ready, when set, receives the bound address once the server accepts
	// connections.
	Ready func(addr string)
}

// Run serves the room server until ctx is cancelled, then disposes every
// room and drains the logging router.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	settings := loadSettings(getenv, telemetryLogger)

	sinks, err := buildSinks(settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to construct logging sinks: %w", err)
	}
	router := logging.NewRouter(logging.SystemClock{}, settings.Logging, fallbackLogger, sinks)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := logging.NewMetrics()
	telemetryMetrics := telemetry.WrapMetrics(metrics)

	roomCfg := settings.Room
	roomCfg.Logger = telemetryLogger
	roomCfg.Publisher = router
	roomCfg.Metrics = telemetryMetrics

	rooms := registry.New(registry.Config{
		Logger:  telemetryLogger,
		Metrics: telemetryMetrics,
	})
	rooms.Define(roomCfg.Name, roomCfg)

	wsHandler := ws.NewHandler(rooms, ws.HandlerConfig{
		Logger:      telemetryLogger,
		Publisher:   router,
		Metrics:     telemetryMetrics,
		DefaultRoom: roomCfg.Name,
	})

	handler := servernet.NewHTTPHandler(rooms, servernet.HTTPHandlerConfig{
		Logger:        telemetryLogger,
		WebSocket:     http.HandlerFunc(wsHandler.Handle),
		Metrics:       metrics,
		RouterStats:   router.Stats,
		Observability: settings.Observability,
	})

	listener := cfg.Listener
	if listener == nil {
		listener, err = stdnet.Listen("tcp", settings.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", settings.Addr, err)
		}
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	telemetryLogger.Printf("server listening on %s (room %q, maxPlayers=%d, enforceCapacity=%t)", listener.Addr(), roomCfg.Name, roomCfg.MaxPlayers, roomCfg.EnforceCapacity)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()
	if cfg.Ready != nil {
		cfg.Ready(listener.Addr().String())
	}

	select {
	case err := <-serveErr:
		rooms.Close(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	telemetryLogger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Disposing first closes every websocket, so Shutdown is not left waiting
	// on hijacked connections.
	if err := rooms.Close(shutdownCtx); err != nil {
		telemetryLogger.Printf("failed to dispose rooms: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func buildSinks(cfg logging.Config) ([]logging.NamedSink, error) {
	var sinks []logging.NamedSink
	if cfg.HasSink(sinkConsole) {
		sinks = append(sinks, logging.NamedSink{Name: sinkConsole, Sink: loggingSinks.NewConsoleSink(os.Stdout)})
	}
	if cfg.HasSink(sinkJSON) {
		var w io.Writer = struct{ io.Writer }{os.Stdout}
		if cfg.JSON.FilePath != "" {
			file, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open json log %s: %w", cfg.JSON.FilePath, err)
			}
			w = file
		}
		sinks = append(sinks, logging.NamedSink{Name: sinkJSON, Sink: loggingSinks.NewJSON(w, cfg.JSON.FlushInterval)})
	}
	if cfg.HasSink(sinkMemory) {
		sinks = append(sinks, logging.NamedSink{Name: sinkMemory, Sink: loggingSinks.NewMemorySink()})
	}
	return sinks, nil
}
