package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/scratchpad/internal/cache"
	"github.com/debemdeboas/scratchpad/internal/config"
	"github.com/debemdeboas/scratchpad/internal/db"
	"github.com/debemdeboas/scratchpad/internal/logger"
	"github.com/debemdeboas/scratchpad/internal/provider"
	"github.com/debemdeboas/scratchpad/internal/repository"
	"github.com/debemdeboas/scratchpad/internal/server"
	"github.com/debemdeboas/scratchpad/internal/sse"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML or TOML config file")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	l := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	setLoggers(l)
	if envErr != nil {
		l.Debug().Err(envErr).Msg("No .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l, nil); err != nil {
		l.Fatal().Err(err).Msg("Server failed")
	}
}

func setLoggers(l zerolog.Logger) {
	config.SetLogger(l)
	cache.SetLogger(l)
	db.SetLogger(l)
	repository.SetLogger(l)
	sse.SetLogger(l)
	provider.SetLogger(l)
}

// run serves the API until ctx is done. ready, if set, receives the listening address.
func run(ctx context.Context, cfg *config.Config, l zerolog.Logger, ready func(addr string)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := repository.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("error opening %s store: %w", cfg.Storage.Backend, err)
	}
	defer store.Close()

	srv := server.New(store, sse.NewClients(), cfg.Server, l)

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		watcher := repository.WatcherFor(store, cfg.Storage.PollInterval)
		if err := watcher.Watch(ctx, srv.NotifyVersion); err != nil {
			l.Error().Err(err).Msg("Store watcher stopped")
		}
	}()

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("error listening: %w", err)
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	l.Info().
		Str("addr", ln.Addr().String()).
		Str("backend", cfg.Storage.Backend).
		Msg("Scratchpad server listening")
	if ready != nil {
		ready(ln.Addr().String())
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		cancel()
		<-watchDone
		return fmt.Errorf("error serving: %w", err)
	case <-ctx.Done():
	}

	l.Info().Msg("Shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	err = httpServer.Shutdown(shutdownCtx)
	if serr := <-serveErr; !errors.Is(serr, http.ErrServerClosed) {
		l.Warn().Err(serr).Msg("Unexpected serve error")
	}
	<-watchDone
	return err
}
