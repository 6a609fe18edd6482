package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/debemdeboas/scratchpad/internal/cache"
	"github.com/debemdeboas/scratchpad/internal/config"
	"github.com/debemdeboas/scratchpad/internal/db"
	"github.com/debemdeboas/scratchpad/internal/logger"
	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/provider"
	"github.com/debemdeboas/scratchpad/internal/repository"
	"github.com/debemdeboas/scratchpad/internal/scratchpad"
	"github.com/debemdeboas/scratchpad/internal/sse"
)

// app carries the flags and configuration shared by all subcommands.
type app struct {
	configPath string
	serverURL  string
	document   string
	local      bool
	verbose    bool

	cfg        *config.Config
	logger     zerolog.Logger
	stdin      io.Reader
	httpClient *http.Client
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin}

	rootCmd := &cobra.Command{
		Use:   "scratchpad",
		Short: "Read, edit and follow scratchpad documents",
		Long: `scratchpad talks to a scratchpad server, or with --local directly to the
configured store.

Examples:
  scratchpad show
  scratchpad edit --doc groceries
  scratchpad watch
  scratchpad import --path ./notes`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip initialization for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.init(cmd)
		},
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "config.yaml", "path to the YAML or TOML config file")
	flags.StringVarP(&a.serverURL, "server", "s", "", "server URL (overrides client.server_url)")
	flags.StringVarP(&a.document, "doc", "d", "", "document id (overrides client.document)")
	flags.BoolVar(&a.local, "local", false, "use the configured store instead of the server")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(
		newShowCmd(a),
		newEditCmd(a),
		newWatchCmd(a),
		newImportCmd(a),
	)
	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	// A missing .env is normal for CLI use.
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.Client.ServerURL = a.serverURL
	}
	if a.document != "" {
		if err := model.DocumentID(a.document).Validate(); err != nil {
			return fmt.Errorf("invalid document id %q: %w", a.document, err)
		}
		cfg.Client.Document = a.document
	}
	a.cfg = cfg

	level := cfg.Logging.Level
	if a.verbose {
		level = zerolog.LevelDebugValue
	}
	a.logger = logger.NewWithWriter(cmd.ErrOrStderr(), level, cfg.Logging.Format)
	config.SetLogger(a.logger)
	cache.SetLogger(a.logger)
	db.SetLogger(a.logger)
	repository.SetLogger(a.logger)
	sse.SetLogger(a.logger)
	provider.SetLogger(a.logger)

	a.httpClient = &http.Client{Timeout: cfg.Client.Timeout}
	return nil
}

func (a *app) doc() model.DocumentID {
	return model.DocumentID(a.cfg.Client.Document)
}

// session is the content provider for the selected document plus a way to follow
// its remote versions.
type session struct {
	provider scratchpad.ContentProvider
	cacheKey string
	follow   func(ctx context.Context, onVersion func(model.Version)) error
	close    func() error
}

func (a *app) openSession(ctx context.Context) (*session, error) {
	doc := a.doc()

	if !a.local {
		// Streams stay open, so they get a client without the request timeout.
		streamClient := &http.Client{}
		return &session{
			provider: provider.NewHTTP(a.cfg.Client.ServerURL, doc, a.httpClient),
			cacheKey: a.cfg.Client.ServerURL + "#" + string(doc),
			follow: func(ctx context.Context, onVersion func(model.Version)) error {
				return sse.NewSubscriber(a.cfg.Client.ServerURL, doc, onVersion,
					sse.WithHTTPClient(streamClient),
					sse.WithReconnectDelay(a.cfg.Client.ReconnectDelay),
				).Run(ctx)
			},
			close: func() error { return nil },
		}, nil
	}

	store, err := repository.Open(ctx, a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("error opening %s store: %w", a.cfg.Storage.Backend, err)
	}
	return &session{
		provider: provider.NewLocal(store, doc),
		cacheKey: a.cfg.Storage.Backend + "#" + string(doc),
		follow: func(ctx context.Context, onVersion func(model.Version)) error {
			return repository.WatcherFor(store, a.cfg.Storage.PollInterval).Watch(ctx, func(id model.DocumentID, v model.Version) {
				if id == doc {
					onVersion(v)
				}
			})
		},
		close: store.Close,
	}, nil
}

// draftCache prefers the on-disk cache and falls back to an in-memory one when no
// cache directory is usable, so drafts still survive reloads within the process.
func (a *app) draftCache() scratchpad.Cache {
	dir := a.cfg.Scratchpad.CacheDir
	if dir == "" {
		var err error
		if dir, err = cache.DefaultDir(); err != nil {
			a.logger.Warn().Err(err).Msg("No user cache directory, using in-memory cache")
			return cache.NewTTLCache()
		}
	}
	c, err := cache.NewDiskCache(dir)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Error opening cache, using in-memory cache")
		return cache.NewTTLCache()
	}
	return c
}
