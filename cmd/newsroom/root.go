package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/feed"
	"github.com/pders01/newsroom/internal/guard"
	"github.com/pders01/newsroom/internal/notion"
	"github.com/pders01/newsroom/internal/oracle"
	"github.com/pders01/newsroom/internal/pipeline"
	"github.com/pders01/newsroom/internal/plugins"
	"github.com/pders01/newsroom/internal/plugins/user"
	"github.com/pders01/newsroom/internal/scrape"
	"github.com/pders01/newsroom/internal/storage"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFile    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "newsroom",
		Short: "Feed-to-Notion news curation",
		Long: `newsroom reads the configured news feeds, asks a language model to
classify every new article and publishes the result to a Notion database.

Example usage:
  newsroom run                 # One ingestion pass
  newsroom run --every 15m     # Ingest on a schedule until interrupted
  newsroom prune --count 50    # Archive the 50 oldest articles
  newsroom status              # Stored articles, locks and last runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.config/newsroom/config.toml or ./config.toml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR, OFF (overrides config)")
	pf.StringVar(&flags.logFile, "log-file", "", "append logs to this file instead of stderr (overrides config)")

	root.AddCommand(
		newRunCmd(flags),
		newPruneCmd(flags),
		newWipeCmd(flags),
		newResetCmd(flags),
		newStatusCmd(flags),
		newUnlockCmd(flags),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// app holds everything a command needs. Close releases locks this process
// still holds, then the cache and the log file.
type app struct {
	cfg    *config.Config
	log    *debuglog.Logger
	guard  *guard.Guard
	state  *storage.StateStore
	meta   *storage.MetaStore
	feeds  *feed.Manager
	deps   pipeline.Deps
	logger *slog.Logger
}

func loadConfig(flags *globalFlags) (*config.Config, *debuglog.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Log.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	path := cfg.Log.Path
	if flags.logFile != "" {
		path = flags.logFile
	}
	log, err := debuglog.Open(debuglog.ParseLogLevel(strings.ToUpper(level)), path)
	if err != nil {
		return nil, nil, err
	}

	for _, w := range cfg.Warnings {
		log.Warn("config", "warning", w)
	}
	return cfg, log, nil
}

// openApp wires the full dependency graph. The metadata cache is opened
// read-write, so a second process waiting on it times out with a
// concurrency error.
func openApp(flags *globalFlags) (*app, error) {
	cfg, log, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger := log.Logger

	meta, err := storage.NewMetaStore(cfg.State.CachePath, cfg.State.CacheTimeout)
	if err != nil {
		log.Close()
		return nil, err
	}

	interactions := debuglog.NewInteractionLog(cfg.Oracle.InteractionLogDir, cfg.Oracle.InteractionLog)

	images := plugins.NewRegistry(cfg.Images.Timeout, logger)
	images.Register(user.NewImgurPlugin(cfg.Images))

	remote := notion.NewClient(cfg.Remote, logger)
	feeds := feed.NewManager(meta, cfg, logger)
	g := guard.New(cfg.State.LockDir)
	state := storage.OpenState(cfg.State.Path, logger.With("component", "state"))

	a := &app{
		cfg:    cfg,
		log:    log,
		guard:  g,
		state:  state,
		meta:   meta,
		feeds:  feeds,
		logger: logger,
	}
	a.deps = pipeline.Deps{
		Config:   cfg,
		Guard:    g,
		State:    state,
		Feeds:    feeds,
		Articles: scrape.New(scrape.WithUserAgent(cfg.Feed.UserAgent), scrape.WithHTTPClient(&http.Client{Timeout: cfg.Feed.HTTPTimeout}), scrape.WithLogger(logger)),
		Classifier: oracle.NewClassifier(
			oracle.NewChatClient(cfg.Oracle), cfg.Oracle, interactions, logger,
		),
		Publisher:    remote,
		Remote:       remote,
		Images:       images,
		Reports:      meta,
		Interactions: interactions,
		Logger:       logger,
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if err := a.guard.ReleaseAll(); err != nil {
		errs = append(errs, err)
	}
	if err := a.meta.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.log.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
