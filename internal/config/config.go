package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/pders01/newsroom/internal/apperr"
)

const envPrefix = "NEWSROOM"

type Config struct {
	Feeds  []FeedSource `mapstructure:"feeds" validate:"dive"`
	Ingest IngestConfig `mapstructure:"ingest"`
	State  StateConfig  `mapstructure:"state"`
	Feed   FeedConfig   `mapstructure:"feed"`
	Oracle OracleConfig `mapstructure:"oracle"`
	Remote RemoteConfig `mapstructure:"remote"`
	Images ImagesConfig `mapstructure:"images"`
	Log    LogConfig    `mapstructure:"log"`

	// Warnings collects problems that Load recovered from, for the caller
	// to log once a logger exists.
	Warnings []string `mapstructure:"-"`
}

// FeedSource is one configured feed; Name is the source tag on the remote page.
type FeedSource struct {
	Name string `mapstructure:"name" validate:"required"`
	URL  string `mapstructure:"url" validate:"required"`
}

type IngestConfig struct {
	MaxItemsPerFeed    int      `mapstructure:"max_items_per_feed" validate:"min=1"`
	AutoPruneThreshold int      `mapstructure:"auto_prune_threshold" validate:"min=0"`
	PruneBatchSize     int      `mapstructure:"prune_batch_size" validate:"min=1"`
	StripTitlePrefixes []string `mapstructure:"strip_title_prefixes"`
}

type StateConfig struct {
	Path         string        `mapstructure:"path" validate:"required"`
	LockDir      string        `mapstructure:"lock_dir" validate:"required"`
	CachePath    string        `mapstructure:"cache_path" validate:"required"`
	CacheTimeout time.Duration `mapstructure:"cache_timeout" validate:"gt=0"`
}

type FeedConfig struct {
	HTTPTimeout       time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
	UserAgent         string        `mapstructure:"user_agent" validate:"required"`
	Workers           int           `mapstructure:"workers" validate:"min=1"`
	AllowPrivateHosts bool          `mapstructure:"allow_private_hosts"`
}

type OracleConfig struct {
	Endpoint          string        `mapstructure:"endpoint" validate:"required,url"`
	Model             string        `mapstructure:"model" validate:"required"`
	APIKey            string        `mapstructure:"api_key"`
	SystemPrompt      string        `mapstructure:"system_prompt" validate:"required"`
	Language          string        `mapstructure:"language" validate:"required"`
	ContentBudget     int           `mapstructure:"content_budget" validate:"min=1"`
	ContextWindow     int           `mapstructure:"context_window" validate:"min=0"`
	ContextStrategy   string        `mapstructure:"context_strategy" validate:"oneof=relevant recent"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	InteractionLog    bool          `mapstructure:"interaction_log"`
	InteractionLogDir string        `mapstructure:"interaction_log_dir"`
}

type RemoteConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	APIKey            string        `mapstructure:"api_key"`
	DatabaseID        string        `mapstructure:"database_id"`
	Version           string        `mapstructure:"version" validate:"required"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	WipeDelay         time.Duration `mapstructure:"wipe_delay" validate:"min=0"`
}

type ImagesConfig struct {
	ImgurClientID string        `mapstructure:"imgur_client_id"`
	ImgurEndpoint string        `mapstructure:"imgur_endpoint" validate:"required,url"`
	RehostSources []string      `mapstructure:"rehost_sources"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"loglevel"`
	Path  string `mapstructure:"path"`
}

const defaultSystemPrompt = "Tu es un assistant spécialisé dans l'analyse d'articles d'actualité."

func defaultConfig() *Config {
	return &Config{
		Feeds: []FeedSource{
			{Name: "Korben", URL: "https://korben.info/feed"},
			{Name: "Numerama", URL: "https://www.numerama.com/feed/"},
			{Name: "Frandroid", URL: "https://www.frandroid.com/feed"},
			{Name: "BDM", URL: "https://www.blogdumoderateur.com/feed/"},
			{Name: "Mac4Ever", URL: "https://www.mac4ever.com/flux/rss/content/actu"},
			{Name: "Futura Sciences", URL: "https://www.futura-sciences.com/rss/high-tech/actualites.xml"},
		},
		Ingest: IngestConfig{
			MaxItemsPerFeed:    3,
			AutoPruneThreshold: 400,
			PruneBatchSize:     100,
			StripTitlePrefixes: []string{"Actualité : "},
		},
		State: StateConfig{
			Path:         "processed_articles.json",
			LockDir:      ".",
			CachePath:    filepath.Join(".newsroom", "cache.db"),
			CacheTimeout: 1 * time.Second,
		},
		Feed: FeedConfig{
			HTTPTimeout: 30 * time.Second,
			UserAgent:   "newsroom/1.0 (+https://github.com/pders01/newsroom)",
			Workers:     4,
		},
		Oracle: OracleConfig{
			Endpoint:          "https://api.openai.com/v1/chat/completions",
			Model:             "gpt-4",
			SystemPrompt:      defaultSystemPrompt,
			Language:          "français",
			ContentBudget:     1500,
			ContextWindow:     200,
			ContextStrategy:   "relevant",
			Timeout:           60 * time.Second,
			InteractionLogDir: "logs",
		},
		Remote: RemoteConfig{
			BaseURL:           "https://api.notion.com/v1",
			Version:           "2022-06-28",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 3,
			WipeDelay:         500 * time.Millisecond,
		},
		Images: ImagesConfig{
			ImgurEndpoint: "https://api.imgur.com/3/image",
			RehostSources: []string{"JVC"},
			Timeout:       10 * time.Second,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// Keys that also honour the environment names of earlier deployments. The
// prefixed name is checked first.
var legacyEnv = map[string]string{
	"oracle.api_key":         "OPENAI_API_KEY",
	"oracle.model":           "OPENAI_MODEL",
	"oracle.interaction_log": "ENABLE_CHATGPT_LOGS",
	"remote.api_key":         "NOTION_API_KEY",
	"remote.database_id":     "NOTION_DATABASE_ID",
	"images.imgur_client_id": "IMGUR_CLIENT_ID",
}

// Integer keys are read by hand so a value like "3 # per feed" copied from a
// .env file still parses.
var intEnv = map[string]string{
	"ingest.max_items_per_feed":   "MAX_ARTICLES_PER_FEED",
	"ingest.auto_prune_threshold": "AUTO_CLEAN_THRESHOLD",
	"ingest.prune_batch_size":     "CLEAN_REMOVE_COUNT",
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("feeds", feedMaps(cfg.Feeds))

	v.SetDefault("ingest.max_items_per_feed", cfg.Ingest.MaxItemsPerFeed)
	v.SetDefault("ingest.auto_prune_threshold", cfg.Ingest.AutoPruneThreshold)
	v.SetDefault("ingest.prune_batch_size", cfg.Ingest.PruneBatchSize)
	v.SetDefault("ingest.strip_title_prefixes", cfg.Ingest.StripTitlePrefixes)

	v.SetDefault("state.path", cfg.State.Path)
	v.SetDefault("state.lock_dir", cfg.State.LockDir)
	v.SetDefault("state.cache_path", cfg.State.CachePath)
	v.SetDefault("state.cache_timeout", cfg.State.CacheTimeout)

	v.SetDefault("feed.http_timeout", cfg.Feed.HTTPTimeout)
	v.SetDefault("feed.user_agent", cfg.Feed.UserAgent)
	v.SetDefault("feed.workers", cfg.Feed.Workers)
	v.SetDefault("feed.allow_private_hosts", cfg.Feed.AllowPrivateHosts)

	v.SetDefault("oracle.endpoint", cfg.Oracle.Endpoint)
	v.SetDefault("oracle.model", cfg.Oracle.Model)
	v.SetDefault("oracle.api_key", cfg.Oracle.APIKey)
	v.SetDefault("oracle.system_prompt", cfg.Oracle.SystemPrompt)
	v.SetDefault("oracle.language", cfg.Oracle.Language)
	v.SetDefault("oracle.content_budget", cfg.Oracle.ContentBudget)
	v.SetDefault("oracle.context_window", cfg.Oracle.ContextWindow)
	v.SetDefault("oracle.context_strategy", cfg.Oracle.ContextStrategy)
	v.SetDefault("oracle.timeout", cfg.Oracle.Timeout)
	v.SetDefault("oracle.interaction_log", cfg.Oracle.InteractionLog)
	v.SetDefault("oracle.interaction_log_dir", cfg.Oracle.InteractionLogDir)

	v.SetDefault("remote.base_url", cfg.Remote.BaseURL)
	v.SetDefault("remote.api_key", cfg.Remote.APIKey)
	v.SetDefault("remote.database_id", cfg.Remote.DatabaseID)
	v.SetDefault("remote.version", cfg.Remote.Version)
	v.SetDefault("remote.timeout", cfg.Remote.Timeout)
	v.SetDefault("remote.requests_per_second", cfg.Remote.RequestsPerSecond)
	v.SetDefault("remote.wipe_delay", cfg.Remote.WipeDelay)

	v.SetDefault("images.imgur_client_id", cfg.Images.ImgurClientID)
	v.SetDefault("images.imgur_endpoint", cfg.Images.ImgurEndpoint)
	v.SetDefault("images.rehost_sources", cfg.Images.RehostSources)
	v.SetDefault("images.timeout", cfg.Images.Timeout)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.path", cfg.Log.Path)
}

// Load reads configuration from configPath, or from config.toml in
// ~/.config/newsroom or the working directory when configPath is empty.
// A .env file in the working directory is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	defaults := defaultConfig()
	setDefaults(v, defaults)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Join(homeDir, ".config", "newsroom"))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envName(key), legacy); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var warnings []string
	for key, legacy := range intEnv {
		if w := applyIntEnv(v, key, legacy); w != "" {
			warnings = append(warnings, w)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	config.Warnings = warnings

	expandPaths(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// applyIntEnv parses the first integer override set for key, ignoring any
// trailing "# comment". An unparseable value falls back to the default and
// yields a warning.
func applyIntEnv(v *viper.Viper, key, legacy string) string {
	for _, name := range []string{envName(key), legacy} {
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		value := strings.TrimSpace(strings.SplitN(raw, "#", 2)[0])
		n, err := strconv.Atoi(value)
		if err != nil {
			defaultValue := defaultInt(key)
			v.Set(key, defaultValue)
			return fmt.Sprintf("%s=%q is not an integer, using default %d", name, raw, defaultValue)
		}
		v.Set(key, n)
		return ""
	}
	return ""
}

func defaultInt(key string) int {
	d := defaultConfig()
	switch key {
	case "ingest.max_items_per_feed":
		return d.Ingest.MaxItemsPerFeed
	case "ingest.auto_prune_threshold":
		return d.Ingest.AutoPruneThreshold
	case "ingest.prune_batch_size":
		return d.Ingest.PruneBatchSize
	}
	return 0
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.State.Path = expandPath(cfg.State.Path)
	cfg.State.LockDir = expandPath(cfg.State.LockDir)
	cfg.State.CachePath = expandPath(cfg.State.CachePath)
	cfg.Oracle.InteractionLogDir = expandPath(cfg.Oracle.InteractionLogDir)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

// Credential names a secret required by a remote service.
type Credential int

const (
	OracleKey Credential = iota
	RemoteKey
	RemoteDatabase
)

// RequireCredentials fails with apperr.ErrMissingCredential when any of the
// requested secrets is empty. Commands call it only when they reach the
// corresponding service.
func (c *Config) RequireCredentials(creds ...Credential) error {
	var missing []string
	for _, cred := range creds {
		switch cred {
		case OracleKey:
			if c.Oracle.APIKey == "" {
				missing = append(missing, "oracle.api_key (OPENAI_API_KEY)")
			}
		case RemoteKey:
			if c.Remote.APIKey == "" {
				missing = append(missing, "remote.api_key (NOTION_API_KEY)")
			}
		case RemoteDatabase:
			if c.Remote.DatabaseID == "" {
				missing = append(missing, "remote.database_id (NOTION_DATABASE_ID)")
			}
		}
	}
	if len(missing) > 0 {
		return apperr.New(apperr.ErrMissingCredential, "check credentials", errors.New(strings.Join(missing, ", ")))
	}
	return nil
}

// Save writes cfg as TOML. Secrets are written too, so callers generating a
// shareable file should clear them first.
func Save(cfg *Config, path string) error {
	data, err := toml.Marshal(fileView(cfg))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}

// fileView renders durations as strings so the file stays readable.
func fileView(cfg *Config) map[string]any {
	return map[string]any{
		"feeds": feedMaps(cfg.Feeds),
		"ingest": map[string]any{
			"max_items_per_feed":   cfg.Ingest.MaxItemsPerFeed,
			"auto_prune_threshold": cfg.Ingest.AutoPruneThreshold,
			"prune_batch_size":     cfg.Ingest.PruneBatchSize,
			"strip_title_prefixes": cfg.Ingest.StripTitlePrefixes,
		},
		"state": map[string]any{
			"path":          cfg.State.Path,
			"lock_dir":      cfg.State.LockDir,
			"cache_path":    cfg.State.CachePath,
			"cache_timeout": cfg.State.CacheTimeout.String(),
		},
		"feed": map[string]any{
			"http_timeout":        cfg.Feed.HTTPTimeout.String(),
			"user_agent":          cfg.Feed.UserAgent,
			"workers":             cfg.Feed.Workers,
			"allow_private_hosts": cfg.Feed.AllowPrivateHosts,
		},
		"oracle": map[string]any{
			"endpoint":            cfg.Oracle.Endpoint,
			"model":               cfg.Oracle.Model,
			"api_key":             cfg.Oracle.APIKey,
			"system_prompt":       cfg.Oracle.SystemPrompt,
			"language":            cfg.Oracle.Language,
			"content_budget":      cfg.Oracle.ContentBudget,
			"context_window":      cfg.Oracle.ContextWindow,
			"context_strategy":    cfg.Oracle.ContextStrategy,
			"timeout":             cfg.Oracle.Timeout.String(),
			"interaction_log":     cfg.Oracle.InteractionLog,
			"interaction_log_dir": cfg.Oracle.InteractionLogDir,
		},
		"remote": map[string]any{
			"base_url":            cfg.Remote.BaseURL,
			"api_key":             cfg.Remote.APIKey,
			"database_id":         cfg.Remote.DatabaseID,
			"version":             cfg.Remote.Version,
			"timeout":             cfg.Remote.Timeout.String(),
			"requests_per_second": cfg.Remote.RequestsPerSecond,
			"wipe_delay":          cfg.Remote.WipeDelay.String(),
		},
		"images": map[string]any{
			"imgur_client_id": cfg.Images.ImgurClientID,
			"imgur_endpoint":  cfg.Images.ImgurEndpoint,
			"rehost_sources":  cfg.Images.RehostSources,
			"timeout":         cfg.Images.Timeout.String(),
		},
		"log": map[string]any{
			"level": cfg.Log.Level,
			"path":  cfg.Log.Path,
		},
	}
}

func feedMaps(feeds []FeedSource) []map[string]any {
	out := make([]map[string]any, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, map[string]any{"name": f.Name, "url": f.URL})
	}
	return out
}
