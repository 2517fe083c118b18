package config

import "time"

// TestConfig returns a config suitable for testing. Paths are relative and
// meant to be overridden with t.TempDir() locations.
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Feeds = nil
	cfg.Ingest.StripTitlePrefixes = []string{"Actualité : "}
	cfg.Feed.HTTPTimeout = 5 * time.Second
	cfg.Feed.UserAgent = "newsroom-test/1.0"
	cfg.Feed.Workers = 2
	cfg.Feed.AllowPrivateHosts = true
	cfg.Oracle.APIKey = "test-oracle-key"
	cfg.Oracle.Timeout = 5 * time.Second
	cfg.Remote.APIKey = "test-remote-key"
	cfg.Remote.DatabaseID = "test-database"
	cfg.Remote.Timeout = 5 * time.Second
	cfg.Remote.RequestsPerSecond = 1000
	cfg.Remote.WipeDelay = 0
	cfg.Images.Timeout = 5 * time.Second
	cfg.Log.Level = "OFF"
	return cfg
}
