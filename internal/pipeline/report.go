package pipeline

import (
	"time"
)

// Report kinds stored in the metadata cache.
const (
	KindIngest = "ingest"
	KindPrune  = "prune"
	KindWipe   = "wipe"
)

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Feeds        int `json:"feeds"`
	FeedErrors   int `json:"feed_errors"`
	NotModified  int `json:"not_modified"`
	Found        int `json:"found"`
	Skipped      int `json:"skipped"`
	Published    int `json:"published"`
	Failed       int `json:"failed"`
	ScrapeMisses int `json:"scrape_misses"`
	Fallbacks    int `json:"classification_fallbacks"`
	Pruned       int `json:"pruned"`

	Errors []string `json:"errors,omitempty"`
}

// PruneReport summarizes one pruning pass.
type PruneReport struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Automatic    bool      `json:"automatic"`
	Targeted     int       `json:"targeted"`
	Removed      int       `json:"removed"`
	Archived     int       `json:"archived"`
	RemoteFailed int       `json:"remote_failed"`
	Remaining    int       `json:"remaining"`

	Errors []string `json:"errors,omitempty"`
}

// WipeReport summarizes a full database wipe.
type WipeReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Pages      int       `json:"pages"`
	Archived   int       `json:"archived"`
	Removed    int       `json:"removed"`
	LogsPurged int       `json:"logs_purged"`

	Errors []string `json:"errors,omitempty"`
}
