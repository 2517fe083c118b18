package storage

import (
	"time"
)

// Classification is the oracle's verdict on one candidate item. JSON names
// follow the text-generation response contract so the persisted form and the
// response share one vocabulary.
type Classification struct {
	IsDuplicate       bool     `json:"isDouble"`
	SimilarItemTitle  string   `json:"similarArticle,omitempty"`
	SimilarityReason  string   `json:"similarityReason,omitempty"`
	IsCommercial      bool     `json:"isCommercial"`
	SignificanceScore float64  `json:"significanceScore"`
	Summary           string   `json:"summary"`
	Tags              []string `json:"tags"`
}

// ProcessedItem records an article that was published to the remote database.
// Optional fields are omitted when empty to keep the state file compact; the
// JSON names match the historical state file layout.
type ProcessedItem struct {
	URL            string          `json:"url"`
	Title          string          `json:"title,omitempty"`
	Content        string          `json:"content,omitempty"`
	Classification *Classification `json:"analysis,omitempty"`
	PublishedDate  string          `json:"date,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	Source         string          `json:"source,omitempty"`
	RecordedAt     string          `json:"processed_date,omitempty"`
	RemoteID       string          `json:"notion_id,omitempty"`
}

// Candidate is a feed entry that has not been checked against the state yet.
type Candidate struct {
	Title         string
	Link          string
	Summary       string
	PublishedDate string
	ImageURL      string
}

// FetchMetadata keeps conditional GET validators per feed URL.
type FetchMetadata struct {
	FeedURL      string    `json:"feed_url"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	LastFetched  time.Time `json:"last_fetched"`
}

// TimestampLayout is used for recorded_at and published dates.
const TimestampLayout = time.RFC3339

// Timestamp formats t the way dates are persisted.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
