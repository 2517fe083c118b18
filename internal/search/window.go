package search

import (
	"log/slog"
)

// Strategy names how the context window is filled.
type Strategy string

const (
	// Recent keeps the most recently published titles.
	Recent Strategy = "recent"
	// Relevant spends up to half the window on titles similar to the
	// candidate and fills the rest with the most recent ones.
	Relevant Strategy = "relevant"
)

// ContextWindow selects the prior titles sent to the oracle for one
// candidate. Titles are taken once at run start, so items published during
// the run are not in the window.
type ContextWindow struct {
	titles   []string
	limit    int
	strategy Strategy
	index    *TitleIndex
	logger   *slog.Logger
}

// NewContextWindow snapshots titles. A limit of zero or less keeps every
// title. The relevant strategy builds a TitleIndex; if that fails the window
// degrades to recent titles.
func NewContextWindow(titles []string, limit int, strategy Strategy, analyzer string, logger *slog.Logger) *ContextWindow {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &ContextWindow{
		titles:   append([]string(nil), titles...),
		limit:    limit,
		strategy: strategy,
		logger:   logger,
	}
	if strategy == Relevant && w.capped() {
		idx, err := NewTitleIndex(w.titles, analyzer)
		if err != nil {
			logger.Warn("title index unavailable, using recent titles", "error", err)
			w.strategy = Recent
		} else {
			w.index = idx
		}
	}
	return w
}

func (w *ContextWindow) capped() bool {
	return w.limit > 0 && len(w.titles) > w.limit
}

// Titles returns the digest for a candidate title, in publication order.
func (w *ContextWindow) Titles(candidate string) []string {
	if !w.capped() {
		return append([]string(nil), w.titles...)
	}

	var picked []int
	if w.strategy == Relevant && w.index != nil {
		similar, err := w.index.Similar(candidate, w.limit/2)
		if err != nil {
			w.logger.Warn("title search failed", "error", err)
		}
		picked = append(picked, similar...)
	}

	chosen := make(map[int]bool, w.limit)
	for _, p := range picked {
		chosen[p] = true
	}
	for p := len(w.titles) - 1; p >= 0 && len(chosen) < w.limit; p-- {
		if !chosen[p] {
			chosen[p] = true
			picked = append(picked, p)
		}
	}

	positions := sortedUnique(picked)
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		out = append(out, w.titles[p])
	}
	return out
}

// Close releases the title index.
func (w *ContextWindow) Close() error {
	if w.index == nil {
		return nil
	}
	return w.index.Close()
}
