package debuglog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const interactionPrefix = "oracle_"

// Interaction is one exchange with the text-generation service.
type Interaction struct {
	ID           string
	Model        string
	Prompt       string
	// PromptTokens is an estimate; zero leaves the line out.
	PromptTokens int
	Response     string
	Err          error
}

// InteractionLog appends oracle exchanges to a daily file. A nil or disabled
// log accepts records and drops them.
type InteractionLog struct {
	dir     string
	enabled bool
	now     func() time.Time
	mu      sync.Mutex
}

// NewInteractionLog returns a log writing into dir when enabled.
func NewInteractionLog(dir string, enabled bool) *InteractionLog {
	return &InteractionLog{dir: dir, enabled: enabled, now: time.Now}
}

// Enabled reports whether records are persisted.
func (il *InteractionLog) Enabled() bool {
	return il != nil && il.enabled
}

// Record appends an entry. Errors are returned so the caller can log them;
// they must never change the outcome of the exchange itself.
func (il *InteractionLog) Record(entry Interaction) error {
	if !il.Enabled() {
		return nil
	}

	il.mu.Lock()
	defer il.mu.Unlock()

	if err := os.MkdirAll(il.dir, 0o755); err != nil {
		return fmt.Errorf("creating interaction log directory: %w", err)
	}

	now := il.now()
	name := filepath.Join(il.dir, interactionPrefix+now.Format("20060102")+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening interaction log: %w", err)
	}
	defer f.Close()

	response := entry.Response
	if entry.Err != nil {
		response = "ERROR: " + entry.Err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s - === INTERACTION %s ===\n", now.Format(time.RFC3339), entry.ID)
	fmt.Fprintf(&b, "MODEL: %s\n", entry.Model)
	if entry.PromptTokens > 0 {
		fmt.Fprintf(&b, "PROMPT TOKENS (approx.): %d\n", entry.PromptTokens)
	}
	fmt.Fprintf(&b, "\nPROMPT:\n%s\n\nRESPONSE:\n%s\n\n", entry.Prompt, response)
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n")

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("writing interaction log: %w", err)
	}
	return nil
}

// Purge removes every interaction log file and returns how many were deleted.
// It works whether or not recording is enabled.
func (il *InteractionLog) Purge() (int, error) {
	if il == nil || il.dir == "" {
		return 0, nil
	}

	il.mu.Lock()
	defer il.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(il.dir, interactionPrefix+"*.log"))
	if err != nil {
		return 0, err
	}

	var (
		count   int
		lastErr error
	)
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			lastErr = err
			continue
		}
		count++
	}
	return count, lastErr
}
