package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/storage"
	"github.com/pders01/newsroom/internal/textutil"
)

// Summaries used by the fallback classifications.
const (
	CallFailureSummary  = "Erreur lors de l'analyse"
	ParseFailureSummary = "Impossible d'analyser la réponse"
)

// Outcome tells how a Classification was obtained.
type Outcome int

const (
	Classified Outcome = iota
	CallFailed
	ParseFailed
)

func (o Outcome) String() string {
	switch o {
	case Classified:
		return "classified"
	case CallFailed:
		return "call_failed"
	case ParseFailed:
		return "parse_failed"
	default:
		return "unknown"
	}
}

// Verdict is the result of one Classify call. Err is set for both fallback
// outcomes and is only informational.
type Verdict struct {
	Classification storage.Classification
	Outcome        Outcome
	Err            error
	Duration       time.Duration
}

// Classifier turns candidates into classifications. It never fails: service
// errors and malformed replies produce fallback classifications.
type Classifier struct {
	client   Completer
	system   string
	language string
	budget   int
	log      *debuglog.InteractionLog
	logger   *slog.Logger
}

// NewClassifier wires a Completer with prompt settings and the interaction log.
func NewClassifier(client Completer, cfg config.OracleConfig, interactions *debuglog.InteractionLog, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Classifier{
		client:   client,
		system:   cfg.SystemPrompt,
		language: cfg.Language,
		budget:   cfg.ContentBudget,
		log:      interactions,
		logger:   logger.With("component", "oracle"),
	}
}

// CallFailure is the classification used when the service cannot be reached.
func CallFailure() storage.Classification {
	return storage.Classification{
		SignificanceScore: 5.0,
		Summary:           CallFailureSummary,
		Tags:              []string{},
	}
}

// ParseFailure is the classification used when the reply is malformed.
func ParseFailure() storage.Classification {
	return storage.Classification{
		SignificanceScore: 0.0,
		Summary:           ParseFailureSummary,
		Tags:              []string{},
	}
}

// Classify asks the service about one candidate.
func (c *Classifier) Classify(ctx context.Context, title, content string, contextTitles []string) Verdict {
	p := Prompt{
		Title:         textutil.NormalizeQuotes(textutil.CleanContent(title)),
		Content:       textutil.NormalizeQuotes(textutil.CleanContent(content)),
		ContextTitles: contextTitles,
	}
	prompt := p.Render(c.budget, c.language)

	start := time.Now()
	raw, err := c.client.Complete(ctx, c.system, prompt)
	elapsed := time.Since(start)

	c.record(prompt, raw, err)

	if err != nil {
		c.logger.Warn("classification call failed", "title", title, "error", err)
		return Verdict{Classification: CallFailure(), Outcome: CallFailed, Err: err, Duration: elapsed}
	}

	cls, err := ParseResponse(raw)
	if err != nil {
		c.logger.Warn("classification reply unparseable", "title", title, "error", err)
		return Verdict{Classification: ParseFailure(), Outcome: ParseFailed, Err: err, Duration: elapsed}
	}

	c.logger.Debug("classified",
		"title", title,
		"duplicate", cls.IsDuplicate,
		"commercial", cls.IsCommercial,
		"score", cls.SignificanceScore,
		"context_titles", len(contextTitles),
		"elapsed", elapsed,
	)
	return Verdict{Classification: *cls, Outcome: Classified, Duration: elapsed}
}

func (c *Classifier) record(prompt, raw string, callErr error) {
	if !c.log.Enabled() {
		return
	}
	err := c.log.Record(debuglog.Interaction{
		ID:           uuid.NewString(),
		Model:        c.client.Model(),
		Prompt:       prompt,
		PromptTokens: EstimateTokens(prompt),
		Response:     raw,
		Err:          callErr,
	})
	if err != nil {
		c.logger.Warn("interaction log write failed", "error", err)
	}
}
