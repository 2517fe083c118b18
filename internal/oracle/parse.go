package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pders01/newsroom/internal/apperr"
	"github.com/pders01/newsroom/internal/storage"
)

type verdict struct {
	IsDouble          flexBool        `json:"isDouble"`
	SimilarArticle    *string         `json:"similarArticle"`
	SimilarityReason  *string         `json:"similarityReason"`
	IsCommercial      flexBool        `json:"isCommercial"`
	SignificanceScore json.RawMessage `json:"significanceScore"`
	Summary           string          `json:"summary"`
	Tags              json.RawMessage `json:"tags"`
}

// flexBool accepts true/false as JSON booleans or strings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "oui", "yes", "1":
		*b = true
	case "false", "non", "no", "0", "null", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %q", s)
	}
	return nil
}

// StripFences removes markdown code fences around a JSON reply.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

// ParseResponse decodes a reply into a Classification. Anything that is not
// a JSON object with a summary is ErrParse.
func ParseResponse(raw string) (*storage.Classification, error) {
	const op = "oracle.parse"

	var v verdict
	if err := json.Unmarshal([]byte(StripFences(raw)), &v); err != nil {
		return nil, apperr.New(apperr.ErrParse, op, err)
	}
	if strings.TrimSpace(v.Summary) == "" {
		return nil, apperr.New(apperr.ErrParse, op, errors.New("empty summary"))
	}

	score, err := parseScore(v.SignificanceScore)
	if err != nil {
		return nil, apperr.New(apperr.ErrParse, op, err)
	}
	tags, err := parseTags(v.Tags)
	if err != nil {
		return nil, apperr.New(apperr.ErrParse, op, err)
	}

	return &storage.Classification{
		IsDuplicate:       bool(v.IsDouble),
		SimilarItemTitle:  optional(v.SimilarArticle),
		SimilarityReason:  optional(v.SimilarityReason),
		IsCommercial:      bool(v.IsCommercial),
		SignificanceScore: score,
		Summary:           strings.TrimSpace(v.Summary),
		Tags:              tags,
	}, nil
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if strings.EqualFold(v, "null") {
		return ""
	}
	return v
}

// parseScore accepts numbers and numeric strings, with either decimal
// separator, and clamps to [0, 10]. A missing score is zero.
func parseScore(raw json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, nil
	}
	s = strings.Trim(s, `"`)
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	if i := strings.Index(s, "/"); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid significance score %q", string(raw))
	}
	return math.Max(0, math.Min(10, f)), nil
}

func parseTags(raw json.RawMessage) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 || string(raw) == "null" {
		return tags, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var single string
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, fmt.Errorf("invalid tags: %w", err)
		}
		list = []string{single}
	}
	for _, t := range list {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags, nil
}
