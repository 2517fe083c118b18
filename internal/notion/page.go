package notion

import (
	"strings"

	"github.com/pders01/newsroom/internal/storage"
	"github.com/pders01/newsroom/internal/textutil"
	"github.com/pders01/newsroom/internal/validation"
)

const (
	// ChunkSize bounds one rich text block of the content property.
	ChunkSize = 1800
	// MaxChunks bounds how many blocks the content property carries.
	MaxChunks      = 10
	truncateMarker = "... (contenu tronqué)"
	// Notion rejects text objects longer than this.
	maxText = 2000
)

// Page is an article ready to publish.
type Page struct {
	Title          string
	Content        string
	Classification storage.Classification
	ImageURL       string
	URL            string
	PublishedDate  string
	Source         string
}

type text struct {
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}

func richText(parts ...string) []text {
	out := make([]text, 0, len(parts))
	for _, p := range parts {
		var t text
		t.Text.Content = p
		out = append(out, t)
	}
	return out
}

type named struct {
	Name string `json:"name"`
}

func multiSelect(values ...string) []named {
	out := make([]named, 0, len(values))
	for _, v := range values {
		// Commas are not allowed in option names.
		v = strings.TrimSpace(strings.ReplaceAll(v, ",", " "))
		if v != "" {
			out = append(out, named{Name: textutil.TruncateEnd(v, 100)})
		}
	}
	return out
}

type external struct {
	Type     string `json:"type"`
	External struct {
		URL string `json:"url"`
	} `json:"external"`
}

func externalFile(url string) external {
	e := external{Type: "external"}
	e.External.URL = url
	return e
}

type imageFile struct {
	Name string `json:"name"`
	external
}

func (p Page) request(databaseID string) map[string]any {
	title := textutil.DecodeEntities(p.Title)
	content := textutil.DecodeEntities(p.Content)
	cls := p.Classification

	var url any
	if validation.IsWebURL(p.URL) {
		url = p.URL
	}
	var date any
	if p.PublishedDate != "" {
		date = map[string]string{"start": p.PublishedDate}
	}
	tags := cls.Tags
	if tags == nil {
		tags = []string{}
	}

	properties := map[string]any{
		"Title":      map[string]any{"title": richText(textutil.TruncateEnd(title, maxText))},
		"URL":        map[string]any{"type": "url", "url": url},
		"Flux":       map[string]any{"type": "multi_select", "multi_select": multiSelect(sourceValues(p.Source)...)},
		"Date":       map[string]any{"type": "date", "date": date},
		"Contenu":    map[string]any{"type": "rich_text", "rich_text": richText(SplitContent(content)...)},
		"Commercial": map[string]any{"type": "checkbox", "checkbox": cls.IsCommercial},
		"Score":      map[string]any{"type": "number", "number": cls.SignificanceScore},
		"Résumé":     map[string]any{"type": "rich_text", "rich_text": richText(textutil.TruncateEnd(cls.Summary, maxText))},
		"Tags":       map[string]any{"type": "multi_select", "multi_select": multiSelect(tags...)},
		"Double":     map[string]any{"checkbox": cls.IsDuplicate},
	}

	req := map[string]any{
		"parent":     map[string]string{"database_id": databaseID},
		"properties": properties,
	}

	if validation.IsWebURL(p.ImageURL) {
		properties["Image"] = map[string]any{
			"files": []imageFile{{Name: "image", external: externalFile(p.ImageURL)}},
		}
		req["cover"] = externalFile(p.ImageURL)
	}
	return req
}

func sourceValues(source string) []string {
	if source == "" {
		return nil
	}
	return []string{source}
}

// SplitContent cuts text on word boundaries into blocks of at most ChunkSize
// characters. Past MaxChunks blocks the rest is dropped and the last block
// ends with a truncation marker.
func SplitContent(s string) []string {
	words := splitLongWords(strings.Fields(s))
	if len(words) == 0 {
		return []string{}
	}

	var (
		chunks  []string
		current []string
		length  int
	)
	for _, w := range words {
		wl := len([]rune(w)) + 1
		if length+wl > ChunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current, length = nil, 0
		}
		current = append(current, w)
		length += wl
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	if len(chunks) > MaxChunks {
		chunks = chunks[:MaxChunks]
		chunks[MaxChunks-1] += truncateMarker
	}
	return chunks
}

// splitLongWords cuts words longer than ChunkSize runes (long URLs, unspaced
// scripts) into ChunkSize pieces.
func splitLongWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		r := []rune(w)
		for len(r) > ChunkSize {
			out = append(out, string(r[:ChunkSize]))
			r = r[ChunkSize:]
		}
		out = append(out, string(r))
	}
	return out
}
