// Package search picks which previously published titles go into the
// oracle's comparison digest.
package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/fr"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
)

const docPrefix = "title:"

// TitleIndex is an in-memory full-text index over a snapshot of titles.
// Hits are reported as positions in that snapshot.
type TitleIndex struct {
	idx    bleve.Index
	titles []string
}

// AnalyzerFor returns the analyzer matching a prompt language; French gets
// elision, stop words and stemming, anything else the standard analyzer.
func AnalyzerFor(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if strings.HasPrefix(lang, "fr") {
		return fr.AnalyzerName
	}
	return standard.Name
}

// NewTitleIndex indexes titles with the named analyzer.
func NewTitleIndex(titles []string, analyzer string) (*TitleIndex, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping(analyzer))
	if err != nil {
		return nil, fmt.Errorf("creating title index: %w", err)
	}

	batch := idx.NewBatch()
	for i, title := range titles {
		if strings.TrimSpace(title) == "" {
			continue
		}
		if err := batch.Index(docID(i), map[string]any{"title": title}); err != nil {
			idx.Close()
			return nil, fmt.Errorf("indexing title %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return nil, fmt.Errorf("indexing titles: %w", err)
	}

	return &TitleIndex{idx: idx, titles: titles}, nil
}

func buildIndexMapping(analyzer string) mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = analyzer

	title := bleve.NewTextFieldMapping()
	title.Analyzer = analyzer
	title.Store = false
	title.IncludeTermVectors = false

	dm := bleve.NewDocumentMapping()
	dm.AddFieldMappingsAt("title", title)
	im.DefaultMapping = dm
	return im
}

// Similar returns the positions of up to limit titles sharing terms with
// query, best match first.
func (t *TitleIndex) Similar(query string, limit int) ([]int, error) {
	if limit <= 0 || len(tokenize(query)) == 0 {
		return nil, nil
	}

	qm := bleve.NewMatchQuery(query)
	qm.SetField("title")
	qp := bleve.NewMatchPhraseQuery(query)
	qp.SetField("title")
	qp.SetBoost(2.0)
	q := bleve.NewDisjunctionQuery([]bleveQuery.Query{qm, qp}...)

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := t.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching titles: %w", err)
	}

	out := make([]int, 0, len(res.Hits))
	for _, h := range res.Hits {
		pos, err := strconv.Atoi(strings.TrimPrefix(h.ID, docPrefix))
		if err != nil || pos < 0 || pos >= len(t.titles) {
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}

// DocCount reports how many titles are indexed.
func (t *TitleIndex) DocCount() (int, error) {
	n, err := t.idx.DocCount()
	return int(n), err
}

func (t *TitleIndex) Close() error {
	return t.idx.Close()
}

func docID(pos int) string { return docPrefix + strconv.Itoa(pos) }

// tokenize lowercases text into letter/digit runs, skipping single characters.
func tokenize(text string) []string {
	var terms []string
	current := strings.Builder{}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			if term := current.String(); len([]rune(term)) > 1 {
				terms = append(terms, term)
			}
			current.Reset()
		}
	}

	if len([]rune(current.String())) > 1 {
		terms = append(terms, current.String())
	}

	return terms
}

func sortedUnique(positions []int) []int {
	sort.Ints(positions)
	out := positions[:0]
	for i, p := range positions {
		if i == 0 || p != positions[i-1] {
			out = append(out, p)
		}
	}
	return out
}
