package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/newsroom/internal/apperr"
	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
)

type stubCompleter struct {
	reply  string
	err    error
	system string
	user   string
}

func (s *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.system, s.user = system, user
	return s.reply, s.err
}

func (s *stubCompleter) Model() string { return "stub-model" }

const goodReply = "```json\n" + `{
  "isDouble": true,
  "similarArticle": "Apple présente l'iPhone",
  "similarityReason": "même sujet",
  "isCommercial": false,
  "significanceScore": 7.5,
  "summary": "Un résumé.",
  "tags": ["Technologie"]
}` + "\n```"

func testOracleConfig() config.OracleConfig {
	return config.TestConfig().Oracle
}

func TestClassifySuccess(t *testing.T) {
	stub := &stubCompleter{reply: goodReply}
	c := NewClassifier(stub, testOracleConfig(), nil, nil)

	v := c.Classify(context.Background(), "Nouvel iPhone", "<p>Contenu</p>", []string{"Apple présente l'iPhone"})
	require.Equal(t, Classified, v.Outcome)
	assert.NoError(t, v.Err)
	assert.True(t, v.Classification.IsDuplicate)
	assert.Equal(t, "Apple présente l'iPhone", v.Classification.SimilarItemTitle)
	assert.Equal(t, 7.5, v.Classification.SignificanceScore)
	assert.Equal(t, []string{"Technologie"}, v.Classification.Tags)

	assert.Contains(t, stub.user, "TITRE: Nouvel iPhone")
	assert.Contains(t, stub.user, "CONTENU: Contenu")
	assert.Contains(t, stub.user, "1. Apple présente l'iPhone")
	assert.Equal(t, testOracleConfig().SystemPrompt, stub.system)
}

func TestClassifyCallFailure(t *testing.T) {
	stub := &stubCompleter{err: apperr.External("oracle.complete", errors.New("boom"))}
	c := NewClassifier(stub, testOracleConfig(), nil, nil)

	v := c.Classify(context.Background(), "t", "c", nil)
	assert.Equal(t, CallFailed, v.Outcome)
	assert.ErrorIs(t, v.Err, apperr.ErrExternalService)
	assert.False(t, v.Classification.IsDuplicate)
	assert.False(t, v.Classification.IsCommercial)
	assert.Equal(t, 5.0, v.Classification.SignificanceScore)
	assert.Equal(t, CallFailureSummary, v.Classification.Summary)
	assert.NotNil(t, v.Classification.Tags)
	assert.Empty(t, v.Classification.Tags)
}

func TestClassifyParseFailure(t *testing.T) {
	stub := &stubCompleter{reply: "Désolé, je ne peux pas répondre."}
	c := NewClassifier(stub, testOracleConfig(), nil, nil)

	v := c.Classify(context.Background(), "t", "c", nil)
	assert.Equal(t, ParseFailed, v.Outcome)
	assert.ErrorIs(t, v.Err, apperr.ErrParse)
	assert.Equal(t, ParseFailureSummary, v.Classification.Summary)
	assert.NotEqual(t, CallFailure().Summary, v.Classification.Summary)
	assert.Empty(t, v.Classification.Tags)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("résumé"))
	assert.Equal(t, 250, EstimateTokens(strings.Repeat("a", 1000)))
}

func TestClassifyRecordsInteractions(t *testing.T) {
	dir := t.TempDir()
	il := debuglog.NewInteractionLog(dir, true)
	stub := &stubCompleter{reply: goodReply}
	c := NewClassifier(stub, testOracleConfig(), il, nil)

	c.Classify(context.Background(), "Titre", "Contenu", nil)

	files, err := filepath.Glob(filepath.Join(dir, "oracle_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "MODEL: stub-model")
	assert.Contains(t, string(data), "PROMPT TOKENS (approx.): ")
	assert.Contains(t, string(data), "TITRE: Titre")
	assert.Contains(t, string(data), "Un résumé.")
}

func TestClassifyIgnoresInteractionLogFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	il := debuglog.NewInteractionLog(filepath.Join(blocker, "logs"), true)

	c := NewClassifier(&stubCompleter{reply: goodReply}, testOracleConfig(), il, nil)
	v := c.Classify(context.Background(), "t", "c", nil)
	assert.Equal(t, Classified, v.Outcome)
}

func TestPromptTruncatesContent(t *testing.T) {
	p := Prompt{Title: "T", Content: strings.Repeat("é", 20)}
	out := p.Render(5, "")
	assert.Contains(t, out, "CONTENU: ééééé\n")
	assert.NotContains(t, out, "Articles précédents")
	assert.Contains(t, out, "en français")
}

func TestParseResponseVariants(t *testing.T) {
	cls, err := ParseResponse(`Voici: {"isDouble": "false", "similarArticle": null, "isCommercial": true, "significanceScore": "8,5", "summary": "ok", "tags": "Tech"}`)
	require.NoError(t, err)
	assert.False(t, cls.IsDuplicate)
	assert.Equal(t, "", cls.SimilarItemTitle)
	assert.True(t, cls.IsCommercial)
	assert.Equal(t, 8.5, cls.SignificanceScore)
	assert.Equal(t, []string{"Tech"}, cls.Tags)

	cls, err = ParseResponse("{\"significanceScore\": 6, \"summary\": \"suivi\"}\nJ'espère que cela aide.")
	require.NoError(t, err)
	assert.Equal(t, "suivi", cls.Summary)
	assert.Equal(t, 6.0, cls.SignificanceScore)

	cls, err = ParseResponse(`{"significanceScore": 42, "summary": "s", "similarArticle": "null"}`)
	require.NoError(t, err)
	assert.Equal(t, 10.0, cls.SignificanceScore)
	assert.Equal(t, "", cls.SimilarItemTitle)
	assert.Equal(t, []string{}, cls.Tags)

	_, err = ParseResponse(`{"summary": ""}`)
	assert.ErrorIs(t, err, apperr.ErrParse)

	_, err = ParseResponse(`{"summary": "s", "significanceScore": "beaucoup"}`)
	assert.ErrorIs(t, err, apperr.ErrParse)

	_, err = ParseResponse(``)
	assert.ErrorIs(t, err, apperr.ErrParse)
}

func TestChatClientComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	cfg := testOracleConfig()
	cfg.Endpoint = srv.URL
	cfg.APIKey = "test-key"
	c := NewChatClient(cfg)

	out, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, cfg.Model, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Content)
}

func TestChatClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testOracleConfig()
	cfg.Endpoint = srv.URL
	_, err := NewChatClient(cfg).Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, apperr.ErrExternalService)

	cfg.APIKey = ""
	_, err = NewChatClient(cfg).Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, apperr.ErrExternalService)
}
