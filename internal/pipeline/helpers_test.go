package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pders01/newsroom/internal/apperr"
	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/guard"
	"github.com/pders01/newsroom/internal/notion"
	"github.com/pders01/newsroom/internal/oracle"
	"github.com/pders01/newsroom/internal/scrape"
	"github.com/pders01/newsroom/internal/storage"
)

type failingArticles struct{}

func (failingArticles) FetchArticle(context.Context, string) (*scrape.Article, error) {
	return nil, apperr.External("scrape", errors.New("connection refused"))
}

type stubArticles map[string]*scrape.Article

func (s stubArticles) FetchArticle(_ context.Context, u string) (*scrape.Article, error) {
	if a, ok := s[u]; ok {
		return a, nil
	}
	return nil, apperr.External("scrape", errors.New("not found"))
}

type stubClassifier struct {
	verdict oracle.Verdict
	mu      sync.Mutex
	calls   []oracle.Prompt
}

func (s *stubClassifier) Classify(_ context.Context, title, content string, ctxTitles []string) oracle.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, oracle.Prompt{Title: title, Content: content, ContextTitles: ctxTitles})
	return s.verdict
}

// fakeRemote records created and archived pages.
type fakeRemote struct {
	mu         sync.Mutex
	connErr    error
	failCreate map[string]bool
	failID     map[string]bool
	created    []notion.Page
	archived   []string
	pages      []notion.RemotePage
	next       int
}

func (f *fakeRemote) CheckConnection(context.Context) error { return f.connErr }

func (f *fakeRemote) CreatePage(_ context.Context, p notion.Page) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate[p.URL] {
		return "", apperr.External("notion.create_page", errors.New("status 400"))
	}
	f.next++
	f.created = append(f.created, p)
	return fmt.Sprintf("page_%d", f.next), nil
}

func (f *fakeRemote) ArchivePage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failID[id] {
		return apperr.External("notion.archive_page", errors.New("status 500"))
	}
	f.archived = append(f.archived, id)
	return nil
}

func (f *fakeRemote) QueryPages(context.Context) ([]notion.RemotePage, error) {
	return f.pages, nil
}

type memReports map[string]any

func (m memReports) SaveReport(kind string, report any) error {
	m[kind] = report
	return nil
}

func newDeps(t *testing.T) (Deps, *fakeRemote, memReports) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.TestConfig()
	cfg.State.Path = filepath.Join(dir, "processed_articles.json")
	cfg.State.LockDir = dir

	remote := &fakeRemote{}
	reports := memReports{}
	return Deps{
		Config:       cfg,
		Guard:        guard.New(dir),
		State:        storage.OpenState(cfg.State.Path, nil),
		Articles:     failingArticles{},
		Classifier:   &stubClassifier{verdict: oracle.Verdict{Classification: oracle.CallFailure(), Outcome: oracle.CallFailed}},
		Publisher:    remote,
		Remote:       remote,
		Reports:      reports,
		Interactions: debuglog.NewInteractionLog(filepath.Join(dir, "logs"), false),
	}, remote, reports
}

func item(url, date, remoteID string) storage.ProcessedItem {
	return storage.ProcessedItem{URL: url, Title: "Titre " + url, PublishedDate: date, RemoteID: remoteID}
}
