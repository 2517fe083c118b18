// Package guard keeps the ingestion and pruning pipelines from running at the
// same time, across processes, using exclusively created marker files.
package guard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pders01/newsroom/internal/apperr"
)

// Name identifies one of the two pipeline locks.
type Name string

const (
	Ingest Name = "ingest"
	Prune  Name = "prune"
)

// Names lists every lock in a stable order.
var Names = []Name{Ingest, Prune}

// markerFiles keeps the historical marker names so existing deployments and
// their cleanup scripts keep working.
var markerFiles = map[Name]string{
	Ingest: "main.lock",
	Prune:  "process.lock",
}

// Marker describes a lock file found on disk.
type Marker struct {
	Name    Name
	Path    string
	PID     int
	Created time.Time
}

// Guard acquires and releases pipeline locks in a directory. It remembers
// which locks this process created so ReleaseAll only drops its own.
type Guard struct {
	dir string

	mu   sync.Mutex
	held map[Name]bool
}

// New returns a Guard keeping its markers in dir.
func New(dir string) *Guard {
	if dir == "" {
		dir = "."
	}
	return &Guard{dir: dir, held: make(map[Name]bool)}
}

// Dir returns the marker directory.
func (g *Guard) Dir() string {
	return g.dir
}

func (g *Guard) path(name Name) (string, error) {
	file, ok := markerFiles[name]
	if !ok {
		return "", fmt.Errorf("unknown lock %q", name)
	}
	return filepath.Join(g.dir, file), nil
}

// Acquire takes the named lock. It fails with apperr.ErrConcurrency when any
// lock, including name itself, is already held.
func (g *Guard) Acquire(name Name) error {
	own, err := g.path(name)
	if err != nil {
		return err
	}
	op := "acquire " + string(name)

	for _, other := range Names {
		if other != name && g.IsHeld(other) {
			return apperr.New(apperr.ErrConcurrency, op, fmt.Errorf("%s lock is held", other))
		}
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return apperr.IO(op, err)
	}

	f, err := os.OpenFile(own, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return apperr.New(apperr.ErrConcurrency, op, fmt.Errorf("%s lock is held", name))
		}
		return apperr.IO(op, err)
	}
	_, writeErr := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(own)
		return apperr.IO(op, errors.Join(writeErr, closeErr))
	}

	// The other pipeline may have checked before our marker existed. Whoever
	// sees both markers backs off, so at worst both runs abort.
	for _, other := range Names {
		if other != name && g.IsHeld(other) {
			os.Remove(own)
			return apperr.New(apperr.ErrConcurrency, op, fmt.Errorf("%s lock is held", other))
		}
	}

	g.mu.Lock()
	g.held[name] = true
	g.mu.Unlock()
	return nil
}

// Release frees the named lock. Releasing a free lock is a no-op.
func (g *Guard) Release(name Name) error {
	own, err := g.path(name)
	if err != nil {
		return err
	}

	g.mu.Lock()
	delete(g.held, name)
	g.mu.Unlock()

	if err := os.Remove(own); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.IO("release "+string(name), err)
	}
	return nil
}

// IsHeld reports whether the named lock's marker exists. It never blocks.
func (g *Guard) IsHeld(name Name) bool {
	p, err := g.path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// ReleaseAll frees every lock this Guard acquired.
func (g *Guard) ReleaseAll() error {
	g.mu.Lock()
	names := make([]Name, 0, len(g.held))
	for name := range g.held {
		names = append(names, name)
	}
	g.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := g.Release(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Markers returns the markers currently on disk, whoever created them.
func (g *Guard) Markers() []Marker {
	var markers []Marker
	for _, name := range Names {
		p, _ := g.path(name)
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		m := Marker{Name: name, Path: p, Created: info.ModTime()}
		if data, err := os.ReadFile(p); err == nil {
			m.PID = parsePID(data)
		}
		markers = append(markers, m)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].Name < markers[j].Name })
	return markers
}

// ForceUnlock removes every marker regardless of owner and returns the
// markers it removed. It is meant for operators clearing a lock left behind
// by a killed process.
func (g *Guard) ForceUnlock() ([]Marker, error) {
	markers := g.Markers()
	var errs []error
	for _, m := range markers {
		if err := g.Release(m.Name); err != nil {
			errs = append(errs, err)
		}
	}
	return markers, errors.Join(errs...)
}

func parsePID(data []byte) int {
	line := data
	for i, b := range data {
		if b == '\n' {
			line = data[:i]
			break
		}
	}
	pid, err := strconv.Atoi(string(line))
	if err != nil {
		return 0
	}
	return pid
}
