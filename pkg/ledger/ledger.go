// Package ledger implements the append-only event log: a single
// newline-delimited JSON file, lazily indexed in memory on first query and
// incrementally maintained thereafter.
package ledger

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/irrev-systems/irrev/pkg/events"
)

// Ledger is an append-only event log backed by a single JSONL file.
type Ledger struct {
	mu   sync.RWMutex
	path string

	indexed bool
	events  []events.Event

	byArtifactId  map[string][]int
	byEventType   map[events.Type][]int
	byExecutionId map[string][]int
}

// New returns a Ledger backed by the file at path. The file need not exist
// yet; it is created on first Append.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Append writes a single event to the ledger file and, if the in-memory
// index has already been built, updates it incrementally.
func (l *Ledger) Append(e events.Event) error {
	return l.AppendMany([]events.Event{e})
}

// AppendMany writes a batch of events in one file operation, so a crash
// between the open and the write leaves no partial batch visible, and
// updates the index for the whole batch.
func (l *Ledger) AppendMany(evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("ledger: ensure dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open for append: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	for _, e := range evs {
		raw, err := e.ToJSON()
		if err != nil {
			return fmt.Errorf("ledger: serialize event: %w", err)
		}
		if _, err := w.Write(raw); err != nil {
			return fmt.Errorf("ledger: write event: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("ledger: write newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("ledger: flush: %w", err)
	}

	if l.indexed {
		for _, e := range evs {
			l.indexOne(e)
		}
	}
	return nil
}

// IterEvents reads the entire ledger file from disk, independent of the
// in-memory index, skipping blank lines and tolerating a reader racing a
// concurrent writer (a trailing line without its newline is ignored).
func (l *Ledger) IterEvents() ([]events.Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) > 0 && bytes.IndexByte(data, '\n') < 0 {
			// Final line without its newline: a write still in progress.
			return len(data), nil, nil
		}
		return bufio.ScanLines(data, atEOF)
	})
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		e, err := events.FromJSON(line)
		if err != nil {
			return nil, fmt.Errorf("ledger: malformed event line: %w", err)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan: %w", err)
	}
	return out, nil
}

// ensureIndexedLocked performs a full scan and builds all three indexes if
// they have not been built yet. Callers must hold l.mu for writing.
func (l *Ledger) ensureIndexedLocked() error {
	if l.indexed {
		return nil
	}
	evs, err := l.IterEvents()
	if err != nil {
		return err
	}
	l.events = nil
	l.byArtifactId = make(map[string][]int)
	l.byEventType = make(map[events.Type][]int)
	l.byExecutionId = make(map[string][]int)
	for _, e := range evs {
		l.indexOne(e)
	}
	l.indexed = true
	return nil
}

// indexOne appends e to the in-memory event list and updates all three
// indexes. Callers must hold l.mu for writing.
func (l *Ledger) indexOne(e events.Event) {
	idx := len(l.events)
	l.events = append(l.events, e)
	l.byArtifactId[e.ArtifactId] = append(l.byArtifactId[e.ArtifactId], idx)
	l.byEventType[e.EventType] = append(l.byEventType[e.EventType], idx)
	if e.EventType == events.ExecutionLogged {
		if execId, ok := e.Payload["execution_id"].(string); ok && execId != "" {
			l.byExecutionId[execId] = append(l.byExecutionId[execId], idx)
		}
	}
}

// ensureIndexed is the read-path entry point: it upgrades to a write lock
// only if the index has not yet been built.
func (l *Ledger) ensureIndexed() error {
	l.mu.RLock()
	if l.indexed {
		l.mu.RUnlock()
		return nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensureIndexedLocked()
}

// Exists reports whether any event has been recorded for artifactId.
func (l *Ledger) Exists(artifactId string) (bool, error) {
	if err := l.ensureIndexed(); err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byArtifactId[artifactId]) > 0, nil
}

// Count returns the total number of events recorded.
func (l *Ledger) Count() (int, error) {
	if err := l.ensureIndexed(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events), nil
}

// ArtifactCount returns the number of distinct artifacts with at least one event.
func (l *Ledger) ArtifactCount() (int, error) {
	if err := l.ensureIndexed(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byArtifactId), nil
}

// EventsFor returns all events for artifactId in append order.
func (l *Ledger) EventsFor(artifactId string) ([]events.Event, error) {
	return l.Query(Params{ArtifactId: artifactId})
}
