// Package index maintains the three derived projections of the entry
// store: an id-keyed index, a text+type-keyed index, and a flat summary
// list for list views. All three are rebuildable caches; the relational
// store stays the source of truth.
package index

import (
	"fmt"
	"sync"

	"github.com/japaniel/kotoba/pkg/db"
	"github.com/japaniel/kotoba/pkg/entry"
)

// Summary is the lightweight list-view projection of one entry.
type Summary struct {
	Characters string     `json:"jp"`
	Type       entry.Type `json:"type"`
	Meanings   []string   `json:"en"`
	Readings   []string   `json:"known_readings,omitempty"`
}

// Indexes holds the three projections and keeps them in lockstep: every
// apply mutates all three or none, and persists them together. Construct
// with Load (or New for a fresh set); there is no package-level state.
type Indexes struct {
	mu      sync.RWMutex
	byID    map[int64]*entry.Entry
	byText  map[string]map[entry.Type]*entry.Entry
	summary []Summary

	dir string
}

// New returns an empty index set persisting under dir. An empty dir
// disables persistence (used by tests).
func New(dir string) *Indexes {
	return &Indexes{
		byID:   make(map[int64]*entry.Entry),
		byText: make(map[string]map[entry.Type]*entry.Entry),
		dir:    dir,
	}
}

// Load reads the persisted index files under dir. Missing files yield an
// empty index set, so first start works without ceremony.
func Load(dir string) (*Indexes, error) {
	ix := New(dir)
	if err := ix.load(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Rebuild recomputes all three projections from the relational store and
// persists them. This is the documented repair path when the indexes lag
// the store (cold start, crash between store write and index persist).
func (ix *Indexes) Rebuild(exec db.DBExecutor) error {
	keys, err := db.AllKeys(exec)
	if err != nil {
		return fmt.Errorf("rebuild: list entries: %w", err)
	}

	byID := make(map[int64]*entry.Entry, len(keys))
	byText := make(map[string]map[entry.Type]*entry.Entry, len(keys))
	summary := make([]Summary, 0, len(keys))
	for _, k := range keys {
		e, err := db.GetEntry(exec, k.Characters, k.Type)
		if err != nil {
			return fmt.Errorf("rebuild: load %q/%s: %w", k.Characters, k.Type, err)
		}
		byID[e.ID] = e
		if byText[e.Characters] == nil {
			byText[e.Characters] = make(map[entry.Type]*entry.Entry)
		}
		byText[e.Characters][e.Type] = e
		summary = append(summary, summarize(e))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	prev := ix.snapshotLocked()
	ix.byID = byID
	ix.byText = byText
	ix.summary = summary
	if err := ix.persistLocked(); err != nil {
		ix.restoreLocked(prev)
		return err
	}
	return nil
}

// ApplyInsert adds a new entry to all three projections (summary gets it
// at the front, newest first) and refreshes the payload of any touched
// entries whose composition lists changed in the same mutation. Touched
// entries not indexed yet (placeholders created by the same mutation) are
// inserted as new. On persist failure the in-memory state is rolled back
// as a unit.
func (ix *Indexes) ApplyInsert(e *entry.Entry, touched ...*entry.Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	prev := ix.snapshotLocked()

	ix.putLocked(e)
	for _, t := range touched {
		ix.putLocked(t)
	}
	if err := ix.persistLocked(); err != nil {
		ix.restoreLocked(prev)
		return err
	}
	return nil
}

// ApplyAppend replaces the payload of an existing entry after an
// append-only modification, plus any touched linked entries.
func (ix *Indexes) ApplyAppend(e *entry.Entry, touched ...*entry.Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.lookupLocked(e.Characters, e.Type); !ok {
		return entry.ErrNotFound
	}
	prev := ix.snapshotLocked()

	ix.putLocked(e)
	for _, t := range touched {
		ix.putLocked(t)
	}
	if err := ix.persistLocked(); err != nil {
		ix.restoreLocked(prev)
		return err
	}
	return nil
}

// ApplyDelete removes the entry from all three projections. Touched
// entries (from composition pruning, when enabled) are refreshed.
func (ix *Indexes) ApplyDelete(characters string, t entry.Type, touched ...*entry.Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	old, ok := ix.lookupLocked(characters, t)
	if !ok {
		return entry.ErrNotFound
	}
	prev := ix.snapshotLocked()

	delete(ix.byID, old.ID)
	byType := cloneTypeMap(ix.byText[characters])
	delete(byType, t)
	if len(byType) == 0 {
		delete(ix.byText, characters)
	} else {
		ix.byText[characters] = byType
	}
	summary := make([]Summary, 0, len(ix.summary))
	for _, s := range ix.summary {
		if s.Characters == characters && s.Type == t {
			continue
		}
		summary = append(summary, s)
	}
	ix.summary = summary
	for _, te := range touched {
		ix.putLocked(te)
	}
	if err := ix.persistLocked(); err != nil {
		ix.restoreLocked(prev)
		return err
	}
	return nil
}

// Get returns the full payload for (characters, type).
func (ix *Indexes) Get(characters string, t entry.Type) (*entry.Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.lookupLocked(characters, t)
}

// ByID returns the full payload for id.
func (ix *Indexes) ByID(id int64) (*entry.Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.byID[id]
	return e, ok
}

// ByText returns every entry sharing the given text, keyed by type.
func (ix *Indexes) ByText(characters string) map[entry.Type]*entry.Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return cloneTypeMap(ix.byText[characters])
}

// IDTaken reports whether an id is already in use.
func (ix *Indexes) IDTaken(id int64) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.byID[id]
	return ok
}

// Summaries returns a copy of the list-view projection, newest first.
func (ix *Indexes) Summaries() []Summary {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Summary, len(ix.summary))
	copy(out, ix.summary)
	return out
}

// Len returns the number of indexed entries.
func (ix *Indexes) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

func (ix *Indexes) lookupLocked(characters string, t entry.Type) (*entry.Entry, bool) {
	byType, ok := ix.byText[characters]
	if !ok {
		return nil, false
	}
	e, ok := byType[t]
	return e, ok
}

// putLocked installs e in byID and byText. A previously unseen entry gets
// a summary record prepended (newest first); an existing one has its
// record patched in place.
func (ix *Indexes) putLocked(e *entry.Entry) {
	if old, ok := ix.lookupLocked(e.Characters, e.Type); ok && old.ID != e.ID {
		delete(ix.byID, old.ID)
	}
	ix.byID[e.ID] = e
	byType := cloneTypeMap(ix.byText[e.Characters])
	if byType == nil {
		byType = make(map[entry.Type]*entry.Entry, 1)
	}
	_, existed := byType[e.Type]
	byType[e.Type] = e
	ix.byText[e.Characters] = byType

	s := summarize(e)
	if existed {
		for i := range ix.summary {
			if ix.summary[i].Characters == e.Characters && ix.summary[i].Type == e.Type {
				ix.summary[i] = s
				return
			}
		}
	}
	ix.summary = append([]Summary{s}, ix.summary...)
}

func summarize(e *entry.Entry) Summary {
	return Summary{
		Characters: e.Characters,
		Type:       e.Type,
		Meanings:   e.Meanings,
		Readings:   e.Readings,
	}
}

func cloneTypeMap(m map[entry.Type]*entry.Entry) map[entry.Type]*entry.Entry {
	if m == nil {
		return nil
	}
	out := make(map[entry.Type]*entry.Entry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type snapshot struct {
	byID    map[int64]*entry.Entry
	byText  map[string]map[entry.Type]*entry.Entry
	summary []Summary
}

// snapshotLocked copies the map headers and summary slice. Entry payloads
// are shared; apply operations always install fresh pointers rather than
// mutating stored entries, so a shallow copy is a complete rollback point.
func (ix *Indexes) snapshotLocked() snapshot {
	byID := make(map[int64]*entry.Entry, len(ix.byID))
	for k, v := range ix.byID {
		byID[k] = v
	}
	byText := make(map[string]map[entry.Type]*entry.Entry, len(ix.byText))
	for k, v := range ix.byText {
		byText[k] = v
	}
	summary := make([]Summary, len(ix.summary))
	copy(summary, ix.summary)
	return snapshot{byID: byID, byText: byText, summary: summary}
}

func (ix *Indexes) restoreLocked(s snapshot) {
	ix.byID = s.byID
	ix.byText = s.byText
	ix.summary = s.summary
}
