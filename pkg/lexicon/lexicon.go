// Package lexicon is the single orchestrator all entry writes go through.
// It keeps the relational store and the three derived indexes coherent:
// every mutation runs its relational writes in one transaction, resolves
// composition links in both directions, and then applies the matching
// index deltas. Index persistence is not transactional with the store; a
// crash in between is repaired with Rebuild.
package lexicon

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/japaniel/kotoba/pkg/db"
	"github.com/japaniel/kotoba/pkg/entry"
	"github.com/japaniel/kotoba/pkg/index"
	"github.com/japaniel/kotoba/pkg/pitch"
)

// Options configures a Lexicon.
type Options struct {
	// PruneDanglingComposition removes references to a removed entry from
	// other entries' composition lists. Off by default: the historical
	// behavior leaves them dangling and rebuild keeps them, since the
	// referencing entries still own those rows.
	PruneDanglingComposition bool
	// Logger receives soft-failure notices (unresolved composition
	// references and the like). nil means no logging.
	Logger *log.Logger
}

// Lexicon owns the store connection, the index set, and the pitch-accent
// reference, and enforces the entry invariants.
type Lexicon struct {
	conn  *sql.DB
	idx   *index.Indexes
	pitch *pitch.Table
	opts  Options
}

// New builds a Lexicon. The pitch table may be nil; pitch accents are
// then only stored when supplied explicitly.
func New(conn *sql.DB, idx *index.Indexes, table *pitch.Table, opts Options) *Lexicon {
	return &Lexicon{conn: conn, idx: idx, pitch: table, opts: opts}
}

// Indexes exposes the index set for read paths and the sync adapter's
// dedupe check.
func (lx *Lexicon) Indexes() *index.Indexes { return lx.idx }

// AddEntry creates a locally authored entry. The id is derived from the
// characters and type, so re-running the same add is reproducible (and
// rejected as a duplicate, never silently overwritten).
func (lx *Lexicon) AddEntry(characters string, attrs entry.Attrs) (*entry.Entry, error) {
	return lx.add(characters, attrs, 0, time.Time{}, false)
}

// AddSourced creates an entry pulled from the external source, keeping
// the source's positive id and original unlock time.
func (lx *Lexicon) AddSourced(characters string, attrs entry.Attrs, id int64, unlockedAt time.Time) (*entry.Entry, error) {
	if id <= 0 {
		return nil, fmt.Errorf("sourced entry id must be positive, got %d", id)
	}
	return lx.add(characters, attrs, id, unlockedAt, true)
}

func (lx *Lexicon) add(characters string, attrs entry.Attrs, id int64, unlockedAt time.Time, sourced bool) (*entry.Entry, error) {
	characters = strings.TrimSpace(characters)
	if characters == "" {
		return nil, fmt.Errorf("characters must be non-empty")
	}
	t := attrs.EntryType()
	if !t.Valid() {
		return nil, entry.ErrInvalidType
	}
	if _, ok := lx.idx.Get(characters, t); ok {
		return nil, fmt.Errorf("%w: %q/%s", entry.ErrDuplicateEntry, characters, t)
	}
	if sourced && lx.idx.IDTaken(id) {
		return nil, fmt.Errorf("%w: id %d", entry.ErrDuplicateEntry, id)
	}

	tx, err := lx.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m := &mutation{lx: lx, tx: tx}
	if !sourced {
		id, err = entry.LocalID(characters, t, m.idTaken)
		if err != nil {
			return nil, err
		}
	}
	m.allocated = append(m.allocated, id)

	base := &entry.Entry{ID: id, Characters: characters, Type: t, FirstUnlocked: unlockedAt}
	if err := db.InsertEntry(tx, base); err != nil {
		// The pre-check races with concurrent adds; the UNIQUE constraint
		// is the authoritative duplicate signal.
		if db.IsConstraintErr(err) {
			return nil, fmt.Errorf("%w: %q/%s", entry.ErrDuplicateEntry, characters, t)
		}
		return nil, err
	}

	if err := m.writeAttrs(characters, t, attrs, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	full, touched, err := lx.loadAffected(characters, t, m)
	if err != nil {
		return nil, err
	}
	if err := lx.idx.ApplyInsert(full, touched...); err != nil {
		return nil, fmt.Errorf("entry stored but index update failed (run rebuild): %w", err)
	}
	return full, nil
}

// ModifyEntry appends the provided attribute values to an existing entry.
// Values already present are skipped; nothing is ever replaced or
// removed. New composition texts get the same bidirectional link
// treatment as AddEntry.
func (lx *Lexicon) ModifyEntry(characters string, attrs entry.Attrs) (*entry.Entry, error) {
	characters = strings.TrimSpace(characters)
	t := attrs.EntryType()
	if !t.Valid() {
		return nil, entry.ErrInvalidType
	}
	cur, err := db.GetEntry(lx.conn, characters, t)
	if err != nil {
		return nil, err
	}
	if ra, ok := attrs.(entry.RadicalAttrs); ok && len(ra.Meanings) > 0 {
		return nil, fmt.Errorf("radicals keep a single primary meaning; cannot append meanings to %q", characters)
	}

	tx, err := lx.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m := &mutation{lx: lx, tx: tx}
	if err := m.writeAttrs(characters, t, attrs, cur); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	full, touched, err := lx.loadAffected(characters, t, m)
	if err != nil {
		return nil, err
	}
	if err := lx.idx.ApplyAppend(full, touched...); err != nil {
		return nil, fmt.Errorf("entry updated but index update failed (run rebuild): %w", err)
	}
	return full, nil
}

// RemoveEntry deletes the entry from the store and all three indexes.
// Composition references to it held by other entries stay in place unless
// PruneDanglingComposition is set.
func (lx *Lexicon) RemoveEntry(characters string, t entry.Type) error {
	if !t.Valid() {
		return entry.ErrInvalidType
	}
	ok, err := db.Exists(lx.conn, characters, t)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q/%s", entry.ErrNotFound, characters, t)
	}

	tx, err := lx.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var touchedKeys []db.Key
	if lx.opts.PruneDanglingComposition {
		touchedKeys, err = db.PruneReferences(tx, characters, t)
		if err != nil {
			return err
		}
	}
	if err := db.DeleteEntry(tx, characters, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	touched, err := lx.loadKeys(touchedKeys)
	if err != nil {
		return err
	}
	if err := lx.idx.ApplyDelete(characters, t, touched...); err != nil {
		return fmt.Errorf("entry removed but index update failed (run rebuild): %w", err)
	}
	return nil
}

// GetEntry reconstructs the full entry from the relational store.
func (lx *Lexicon) GetEntry(characters string, t entry.Type) (*entry.Entry, error) {
	if !t.Valid() {
		return nil, entry.ErrInvalidType
	}
	return db.GetEntry(lx.conn, characters, t)
}

// RandomEntry returns one entry sampled uniformly across all types.
func (lx *Lexicon) RandomEntry() (*entry.Entry, error) {
	k, err := db.RandomKey(lx.conn)
	if err != nil {
		return nil, err
	}
	return db.GetEntry(lx.conn, k.Characters, k.Type)
}

// Summaries returns the list-view projection, newest first.
func (lx *Lexicon) Summaries() []index.Summary {
	return lx.idx.Summaries()
}

// Rebuild resynchronizes the indexes from the relational store.
func (lx *Lexicon) Rebuild() error {
	return lx.idx.Rebuild(lx.conn)
}

// loadAffected reads back the mutated entry and every linked entry whose
// composition lists changed, from the committed store state.
func (lx *Lexicon) loadAffected(characters string, t entry.Type, m *mutation) (*entry.Entry, []*entry.Entry, error) {
	full, err := db.GetEntry(lx.conn, characters, t)
	if err != nil {
		return nil, nil, err
	}
	touched, err := lx.loadKeys(m.touchedKeys(characters, t))
	if err != nil {
		return nil, nil, err
	}
	return full, touched, nil
}

func (lx *Lexicon) loadKeys(keys []db.Key) ([]*entry.Entry, error) {
	var out []*entry.Entry
	for _, k := range keys {
		e, err := db.GetEntry(lx.conn, k.Characters, k.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (lx *Lexicon) logf(format string, args ...interface{}) {
	if lx.opts.Logger != nil {
		lx.opts.Logger.Printf(format, args...)
	}
}
