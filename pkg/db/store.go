package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/japaniel/kotoba/pkg/entry"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx.
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Key identifies one entry.
type Key struct {
	Characters string
	Type       entry.Type
}

// StringAttr names a repeatable string-valued attribute. The value is the
// child table name; it is a compile-time enum, never derived from request
// input.
type StringAttr string

const (
	AttrMeanings    StringAttr = "meanings"
	AttrReadings    StringAttr = "readings"
	AttrNotes       StringAttr = "notes"
	AttrSources     StringAttr = "sources"
	AttrWordClasses StringAttr = "word_classes"
)

var stringAttrs = map[StringAttr]bool{
	AttrMeanings:    true,
	AttrReadings:    true,
	AttrNotes:       true,
	AttrSources:     true,
	AttrWordClasses: true,
}

// IsConstraintErr returns true when the error indicates a unique/constraint violation.
func IsConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// InsertEntry inserts the base row for e. The study-tracking columns take
// their defaults unless e.FirstUnlocked is set (synced items carry their
// original unlock time).
func InsertEntry(db DBExecutor, e *entry.Entry) error {
	if strings.TrimSpace(e.Characters) == "" {
		return fmt.Errorf("characters must be non-empty")
	}
	if !e.Type.Valid() {
		return entry.ErrInvalidType
	}
	_, err := db.Exec(
		`INSERT INTO entries (characters, type, id, first_unlocked)
		 VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))`,
		e.Characters, string(e.Type), e.ID, nullableTime(e.FirstUnlocked),
	)
	if err != nil {
		return fmt.Errorf("insert entry %q/%s: %w", e.Characters, e.Type, err)
	}
	return nil
}

// AppendStrings appends values to a string attribute, continuing from the
// current highest position so insertion order is preserved.
func AppendStrings(db DBExecutor, characters string, t entry.Type, attr StringAttr, values []string) error {
	if len(values) == 0 {
		return nil
	}
	if !stringAttrs[attr] {
		return fmt.Errorf("unknown string attribute %q", attr)
	}
	next, err := nextPosition(db, string(attr), characters, t)
	if err != nil {
		return err
	}
	for i, v := range values {
		_, err := db.Exec(
			`INSERT INTO `+string(attr)+` (characters, type, position, value) VALUES (?, ?, ?, ?)`,
			characters, string(t), next+i, v,
		)
		if err != nil {
			return fmt.Errorf("append %s for %q/%s: %w", attr, characters, t, err)
		}
	}
	return nil
}

// AppendSentences appends example sentences to a vocabulary entry.
func AppendSentences(db DBExecutor, characters string, t entry.Type, sentences []entry.Sentence) error {
	if len(sentences) == 0 {
		return nil
	}
	next, err := nextPosition(db, "sentences", characters, t)
	if err != nil {
		return err
	}
	for i, s := range sentences {
		vocab, err := json.Marshal(s.Vocab)
		if err != nil {
			return err
		}
		_, err = db.Exec(
			`INSERT INTO sentences (characters, type, position, jp, en, simplified, vocab) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			characters, string(t), next+i, s.Japanese, s.English, s.Simplified, string(vocab),
		)
		if err != nil {
			return fmt.Errorf("append sentence for %q/%s: %w", characters, t, err)
		}
	}
	return nil
}

// AppendPitchAccents appends pitch-accent pairs to a vocabulary entry.
func AppendPitchAccents(db DBExecutor, characters string, t entry.Type, accents []entry.PitchAccent) error {
	if len(accents) == 0 {
		return nil
	}
	next, err := nextPosition(db, "pitch_accents", characters, t)
	if err != nil {
		return err
	}
	for i, a := range accents {
		_, err := db.Exec(
			`INSERT INTO pitch_accents (characters, type, position, reading, pattern) VALUES (?, ?, ?, ?, ?)`,
			characters, string(t), next+i, a.Reading, a.Pattern,
		)
		if err != nil {
			return fmt.Errorf("append pitch accent for %q/%s: %w", characters, t, err)
		}
	}
	return nil
}

// AddRadicalEdge records that kanji is composed of radical. Duplicate
// edges are ignored.
func AddRadicalEdge(db DBExecutor, kanji, radical string) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO radical_composition (kanji, radical) VALUES (?, ?)`, kanji, radical)
	return err
}

// AddVocabEdge records that vocab is composed of kanji. Duplicate edges
// are ignored.
func AddVocabEdge(db DBExecutor, vocab, kanji string) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO vocab_composition (vocab, kanji) VALUES (?, ?)`, vocab, kanji)
	return err
}

// Exists reports whether the (characters, type) entry is stored.
func Exists(db DBExecutor, characters string, t entry.Type) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM entries WHERE characters = ? AND type = ?`, characters, string(t)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IDExists reports whether any entry holds the given id.
func IDExists(db DBExecutor, id int64) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM entries WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetEntry reconstructs the full entry by joining the base row with every
// child and join table, or entry.ErrNotFound.
func GetEntry(db DBExecutor, characters string, t entry.Type) (*entry.Entry, error) {
	e := &entry.Entry{Characters: characters, Type: t}
	var lastStudied sql.NullTime
	err := db.QueryRow(
		`SELECT id, first_unlocked, last_studied, correct, wrong, current_streak, longest_streak
		 FROM entries WHERE characters = ? AND type = ?`,
		characters, string(t),
	).Scan(&e.ID, &e.FirstUnlocked, &lastStudied, &e.Correct, &e.Wrong, &e.CurrentStreak, &e.LongestStreak)
	if err == sql.ErrNoRows {
		return nil, entry.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %q/%s: %w", characters, t, err)
	}
	if lastStudied.Valid {
		ts := lastStudied.Time
		e.LastStudied = &ts
	}

	if e.Meanings, err = stringValues(db, "meanings", characters, t); err != nil {
		return nil, err
	}
	if e.Readings, err = stringValues(db, "readings", characters, t); err != nil {
		return nil, err
	}
	if e.Notes, err = stringValues(db, "notes", characters, t); err != nil {
		return nil, err
	}
	if e.Sources, err = stringValues(db, "sources", characters, t); err != nil {
		return nil, err
	}
	if e.WordClasses, err = stringValues(db, "word_classes", characters, t); err != nil {
		return nil, err
	}
	if e.Sentences, err = sentenceValues(db, characters, t); err != nil {
		return nil, err
	}
	if e.PitchAccents, err = pitchValues(db, characters, t); err != nil {
		return nil, err
	}

	switch t {
	case entry.Radical:
		if e.CompositionOf, err = column(db, `SELECT kanji FROM radical_composition WHERE radical = ? ORDER BY rowid`, characters); err != nil {
			return nil, err
		}
	case entry.Kanji:
		if e.CompositionIn, err = column(db, `SELECT radical FROM radical_composition WHERE kanji = ? ORDER BY rowid`, characters); err != nil {
			return nil, err
		}
		if e.CompositionOf, err = column(db, `SELECT vocab FROM vocab_composition WHERE kanji = ? ORDER BY rowid`, characters); err != nil {
			return nil, err
		}
	case entry.Vocabulary:
		if e.CompositionIn, err = column(db, `SELECT kanji FROM vocab_composition WHERE vocab = ? ORDER BY rowid`, characters); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// DeleteEntry removes the base row, every child row, and the composition
// edges the entry owns (its own composition list). Edges recorded by other
// entries that reference this one are left in place.
func DeleteEntry(db DBExecutor, characters string, t entry.Type) error {
	res, err := db.Exec(`DELETE FROM entries WHERE characters = ? AND type = ?`, characters, string(t))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entry.ErrNotFound
	}
	for _, table := range []string{"meanings", "readings", "notes", "sources", "word_classes", "sentences", "pitch_accents"} {
		if _, err := db.Exec(`DELETE FROM `+table+` WHERE characters = ? AND type = ?`, characters, string(t)); err != nil {
			return err
		}
	}
	switch t {
	case entry.Kanji:
		_, err = db.Exec(`DELETE FROM radical_composition WHERE kanji = ?`, characters)
	case entry.Vocabulary:
		_, err = db.Exec(`DELETE FROM vocab_composition WHERE vocab = ?`, characters)
	}
	return err
}

// PruneReferences removes composition edges recorded by other entries that
// reference the given entry, returning the keys of the entries whose
// composition lists changed.
func PruneReferences(db DBExecutor, characters string, t entry.Type) ([]Key, error) {
	var owners []string
	var err error
	switch t {
	case entry.Radical:
		owners, err = column(db, `SELECT kanji FROM radical_composition WHERE radical = ? ORDER BY rowid`, characters)
		if err != nil {
			return nil, err
		}
		if _, err = db.Exec(`DELETE FROM radical_composition WHERE radical = ?`, characters); err != nil {
			return nil, err
		}
		return ownerKeys(owners, entry.Kanji), nil
	case entry.Kanji:
		owners, err = column(db, `SELECT vocab FROM vocab_composition WHERE kanji = ? ORDER BY rowid`, characters)
		if err != nil {
			return nil, err
		}
		if _, err = db.Exec(`DELETE FROM vocab_composition WHERE kanji = ?`, characters); err != nil {
			return nil, err
		}
		return ownerKeys(owners, entry.Vocabulary), nil
	}
	return nil, nil
}

// AllKeys returns every entry key, newest first.
func AllKeys(db DBExecutor) ([]Key, error) {
	rows, err := db.Query(`SELECT characters, type FROM entries ORDER BY first_unlocked DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []Key
	for rows.Next() {
		var k Key
		var t string
		if err := rows.Scan(&k.Characters, &t); err != nil {
			return nil, err
		}
		k.Type = entry.Type(t)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RandomKey samples one entry uniformly across all types.
func RandomKey(db DBExecutor) (Key, error) {
	var k Key
	var t string
	err := db.QueryRow(`SELECT characters, type FROM entries ORDER BY RANDOM() LIMIT 1`).Scan(&k.Characters, &t)
	if err == sql.ErrNoRows {
		return Key{}, entry.ErrNotFound
	}
	if err != nil {
		return Key{}, err
	}
	k.Type = entry.Type(t)
	return k, nil
}

func ownerKeys(owners []string, t entry.Type) []Key {
	keys := make([]Key, len(owners))
	for i, o := range owners {
		keys[i] = Key{Characters: o, Type: t}
	}
	return keys
}

func nextPosition(db DBExecutor, table, characters string, t entry.Type) (int, error) {
	var next int
	err := db.QueryRow(
		`SELECT COALESCE(MAX(position), -1) + 1 FROM `+table+` WHERE characters = ? AND type = ?`,
		characters, string(t),
	).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func stringValues(db DBExecutor, table, characters string, t entry.Type) ([]string, error) {
	return column(db,
		`SELECT value FROM `+table+` WHERE characters = ? AND type = ? ORDER BY position`,
		characters, string(t))
}

func sentenceValues(db DBExecutor, characters string, t entry.Type) ([]entry.Sentence, error) {
	rows, err := db.Query(
		`SELECT jp, en, simplified, vocab FROM sentences WHERE characters = ? AND type = ? ORDER BY position`,
		characters, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entry.Sentence
	for rows.Next() {
		var s entry.Sentence
		var vocab string
		if err := rows.Scan(&s.Japanese, &s.English, &s.Simplified, &vocab); err != nil {
			return nil, err
		}
		if vocab != "" {
			if err := json.Unmarshal([]byte(vocab), &s.Vocab); err != nil {
				return nil, fmt.Errorf("decode sentence vocab for %q/%s: %w", characters, t, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func pitchValues(db DBExecutor, characters string, t entry.Type) ([]entry.PitchAccent, error) {
	rows, err := db.Query(
		`SELECT reading, pattern FROM pitch_accents WHERE characters = ? AND type = ? ORDER BY position`,
		characters, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entry.PitchAccent
	for rows.Next() {
		var a entry.PitchAccent
		if err := rows.Scan(&a.Reading, &a.Pattern); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func column(db DBExecutor, query string, args ...interface{}) ([]string, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
