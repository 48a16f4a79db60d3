package db

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/japaniel/kotoba/pkg/entry"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	conn.SetMaxOpenConns(1)
	if err := InitDB(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestInitDBCreatesSchema(t *testing.T) {
	conn := setupTestDB(t)
	for _, table := range []string{
		"entries", "meanings", "readings", "notes", "sources",
		"word_classes", "sentences", "pitch_accents",
		"radical_composition", "vocab_composition",
	} {
		var name string
		err := conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestInsertAndGetEntry(t *testing.T) {
	conn := setupTestDB(t)

	e := &entry.Entry{ID: -100, Characters: "犬", Type: entry.Vocabulary}
	if err := InsertEntry(conn, e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := AppendStrings(conn, "犬", entry.Vocabulary, AttrMeanings, []string{"dog"}); err != nil {
		t.Fatalf("append meanings: %v", err)
	}
	if err := AppendStrings(conn, "犬", entry.Vocabulary, AttrReadings, []string{"いぬ"}); err != nil {
		t.Fatalf("append readings: %v", err)
	}
	if err := AppendSentences(conn, "犬", entry.Vocabulary, []entry.Sentence{
		{Japanese: "犬が走る。", English: "The dog runs.", Vocab: []string{"走る"}},
	}); err != nil {
		t.Fatalf("append sentences: %v", err)
	}
	if err := AppendPitchAccents(conn, "犬", entry.Vocabulary, []entry.PitchAccent{
		{Reading: "いぬ", Pattern: "2"},
	}); err != nil {
		t.Fatalf("append pitch: %v", err)
	}

	got, err := GetEntry(conn, "犬", entry.Vocabulary)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != -100 {
		t.Errorf("id = %d, want -100", got.ID)
	}
	if len(got.Meanings) != 1 || got.Meanings[0] != "dog" {
		t.Errorf("meanings = %v", got.Meanings)
	}
	if len(got.Readings) != 1 || got.Readings[0] != "いぬ" {
		t.Errorf("readings = %v", got.Readings)
	}
	if len(got.Sentences) != 1 || got.Sentences[0].Japanese != "犬が走る。" {
		t.Errorf("sentences = %v", got.Sentences)
	}
	if len(got.Sentences[0].Vocab) != 1 || got.Sentences[0].Vocab[0] != "走る" {
		t.Errorf("sentence vocab = %v", got.Sentences[0].Vocab)
	}
	if len(got.PitchAccents) != 1 || got.PitchAccents[0].Pattern != "2" {
		t.Errorf("pitch = %v", got.PitchAccents)
	}
	if got.FirstUnlocked.IsZero() {
		t.Error("first_unlocked default not applied")
	}
}

func TestGetEntryNotFound(t *testing.T) {
	conn := setupTestDB(t)
	_, err := GetEntry(conn, "無", entry.Kanji)
	if !errors.Is(err, entry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertDuplicateViolatesConstraint(t *testing.T) {
	conn := setupTestDB(t)
	if err := InsertEntry(conn, &entry.Entry{ID: 1, Characters: "口", Type: entry.Kanji}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := InsertEntry(conn, &entry.Entry{ID: 2, Characters: "口", Type: entry.Kanji})
	if err == nil {
		t.Fatal("expected constraint violation")
	}
	if !IsConstraintErr(err) {
		t.Fatalf("IsConstraintErr(%v) = false", err)
	}
}

func TestSameTextDifferentTypesCoexist(t *testing.T) {
	conn := setupTestDB(t)
	if err := InsertEntry(conn, &entry.Entry{ID: 1, Characters: "口", Type: entry.Radical}); err != nil {
		t.Fatalf("insert radical: %v", err)
	}
	if err := InsertEntry(conn, &entry.Entry{ID: 2, Characters: "口", Type: entry.Kanji}); err != nil {
		t.Fatalf("insert kanji with same text: %v", err)
	}
	if err := InsertEntry(conn, &entry.Entry{ID: 1, Characters: "人", Type: entry.Kanji}); err == nil {
		t.Fatal("duplicate id across types must be rejected")
	}
}

func TestAppendContinuesPositions(t *testing.T) {
	conn := setupTestDB(t)
	if err := InsertEntry(conn, &entry.Entry{ID: 1, Characters: "山", Type: entry.Kanji}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := AppendStrings(conn, "山", entry.Kanji, AttrMeanings, []string{"mountain"}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := AppendStrings(conn, "山", entry.Kanji, AttrMeanings, []string{"hill", "peak"}); err != nil {
		t.Fatalf("second append: %v", err)
	}
	got, err := GetEntry(conn, "山", entry.Kanji)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []string{"mountain", "hill", "peak"}
	if len(got.Meanings) != len(want) {
		t.Fatalf("meanings = %v, want %v", got.Meanings, want)
	}
	for i := range want {
		if got.Meanings[i] != want[i] {
			t.Fatalf("meanings = %v, want %v", got.Meanings, want)
		}
	}
}

func TestCompositionEdgesBothDirections(t *testing.T) {
	conn := setupTestDB(t)
	if err := InsertEntry(conn, &entry.Entry{ID: 1, Characters: "口", Type: entry.Radical}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := InsertEntry(conn, &entry.Entry{ID: 2, Characters: "口", Type: entry.Kanji}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := AddRadicalEdge(conn, "口", "口"); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	// Duplicate edge must be a no-op.
	if err := AddRadicalEdge(conn, "口", "口"); err != nil {
		t.Fatalf("duplicate edge: %v", err)
	}

	kanji, err := GetEntry(conn, "口", entry.Kanji)
	if err != nil {
		t.Fatalf("get kanji: %v", err)
	}
	if len(kanji.CompositionIn) != 1 || kanji.CompositionIn[0] != "口" {
		t.Errorf("kanji composition = %v", kanji.CompositionIn)
	}
	radical, err := GetEntry(conn, "口", entry.Radical)
	if err != nil {
		t.Fatalf("get radical: %v", err)
	}
	if len(radical.CompositionOf) != 1 || radical.CompositionOf[0] != "口" {
		t.Errorf("radical used-in = %v", radical.CompositionOf)
	}
}

func TestDeleteEntryKeepsReferencesFromOthers(t *testing.T) {
	conn := setupTestDB(t)
	if err := InsertEntry(conn, &entry.Entry{ID: 1, Characters: "人", Type: entry.Kanji}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := InsertEntry(conn, &entry.Entry{ID: 2, Characters: "人口", Type: entry.Vocabulary}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := AddVocabEdge(conn, "人口", "人"); err != nil {
		t.Fatalf("edge: %v", err)
	}
	if err := AppendStrings(conn, "人", entry.Kanji, AttrMeanings, []string{"person"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := DeleteEntry(conn, "人", entry.Kanji); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetEntry(conn, "人", entry.Kanji); !errors.Is(err, entry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Child rows are gone.
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM meanings WHERE characters='人'`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("meanings not cascaded: n=%d err=%v", n, err)
	}
	// The vocabulary still lists the deleted kanji: references held by
	// other entries are not retracted.
	vocab, err := GetEntry(conn, "人口", entry.Vocabulary)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if len(vocab.CompositionIn) != 1 || vocab.CompositionIn[0] != "人" {
		t.Errorf("vocab composition = %v, want dangling 人", vocab.CompositionIn)
	}
}

func TestDeleteEntryNotFound(t *testing.T) {
	conn := setupTestDB(t)
	if err := DeleteEntry(conn, "無", entry.Radical); !errors.Is(err, entry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneReferences(t *testing.T) {
	conn := setupTestDB(t)
	if err := InsertEntry(conn, &entry.Entry{ID: 1, Characters: "人", Type: entry.Kanji}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := InsertEntry(conn, &entry.Entry{ID: 2, Characters: "人口", Type: entry.Vocabulary}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := AddVocabEdge(conn, "人口", "人"); err != nil {
		t.Fatalf("edge: %v", err)
	}

	touched, err := PruneReferences(conn, "人", entry.Kanji)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(touched) != 1 || touched[0].Characters != "人口" || touched[0].Type != entry.Vocabulary {
		t.Fatalf("touched = %v", touched)
	}
	vocab, err := GetEntry(conn, "人口", entry.Vocabulary)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if len(vocab.CompositionIn) != 0 {
		t.Errorf("vocab composition = %v, want empty after prune", vocab.CompositionIn)
	}
}

func TestAllKeysNewestFirst(t *testing.T) {
	conn := setupTestDB(t)
	for i, chars := range []string{"一", "二", "三"} {
		e := &entry.Entry{ID: int64(i + 1), Characters: chars, Type: entry.Kanji}
		if err := InsertEntry(conn, e); err != nil {
			t.Fatalf("insert %s: %v", chars, err)
		}
	}
	keys, err := AllKeys(conn)
	if err != nil {
		t.Fatalf("all keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}
	// Rows inserted in the same second tie on first_unlocked; rowid breaks
	// the tie so the latest insert comes first.
	if keys[0].Characters != "三" {
		t.Errorf("newest key = %q, want 三", keys[0].Characters)
	}
}

func TestRandomKey(t *testing.T) {
	conn := setupTestDB(t)
	if _, err := RandomKey(conn); !errors.Is(err, entry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
	if err := InsertEntry(conn, &entry.Entry{ID: 1, Characters: "水", Type: entry.Kanji}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	k, err := RandomKey(conn)
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	if k.Characters != "水" || k.Type != entry.Kanji {
		t.Fatalf("random key = %v", k)
	}
}
