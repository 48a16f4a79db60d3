// Package pitch loads the static pitch-accent reference table and answers
// (text, reading) lookups for vocabulary entries. The table is immutable:
// it is parsed once from the tab-separated source file (optionally cached
// as JSON) and only read afterwards.
package pitch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/japaniel/kotoba/pkg/entry"
)

// Row is one reference record: a written form, one reading of it, and the
// pitch pattern for that reading.
type Row struct {
	Text    string `json:"text"`
	Reading string `json:"reading"`
	Pattern string `json:"pattern"`
}

type key struct {
	text    string
	reading string
}

// Table is the in-memory lookup built from the reference rows.
type Table struct {
	rows   []Row
	exact  map[key]string
	byText map[string][]Row
}

// New builds a Table from rows. Readings are normalized to hiragana for
// matching; duplicates keep the first pattern seen.
func New(rows []Row) *Table {
	t := &Table{
		rows:   rows,
		exact:  make(map[key]string, len(rows)),
		byText: make(map[string][]Row, len(rows)),
	}
	for _, r := range rows {
		k := key{text: r.Text, reading: ToHiragana(r.Reading)}
		if _, ok := t.exact[k]; !ok {
			t.exact[k] = r.Pattern
		}
		t.byText[r.Text] = append(t.byText[r.Text], r)
	}
	return t
}

// LoadTSV parses the tab-separated reference file: text, reading, pattern,
// one record per line. Short or commented lines are skipped.
func LoadTSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []Row
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("pitch reference %s:%d: expected 3 tab-separated fields, got %d", path, line, len(fields))
		}
		rows = append(rows, Row{
			Text:    strings.TrimSpace(fields[0]),
			Reading: strings.TrimSpace(fields[1]),
			Pattern: strings.TrimSpace(fields[2]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return New(rows), nil
}

// WriteCache stores the parsed rows as JSON so later starts skip the TSV
// parse.
func (t *Table) WriteCache(path string) error {
	data, err := json.Marshal(t.rows)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadCache reads a JSON cache produced by WriteCache.
func LoadCache(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode pitch cache %s: %w", path, err)
	}
	return New(rows), nil
}

// Load prefers the JSON cache when present, else parses the TSV and writes
// the cache for next time.
func Load(tsvPath, cachePath string) (*Table, error) {
	if cachePath != "" {
		if t, err := LoadCache(cachePath); err == nil {
			return t, nil
		}
	}
	t, err := LoadTSV(tsvPath)
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		if err := t.WriteCache(cachePath); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Lookup returns the pitch pattern for (text, reading). It tries the
// exact pair first with the reading normalized to hiragana, then falls
// back to any record for the text alone.
func (t *Table) Lookup(text, reading string) (string, bool) {
	if t == nil {
		return "", false
	}
	if p, ok := t.exact[key{text: text, reading: ToHiragana(reading)}]; ok {
		return p, true
	}
	if rows := t.byText[text]; len(rows) > 0 {
		return rows[0].Pattern, true
	}
	return "", false
}

// Accents resolves pitch accents for a vocabulary word across its known
// readings, skipping readings with no reference record.
func (t *Table) Accents(text string, readings []string) []entry.PitchAccent {
	if t == nil {
		return nil
	}
	var out []entry.PitchAccent
	seen := make(map[string]bool, len(readings))
	for _, r := range readings {
		norm := ToHiragana(r)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		if p, ok := t.Lookup(text, r); ok {
			out = append(out, entry.PitchAccent{Reading: r, Pattern: p})
		}
	}
	return out
}

// Len returns the number of reference rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// ToHiragana converts katakana runes to hiragana, leaving everything else
// untouched. Readings vary between scripts across sources, so matching is
// done in hiragana.
func ToHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 0x30A1 && r <= 0x30F6 {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}
