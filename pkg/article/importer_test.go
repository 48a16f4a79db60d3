package article

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/japaniel/kotoba/pkg/db"
	"github.com/japaniel/kotoba/pkg/entry"
	"github.com/japaniel/kotoba/pkg/index"
	"github.com/japaniel/kotoba/pkg/lexicon"
)

const testArticle = `<!DOCTYPE html>
<html><head><title>犬の話</title></head><body>
<article>
<p>昨日、公園で大きな犬を見ました。犬は元気に走っていました。</p>
<p>子供たちは犬と一緒に遊びました。犬は本当に楽しそうでした。</p>
<p>夕方になって、犬は飼い主と一緒に家に帰りました。</p>
</article>
</body></html>`

func setupImporter(t *testing.T) (*Importer, *lexicon.Lexicon) {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	if err := db.InitDB(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	lx := lexicon.New(conn, index.New(""), nil, lexicon.Options{})

	a, err := NewAnalyzer()
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}
	return &Importer{Lexicon: lx, Analyzer: a}, lx
}

func TestFromHTMLReportsUnknownWords(t *testing.T) {
	im, lx := setupImporter(t)
	if _, err := lx.AddEntry("公園", entry.VocabularyAttrs{Meanings: []string{"park"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := im.FromHTML([]byte(testArticle), "https://example.com/inu")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Sentences == 0 {
		t.Fatal("no sentences extracted")
	}

	byWord := make(map[string]Candidate, len(report.Candidates))
	for _, c := range report.Candidates {
		byWord[c.Characters] = c
	}
	dog, ok := byWord["犬"]
	if !ok {
		t.Fatalf("犬 missing from candidates: %v", report.Candidates)
	}
	if dog.Count < 2 {
		t.Errorf("犬 count = %d, want repeated occurrences folded", dog.Count)
	}
	if dog.Reading != "いぬ" {
		t.Errorf("犬 reading = %q, want いぬ", dog.Reading)
	}
	if _, ok := byWord["公園"]; ok {
		t.Error("known word reported as candidate")
	}
	// Particles never surface as candidates.
	for _, bad := range []string{"の", "は", "と", "で"} {
		if _, ok := byWord[bad]; ok {
			t.Errorf("particle %q reported as candidate", bad)
		}
	}
	if len(report.Created) != 0 {
		t.Errorf("created = %v without CreatePlaceholders", report.Created)
	}
}

func TestFromHTMLCreatesPlaceholders(t *testing.T) {
	im, lx := setupImporter(t)
	im.CreatePlaceholders = true

	report, err := im.FromHTML([]byte(testArticle), "https://example.com/inu")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(report.Created) == 0 {
		t.Fatal("no placeholders created")
	}
	var found bool
	for _, c := range report.Created {
		if c == "犬" {
			found = true
		}
	}
	if !found {
		t.Fatalf("犬 not among created entries: %v", report.Created)
	}
	if _, ok := lx.Indexes().Get("犬", entry.Vocabulary); !ok {
		t.Error("placeholder not stored")
	}

	// Re-importing the same article finds nothing new.
	again, err := im.FromHTML([]byte(testArticle), "https://example.com/inu")
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if len(again.Candidates) != 0 {
		t.Errorf("second import candidates = %v, want none", again.Candidates)
	}
}

func TestFromHTMLBadURL(t *testing.T) {
	im, _ := setupImporter(t)
	if _, err := im.FromHTML([]byte(testArticle), "://not-a-url"); err == nil {
		t.Fatal("expected error for unparseable url")
	}
}

func TestReportJSONShape(t *testing.T) {
	im, _ := setupImporter(t)
	report, err := im.FromHTML([]byte(testArticle), "https://example.com/inu")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Title == "" {
		t.Error("title not extracted")
	}
	if !strings.Contains(report.URL, "example.com") {
		t.Errorf("url = %q", report.URL)
	}
}
