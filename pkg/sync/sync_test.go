package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/japaniel/kotoba/pkg/db"
	"github.com/japaniel/kotoba/pkg/entry"
	"github.com/japaniel/kotoba/pkg/index"
	"github.com/japaniel/kotoba/pkg/lexicon"
)

// fakeSource serves canned assignments and subjects, and can be told to
// fail a specific subject fetch.
type fakeSource struct {
	assignments []Assignment
	subjects    map[int64]*Subject
	failSubject int64

	sinceSeen    time.Time
	subjectCalls []int64
}

func (f *fakeSource) Assignments(ctx context.Context, since time.Time) ([]Assignment, error) {
	f.sinceSeen = since
	return f.assignments, nil
}

func (f *fakeSource) Subject(ctx context.Context, id int64) (*Subject, error) {
	f.subjectCalls = append(f.subjectCalls, id)
	if id == f.failSubject {
		return nil, fmt.Errorf("subject %d: 503", id)
	}
	s, ok := f.subjects[id]
	if !ok {
		return nil, fmt.Errorf("subject %d: not found", id)
	}
	return s, nil
}

func setupLexicon(t *testing.T) *lexicon.Lexicon {
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
	return lexicon.New(conn, index.New(""), nil, lexicon.Options{})
}

func unlocked(day int) time.Time {
	return time.Date(2023, 4, day, 12, 0, 0, 0, time.UTC)
}

func TestRunAddsLearnedItems(t *testing.T) {
	lx := setupLexicon(t)
	src := &fakeSource{
		assignments: []Assignment{
			{SubjectID: 1, Stage: 5, UnlockedAt: unlocked(1)},
			{SubjectID: 2, Stage: 2, UnlockedAt: unlocked(2)}, // below threshold
			{SubjectID: 3, Stage: 7, UnlockedAt: unlocked(3)},
		},
		subjects: map[int64]*Subject{
			1: {ID: 1, Characters: "口", Kind: "radical", Meanings: []string{"Mouth"}},
			3: {ID: 3, Characters: "口", Kind: "kanji", Meanings: []string{"mouth"}, Readings: []string{"こう"}, ComponentIDs: []int64{1}},
		},
	}
	sy := &Syncer{Source: src, Lexicon: lx, MinStage: 5}

	res, err := sy.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Checked != 3 || res.Added != 2 {
		t.Errorf("checked=%d added=%d, want 3/2", res.Checked, res.Added)
	}
	if len(res.AddedList) != 2 || res.AddedList[0] != "口" {
		t.Errorf("added list = %v", res.AddedList)
	}
	// The unlearned item never had its detail fetched.
	for _, id := range src.subjectCalls {
		if id == 2 {
			t.Error("subject 2 fetched despite stage below threshold")
		}
	}

	// The component id resolved to the radical added earlier in the pass.
	kanji, err := lx.GetEntry("口", entry.Kanji)
	if err != nil {
		t.Fatalf("get kanji: %v", err)
	}
	if kanji.ID != 3 {
		t.Errorf("kanji id = %d, want source id 3", kanji.ID)
	}
	if len(kanji.CompositionIn) != 1 || kanji.CompositionIn[0] != "口" {
		t.Errorf("kanji composition = %v", kanji.CompositionIn)
	}
	radical, err := lx.GetEntry("口", entry.Radical)
	if err != nil {
		t.Fatalf("get radical: %v", err)
	}
	if len(radical.Meanings) != 1 || radical.Meanings[0] != "mouth" {
		t.Errorf("radical meanings = %v", radical.Meanings)
	}
	if !radical.FirstUnlocked.Equal(unlocked(1)) {
		t.Errorf("first unlocked = %v, want %v", radical.FirstUnlocked, unlocked(1))
	}
}

func TestRunSkipsKnownIDs(t *testing.T) {
	lx := setupLexicon(t)
	if _, err := lx.AddSourced("水", entry.KanjiAttrs{Meanings: []string{"water"}}, 440, unlocked(1)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	src := &fakeSource{
		assignments: []Assignment{{SubjectID: 440, Stage: 9, UnlockedAt: unlocked(2)}},
	}
	sy := &Syncer{Source: src, Lexicon: lx, MinStage: 5}

	res, err := sy.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Added != 0 {
		t.Errorf("added = %d, want 0", res.Added)
	}
	if len(src.subjectCalls) != 0 {
		t.Errorf("subject fetched for known id: %v", src.subjectCalls)
	}
}

func TestRunWatermarkRoundTrip(t *testing.T) {
	lx := setupLexicon(t)
	path := filepath.Join(t.TempDir(), "sync.log")
	src := &fakeSource{}
	sy := &Syncer{Source: src, Lexicon: lx, MinStage: 5, WatermarkPath: path}

	before := time.Now().Add(-time.Second)
	res, err := sy.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Watermark.Before(before) {
		t.Errorf("watermark %v predates the run", res.Watermark)
	}
	if !src.sinceSeen.IsZero() {
		t.Errorf("first run should fetch everything, since = %v", src.sinceSeen)
	}

	// The next run resumes from the recorded watermark.
	if _, err := sy.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !src.sinceSeen.Equal(res.Watermark) {
		t.Errorf("since = %v, want %v", src.sinceSeen, res.Watermark)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("watermark log empty")
	}
}

func TestRunPartialFailureKeepsProgress(t *testing.T) {
	lx := setupLexicon(t)
	path := filepath.Join(t.TempDir(), "sync.log")
	src := &fakeSource{
		assignments: []Assignment{
			{SubjectID: 1, Stage: 5, UnlockedAt: unlocked(1)},
			{SubjectID: 2, Stage: 5, UnlockedAt: unlocked(2)},
			{SubjectID: 3, Stage: 5, UnlockedAt: unlocked(3)},
		},
		subjects: map[int64]*Subject{
			1: {ID: 1, Characters: "一", Kind: "kanji", Meanings: []string{"one"}},
			3: {ID: 3, Characters: "三", Kind: "kanji", Meanings: []string{"three"}},
		},
		failSubject: 2,
	}
	sy := &Syncer{Source: src, Lexicon: lx, MinStage: 5, WatermarkPath: path}

	res, err := sy.Run(context.Background())
	if !errors.Is(err, entry.ErrUpstreamSync) {
		t.Fatalf("expected ErrUpstreamSync, got %v", err)
	}
	if res == nil || res.Added != 1 {
		t.Fatalf("result = %+v, want one added before the failure", res)
	}

	// The first item survived the failed pass.
	if _, err := lx.GetEntry("一", entry.Kanji); err != nil {
		t.Errorf("first item lost: %v", err)
	}
	// The watermark covers only the processed item, so a retry re-fetches
	// from there rather than from scratch.
	if !res.Watermark.Equal(unlocked(1)) {
		t.Errorf("watermark = %v, want %v", res.Watermark, unlocked(1))
	}
	retry := &Syncer{Source: src, Lexicon: lx, MinStage: 5, WatermarkPath: path}
	if got := retry.lastWatermark(); !got.Equal(unlocked(1)) {
		t.Errorf("persisted watermark = %v, want %v", got, unlocked(1))
	}
}

func TestRunFailureAfterSkipsAdvancesWatermark(t *testing.T) {
	lx := setupLexicon(t)
	path := filepath.Join(t.TempDir(), "sync.log")
	src := &fakeSource{
		assignments: []Assignment{
			{SubjectID: 1, Stage: 1, UnlockedAt: unlocked(1)}, // below threshold
			{SubjectID: 2, Stage: 5, UnlockedAt: unlocked(2)},
		},
		failSubject: 2,
	}
	sy := &Syncer{Source: src, Lexicon: lx, MinStage: 5, WatermarkPath: path}

	res, err := sy.Run(context.Background())
	if !errors.Is(err, entry.ErrUpstreamSync) {
		t.Fatalf("expected ErrUpstreamSync, got %v", err)
	}
	// The skipped item was still handled, so the watermark covers it and a
	// retry does not refetch from scratch.
	if !res.Watermark.Equal(unlocked(1)) {
		t.Errorf("watermark = %v, want %v", res.Watermark, unlocked(1))
	}
	if got := sy.lastWatermark(); !got.Equal(unlocked(1)) {
		t.Errorf("persisted watermark = %v, want %v", got, unlocked(1))
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	lx := setupLexicon(t)
	src := &fakeSource{
		assignments: []Assignment{{SubjectID: 1, Stage: 5, UnlockedAt: unlocked(1)}},
		subjects:    map[int64]*Subject{1: {ID: 1, Characters: "一", Kind: "kanji"}},
	}
	sy := &Syncer{Source: src, Lexicon: lx, MinStage: 5, Delay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sy.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(src.subjectCalls) != 0 {
		t.Error("subject fetched after cancellation")
	}
}

func TestRunBadKind(t *testing.T) {
	lx := setupLexicon(t)
	src := &fakeSource{
		assignments: []Assignment{{SubjectID: 1, Stage: 5, UnlockedAt: unlocked(1)}},
		subjects:    map[int64]*Subject{1: {ID: 1, Characters: "一", Kind: "particle"}},
	}
	sy := &Syncer{Source: src, Lexicon: lx, MinStage: 5}

	_, err := sy.Run(context.Background())
	if !errors.Is(err, entry.ErrUpstreamSync) {
		t.Fatalf("expected ErrUpstreamSync on unknown kind, got %v", err)
	}
}

func TestLastWatermarkSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	content := "2023-04-01T12:00:00Z\nnot a timestamp\n2023-04-03T12:00:00Z\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sy := &Syncer{WatermarkPath: path}
	got := sy.lastWatermark()
	if !got.Equal(unlocked(3)) {
		t.Errorf("last watermark = %v, want %v", got, unlocked(3))
	}
}
