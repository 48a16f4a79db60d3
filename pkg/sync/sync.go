// Package sync pulls newly learned items from the external
// spaced-repetition source and folds them into the local store through
// the mutation protocol. A persisted watermark keeps repeated syncs
// incremental, and per-item pacing respects the upstream rate limit.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/japaniel/kotoba/pkg/entry"
	"github.com/japaniel/kotoba/pkg/lexicon"
)

// Assignment is the source's lightweight record of one studied item.
type Assignment struct {
	SubjectID  int64
	Stage      int
	UnlockedAt time.Time
}

// Subject is the source's full payload for one item.
type Subject struct {
	ID           int64
	Characters   string
	Kind         string // "radical", "kanji" or "vocabulary"
	Meanings     []string
	Readings     []string
	ComponentIDs []int64
	WordClasses  []string
	Sentences    []entry.Sentence
}

// Source is the external spaced-repetition service, reduced to the two
// calls a sync needs. Implementations must honor ctx cancellation.
type Source interface {
	Assignments(ctx context.Context, since time.Time) ([]Assignment, error)
	Subject(ctx context.Context, id int64) (*Subject, error)
}

// Result summarizes one sync pass.
type Result struct {
	Checked   int       `json:"checked_count"`
	Added     int       `json:"added_count"`
	AddedList []string  `json:"added_list"`
	Watermark time.Time `json:"last_updated_timestamp"`
}

// Syncer runs incremental syncs against a Source.
type Syncer struct {
	Source  Source
	Lexicon *lexicon.Lexicon

	// MinStage is the proficiency stage an assignment must have reached to
	// be considered learned; items below it are skipped.
	MinStage int
	// Delay is the pause between detail fetches. The source is
	// rate-limited, so a sync of N items takes roughly N*Delay.
	Delay time.Duration
	// WatermarkPath is the append-only log of completed sync timestamps.
	WatermarkPath string

	Logger     *log.Logger
	OnProgress func(done, total int)
}

// Run performs one sync pass. It fetches assignments changed since the
// last watermark, skips unlearned and already-known items, and adds the
// rest through the mutation protocol. Entries added before a mid-sync
// failure stay persisted; the watermark then only covers the items
// already handled, added or skipped, so a retry resumes from there.
func (sy *Syncer) Run(ctx context.Context) (*Result, error) {
	since := sy.lastWatermark()

	assignments, err := sy.Source.Assignments(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("%w: list assignments: %v", entry.ErrUpstreamSync, err)
	}

	res := &Result{Checked: len(assignments)}
	var processed time.Time
	for i, a := range assignments {
		if sy.OnProgress != nil {
			sy.OnProgress(i+1, len(assignments))
		}
		if a.Stage < sy.MinStage {
			sy.logf("skipping subject %d: stage %d below threshold %d", a.SubjectID, a.Stage, sy.MinStage)
			processed = laterOf(processed, a.UnlockedAt)
			continue
		}
		if sy.Lexicon.Indexes().IDTaken(a.SubjectID) {
			processed = laterOf(processed, a.UnlockedAt)
			continue
		}

		if err := sy.pace(ctx); err != nil {
			return sy.finish(res, processed, err)
		}
		subj, err := sy.Source.Subject(ctx, a.SubjectID)
		if err != nil {
			return sy.finish(res, processed, fmt.Errorf("%w: fetch subject %d: %v", entry.ErrUpstreamSync, a.SubjectID, err))
		}

		attrs, err := sy.translate(subj)
		if err != nil {
			return sy.finish(res, processed, err)
		}
		if _, err := sy.Lexicon.AddSourced(subj.Characters, attrs, subj.ID, a.UnlockedAt); err != nil {
			// A concurrent add can win the race; that item is simply known now.
			if errors.Is(err, entry.ErrDuplicateEntry) {
				sy.logf("subject %d (%q) already present, skipping", subj.ID, subj.Characters)
			} else {
				return sy.finish(res, processed, err)
			}
		} else {
			res.Added++
			res.AddedList = append(res.AddedList, subj.Characters)
		}
		processed = laterOf(processed, a.UnlockedAt)
	}

	return sy.finish(res, time.Now(), nil)
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// finish records the watermark covering everything successfully processed
// and returns the pass result.
func (sy *Syncer) finish(res *Result, watermark time.Time, err error) (*Result, error) {
	if !watermark.IsZero() {
		res.Watermark = watermark
		if werr := sy.appendWatermark(watermark); werr != nil {
			sy.logf("failed to persist sync watermark: %v", werr)
			if err == nil {
				err = werr
			}
		}
	}
	return res, err
}

// translate converts a source subject into the internal attribute shape,
// resolving component ids to texts through the id index.
func (sy *Syncer) translate(subj *Subject) (entry.Attrs, error) {
	t, err := entry.ParseType(subj.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %d has kind %q", entry.ErrUpstreamSync, subj.ID, subj.Kind)
	}

	var components []string
	for _, id := range subj.ComponentIDs {
		if e, ok := sy.Lexicon.Indexes().ByID(id); ok {
			components = append(components, e.Characters)
		} else {
			sy.logf("%v: subject %d references unknown component id %d", entry.ErrUnresolvedComposition, subj.ID, id)
		}
	}

	switch t {
	case entry.Radical:
		return entry.RadicalAttrs{Meanings: subj.Meanings}, nil
	case entry.Kanji:
		return entry.KanjiAttrs{
			Meanings:           subj.Meanings,
			Readings:           subj.Readings,
			RadicalComposition: components,
		}, nil
	default:
		return entry.VocabularyAttrs{
			Meanings:         subj.Meanings,
			Readings:         subj.Readings,
			KanjiComposition: components,
			WordClasses:      subj.WordClasses,
			Sentences:        subj.Sentences,
		}, nil
	}
}

func (sy *Syncer) pace(ctx context.Context) error {
	if sy.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(sy.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (sy *Syncer) logf(format string, args ...interface{}) {
	if sy.Logger != nil {
		sy.Logger.Printf(format, args...)
	}
}
