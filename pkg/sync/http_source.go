package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/japaniel/kotoba/pkg/entry"
)

// HTTPSource talks to a WaniKani-style REST API: a paged assignments
// collection plus a subject detail endpoint, authenticated with a bearer
// token.
type HTTPSource struct {
	BaseURL string
	Token   string
	// Client defaults to a 30s-timeout client when nil.
	Client *http.Client
}

func (s *HTTPSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (s *HTTPSource) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.Header.Set("User-Agent", "kotoba-sync")

	resp, err := s.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("source returned status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Assignments fetches assignments updated since the given time, following
// pagination until the source reports no next page.
func (s *HTTPSource) Assignments(ctx context.Context, since time.Time) ([]Assignment, error) {
	next := s.BaseURL + "/assignments"
	if !since.IsZero() {
		next += "?updated_after=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	var all []Assignment
	for next != "" {
		var page struct {
			Pages struct {
				NextURL string `json:"next_url"`
			} `json:"pages"`
			Data []struct {
				Data struct {
					SubjectID  int64      `json:"subject_id"`
					Stage      int        `json:"srs_stage"`
					UnlockedAt *time.Time `json:"unlocked_at"`
				} `json:"data"`
			} `json:"data"`
		}
		if err := s.get(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, d := range page.Data {
			a := Assignment{SubjectID: d.Data.SubjectID, Stage: d.Data.Stage}
			if d.Data.UnlockedAt != nil {
				a.UnlockedAt = *d.Data.UnlockedAt
			}
			all = append(all, a)
		}
		next = page.Pages.NextURL
	}
	return all, nil
}

// Subject fetches the full payload for one subject id.
func (s *HTTPSource) Subject(ctx context.Context, id int64) (*Subject, error) {
	var resp struct {
		ID     int64  `json:"id"`
		Object string `json:"object"`
		Data   struct {
			Characters string `json:"characters"`
			Meanings   []struct {
				Meaning string `json:"meaning"`
			} `json:"meanings"`
			Readings []struct {
				Reading string `json:"reading"`
			} `json:"readings"`
			ComponentSubjectIDs []int64  `json:"component_subject_ids"`
			PartsOfSpeech       []string `json:"parts_of_speech"`
			ContextSentences    []struct {
				Ja string `json:"ja"`
				En string `json:"en"`
			} `json:"context_sentences"`
		} `json:"data"`
	}
	if err := s.get(ctx, fmt.Sprintf("%s/subjects/%d", s.BaseURL, id), &resp); err != nil {
		return nil, err
	}

	subj := &Subject{
		ID:           resp.ID,
		Characters:   resp.Data.Characters,
		Kind:         resp.Object,
		ComponentIDs: resp.Data.ComponentSubjectIDs,
		WordClasses:  resp.Data.PartsOfSpeech,
	}
	for _, m := range resp.Data.Meanings {
		subj.Meanings = append(subj.Meanings, m.Meaning)
	}
	for _, r := range resp.Data.Readings {
		subj.Readings = append(subj.Readings, r.Reading)
	}
	for _, cs := range resp.Data.ContextSentences {
		subj.Sentences = append(subj.Sentences, entry.Sentence{Japanese: cs.Ja, English: cs.En})
	}
	return subj, nil
}
