// Package article turns a web page into vocabulary candidates: it
// extracts the readable text, tokenizes it, and reports the content words
// not yet known to the tracker, optionally creating placeholder entries
// for them.
package article

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/japaniel/kotoba/pkg/entry"
	"github.com/japaniel/kotoba/pkg/lexicon"
	"github.com/japaniel/kotoba/pkg/pitch"
)

// maxBodySize caps fetched HTML to keep untrusted URLs from exhausting memory.
const maxBodySize = 10 * 1024 * 1024

// Candidate is one unknown content word found in an article.
type Candidate struct {
	Characters string `json:"jp"`
	Reading    string `json:"reading,omitempty"`
	Count      int    `json:"count"`
}

// Report summarizes one article import.
type Report struct {
	Title      string      `json:"title"`
	URL        string      `json:"url"`
	Sentences  int         `json:"sentence_count"`
	Candidates []Candidate `json:"candidates"`
	Created    []string    `json:"created,omitempty"`
}

// Importer runs the fetch → extract → tokenize → report pipeline.
type Importer struct {
	Lexicon  *lexicon.Lexicon
	Analyzer *Analyzer
	// Client defaults to a 30s-timeout client when nil.
	Client *http.Client
	// CreatePlaceholders adds a minimal vocabulary entry for every
	// candidate instead of only reporting them.
	CreatePlaceholders bool
	Logger             *log.Logger
}

// FromURL fetches rawURL and imports its readable content.
func (im *Importer) FromURL(ctx context.Context, rawURL string) (*Report, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "ja,en;q=0.8")

	client := im.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", rawURL, maxBodySize)
	}
	return im.FromHTML(body, rawURL)
}

// FromHTML imports already-fetched HTML content.
func (im *Importer) FromHTML(content []byte, rawURL string) (*Report, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	art, err := readability.FromReader(bytes.NewReader(SanitizeRuby(content)), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("extract article: %w", err)
	}

	analyzer := im.Analyzer
	if analyzer == nil {
		if analyzer, err = NewAnalyzer(); err != nil {
			return nil, err
		}
	}

	report := &Report{Title: art.Title, URL: rawURL}
	counts := make(map[string]int)
	readings := make(map[string]string)
	var order []string

	for _, sentence := range SplitSentences(art.TextContent) {
		report.Sentences++
		for _, tok := range analyzer.Analyze(sentence) {
			if !contentWord(tok) {
				continue
			}
			word := tok.Surface
			if tok.BaseForm != "" && tok.BaseForm != "*" {
				word = tok.BaseForm
			}
			if counts[word] == 0 {
				order = append(order, word)
				readings[word] = pitch.ToHiragana(tok.Reading)
			}
			counts[word]++
		}
	}

	for _, word := range order {
		if im.known(word) {
			continue
		}
		report.Candidates = append(report.Candidates, Candidate{
			Characters: word,
			Reading:    readings[word],
			Count:      counts[word],
		})
	}

	if im.CreatePlaceholders {
		for _, c := range report.Candidates {
			attrs := entry.VocabularyAttrs{}
			if c.Reading != "" {
				attrs.Readings = []string{c.Reading}
			}
			if _, err := im.Lexicon.AddEntry(c.Characters, attrs); err != nil {
				im.logf("placeholder for %q not created: %v", c.Characters, err)
				continue
			}
			report.Created = append(report.Created, c.Characters)
		}
	}
	return report, nil
}

// known reports whether the word already has an entry of any type.
func (im *Importer) known(word string) bool {
	return len(im.Lexicon.Indexes().ByText(word)) > 0
}

func (im *Importer) logf(format string, args ...interface{}) {
	if im.Logger != nil {
		im.Logger.Printf(format, args...)
	}
}
