package article

import (
	"regexp"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Token is one analyzed unit of text.
type Token struct {
	Surface    string // the text as written (e.g. "行っ")
	BaseForm   string // the dictionary form (e.g. "行く")
	Reading    string // katakana pronunciation (e.g. "イッ")
	PrimaryPOS string
	SubPOS     string
}

// Analyzer segments Japanese text into tokens.
type Analyzer struct {
	t *tokenizer.Tokenizer
}

// NewAnalyzer creates a tokenizer backed by the IPA dictionary.
func NewAnalyzer() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Analyzer{t: t}, nil
}

// Analyze breaks text into tokens with readings and base forms.
func (a *Analyzer) Analyze(text string) []Token {
	var result []Token
	for _, token := range a.t.Tokenize(text) {
		if token.Class == tokenizer.DUMMY || strings.TrimSpace(token.Surface) == "" {
			continue
		}
		features := token.Features()

		// IPA feature layout: POS, three sub-POS levels, conjugation type
		// and form, base form, reading, pronunciation.
		base := token.Surface
		if len(features) > 6 && features[6] != "*" {
			base = features[6]
		}
		reading := ""
		if len(features) > 7 && features[7] != "*" {
			reading = features[7]
		}
		primary, sub := "", ""
		if len(features) > 0 {
			primary = features[0]
		}
		if len(features) > 1 {
			sub = features[1]
		}
		result = append(result, Token{
			Surface:    token.Surface,
			BaseForm:   base,
			Reading:    reading,
			PrimaryPOS: primary,
			SubPOS:     sub,
		})
	}
	return result
}

// SplitSentences splits text on Japanese sentence delimiters and newlines.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '。' || r == '！' || r == '？' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

var (
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby strips ruby annotations (<rt>, <rp>) from HTML so furigana
// does not duplicate the text it annotates ("漢字" extracting as
// "漢字かんじ").
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	return reRP.ReplaceAll(cleaned, []byte{})
}

var asciiOnly = regexp.MustCompile(`^[a-zA-Z0-9\s[:punct:]]+$`)

// contentWord filters tokens down to vocabulary candidates: no symbols,
// particles, auxiliaries or numerals, and nothing purely ASCII.
func contentWord(t Token) bool {
	switch t.PrimaryPOS {
	case "記号", "補助記号", "助詞", "助動詞":
		return false
	}
	if t.SubPOS == "数" {
		return false
	}
	return !asciiOnly.MatchString(t.Surface)
}
