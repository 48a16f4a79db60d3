package entry

import (
	"strings"
	"time"
)

// Type identifies which kind of lexical item an entry is.
type Type string

const (
	Radical    Type = "radical"
	Kanji      Type = "kanji"
	Vocabulary Type = "vocabulary"
)

// Types lists all recognized entry types.
var Types = []Type{Radical, Kanji, Vocabulary}

// ParseType normalizes user-supplied type text ("Kanji", "KANJI", "kanji")
// into a Type, or ErrInvalidType if unrecognized.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Radical:
		return Radical, nil
	case Kanji:
		return Kanji, nil
	case Vocabulary:
		return Vocabulary, nil
	}
	return "", ErrInvalidType
}

// Valid reports whether t is a recognized type.
func (t Type) Valid() bool {
	return t == Radical || t == Kanji || t == Vocabulary
}

// ComposedOf returns the type an entry of type t is composed of, or ""
// for radicals, which have no composition.
func (t Type) ComposedOf() Type {
	switch t {
	case Kanji:
		return Radical
	case Vocabulary:
		return Kanji
	}
	return ""
}

// UsedIn returns the type that uses entries of type t in its composition,
// or "" for vocabulary, which nothing is composed of.
func (t Type) UsedIn() Type {
	switch t {
	case Radical:
		return Kanji
	case Kanji:
		return Vocabulary
	}
	return ""
}

// Sentence is one example sentence attached to a vocabulary entry.
type Sentence struct {
	Japanese   string   `json:"jp"`
	English    string   `json:"en"`
	Simplified string   `json:"simplified,omitempty"`
	Vocab      []string `json:"vocab,omitempty"`
}

// PitchAccent pairs a reading with its pitch pattern from the reference table.
type PitchAccent struct {
	Reading string `json:"reading"`
	Pattern string `json:"pattern"`
}

// Entry is one lexical item: a radical, a kanji, or a vocabulary word.
// (Characters, Type) is unique; ID is unique across all entries, positive
// for externally sourced items and negative for locally created ones.
type Entry struct {
	ID         int64  `json:"id"`
	Characters string `json:"jp"`
	Type       Type   `json:"type"`

	Meanings []string `json:"en"`
	Readings []string `json:"known_readings,omitempty"`
	Notes    []string `json:"notes,omitempty"`
	Sources  []string `json:"sources,omitempty"`

	// CompositionIn lists the texts this entry is made of: radicals for a
	// kanji, kanji for a vocabulary word. A listed text may not yet have
	// an entry of its own; it is kept as plain text until one appears.
	CompositionIn []string `json:"composition,omitempty"`
	// CompositionOf is the inverse: which kanji use this radical, which
	// vocabulary use this kanji.
	CompositionOf []string `json:"used_in,omitempty"`

	WordClasses  []string      `json:"word_classes,omitempty"`
	Sentences    []Sentence    `json:"sentences,omitempty"`
	PitchAccents []PitchAccent `json:"pitch_accents,omitempty"`

	// Study tracking, set by the store on creation and mutated only by the
	// study-result recorder, never by the mutation protocol.
	FirstUnlocked time.Time  `json:"first_unlocked"`
	LastStudied   *time.Time `json:"last_studied,omitempty"`
	Correct       int        `json:"correct"`
	Wrong         int        `json:"wrong"`
	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
}

// LowerAll lowercases every string in vs, returning a new slice.
// Meanings are stored lowercase; everything else keeps its case.
func LowerAll(vs []string) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = strings.ToLower(v)
	}
	return out
}
