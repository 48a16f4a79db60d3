package entry

// Attrs is the tagged per-type attribute set supplied to the mutation
// protocol. Each entry type carries only the fields valid for it, so a
// request can never smuggle, say, sentences onto a radical.
type Attrs interface {
	EntryType() Type
}

// RadicalAttrs are the attributes a radical may carry.
type RadicalAttrs struct {
	Meanings []string
	Notes    []string
	Sources  []string
}

func (RadicalAttrs) EntryType() Type { return Radical }

// KanjiAttrs are the attributes a kanji may carry. RadicalComposition
// lists the radicals the kanji is made of; KnownVocabulary optionally
// pre-declares vocabulary that uses the kanji.
type KanjiAttrs struct {
	Meanings           []string
	Readings           []string
	Notes              []string
	Sources            []string
	RadicalComposition []string
	KnownVocabulary    []string
}

func (KanjiAttrs) EntryType() Type { return Kanji }

// VocabularyAttrs are the attributes a vocabulary word may carry.
type VocabularyAttrs struct {
	Meanings         []string
	Readings         []string
	Notes            []string
	Sources          []string
	KanjiComposition []string
	WordClasses      []string
	Sentences        []Sentence
	PitchAccents     []PitchAccent
}

func (VocabularyAttrs) EntryType() Type { return Vocabulary }
