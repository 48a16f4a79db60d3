package lexicon

import (
	"database/sql"
	"strings"

	"github.com/japaniel/kotoba/pkg/db"
	"github.com/japaniel/kotoba/pkg/entry"
)

// mutation carries the per-call state of one write: the transaction, the
// linked entries whose composition lists changed, and the ids handed out
// so far (the index only learns about them after commit, so the local id
// probe has to see them too).
type mutation struct {
	lx        *Lexicon
	tx        *sql.Tx
	touched   []db.Key
	touchSet  map[db.Key]bool
	allocated []int64
}

func (m *mutation) idTaken(id int64) bool {
	for _, a := range m.allocated {
		if a == id {
			return true
		}
	}
	return m.lx.idx.IDTaken(id)
}

func (m *mutation) touch(k db.Key) {
	if m.touchSet == nil {
		m.touchSet = make(map[db.Key]bool)
	}
	if m.touchSet[k] {
		return
	}
	m.touchSet[k] = true
	m.touched = append(m.touched, k)
}

// touchedKeys returns the linked keys excluding the mutated entry itself.
func (m *mutation) touchedKeys(characters string, t entry.Type) []db.Key {
	var out []db.Key
	for _, k := range m.touched {
		if k.Characters == characters && k.Type == t {
			continue
		}
		out = append(out, k)
	}
	return out
}

// writeAttrs appends the attribute values of attrs that the entry does
// not already carry, resolving composition links as it goes. cur is the
// pre-mutation entry, nil on a fresh add.
func (m *mutation) writeAttrs(characters string, t entry.Type, attrs entry.Attrs, cur *entry.Entry) error {
	if cur == nil {
		cur = &entry.Entry{}
	}
	switch a := attrs.(type) {
	case entry.RadicalAttrs:
		return m.writeRadical(characters, a, cur)
	case entry.KanjiAttrs:
		return m.writeKanji(characters, a, cur)
	case entry.VocabularyAttrs:
		return m.writeVocabulary(characters, a, cur)
	}
	return entry.ErrInvalidType
}

func (m *mutation) writeRadical(characters string, a entry.RadicalAttrs, cur *entry.Entry) error {
	if err := db.AppendStrings(m.tx, characters, entry.Radical, db.AttrMeanings, diffNew(cur.Meanings, entry.LowerAll(a.Meanings))); err != nil {
		return err
	}
	if err := db.AppendStrings(m.tx, characters, entry.Radical, db.AttrNotes, diffNew(cur.Notes, a.Notes)); err != nil {
		return err
	}
	return db.AppendStrings(m.tx, characters, entry.Radical, db.AttrSources, diffNew(cur.Sources, a.Sources))
}

func (m *mutation) writeKanji(characters string, a entry.KanjiAttrs, cur *entry.Entry) error {
	if err := db.AppendStrings(m.tx, characters, entry.Kanji, db.AttrMeanings, diffNew(cur.Meanings, entry.LowerAll(a.Meanings))); err != nil {
		return err
	}
	if err := db.AppendStrings(m.tx, characters, entry.Kanji, db.AttrReadings, diffNew(cur.Readings, a.Readings)); err != nil {
		return err
	}
	if err := db.AppendStrings(m.tx, characters, entry.Kanji, db.AttrNotes, diffNew(cur.Notes, a.Notes)); err != nil {
		return err
	}
	if err := db.AppendStrings(m.tx, characters, entry.Kanji, db.AttrSources, diffNew(cur.Sources, a.Sources)); err != nil {
		return err
	}

	for _, radical := range diffNew(cur.CompositionIn, a.RadicalComposition) {
		if err := db.AddRadicalEdge(m.tx, characters, radical); err != nil {
			return err
		}
		if _, ok := m.lx.idx.Get(radical, entry.Radical); ok {
			m.touch(db.Key{Characters: radical, Type: entry.Radical})
		} else {
			m.lx.logf("%v: kanji %q lists unknown radical %q; text recorded, link deferred",
				entry.ErrUnresolvedComposition, characters, radical)
		}
	}
	// Pre-declared vocabulary usage: the edge belongs to the vocabulary
	// side, so it shows up in that entry's composition once it exists.
	for _, vocab := range diffNew(cur.CompositionOf, a.KnownVocabulary) {
		if err := db.AddVocabEdge(m.tx, vocab, characters); err != nil {
			return err
		}
		if _, ok := m.lx.idx.Get(vocab, entry.Vocabulary); ok {
			m.touch(db.Key{Characters: vocab, Type: entry.Vocabulary})
		} else {
			m.lx.logf("%v: kanji %q lists unknown vocabulary %q; text recorded, link deferred",
				entry.ErrUnresolvedComposition, characters, vocab)
		}
	}
	return nil
}

func (m *mutation) writeVocabulary(characters string, a entry.VocabularyAttrs, cur *entry.Entry) error {
	if err := db.AppendStrings(m.tx, characters, entry.Vocabulary, db.AttrMeanings, diffNew(cur.Meanings, entry.LowerAll(a.Meanings))); err != nil {
		return err
	}
	newReadings := diffNew(cur.Readings, a.Readings)
	if err := db.AppendStrings(m.tx, characters, entry.Vocabulary, db.AttrReadings, newReadings); err != nil {
		return err
	}
	if err := db.AppendStrings(m.tx, characters, entry.Vocabulary, db.AttrNotes, diffNew(cur.Notes, a.Notes)); err != nil {
		return err
	}
	if err := db.AppendStrings(m.tx, characters, entry.Vocabulary, db.AttrSources, diffNew(cur.Sources, a.Sources)); err != nil {
		return err
	}
	if err := db.AppendStrings(m.tx, characters, entry.Vocabulary, db.AttrWordClasses, diffNew(cur.WordClasses, a.WordClasses)); err != nil {
		return err
	}

	for _, kanji := range diffNew(cur.CompositionIn, a.KanjiComposition) {
		if err := db.AddVocabEdge(m.tx, characters, kanji); err != nil {
			return err
		}
		if _, ok := m.lx.idx.Get(kanji, entry.Kanji); ok {
			m.touch(db.Key{Characters: kanji, Type: entry.Kanji})
		} else {
			m.lx.logf("%v: vocabulary %q lists unknown kanji %q; text recorded, link deferred",
				entry.ErrUnresolvedComposition, characters, kanji)
		}
	}

	newSentences := newSentences(cur.Sentences, a.Sentences)
	if err := db.AppendSentences(m.tx, characters, entry.Vocabulary, newSentences); err != nil {
		return err
	}
	// Vocabulary mentioned in example sentences must never dangle: unknown
	// words get a bare placeholder entry so cross-references resolve.
	for _, s := range newSentences {
		for _, mention := range s.Vocab {
			if err := m.ensurePlaceholder(mention, characters); err != nil {
				return err
			}
		}
	}

	accents := a.PitchAccents
	if len(accents) == 0 && m.lx.pitch != nil {
		accents = m.lx.pitch.Accents(characters, newReadings)
	}
	return db.AppendPitchAccents(m.tx, characters, entry.Vocabulary, newPitch(cur.PitchAccents, accents))
}

// ensurePlaceholder creates a characters-only vocabulary entry for a
// sentence mention that is not known yet.
func (m *mutation) ensurePlaceholder(mention, owner string) error {
	mention = strings.TrimSpace(mention)
	if mention == "" || mention == owner {
		return nil
	}
	k := db.Key{Characters: mention, Type: entry.Vocabulary}
	if m.touchSet[k] {
		return nil
	}
	if _, ok := m.lx.idx.Get(mention, entry.Vocabulary); ok {
		return nil
	}
	if ok, err := db.Exists(m.tx, mention, entry.Vocabulary); err != nil {
		return err
	} else if ok {
		return nil
	}
	id, err := entry.LocalID(mention, entry.Vocabulary, m.idTaken)
	if err != nil {
		return err
	}
	m.allocated = append(m.allocated, id)
	if err := db.InsertEntry(m.tx, &entry.Entry{ID: id, Characters: mention, Type: entry.Vocabulary}); err != nil {
		return err
	}
	m.lx.logf("created placeholder vocabulary %q mentioned by %q", mention, owner)
	m.touch(k)
	return nil
}

// diffNew returns the values of add not already in existing, deduplicated
// and with empty strings dropped, preserving add's order.
func diffNew(existing, add []string) []string {
	if len(add) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(existing)+len(add))
	for _, v := range existing {
		seen[v] = true
	}
	var out []string
	for _, v := range add {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// newSentences filters out sentences already present, keyed by their
// Japanese text.
func newSentences(existing, add []entry.Sentence) []entry.Sentence {
	if len(add) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(existing)+len(add))
	for _, s := range existing {
		seen[s.Japanese] = true
	}
	var out []entry.Sentence
	for _, s := range add {
		if s.Japanese == "" || seen[s.Japanese] {
			continue
		}
		seen[s.Japanese] = true
		out = append(out, s)
	}
	return out
}

// newPitch filters out accents already recorded for the same reading.
func newPitch(existing, add []entry.PitchAccent) []entry.PitchAccent {
	if len(add) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(existing)+len(add))
	for _, a := range existing {
		seen[a.Reading] = true
	}
	var out []entry.PitchAccent
	for _, a := range add {
		if a.Reading == "" || seen[a.Reading] {
			continue
		}
		seen[a.Reading] = true
		out = append(out, a)
	}
	return out
}
