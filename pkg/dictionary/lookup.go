package dictionary

import (
	"sort"
	"strings"
)

// Dictionary indexes jmdict entries by kanji and kana writing for lookup by
// surface form or lemma.
type Dictionary struct {
	index map[string][]JMdictEntry
}

// New builds the in-memory index over entries.
func New(entries []JMdictEntry) *Dictionary {
	idx := make(map[string][]JMdictEntry)
	for _, e := range entries {
		for _, k := range e.Kanji {
			idx[k.Text] = append(idx[k.Text], e)
		}
		for _, k := range e.Kana {
			idx[k.Text] = append(idx[k.Text], e)
		}
	}
	return &Dictionary{index: idx}
}

// Lookup returns the entries matching word or lemma, deduplicated by entry id
// and sorted by id for deterministic output.
func (d *Dictionary) Lookup(word, lemma string) []JMdictEntry {
	candidates := make(map[string]JMdictEntry)
	for _, term := range []string{word, lemma} {
		if term == "" {
			continue
		}
		for _, e := range d.index[term] {
			candidates[e.Id] = e
		}
	}

	results := make([]JMdictEntry, 0, len(candidates))
	for _, e := range candidates {
		results = append(results, e)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Id < results[j].Id })
	return results
}

// DefinitionText renders the glosses of the best matches for word as a
// human-readable definition, one entry per line with glosses joined by "; ".
// Empty when the word is not in the dictionary.
func (d *Dictionary) DefinitionText(word string) string {
	entries := d.Lookup(word, word)
	if len(entries) == 0 {
		return ""
	}

	var lines []string
	for _, e := range entries {
		var glosses []string
		for _, s := range e.Sense {
			for _, g := range s.Gloss {
				glosses = append(glosses, g.Text)
			}
		}
		if len(glosses) > 0 {
			lines = append(lines, strings.Join(glosses, "; "))
		}
	}
	return strings.Join(lines, "\n")
}

// ToHiragana converts katakana runes to hiragana, leaving everything else
// untouched.
func ToHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 0x30A1 && r <= 0x30F6 {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}
