// Package annotate classifies the words of subtitle text against the user's
// Anki deck and attaches per-occurrence annotations back onto subtitles.
package annotate

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/ch-dewez/asbplayer/pkg/anki"
	"github.com/ch-dewez/asbplayer/pkg/subs"
	"github.com/ch-dewez/asbplayer/pkg/tokenizer"
	"github.com/ch-dewez/asbplayer/pkg/wordstore"
)

// Tokenizer abstracts the morphological analyzer so tests can inject a
// deterministic segmentation. *tokenizer.Adapter satisfies it.
type Tokenizer interface {
	BasicForms(text string) ([]string, error)
	FormPairs(text string) ([]tokenizer.Token, error)
}

// Classification records how a single base form is annotated. AnnotationType
// is the current state; AnkiAnnotationType is the state last derived from the
// deck. They differ only for user-overridden words.
type Classification struct {
	Word               string              `json:"word"`
	AnnotationType     subs.AnnotationType `json:"annotationType"`
	AnkiAnnotationType subs.AnnotationType `json:"ankiAnnotationType"`
}

// Engine runs the word classification pipeline: tokenize, walk the layered
// cache, batch the remaining words against the deck, and write results back.
type Engine struct {
	Tokenizer Tokenizer
	Store     *wordstore.Store
	Anki      *anki.Client
	// Logger is used for informational messages. nil means no logging.
	Logger *log.Logger
	// Workers bounds concurrent per-subtitle annotation; <= 0 means 4.
	Workers int

	writeBack sync.WaitGroup
}

// pendingWrites collects the cache mutations a classification pass queues
// before they are applied in one detached write-back.
type pendingWrites struct {
	known         []string
	unknown       []wordstore.UnknownWord
	notInDeck     []string
	removeUnknown []wordstore.UnknownWord
}

func (p *pendingWrites) empty() bool {
	return len(p.known) == 0 && len(p.unknown) == 0 && len(p.notInDeck) == 0 && len(p.removeUnknown) == 0
}

// Classify tokenizes text and returns one Classification per distinct base
// form, except for words whose deck lookup errored (those stay unclassified
// for this pass rather than being miscached as absent). Resolution order: user
// overrides, then the known / unknown / not-in-deck collections, then a
// batched deck lookup for whatever remains.
// Words cached as unknown are re-checked against their note's current review
// interval; an interval greater than 1 promotes the word to known.
//
// Queued cache writes are applied by a detached goroutine after Classify
// returns; callers must not assume they are immediately visible (see Flush).
// The result is a set: consumers index by Word, not position.
func (e *Engine) Classify(ctx context.Context, text string) ([]Classification, error) {
	forms, err := e.Tokenizer.BasicForms(text)
	if err != nil {
		return nil, err
	}

	// set semantics: each distinct base form is processed once
	remaining := make([]string, 0, len(forms))
	seen := make(map[string]bool, len(forms))
	for _, f := range forms {
		if !seen[f] {
			seen[f] = true
			remaining = append(remaining, f)
		}
	}

	var classifications []Classification
	emit := func(word string, annotation, ankiAnnotation subs.AnnotationType) {
		classifications = append(classifications, Classification{
			Word:               word,
			AnnotationType:     annotation,
			AnkiAnnotationType: ankiAnnotation,
		})
	}

	// user overrides outrank everything, including fresh deck state
	overrides := e.Store.UserOverrides(ctx)
	remaining = filterWords(remaining, func(word string) bool {
		o, ok := overrides[word]
		if ok {
			emit(word, o.Annotation, o.AnkiAnnotation)
		}
		return !ok
	})

	knownSet := toSet(e.Store.KnownWords(ctx))
	remaining = filterWords(remaining, func(word string) bool {
		if knownSet[word] {
			emit(word, subs.Known, subs.Known)
		}
		return !knownSet[word]
	})

	// unknown-cached words leave the working set now but are re-emitted after
	// their intervals are re-checked below
	var pendingRecheck []wordstore.UnknownWord
	unknownByWord := make(map[string]wordstore.UnknownWord)
	for _, u := range e.Store.UnknownWords(ctx) {
		if _, dup := unknownByWord[u.Word]; !dup {
			unknownByWord[u.Word] = u
		}
	}
	remaining = filterWords(remaining, func(word string) bool {
		u, ok := unknownByWord[word]
		if ok {
			pendingRecheck = append(pendingRecheck, u)
		}
		return !ok
	})

	notInDeckSet := toSet(e.Store.NotInDeckWords(ctx))
	remaining = filterWords(remaining, func(word string) bool {
		if notInDeckSet[word] {
			emit(word, subs.NotInDeck, subs.NotInDeck)
		}
		return !notInDeckSet[word]
	})

	var writes pendingWrites

	// one batched findNotes call for every word the cache could not resolve
	var cards []wordstore.UnknownWord
	if len(remaining) > 0 {
		actions := make([]anki.Request, len(remaining))
		for i, word := range remaining {
			actions[i] = anki.FindNoteAction(word)
		}
		results, err := e.Anki.Multi(ctx, actions)
		if err != nil {
			return nil, err
		}
		for i, result := range results {
			word := remaining[i]
			if result.Error != nil && *result.Error != "" {
				// An errored lookup is not "zero matches": caching it as
				// not-in-deck would suppress every future lookup of the word.
				// Leave it unclassified for this pass.
				e.logf("annotate: findNotes %q: %s", word, *result.Error)
				continue
			}
			ids := decodeNoteIDs(result.Result)
			if len(ids) == 0 {
				writes.notInDeck = append(writes.notInDeck, word)
				emit(word, subs.NotInDeck, subs.NotInDeck)
				continue
			}
			// first returned id wins; ordering is the gateway's
			cards = append(cards, wordstore.UnknownWord{Word: word, ID: ids[0]})
		}
	}

	intervals, err := e.Anki.GetIntervals(ctx, noteIDs(cards))
	if err != nil {
		return nil, err
	}
	recheckIntervals, err := e.Anki.GetIntervals(ctx, noteIDs(pendingRecheck))
	if err != nil {
		return nil, err
	}
	// Intervals are days when >= 0 and negative seconds when sub-daily, so a
	// single "> 1" comparison covers both: anything reviewed at a spacing
	// beyond one day counts as known. A missing interval counts as unknown.
	intervalAt := func(intervals []int64, i int) int64 {
		if i < len(intervals) {
			return intervals[i]
		}
		return 0
	}

	for i, entry := range pendingRecheck {
		if intervalAt(recheckIntervals, i) > 1 {
			emit(entry.Word, subs.Known, subs.Known)
			writes.known = append(writes.known, entry.Word)
			writes.removeUnknown = append(writes.removeUnknown, entry)
		} else {
			emit(entry.Word, subs.Unknown, subs.Unknown)
		}
	}

	for i, card := range cards {
		if intervalAt(intervals, i) > 1 {
			emit(card.Word, subs.Known, subs.Known)
			writes.known = append(writes.known, card.Word)
		} else {
			emit(card.Word, subs.Unknown, subs.Unknown)
			writes.unknown = append(writes.unknown, card)
		}
	}

	// Detached write-back: the classification result is complete, so cache
	// persistence is not worth the caller's latency. A crash before the write
	// lands only costs a re-derivation on the next pass; the deck stays the
	// source of truth.
	if !writes.empty() {
		e.writeBack.Add(1)
		go func(ctx context.Context, writes pendingWrites) {
			defer e.writeBack.Done()
			e.Store.AddNotInDeckWords(ctx, writes.notInDeck)
			e.Store.AddKnownWords(ctx, writes.known)
			e.Store.AddUnknownWords(ctx, writes.unknown)
			e.Store.RemoveUnknownWords(ctx, writes.removeUnknown)
		}(context.WithoutCancel(ctx), writes)
	}

	return classifications, nil
}

// Flush waits for detached cache write-backs from earlier Classify calls.
// Intended for shutdown and tests.
func (e *Engine) Flush() {
	e.writeBack.Wait()
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

// filterWords keeps the words for which keep returns true, in order.
func filterWords(words []string, keep func(string) bool) []string {
	kept := words[:0]
	for _, w := range words {
		if keep(w) {
			kept = append(kept, w)
		}
	}
	return kept
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// decodeNoteIDs parses a findNotes result, tolerating null and malformed
// payloads (a failed sub-action carries no usable result).
func decodeNoteIDs(raw json.RawMessage) []int64 {
	if len(raw) == 0 {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	return ids
}

func noteIDs(entries []wordstore.UnknownWord) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
