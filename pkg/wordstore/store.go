package wordstore

import (
	"context"
	"encoding/json"
	"log"

	"github.com/ch-dewez/asbplayer/pkg/subs"
)

// Collection keys in the underlying Storage.
const (
	keyUserOverrides  = "userModifiedWordAnnotation"
	keyKnownWords     = "knownWords"
	keyUnknownWords   = "unknownWords"
	keyNotInDeckWords = "notInDeckWords"
)

// Override is a user-set classification that outranks anything derived from
// the deck. AnkiAnnotation remembers what the deck said at the time of the
// override so a later toggle back to it can drop the override entirely.
type Override struct {
	Annotation     subs.AnnotationType `json:"annotation"`
	AnkiAnnotation subs.AnnotationType `json:"ankiAnnotation"`
}

// UnknownWord couples a word with the note id used for interval rechecks.
type UnknownWord struct {
	Word string `json:"word"`
	ID   int64  `json:"id"`
}

// Store layers the four word collections over a Storage backend.
//
// Unavailability is not an error: reads against a missing or failing backend
// return empty results and writes are dropped, so callers never need to
// distinguish "no backend" from "nothing cached". Failures are logged when a
// Logger is set. Read-modify-write sequences are not coordinated; concurrent
// passes can lose appends, which the classification pipeline tolerates because
// the deck remains the source of truth on the next pass.
type Store struct {
	Backend Storage
	Logger  *log.Logger
}

// NewStore creates a Store over backend. A nil backend behaves like Noop.
func NewStore(backend Storage) *Store {
	if backend == nil {
		backend = Noop{}
	}
	return &Store{Backend: backend}
}

// UserOverrides returns all user-set overrides keyed by base form.
func (s *Store) UserOverrides(ctx context.Context) map[string]Override {
	overrides := map[string]Override{}
	s.read(ctx, keyUserOverrides, &overrides)
	return overrides
}

// SetUserOverride records an override for word.
func (s *Store) SetUserOverride(ctx context.Context, word string, o Override) {
	overrides := s.UserOverrides(ctx)
	overrides[word] = o
	s.write(ctx, keyUserOverrides, overrides)
}

// RemoveUserOverride deletes the override for word, if any.
func (s *Store) RemoveUserOverride(ctx context.Context, word string) {
	overrides := s.UserOverrides(ctx)
	delete(overrides, word)
	s.write(ctx, keyUserOverrides, overrides)
}

// KnownWords returns the known-word list. Duplicates are possible and
// harmless; the list is only ever membership-tested.
func (s *Store) KnownWords(ctx context.Context) []string {
	var words []string
	s.read(ctx, keyKnownWords, &words)
	return words
}

// AddKnownWords appends words to the known-word list.
func (s *Store) AddKnownWords(ctx context.Context, words []string) {
	if len(words) == 0 {
		return
	}
	existing := s.KnownWords(ctx)
	s.write(ctx, keyKnownWords, append(existing, words...))
}

// UnknownWords returns the unknown-word list with note ids.
func (s *Store) UnknownWords(ctx context.Context) []UnknownWord {
	var words []UnknownWord
	s.read(ctx, keyUnknownWords, &words)
	return words
}

// AddUnknownWords appends entries to the unknown-word list.
func (s *Store) AddUnknownWords(ctx context.Context, words []UnknownWord) {
	if len(words) == 0 {
		return
	}
	existing := s.UnknownWords(ctx)
	s.write(ctx, keyUnknownWords, append(existing, words...))
}

// RemoveUnknownWords deletes exactly the given word/id entries from the
// unknown-word list. Entries not present are ignored.
func (s *Store) RemoveUnknownWords(ctx context.Context, remove []UnknownWord) {
	if len(remove) == 0 {
		return
	}
	existing := s.UnknownWords(ctx)
	removeSet := make(map[UnknownWord]bool, len(remove))
	for _, w := range remove {
		removeSet[w] = true
	}
	kept := existing[:0]
	for _, w := range existing {
		if !removeSet[w] {
			kept = append(kept, w)
		}
	}
	s.write(ctx, keyUnknownWords, kept)
}

// NotInDeckWords returns words confirmed absent from the deck.
func (s *Store) NotInDeckWords(ctx context.Context) []string {
	var words []string
	s.read(ctx, keyNotInDeckWords, &words)
	return words
}

// AddNotInDeckWords appends words to the not-in-deck list.
func (s *Store) AddNotInDeckWords(ctx context.Context, words []string) {
	if len(words) == 0 {
		return
	}
	existing := s.NotInDeckWords(ctx)
	s.write(ctx, keyNotInDeckWords, append(existing, words...))
}

func (s *Store) backend() Storage {
	if s.Backend == nil {
		return Noop{}
	}
	return s.Backend
}

// read unmarshals the JSON stored under key into out. Missing keys, backend
// failures, and corrupt values all leave out untouched.
func (s *Store) read(ctx context.Context, key string, out any) {
	values, err := s.backend().Get(ctx, []string{key})
	if err != nil {
		s.logf("wordstore: read %s: %v", key, err)
		return
	}
	raw, ok := values[key]
	if !ok || raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logf("wordstore: decode %s: %v", key, err)
	}
}

// write marshals v and stores it under key. Failures are logged and dropped.
func (s *Store) write(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logf("wordstore: encode %s: %v", key, err)
		return
	}
	if err := s.backend().Set(ctx, map[string]string{key: string(raw)}); err != nil {
		s.logf("wordstore: write %s: %v", key, err)
	}
}

func (s *Store) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
