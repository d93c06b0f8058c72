// Package tokenizer wraps the kagome morphological analyzer behind a lazily
// initialized, process-shared handle. Building the IPA dictionary is expensive,
// so it happens at most once per Adapter; concurrent first callers wait on the
// same attempt.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/ikawaha/kagome-dict/ipa"
	kagome "github.com/ikawaha/kagome/v2/tokenizer"
)

// Token pairs a dictionary base form with the surface text it came from.
type Token struct {
	BasicForm   string `json:"basic_form"`
	SurfaceForm string `json:"surface_form"`
}

// InitError reports a failed tokenizer initialization. Unlike the transient
// errors returned by segmentation, an InitError means the dictionary could not
// be built; the next call will attempt initialization again.
type InitError struct{ Err error }

func (e *InitError) Error() string { return "tokenizer: initialization failed: " + e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// Adapter provides base-form and surface-form segmentation of Japanese text.
// The zero value is ready to use.
type Adapter struct {
	mu      sync.Mutex
	handle  *kagome.Tokenizer
	pending chan struct{} // non-nil while an initialization attempt runs
	initErr error         // error of the most recent failed attempt
}

// tokenizer returns the shared kagome handle, initializing it on first use.
// Callers that arrive during an in-flight attempt block until it settles and
// share its outcome. A failed attempt does not latch: the next call after the
// failure starts a fresh attempt.
func (a *Adapter) tokenizer() (*kagome.Tokenizer, error) {
	a.mu.Lock()
	for {
		if a.handle != nil {
			h := a.handle
			a.mu.Unlock()
			return h, nil
		}
		if a.pending == nil {
			break
		}
		ch := a.pending
		a.mu.Unlock()
		<-ch
		a.mu.Lock()
		if a.handle == nil && a.pending == nil {
			// The attempt we waited on failed.
			err := a.initErr
			a.mu.Unlock()
			return nil, &InitError{Err: err}
		}
	}
	ch := make(chan struct{})
	a.pending = ch
	a.mu.Unlock()

	h, err := kagome.New(ipa.Dict(), kagome.OmitBosEos())

	a.mu.Lock()
	a.pending = nil
	if err != nil {
		a.initErr = err
		a.mu.Unlock()
		close(ch)
		return nil, &InitError{Err: err}
	}
	a.handle = h
	a.mu.Unlock()
	close(ch)
	return h, nil
}

// BasicForms segments text and returns each token's dictionary base form,
// in token order, one entry per occurrence.
func (a *Adapter) BasicForms(text string) ([]string, error) {
	pairs, err := a.FormPairs(text)
	if err != nil {
		return nil, err
	}
	forms := make([]string, len(pairs))
	for i, p := range pairs {
		forms[i] = p.BasicForm
	}
	return forms, nil
}

// FormPairs segments text and returns base-form/surface-form pairs in token
// order, one entry per occurrence.
func (a *Adapter) FormPairs(text string) ([]Token, error) {
	h, err := a.tokenizer()
	if err != nil {
		return nil, err
	}

	var result []Token
	for _, token := range h.Tokenize(text) {
		if token.Class == kagome.DUMMY {
			continue
		}
		if strings.TrimSpace(token.Surface) == "" {
			continue
		}

		// IPA feature 6 is the base form (lemma); "*" means none recorded,
		// in which case the surface stands in.
		base := token.Surface
		if features := token.Features(); len(features) > 6 && features[6] != "*" {
			base = features[6]
		}
		result = append(result, Token{BasicForm: base, SurfaceForm: token.Surface})
	}
	return result, nil
}
