// Package wordstore persists the layered word-annotation cache: user
// overrides, known words, unknown words pending recheck, and words confirmed
// absent from the deck. Collections are stored as JSON strings in a flat
// key/value backend so the same layout works across backends.
package wordstore

import "context"

// Storage is the minimal key/value surface the cache persists through.
// Implementations must tolerate keys that were never written (simply omit
// them from the Get result).
type Storage interface {
	Get(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
}

// Noop reads nothing and discards writes. It stands in when no persistent
// backend is available so the rest of the pipeline runs without special cases.
type Noop struct{}

func (Noop) Get(ctx context.Context, keys []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (Noop) Set(ctx context.Context, values map[string]string) error { return nil }
