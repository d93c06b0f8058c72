package annotate

import (
	"context"
	"strings"
	"sync"

	"github.com/ch-dewez/asbplayer/pkg/subs"
)

// AnnotateSubtitle attaches one annotation per token occurrence to sub,
// resolving offsets against the original text. Each surface form keeps its own
// search cursor so a word repeated within one line gets distinct offsets
// instead of collapsing onto the first match. Base forms without a
// classification default to unknown/notInDeck; Classify's completeness
// guarantee makes that a defensive fallback only.
func (e *Engine) AnnotateSubtitle(ctx context.Context, sub *subs.Subtitle, classifications []Classification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pairs, err := e.Tokenizer.FormPairs(sub.Text)
	if err != nil {
		return err
	}

	byWord := make(map[string]Classification, len(classifications))
	for _, c := range classifications {
		byWord[c.Word] = c
	}

	annotations := make([]subs.Annotation, 0, len(pairs))
	cursors := make(map[string]int)
	for _, pair := range pairs {
		start := strings.Index(sub.Text[cursors[pair.SurfaceForm]:], pair.SurfaceForm)
		if start >= 0 {
			start += cursors[pair.SurfaceForm]
		} else {
			// cursor overshot (tokenizer normalization quirk); retry from the top
			start = strings.Index(sub.Text, pair.SurfaceForm)
			if start < 0 {
				continue
			}
		}
		end := start + len(pair.SurfaceForm)
		cursors[pair.SurfaceForm] = end

		annotationType, ankiAnnotationType := subs.Unknown, subs.NotInDeck
		if c, ok := byWord[pair.BasicForm]; ok {
			annotationType = c.AnnotationType
			ankiAnnotationType = c.AnkiAnnotationType
		}

		annotations = append(annotations, subs.Annotation{
			StartIndex:         start,
			EndIndex:           end,
			AnnotationType:     annotationType,
			Word:               pair.SurfaceForm,
			BasicForm:          pair.BasicForm,
			AnkiAnnotationType: ankiAnnotationType,
		})
	}
	sub.Annotations = annotations
	return nil
}

// AnnotateSubtitles classifies the combined text of all subtitles in one pass
// and then annotates each subtitle, fanning the per-subtitle tokenization out
// over a small worker pool.
func (e *Engine) AnnotateSubtitles(ctx context.Context, subtitles []subs.Subtitle) ([]subs.Subtitle, error) {
	if len(subtitles) == 0 {
		return subtitles, nil
	}

	var combined strings.Builder
	for _, s := range subtitles {
		combined.WriteString(" ")
		combined.WriteString(s.Text)
	}
	classifications, err := e.Classify(ctx, combined.String())
	if err != nil {
		return nil, err
	}

	workers := e.Workers
	if workers <= 0 {
		workers = 4
	}

	pool := NewWorkerPool(workers, workers*2)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool.Start(ctx)

	var (
		mu       sync.Mutex
		firstErr error
	)
	for i := range subtitles {
		sub := &subtitles[i]
		job := func(ctx context.Context) error {
			if err := e.AnnotateSubtitle(ctx, sub, classifications); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancel()
			}
			return nil
		}
		if err := pool.SubmitCtx(ctx, job); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
	}
	pool.Close()

	// Workers stop without draining when ctx is canceled, so queued subtitles
	// may never have run even though every submit succeeded.
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return subtitles, nil
}
