package annotate

import (
	"context"

	"github.com/ch-dewez/asbplayer/pkg/subs"
	"github.com/ch-dewez/asbplayer/pkg/wordstore"
)

// SetWordAnnotation applies a user's manual annotation toggle. Toggling back
// to the deck-derived state removes the override entirely so the word returns
// to deck-driven classification; any other choice stores an override that
// outranks the deck from then on. All annotations for the same base form in
// the given subtitles are rewritten in place and the slice is returned.
func (e *Engine) SetWordAnnotation(ctx context.Context, current subs.Annotation, next subs.AnnotationType, subtitles []subs.Subtitle) []subs.Subtitle {
	if next == current.AnkiAnnotationType {
		e.Store.RemoveUserOverride(ctx, current.BasicForm)
	} else {
		e.Store.SetUserOverride(ctx, current.BasicForm, wordstore.Override{
			Annotation:     next,
			AnkiAnnotation: current.AnkiAnnotationType,
		})
	}

	for i := range subtitles {
		for j := range subtitles[i].Annotations {
			if subtitles[i].Annotations[j].BasicForm == current.BasicForm {
				subtitles[i].Annotations[j].AnnotationType = next
			}
		}
	}
	return subtitles
}
