package annotate

import (
	"context"
	"errors"
	"testing"

	"github.com/ch-dewez/asbplayer/pkg/subs"
	"github.com/ch-dewez/asbplayer/pkg/wordstore"
)

func TestAnnotateSubtitleOffsets(t *testing.T) {
	engine := &Engine{
		Tokenizer: &fieldTokenizer{lemmas: map[string]string{"running": "run"}},
		Store:     wordstore.NewStore(nil),
	}

	sub := &subs.Subtitle{Text: "running dog running"}
	classifications := []Classification{
		{Word: "run", AnnotationType: subs.Known, AnkiAnnotationType: subs.Known},
		{Word: "dog", AnnotationType: subs.Unknown, AnkiAnnotationType: subs.Unknown},
	}
	if err := engine.AnnotateSubtitle(context.Background(), sub, classifications); err != nil {
		t.Fatalf("AnnotateSubtitle error: %v", err)
	}
	if len(sub.Annotations) != 3 {
		t.Fatalf("got %d annotations, want one per occurrence", len(sub.Annotations))
	}

	// repeated surface forms get distinct, advancing offsets
	first, second := sub.Annotations[0], sub.Annotations[2]
	if first.StartIndex != 0 || second.StartIndex != 12 {
		t.Errorf("repeated word offsets = %d and %d, want 0 and 12", first.StartIndex, second.StartIndex)
	}

	for i, a := range sub.Annotations {
		if got := sub.Text[a.StartIndex:a.EndIndex]; got != a.Word {
			t.Errorf("annotation %d: Text[%d:%d] = %q, want %q", i, a.StartIndex, a.EndIndex, got, a.Word)
		}
		if a.EndIndex != a.StartIndex+len(a.Word) {
			t.Errorf("annotation %d: EndIndex mismatch", i)
		}
	}

	if sub.Annotations[0].BasicForm != "run" || sub.Annotations[0].AnnotationType != subs.Known {
		t.Errorf("lemma classification not applied: %+v", sub.Annotations[0])
	}
}

func TestAnnotateSubtitleMultibyteOffsets(t *testing.T) {
	engine := &Engine{
		Tokenizer: &fieldTokenizer{},
		Store:     wordstore.NewStore(nil),
	}

	sub := &subs.Subtitle{Text: "ねこ と ねこ"}
	if err := engine.AnnotateSubtitle(context.Background(), sub, nil); err != nil {
		t.Fatalf("AnnotateSubtitle error: %v", err)
	}
	if len(sub.Annotations) != 3 {
		t.Fatalf("got %d annotations, want 3", len(sub.Annotations))
	}
	// byte offsets: each kana is 3 bytes
	if sub.Annotations[2].StartIndex != 11 {
		t.Errorf("second ねこ starts at %d, want byte offset 11", sub.Annotations[2].StartIndex)
	}
	for i, a := range sub.Annotations {
		if sub.Text[a.StartIndex:a.EndIndex] != a.Word {
			t.Errorf("annotation %d offsets do not slice back to the word", i)
		}
	}
}

func TestAnnotateSubtitleDefaultClassification(t *testing.T) {
	engine := &Engine{
		Tokenizer: &fieldTokenizer{},
		Store:     wordstore.NewStore(nil),
	}

	sub := &subs.Subtitle{Text: "mystery"}
	if err := engine.AnnotateSubtitle(context.Background(), sub, nil); err != nil {
		t.Fatalf("AnnotateSubtitle error: %v", err)
	}
	a := sub.Annotations[0]
	if a.AnnotationType != subs.Unknown || a.AnkiAnnotationType != subs.NotInDeck {
		t.Errorf("unclassified word = %s/%s, want unknown/notInDeck fallback", a.AnnotationType, a.AnkiAnnotationType)
	}
}

func TestAnnotateSubtitles(t *testing.T) {
	store := wordstore.NewStore(wordstore.NewMemory())
	ctx := context.Background()
	// pre-cache everything so no gateway is needed
	store.AddKnownWords(ctx, []string{"dog"})
	store.AddNotInDeckWords(ctx, []string{"cat"})

	engine := &Engine{
		Tokenizer: &fieldTokenizer{},
		Store:     store,
		Workers:   2,
	}

	subtitles := []subs.Subtitle{
		{Start: 0, End: 1000, Text: "dog cat"},
		{Start: 1000, End: 2000, Text: "cat"},
		{Start: 2000, End: 3000, Text: "dog"},
	}
	got, err := engine.AnnotateSubtitles(ctx, subtitles)
	if err != nil {
		t.Fatalf("AnnotateSubtitles error: %v", err)
	}
	engine.Flush()

	if len(got) != 3 {
		t.Fatalf("got %d subtitles", len(got))
	}
	if len(got[0].Annotations) != 2 {
		t.Errorf("first subtitle has %d annotations, want 2", len(got[0].Annotations))
	}
	if got[0].Annotations[0].AnnotationType != subs.Known {
		t.Errorf("dog = %s, want known", got[0].Annotations[0].AnnotationType)
	}
	if got[1].Annotations[0].AnnotationType != subs.NotInDeck {
		t.Errorf("cat = %s, want notInDeck", got[1].Annotations[0].AnnotationType)
	}
	if got[2].Annotations[0].AnnotationType != subs.Known {
		t.Errorf("dog in third subtitle = %s, want known", got[2].Annotations[0].AnnotationType)
	}
}

func TestAnnotateSubtitlesCanceled(t *testing.T) {
	store := wordstore.NewStore(wordstore.NewMemory())
	store.AddKnownWords(context.Background(), []string{"dog"})

	engine := &Engine{
		Tokenizer: &fieldTokenizer{},
		Store:     store,
		Workers:   2,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	subtitles := []subs.Subtitle{{Text: "dog"}, {Text: "dog"}, {Text: "dog"}}
	// a canceled batch must fail rather than return partially annotated output
	if _, err := engine.AnnotateSubtitles(ctx, subtitles); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	engine.Flush()
}

func TestAnnotateSubtitlesEmpty(t *testing.T) {
	engine := &Engine{Tokenizer: &fieldTokenizer{}, Store: wordstore.NewStore(nil)}
	got, err := engine.AnnotateSubtitles(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("AnnotateSubtitles(nil) = %v, %v", got, err)
	}
}
