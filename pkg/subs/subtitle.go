// Package subs defines the subtitle model shared by the annotation pipeline
// and the bridge, plus SRT parsing for offline use.
package subs

// AnnotationType classifies a word relative to the user's Anki deck.
type AnnotationType string

const (
	Known     AnnotationType = "known"
	Unknown   AnnotationType = "unknown"
	NotInDeck AnnotationType = "notInDeck"
)

// IsValid reports whether a is a recognised annotation type.
func (a AnnotationType) IsValid() bool {
	switch a {
	case Known, Unknown, NotInDeck:
		return true
	}
	return false
}

// Annotation marks one occurrence of a word within a subtitle's text.
// StartIndex and EndIndex are byte offsets into Subtitle.Text, with
// EndIndex == StartIndex + len(Word).
type Annotation struct {
	StartIndex int            `json:"startIndex"`
	EndIndex   int            `json:"endIndex"`
	// AnnotationType is the word's current classification; AnkiAnnotationType
	// is the classification last derived from the deck. They differ when the
	// user has manually overridden a word.
	AnnotationType     AnnotationType `json:"annotationType"`
	Word               string         `json:"word"` // surface form as it appeared
	BasicForm          string         `json:"basic_form"`
	AnkiAnnotationType AnnotationType `json:"ankiAnnotationType"`
}

// Subtitle is a single subtitle cue. Start and End are milliseconds.
type Subtitle struct {
	Start       int64        `json:"start"`
	End         int64        `json:"end"`
	Text        string       `json:"text"`
	Track       int          `json:"track"`
	Annotations []Annotation `json:"annotations,omitempty"`
}
