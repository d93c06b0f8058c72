package anki

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ExportMode selects how a card is delivered to Anki.
type ExportMode string

const (
	// ModeDefault creates a new note directly.
	ModeDefault ExportMode = "default"
	// ModeGUI opens Anki's add-card dialog pre-filled.
	ModeGUI ExportMode = "gui"
	// ModeUpdateLast merges into the most recently added note.
	ModeUpdateLast ExportMode = "updateLast"
)

// ExportModeError reports an unrecognised export mode. This is a programmer
// error, not a remote failure, and is never retried.
type ExportModeError struct {
	Mode ExportMode
}

func (e *ExportModeError) Error() string {
	return fmt.Sprintf("anki: unknown export mode %q", string(e.Mode))
}

// ErrUpdateTargetNotFound is returned by updateLast exports when there is no
// recently added note to merge into, or its info cannot be fetched. No partial
// write happens in either case.
var ErrUpdateTargetNotFound = errors.New("anki: could not find note to update")

// MediaFile is a base64-encoded attachment bound for Anki's media store.
type MediaFile struct {
	Name   string `json:"name"`
	Base64 string `json:"base64"`
}

// Card bundles everything exported as one note.
type Card struct {
	Text              string            `json:"text"`
	Track1            string            `json:"track1"`
	Track2            string            `json:"track2"`
	Track3            string            `json:"track3"`
	Definition        string            `json:"definition"`
	Word              string            `json:"word"`
	Source            string            `json:"source"`
	URL               string            `json:"url"`
	CustomFieldValues map[string]string `json:"customFieldValues,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	Audio             *MediaFile        `json:"audio,omitempty"`
	Image             *MediaFile        `json:"image,omitempty"`
}

type duplicateScopeOptions struct {
	DeckName      string `json:"deckName"`
	CheckChildren bool   `json:"checkChildren"`
}

type noteOptions struct {
	AllowDuplicate        bool                  `json:"allowDuplicate"`
	DuplicateScope        string                `json:"duplicateScope"`
	DuplicateScopeOptions duplicateScopeOptions `json:"duplicateScopeOptions"`
}

type noteMedia struct {
	Filename string   `json:"filename"`
	Data     string   `json:"data"`
	Fields   []string `json:"fields"`
}

type notePayload struct {
	ID        int64             `json:"id,omitempty"`
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Tags      []string          `json:"tags"`
	Fields    map[string]string `json:"fields"`
	Options   noteOptions       `json:"options"`
	Audio     *noteMedia        `json:"audio,omitempty"`
	Picture   *noteMedia        `json:"picture,omitempty"`
}

// Export composes one note from card and delivers it according to mode. The
// returned string is the new note id for default/gui exports; updateLast
// returns the target note's word-field value when available, its id otherwise.
func (c *Client) Export(ctx context.Context, card Card, mode ExportMode) (string, error) {
	switch mode {
	case ModeDefault, ModeGUI, ModeUpdateLast:
	default:
		return "", &ExportModeError{Mode: mode}
	}

	settings := c.Settings
	fields := map[string]string{}
	appendField(fields, settings.SentenceField, card.Text, true)
	appendField(fields, settings.Track1Field, card.Track1, true)
	appendField(fields, settings.Track2Field, card.Track2, true)
	appendField(fields, settings.Track3Field, card.Track3, true)
	appendField(fields, settings.DefinitionField, card.Definition, true)
	appendField(fields, settings.WordField, card.Word, false)
	appendField(fields, settings.SourceField, card.Source, false)
	appendField(fields, settings.URLField, card.URL, false)
	for name, value := range card.CustomFieldValues {
		appendField(fields, settings.CustomFields[name], value, true)
	}

	note := notePayload{
		DeckName:  settings.Deck,
		ModelName: settings.NoteType,
		Tags:      card.Tags,
		Options: noteOptions{
			AllowDuplicate: false,
			DuplicateScope: "deck",
			DuplicateScopeOptions: duplicateScopeOptions{
				DeckName:      settings.Deck,
				CheckChildren: false,
			},
		},
	}

	outOfBandMedia := mode == ModeGUI || mode == ModeUpdateLast

	if settings.AudioField != "" && card.Audio != nil && card.Audio.Base64 != "" {
		name := sanitizeFileName(card.Audio.Name)
		if outOfBandMedia {
			stored, err := c.StoreMediaFile(ctx, name, card.Audio.Base64)
			if err != nil {
				return "", err
			}
			appendField(fields, settings.AudioField, "[sound:"+stored+"]", false)
		} else {
			note.Audio = &noteMedia{Filename: name, Data: card.Audio.Base64, Fields: []string{settings.AudioField}}
		}
	}

	if settings.ImageField != "" && card.Image != nil && card.Image.Base64 != "" {
		name := sanitizeFileName(card.Image.Name)
		if outOfBandMedia {
			stored, err := c.StoreMediaFile(ctx, name, card.Image.Base64)
			if err != nil {
				return "", err
			}
			appendField(fields, settings.ImageField, `<img src="`+stored+`">`, false)
		} else {
			note.Picture = &noteMedia{Filename: name, Data: card.Image.Base64, Fields: []string{settings.ImageField}}
		}
	}

	note.Fields = fields

	switch mode {
	case ModeGUI:
		id, err := c.GuiAddCards(ctx, note)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(id, 10), nil
	case ModeUpdateLast:
		return c.updateLastNote(ctx, note, card.Tags)
	default:
		id, err := c.AddNote(ctx, note)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(id, 10), nil
	}
}

// updateLastNote merges note's fields into the most recently added note,
// inheriting markup on the sentence and track fields from the stored values.
func (c *Client) updateLastNote(ctx context.Context, note notePayload, tags []string) (string, error) {
	recent, err := c.FindNotes(ctx, "added:1")
	if err != nil {
		return "", err
	}
	if len(recent) == 0 {
		return "", ErrUpdateTargetNotFound
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i] < recent[j] })
	lastID := recent[len(recent)-1]

	infos, err := c.NotesInfo(ctx, []int64{lastID})
	if err != nil {
		return "", err
	}
	if len(infos) == 0 || infos[0].NoteID != lastID {
		return "", fmt.Errorf("%w: note %d info could not be fetched", ErrUpdateTargetNotFound, lastID)
	}
	info := infos[0]

	settings := c.Settings
	for _, fieldName := range []string{settings.SentenceField, settings.Track1Field, settings.Track2Field, settings.Track3Field} {
		if fieldName == "" {
			continue
		}
		stored, ok := info.Fields[fieldName]
		if !ok {
			continue
		}
		if composed, ok := note.Fields[fieldName]; ok {
			note.Fields[fieldName] = InheritHTMLMarkup(composed, stored.Value)
		}
	}

	if err := c.UpdateNoteFields(ctx, lastID, note.Fields); err != nil {
		return "", err
	}
	if len(tags) > 0 {
		if err := c.AddTags(ctx, lastID, tags); err != nil {
			return "", err
		}
	}

	if settings.WordField != "" {
		if field, ok := info.Fields[settings.WordField]; ok && field.Value != "" {
			return field.Value, nil
		}
	}
	return strconv.FormatInt(lastID, 10), nil
}

// appendField writes value into fields[name], converting newlines to <br> for
// multiline fields and appending after a line break when the field already has
// a value from an earlier composition step.
func appendField(fields map[string]string, name, value string, multiline bool) {
	if name == "" || value == "" {
		return
	}
	newValue := value
	if multiline {
		newValue = strings.ReplaceAll(newValue, "\n", "<br>")
	}
	if existing := fields[name]; existing != "" {
		newValue = existing + "<br>" + newValue
	}
	fields[name] = newValue
}

const fileNameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// randomString returns n random alphanumeric characters.
func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = fileNameAlphabet[rand.Intn(len(fileNameAlphabet))]
	}
	return string(b)
}

// uniqueFileName makes name unique with reasonable probability by inserting a
// short random suffix before the extension. Anki's own duplicate handling
// (deleteExisting) is unsupported on some AnkiConnect backends, and a suffix
// keeps more of the original name visible than Anki's appended hash.
func uniqueFileName(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || dot == len(name)-1 {
		// no usable extension; give up and hope the name is already unique
		return name
	}
	return name[:dot] + "_" + randomString(8) + name[dot:]
}

// sanitizeFileName replaces path separators, reserved punctuation, and control
// characters with underscores so generated media names are safe on common
// filesystems.
func sanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == '?' || r == '<' || r == '>' ||
			r == ':' || r == '*' || r == '|' || r == '"':
			b.WriteByte('_')
		case unicode.IsControl(r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
