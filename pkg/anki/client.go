// Package anki is a typed client for the AnkiConnect HTTP API plus the card
// export flow built on top of it. Every call goes through the version-6
// action/params envelope; a response with a non-empty error field, as well as
// any transport failure, surfaces as a *GatewayError.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const actionVersion = 6

// querySpecialCharacters must be backslash-escaped before interpolation into
// an Anki search query.
const querySpecialCharacters = `"*_\:`

// Settings configures AnkiConnect access and the note layout used for export.
type Settings struct {
	ConnectURL      string            `yaml:"connect_url" json:"ankiConnectUrl"`
	Deck            string            `yaml:"deck" json:"deck"`
	NoteType        string            `yaml:"note_type" json:"noteType"`
	SentenceField   string            `yaml:"sentence_field" json:"sentenceField"`
	DefinitionField string            `yaml:"definition_field" json:"definitionField"`
	WordField       string            `yaml:"word_field" json:"wordField"`
	SourceField     string            `yaml:"source_field" json:"sourceField"`
	URLField        string            `yaml:"url_field" json:"urlField"`
	AudioField      string            `yaml:"audio_field" json:"audioField"`
	ImageField      string            `yaml:"image_field" json:"imageField"`
	Track1Field     string            `yaml:"track1_field" json:"track1Field"`
	Track2Field     string            `yaml:"track2_field" json:"track2Field"`
	Track3Field     string            `yaml:"track3_field" json:"track3Field"`
	CustomFields    map[string]string `yaml:"custom_fields" json:"customAnkiFields"`
	Tags            []string          `yaml:"tags" json:"tags"`
}

// GatewayError is any failure reported by or while reaching AnkiConnect.
// Remote-side errors and transport errors are deliberately indistinguishable;
// callers are expected to report the message, not branch on the cause.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string { return "anki: " + e.Message }

// Request is one action envelope, either sent on its own or batched via Multi.
type Request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

// Response is the result envelope of a single action.
type Response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Client talks to one AnkiConnect endpoint.
type Client struct {
	Settings   Settings
	HTTPClient *http.Client
}

// NewClient creates a Client for the endpoint named in settings.
func NewClient(settings Settings) *Client {
	return &Client{
		Settings:   settings,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ExecuteAction posts one envelope and returns the raw result. A response
// carrying a non-empty error field is converted into a *GatewayError.
func (c *Client) ExecuteAction(ctx context.Context, action string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(Request{Action: action, Version: actionVersion, Params: params})
	if err != nil {
		return nil, &GatewayError{Message: fmt.Sprintf("encode %s request: %v", action, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Settings.ConnectURL, bytes.NewReader(body))
	if err != nil {
		return nil, &GatewayError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Message: err.Error()}
	}
	defer resp.Body.Close()

	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &GatewayError{Message: fmt.Sprintf("decode %s response: %v", action, err)}
	}
	if envelope.Error != nil && *envelope.Error != "" {
		return nil, &GatewayError{Message: *envelope.Error}
	}
	return envelope.Result, nil
}

// executeInto runs an action and decodes the result into out (skipped when out
// is nil).
func (c *Client) executeInto(ctx context.Context, action string, params, out any) error {
	result, err := c.ExecuteAction(ctx, action, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return &GatewayError{Message: fmt.Sprintf("decode %s result: %v", action, err)}
	}
	return nil
}

// escapeQuery backslash-escapes Anki query metacharacters in q.
func escapeQuery(q string) string {
	var b strings.Builder
	b.Grow(len(q))
	for _, r := range q {
		if r < 0x80 && strings.ContainsRune(querySpecialCharacters, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FindNoteQuery matches notes where word appears in any field, either as the
// exact field value or wrapped in markup (">word<"), combined with OR.
func FindNoteQuery(word string) string {
	escaped := escapeQuery(word)
	return "*:*>" + escaped + "<* OR *:" + escaped
}

// FindNoteAction builds the batched-findNotes envelope for word using
// FindNoteQuery.
func FindNoteAction(word string) Request {
	return Request{
		Action:  "findNotes",
		Version: actionVersion,
		Params:  map[string]any{"query": FindNoteQuery(word)},
	}
}

// FindNotes returns the ids of notes matching query.
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	if err := c.executeInto(ctx, "findNotes", map[string]any{"query": query}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// FindNotesWithWord searches the configured word field for an exact match.
func (c *Client) FindNotesWithWord(ctx context.Context, word string) ([]int64, error) {
	return c.FindNotes(ctx, c.Settings.WordField+":"+escapeQuery(word))
}

// Multi posts the actions as one batched "multi" call and returns the parallel
// list of per-action envelopes. Individual action failures appear in the
// corresponding Response.Error, not as a call-level error.
func (c *Client) Multi(ctx context.Context, actions []Request) ([]Response, error) {
	var results []Response
	if err := c.executeInto(ctx, "multi", map[string]any{"actions": actions}, &results); err != nil {
		return nil, err
	}
	if len(results) != len(actions) {
		return nil, &GatewayError{Message: fmt.Sprintf("multi returned %d results for %d actions", len(results), len(actions))}
	}
	return results, nil
}

// GetIntervals returns the most recent review interval for each card, in the
// order of cardIDs. Values are days when >= 0 and negative seconds for
// sub-daily reviews.
func (c *Client) GetIntervals(ctx context.Context, cardIDs []int64) ([]int64, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}
	var intervals []int64
	if err := c.executeInto(ctx, "getIntervals", map[string]any{"cards": cardIDs}, &intervals); err != nil {
		return nil, err
	}
	return intervals, nil
}

// AddNote creates a note from a composed note payload and returns the new
// note's id.
func (c *Client) AddNote(ctx context.Context, note any) (int64, error) {
	var id int64
	if err := c.executeInto(ctx, "addNote", map[string]any{"note": note}, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// GuiAddCards opens Anki's add-card dialog pre-filled with note and returns
// the id the dialog was opened with.
func (c *Client) GuiAddCards(ctx context.Context, note any) (int64, error) {
	var id int64
	if err := c.executeInto(ctx, "guiAddCards", map[string]any{"note": note}, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// NoteField is one field value on a fetched note.
type NoteField struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NoteInfo is the subset of notesInfo output the exporter needs.
type NoteInfo struct {
	NoteID int64                `json:"noteId"`
	Fields map[string]NoteField `json:"fields"`
}

// NotesInfo fetches field values for the given notes.
func (c *Client) NotesInfo(ctx context.Context, noteIDs []int64) ([]NoteInfo, error) {
	var infos []NoteInfo
	if err := c.executeInto(ctx, "notesInfo", map[string]any{"notes": noteIDs}, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// UpdateNoteFields overwrites the given fields on an existing note.
func (c *Client) UpdateNoteFields(ctx context.Context, noteID int64, fields map[string]string) error {
	params := map[string]any{"note": map[string]any{"id": noteID, "fields": fields}}
	_, err := c.ExecuteAction(ctx, "updateNoteFields", params)
	return err
}

// AddTags adds the space-joined tags to a note.
func (c *Client) AddTags(ctx context.Context, noteID int64, tags []string) error {
	params := map[string]any{"notes": []int64{noteID}, "tags": strings.Join(tags, " ")}
	_, err := c.ExecuteAction(ctx, "addTags", params)
	return err
}

// StoreMediaFile uploads base64Data under a uniquified variant of name and
// returns the filename Anki stored it as.
func (c *Client) StoreMediaFile(ctx context.Context, name, base64Data string) (string, error) {
	params := map[string]any{
		"filename": uniqueFileName(name),
		"data":     base64Data,
		// deleteExisting is unsupported on AnkiConnect Android; the random
		// suffix from uniqueFileName avoids collisions instead.
		"deleteExisting": false,
	}
	var stored string
	if err := c.executeInto(ctx, "storeMediaFile", params, &stored); err != nil {
		return "", err
	}
	return stored, nil
}

// DeckNames lists the decks known to Anki.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.executeInto(ctx, "deckNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// ModelNames lists the note types known to Anki.
func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.executeInto(ctx, "modelNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// ModelFieldNames lists the fields of one note type.
func (c *Client) ModelFieldNames(ctx context.Context, modelName string) ([]string, error) {
	var names []string
	if err := c.executeInto(ctx, "modelFieldNames", map[string]any{"modelName": modelName}, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Version returns the AnkiConnect API version.
func (c *Client) Version(ctx context.Context) (int, error) {
	var version int
	if err := c.executeInto(ctx, "version", nil, &version); err != nil {
		return 0, err
	}
	return version, nil
}

// RequestPermission asks AnkiConnect to allow this origin.
func (c *Client) RequestPermission(ctx context.Context) error {
	_, err := c.ExecuteAction(ctx, "requestPermission", nil)
	return err
}

// GuiBrowse opens the Anki browser on notes whose word field matches word.
func (c *Client) GuiBrowse(ctx context.Context, word string) error {
	query := c.Settings.WordField + ":" + escapeQuery(word)
	_, err := c.ExecuteAction(ctx, "guiBrowse", map[string]any{"query": query})
	return err
}
