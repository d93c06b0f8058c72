// Package bridge exposes the annotation pipeline and card export over a local
// HTTP command surface. Each endpoint accepts a JSON command body and replies
// with either the result or a `{ "error": message }` envelope, mirroring the
// message-passing contract of the browser extension it serves.
package bridge

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ch-dewez/asbplayer/pkg/anki"
	"github.com/ch-dewez/asbplayer/pkg/annotate"
	"github.com/ch-dewez/asbplayer/pkg/dictionary"
	"github.com/ch-dewez/asbplayer/pkg/subs"
)

// Server routes bridge commands to the engine and exporter.
type Server struct {
	Engine *annotate.Engine
	Anki   *anki.Client
	// Dict, when set, prefills empty definition fields on export.
	Dict   *dictionary.Dictionary
	Logger *log.Logger
}

// Handler returns the bridge's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /asbplayer/find-known-words", s.handleFindKnownWords)
	mux.HandleFunc("POST /asbplayer/add-annotations", s.handleAddAnnotations)
	mux.HandleFunc("POST /asbplayer/set-word-annotation-with-subtitles", s.handleSetWordAnnotation)
	mux.HandleFunc("POST /asbplayer/export-card", s.handleExportCard)
	return mux
}

type findKnownWordsRequest struct {
	Text string `json:"text"`
}

type findKnownWordsResponse struct {
	KnownWords []annotate.Classification `json:"knownWords"`
}

func (s *Server) handleFindKnownWords(w http.ResponseWriter, r *http.Request) {
	var req findKnownWordsRequest
	if !s.decode(w, r, &req) {
		return
	}
	classifications, err := s.Engine.Classify(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, findKnownWordsResponse{KnownWords: classifications})
}

type addAnnotationsRequest struct {
	Subtitles []subs.Subtitle `json:"subtitles"`
}

type subtitlesResponse struct {
	Subtitles []subs.Subtitle `json:"subtitles"`
}

func (s *Server) handleAddAnnotations(w http.ResponseWriter, r *http.Request) {
	var req addAnnotationsRequest
	if !s.decode(w, r, &req) {
		return
	}
	// already-annotated batches come back unchanged
	if len(req.Subtitles) > 0 && len(req.Subtitles[0].Annotations) > 0 {
		s.writeJSON(w, subtitlesResponse{Subtitles: req.Subtitles})
		return
	}
	annotated, err := s.Engine.AnnotateSubtitles(r.Context(), req.Subtitles)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, subtitlesResponse{Subtitles: annotated})
}

type setWordAnnotationRequest struct {
	Subtitles         []subs.Subtitle     `json:"subtitles"`
	NextAnnotation    subs.AnnotationType `json:"nextAnnotation"`
	CurrentAnnotation subs.Annotation     `json:"currentAnnotation"`
}

func (s *Server) handleSetWordAnnotation(w http.ResponseWriter, r *http.Request) {
	var req setWordAnnotationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !req.NextAnnotation.IsValid() {
		s.writeErrorStatus(w, http.StatusBadRequest, errors.New("bridge: invalid nextAnnotation"))
		return
	}
	updated := s.Engine.SetWordAnnotation(r.Context(), req.CurrentAnnotation, req.NextAnnotation, req.Subtitles)
	s.writeJSON(w, subtitlesResponse{Subtitles: updated})
}

type exportCardRequest struct {
	Card anki.Card       `json:"card"`
	Mode anki.ExportMode `json:"mode"`
}

type exportCardResponse struct {
	Result string `json:"result"`
}

func (s *Server) handleExportCard(w http.ResponseWriter, r *http.Request) {
	var req exportCardRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.Dict != nil && req.Card.Definition == "" && req.Card.Word != "" {
		req.Card.Definition = s.Dict.DefinitionText(req.Card.Word)
	}
	result, err := s.Anki.Export(r.Context(), req.Card, req.Mode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, exportCardResponse{Result: result})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeErrorStatus(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError reports err as a command failure. Client mistakes (bad export
// mode, missing update target) get a 400; everything else, including gateway
// failures, is a 502 because the bridge itself is healthy.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var modeErr *anki.ExportModeError
	if errors.As(err, &modeErr) || errors.Is(err, anki.ErrUpdateTargetNotFound) {
		status = http.StatusBadRequest
	}
	s.writeErrorStatus(w, status, err)
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, status int, err error) {
	if s.Logger != nil {
		s.Logger.Printf("bridge: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil && s.Logger != nil {
		s.Logger.Printf("bridge: encode response: %v", err)
	}
}
