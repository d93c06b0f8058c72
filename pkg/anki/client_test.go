package anki

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// fakeConnect serves a canned AnkiConnect endpoint and records the envelopes
// it receives.
type fakeConnect struct {
	t        *testing.T
	handler  func(req Request) (any, string)
	requests atomic.Int64
}

func (f *fakeConnect) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.t.Errorf("bad request body: %v", err)
	}
	if req.Version != 6 {
		f.t.Errorf("request version = %d, want 6", req.Version)
	}
	result, errMsg := f.handler(req)
	resp := map[string]any{"result": result, "error": nil}
	if errMsg != "" {
		resp["error"] = errMsg
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, handler func(req Request) (any, string)) (*Client, *fakeConnect) {
	t.Helper()
	fake := &fakeConnect{t: t, handler: handler}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	client := NewClient(Settings{ConnectURL: server.URL, WordField: "Word"})
	return client, fake
}

func TestExecuteActionEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(req Request) (any, string) {
		if req.Action != "findNotes" {
			t.Errorf("action = %q, want findNotes", req.Action)
		}
		return []int64{1, 2}, ""
	})

	var ids []int64
	raw, err := client.ExecuteAction(context.Background(), "findNotes", map[string]any{"query": "deck:current"})
	if err != nil {
		t.Fatalf("ExecuteAction error: %v", err)
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		t.Fatalf("result decode: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 {
		t.Errorf("ids = %v, want [1 2]", ids)
	}
}

func TestExecuteActionRemoteError(t *testing.T) {
	client, _ := newTestClient(t, func(req Request) (any, string) {
		return nil, "collection is not available"
	})

	_, err := client.ExecuteAction(context.Background(), "deckNames", nil)
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("error = %v, want *GatewayError", err)
	}
	if gatewayErr.Message != "collection is not available" {
		t.Errorf("message = %q", gatewayErr.Message)
	}
}

func TestExecuteActionTransportError(t *testing.T) {
	client := NewClient(Settings{ConnectURL: "http://127.0.0.1:1"})
	_, err := client.ExecuteAction(context.Background(), "version", nil)
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("error = %v, want *GatewayError", err)
	}
}

func TestFindNoteQuery(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"犬", "*:*>犬<* OR *:犬"},
		{`a"b`, `*:*>a\"b<* OR *:a\"b`},
		{"a*b_c", `*:*>a\*b\_c<* OR *:a\*b\_c`},
		{`a\b:c`, `*:*>a\\b\:c<* OR *:a\\b\:c`},
	}
	for _, tt := range tests {
		if got := FindNoteQuery(tt.word); got != tt.want {
			t.Errorf("FindNoteQuery(%q) = %q, want %q", tt.word, got, tt.want)
		}
	}
}

func TestMulti(t *testing.T) {
	client, _ := newTestClient(t, func(req Request) (any, string) {
		if req.Action != "multi" {
			t.Errorf("action = %q, want multi", req.Action)
		}
		errMsg := "no such word"
		return []Response{
			{Result: json.RawMessage(`[101]`)},
			{Error: &errMsg},
		}, ""
	})

	results, err := client.Multi(context.Background(), []Request{FindNoteAction("犬"), FindNoteAction("猫")})
	if err != nil {
		t.Fatalf("Multi error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if string(results[0].Result) != "[101]" {
		t.Errorf("first result = %s", results[0].Result)
	}
	if results[1].Error == nil || *results[1].Error != "no such word" {
		t.Errorf("second result error = %v", results[1].Error)
	}
}

func TestMultiLengthMismatch(t *testing.T) {
	client, _ := newTestClient(t, func(req Request) (any, string) {
		return []Response{}, ""
	})

	_, err := client.Multi(context.Background(), []Request{FindNoteAction("犬")})
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("error = %v, want *GatewayError for length mismatch", err)
	}
}

func TestGetIntervalsEmpty(t *testing.T) {
	client, fake := newTestClient(t, func(req Request) (any, string) {
		return nil, ""
	})

	intervals, err := client.GetIntervals(context.Background(), nil)
	if err != nil || intervals != nil {
		t.Fatalf("GetIntervals(nil) = %v, %v; want nil, nil", intervals, err)
	}
	if fake.requests.Load() != 0 {
		t.Error("empty GetIntervals should not hit the gateway")
	}
}

func TestGetIntervals(t *testing.T) {
	client, _ := newTestClient(t, func(req Request) (any, string) {
		return []int64{3, -300}, ""
	})

	intervals, err := client.GetIntervals(context.Background(), []int64{10, 11})
	if err != nil {
		t.Fatalf("GetIntervals error: %v", err)
	}
	if len(intervals) != 2 || intervals[0] != 3 || intervals[1] != -300 {
		t.Errorf("intervals = %v", intervals)
	}
}

func TestFindNotesWithWord(t *testing.T) {
	var gotQuery string
	client, _ := newTestClient(t, func(req Request) (any, string) {
		params, _ := req.Params.(map[string]any)
		gotQuery, _ = params["query"].(string)
		return []int64{7}, ""
	})

	ids, err := client.FindNotesWithWord(context.Background(), "走る")
	if err != nil {
		t.Fatalf("FindNotesWithWord error: %v", err)
	}
	if len(ids) != 1 || ids[0] != 7 {
		t.Errorf("ids = %v", ids)
	}
	if gotQuery != "Word:走る" {
		t.Errorf("query = %q, want field-scoped search", gotQuery)
	}
}
