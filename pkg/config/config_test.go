package config

import (
	"strings"
	"testing"
)

func TestLoadFromReader(t *testing.T) {
	input := `
server:
  listen_addr: "0.0.0.0:9000"
anki:
  connect_url: "http://localhost:8765"
  deck: Mining
  note_type: Japanese
  word_field: Word
  tags: [mined]
storage:
  backend: sqlite
  sqlite_path: /tmp/words.db
dictionary:
  path: /tmp/jmdict.json
  auto_download: true
`
	cfg, err := LoadFromReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadFromReader error: %v", err)
	}
	if cfg.Server.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Anki.Deck != "Mining" || cfg.Anki.WordField != "Word" {
		t.Errorf("anki settings = %+v", cfg.Anki)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.SQLitePath != "/tmp/words.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if !cfg.Dictionary.AutoDownload {
		t.Error("auto_download not read")
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("anki:\n  deck: Mining\n"))
	if err != nil {
		t.Fatalf("LoadFromReader error: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:8766" {
		t.Errorf("default listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Anki.ConnectURL != "http://127.0.0.1:8765" {
		t.Errorf("default connect_url = %q", cfg.Anki.ConnectURL)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("default backend = %q", cfg.Storage.Backend)
	}
}

func TestLoadFromReaderValidation(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad backend", "storage:\n  backend: cassandra\n"},
		{"sqlite without path", "storage:\n  backend: sqlite\n"},
		{"redis without addr", "storage:\n  backend: redis\n"},
		{"auto download without path", "dictionary:\n  auto_download: true\n"},
		{"unknown field", "serverr:\n  listen_addr: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFromReader(strings.NewReader(tt.input)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Backend: "bogus"}}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"listen_addr", "connect_url", "backend"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing mention of %s", msg, want)
		}
	}
}
