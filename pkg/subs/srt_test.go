package subs

import (
	"strings"
	"testing"
)

func TestParseSRT(t *testing.T) {
	input := "1\n" +
		"00:00:01,000 --> 00:00:03,500\n" +
		"こんにちは\n" +
		"\n" +
		"2\n" +
		"00:00:04,000 --> 00:00:06,000\n" +
		"línea uno\n" +
		"línea dos\n"

	subtitles, err := ParseSRT(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseSRT returned error: %v", err)
	}
	if len(subtitles) != 2 {
		t.Fatalf("expected 2 subtitles, got %d", len(subtitles))
	}

	first := subtitles[0]
	if first.Start != 1000 || first.End != 3500 {
		t.Errorf("first cue timing = %d..%d, want 1000..3500", first.Start, first.End)
	}
	if first.Text != "こんにちは" {
		t.Errorf("first cue text = %q", first.Text)
	}

	second := subtitles[1]
	if second.Text != "línea uno\nlínea dos" {
		t.Errorf("multi-line cue text = %q, want lines joined with newline", second.Text)
	}
}

func TestParseSRTWithBOM(t *testing.T) {
	input := "\uFEFF1\n00:00:00,500 --> 00:00:01,000\ntext\n"
	subtitles, err := ParseSRT(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseSRT returned error: %v", err)
	}
	if len(subtitles) != 1 || subtitles[0].Text != "text" {
		t.Fatalf("unexpected result: %+v", subtitles)
	}
}

func TestParseSRTBadTimestamp(t *testing.T) {
	input := "1\n00:00:xx,000 --> 00:00:01,000\ntext\n"
	if _, err := ParseSRT(strings.NewReader(input)); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}

func TestParseSRTTimestamp(t *testing.T) {
	tests := []struct {
		input string
		want  int64
		ok    bool
	}{
		{"00:00:00,000", 0, true},
		{"00:00:01,500", 1500, true},
		{"01:02:03,004", 3723004, true},
		{"1:02:03.004", 3723004, true}, // dot separator, single-digit hour
		{"00:00:01", 0, false},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		got, err := parseSRTTimestamp(tt.input)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("parseSRTTimestamp(%q) = %d, %v; want %d", tt.input, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("parseSRTTimestamp(%q) succeeded, want error", tt.input)
		}
	}
}

func TestStripRuby(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text untouched",
			input: "漢字です",
			want:  "漢字です",
		},
		{
			name:  "rt removed",
			input: "<ruby>漢字<rt>かんじ</rt></ruby>です",
			want:  "<ruby>漢字</ruby>です",
		},
		{
			name:  "rp removed",
			input: "<ruby>漢字<rp>(</rp><rt>かんじ</rt><rp>)</rp></ruby>",
			want:  "<ruby>漢字</ruby>",
		},
		{
			name:  "rt with attributes",
			input: `漢字<rt class="reading">かんじ</rt>`,
			want:  "漢字",
		},
		{
			name:  "multiline rt",
			input: "漢字<rt>かん\nじ</rt>",
			want:  "漢字",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripRuby(tt.input); got != tt.want {
				t.Errorf("StripRuby(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAnnotationTypeIsValid(t *testing.T) {
	for _, a := range []AnnotationType{Known, Unknown, NotInDeck} {
		if !a.IsValid() {
			t.Errorf("%q should be valid", a)
		}
	}
	if AnnotationType("maybe").IsValid() {
		t.Error("unrecognised type should be invalid")
	}
}
