package subs

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// ParseSRT reads SubRip subtitles from r. Cues keep their multi-line text
// joined with "\n". Sequence numbers are ignored; cue order follows the input.
func ParseSRT(r io.Reader) ([]Subtitle, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		result  []Subtitle
		current *Subtitle
		lines   []string
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.Join(lines, "\n")
		if current.Text != "" {
			result = append(result, *current)
		}
		current = nil
		lines = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// strip a UTF-8 BOM on the first line
		line = strings.TrimPrefix(line, "\uFEFF")

		if line == "" {
			flush()
			continue
		}
		if isDigitOnly(line) && current == nil {
			continue
		}
		if strings.Contains(line, "-->") {
			flush()
			parts := strings.SplitN(line, "-->", 2)
			start, err := parseSRTTimestamp(strings.TrimSpace(parts[0]))
			if err != nil {
				return nil, fmt.Errorf("srt: bad start timestamp %q: %w", parts[0], err)
			}
			end, err := parseSRTTimestamp(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, fmt.Errorf("srt: bad end timestamp %q: %w", parts[1], err)
			}
			current = &Subtitle{Start: start, End: end}
			continue
		}
		if current != nil {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return result, nil
}

var srtTimestampRe = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})$`)

// parseSRTTimestamp converts "HH:MM:SS,mmm" to milliseconds.
func parseSRTTimestamp(s string) (int64, error) {
	m := srtTimestampRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("not in HH:MM:SS,mmm form")
	}
	h, _ := strconv.ParseInt(m[1], 10, 64)
	min, _ := strconv.ParseInt(m[2], 10, 64)
	sec, _ := strconv.ParseInt(m[3], 10, 64)
	ms, _ := strconv.ParseInt(m[4], 10, 64)
	return ((h*60+min)*60+sec)*1000 + ms, nil
}

func isDigitOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

var (
	// (?s) allows dot to match newlines
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// StripRuby removes ruby reading text (<rt>...</rt>) and ruby parentheses
// (<rp>...</rp>) from text. Subtitle tracks with furigana would otherwise
// tokenize each word twice (e.g. "漢字" becomes "漢字かんじ").
func StripRuby(text string) string {
	cleaned := reRT.ReplaceAllString(text, "")
	return reRP.ReplaceAllString(cleaned, "")
}
