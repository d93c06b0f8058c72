package anki

import "strings"

// taggedSpan is one complete <tag ...>inner</tag> element found in a string.
type taggedSpan struct {
	full  string // e.g. "<b>hello</b>"
	inner string // e.g. "hello"
}

// InheritHTMLMarkup carries HTML markup (emphasis, ruby, ...) from a
// previously stored field value over to a freshly composed plain value. For
// each tagged span of markedUp that plain does not already literally contain,
// the span's contents are progressively unwrapped (outermost tag first) and
// the first fragment found verbatim in plain is replaced by the full tagged
// span. This preserves manually added markup across repeated edits of the
// same field.
func InheritHTMLMarkup(plain, markedUp string) string {
	// Line-break markup is composition noise, not inheritable emphasis.
	markedUp = strings.ReplaceAll(markedUp, "<br>", "")
	inherited := plain

	pos := 0
	for {
		span, next, ok := findTaggedSpan(markedUp, pos)
		if !ok {
			break
		}
		pos = next

		if strings.Contains(inherited, span.full) {
			continue
		}
		for _, target := range unwrapChain(span.inner) {
			if target == "" {
				continue
			}
			if replaced := strings.Replace(inherited, target, span.full, 1); replaced != inherited {
				inherited = replaced
				break
			}
		}
	}
	return inherited
}

// unwrapChain returns inner followed by the contents of each successively
// nested tag: for "<a><b>content</b></a>" the chain of its inner
// "<b>content</b>" is ["<b>content</b>", "content"].
func unwrapChain(inner string) []string {
	chain := []string{inner}
	current := inner
	for {
		span, _, ok := findTaggedSpan(current, 0)
		if !ok {
			break
		}
		current = span.inner
		chain = append(chain, current)
	}
	return chain
}

// findTaggedSpan locates the first complete tagged element in s at or after
// start, returning the span and the index just past its closing tag. Markup
// that never closes is skipped rather than matched, so malformed HTML cannot
// cause runaway scanning.
func findTaggedSpan(s string, start int) (taggedSpan, int, bool) {
	for i := start; i < len(s); {
		lt := strings.IndexByte(s[i:], '<')
		if lt < 0 {
			break
		}
		open := i + lt
		name, innerStart := parseOpenTag(s, open)
		if name == "" {
			i = open + 1
			continue
		}
		innerEnd := matchingClose(s, innerStart, name)
		if innerEnd < 0 {
			i = open + 1
			continue
		}
		spanEnd := innerEnd + len(name) + 3 // len("</" + name + ">")
		return taggedSpan{full: s[open:spanEnd], inner: s[innerStart:innerEnd]}, spanEnd, true
	}
	return taggedSpan{}, 0, false
}

// parseOpenTag reads an opening tag at s[open] ('<'). It returns the tag name
// and the index just past the '>'; an empty name means this is not a usable
// opening tag (closing tag, comment, or unterminated).
func parseOpenTag(s string, open int) (string, int) {
	i := open + 1
	nameStart := i
	for i < len(s) && isTagNameByte(s[i]) {
		i++
	}
	if i == nameStart {
		return "", 0
	}
	name := s[nameStart:i]
	gt := strings.IndexByte(s[i:], '>')
	if gt < 0 {
		return "", 0
	}
	end := i + gt
	if s[end-1] == '/' {
		// self-closing tags wrap nothing
		return "", 0
	}
	return name, end + 1
}

// matchingClose finds the start index of the closing tag matching name,
// scanning from innerStart and accounting for nested same-name tags. Returns
// -1 when the tag never closes.
func matchingClose(s string, innerStart int, name string) int {
	depth := 1
	closeTag := "</" + name + ">"
	for i := innerStart; i < len(s); {
		lt := strings.IndexByte(s[i:], '<')
		if lt < 0 {
			return -1
		}
		i += lt
		if strings.HasPrefix(s[i:], closeTag) {
			depth--
			if depth == 0 {
				return i
			}
			i += len(closeTag)
			continue
		}
		if nested, next := parseOpenTagName(s, i); nested == name {
			depth++
			i = next
			continue
		}
		i++
	}
	return -1
}

// parseOpenTagName reads just the name of an opening tag at s[i], requiring a
// space or '>' terminator so "<bold" does not count as "<b".
func parseOpenTagName(s string, i int) (string, int) {
	if i >= len(s) || s[i] != '<' {
		return "", i + 1
	}
	j := i + 1
	for j < len(s) && isTagNameByte(s[j]) {
		j++
	}
	if j == i+1 || j >= len(s) {
		return "", i + 1
	}
	if s[j] != ' ' && s[j] != '>' && s[j] != '\t' {
		return "", i + 1
	}
	return s[i+1 : j], j
}

func isTagNameByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return false
}
