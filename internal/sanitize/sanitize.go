// Package sanitize strips markup and script-triggering substrings from text
// travelling between the chat UI and the remote agent.
//
// The rules are pattern removals, not an HTML parser. They remove the patterns
// below and nothing else, so obfuscated or malformed markup that does not
// match them passes through. Matching is ASCII case-insensitive.
//
//   - tags: '<' up to the next '>'
//   - event handlers: "on", one or more word characters, optional whitespace, '='
//   - the literal schemes and entities in inputLiterals and responseLiterals
//   - in replies, whole <script> and <iframe> elements, body included
//
// Text is scanned once. Each byte is appended to an output buffer and a match
// ending at the tail of the buffer is cut off at once, so a removal that
// splices a new match together ("javajavascript:script:") is caught when the
// new match completes. No rescans happen and the cost is linear in the input.
package sanitize

import (
	"strings"
	"unicode"
)

// MaxInputLength is the cap, in characters, applied to sanitized user input.
const MaxInputLength = 2000

var (
	inputLiterals    = []string{"javascript:", "&lt;script&gt;", "&lt;/script&gt;"}
	responseLiterals = []string{"javascript:", "&lt;script&gt;", "&lt;/script&gt;", "data:text/html"}

	blockElements = []string{"script", "iframe"}
)

const none int32 = -1

// markupScanner removes tags, event handlers and a set of lower-case literals.
// Entry i of each index slice describes out[:i+1].
type markupScanner struct {
	literals []string
	out      []byte
	// tagStart is the first '<' after the last '>'.
	tagStart []int32
	// handlerStart is the leftmost "on" in the word run ending at i.
	handlerStart []int32
	// spaceStart is the start of the whitespace run ending at i.
	spaceStart []int32
}

func stripMarkup(s string, literals []string) string {
	m := markupScanner{
		literals:     literals,
		out:          make([]byte, 0, len(s)),
		tagStart:     make([]int32, 0, len(s)),
		handlerStart: make([]int32, 0, len(s)),
		spaceStart:   make([]int32, 0, len(s)),
	}
	for i := 0; i < len(s); i++ {
		m.push(s[i])
	}
	return string(m.out)
}

func (m *markupScanner) push(c byte) {
	n := len(m.out)
	prevTag, prevHandler, prevSpace := none, none, none
	if n > 0 {
		prevTag, prevHandler, prevSpace = m.tagStart[n-1], m.handlerStart[n-1], m.spaceStart[n-1]
	}

	switch c {
	case '>':
		if prevTag != none {
			m.cut(prevTag)
			return
		}
	case '=':
		j := n - 1
		if j >= 0 && prevSpace != none {
			j = int(prevSpace) - 1
		}
		// At least one word character must follow "on".
		if j >= 0 && m.handlerStart[j] != none && int(m.handlerStart[j])+2 <= j {
			m.cut(m.handlerStart[j])
			return
		}
	}

	tag := prevTag
	switch {
	case c == '>':
		tag = none
	case c == '<' && tag == none:
		tag = int32(n)
	}

	handler := none
	if isWord(c) {
		if n > 0 && isWord(m.out[n-1]) {
			handler = prevHandler
		}
		if handler == none && lower(c) == 'n' && n > 0 && lower(m.out[n-1]) == 'o' {
			handler = int32(n - 1)
		}
	}

	space := none
	if isSpace(c) {
		space = prevSpace
		if space == none {
			space = int32(n)
		}
	}

	m.out = append(m.out, c)
	m.tagStart = append(m.tagStart, tag)
	m.handlerStart = append(m.handlerStart, handler)
	m.spaceStart = append(m.spaceStart, space)

	for _, lit := range m.literals {
		if hasSuffixFold(m.out, lit) {
			m.cut(int32(len(m.out) - len(lit)))
			return
		}
	}
}

func (m *markupScanner) cut(at int32) {
	m.out = m.out[:at]
	m.tagStart = m.tagStart[:at]
	m.handlerStart = m.handlerStart[:at]
	m.spaceStart = m.spaceStart[:at]
}

// blockScanner removes whole blockElements, from "<name" followed by a
// non-word byte up to the first "</name>" after it.
type blockScanner struct {
	out []byte
	// open[e][i] is the earliest opening of blockElements[e] in out[:i+1].
	open [][]int32
}

func removeBlocks(s string) string {
	b := blockScanner{
		out:  make([]byte, 0, len(s)),
		open: make([][]int32, len(blockElements)),
	}
	for e := range b.open {
		b.open[e] = make([]int32, 0, len(s))
	}
	for i := 0; i < len(s); i++ {
		b.push(s[i])
	}
	return string(b.out)
}

func (b *blockScanner) push(c byte) {
	n := len(b.out)
	b.out = append(b.out, c)
	for e, name := range blockElements {
		start := none
		if n > 0 {
			start = b.open[e][n-1]
		}
		// c is the word boundary after a "<name" that ends at n-1.
		if start == none && !isWord(c) {
			k := n - len(name) - 1
			if k >= 0 && b.out[k] == '<' && hasSuffixFold(b.out[:n], name) {
				start = int32(k)
			}
		}
		b.open[e] = append(b.open[e], start)
	}

	if c != '>' {
		return
	}
	for e, name := range blockElements {
		k := len(b.out) - len(name) - 3
		if k < 0 || b.out[k] != '<' || b.out[k+1] != '/' || !hasSuffixFold(b.out[:len(b.out)-1], name) {
			continue
		}
		if start := b.open[e][k]; start != none {
			b.cut(start)
			return
		}
	}
}

func (b *blockScanner) cut(at int32) {
	b.out = b.out[:at]
	for e := range b.open {
		b.open[e] = b.open[e][:at]
	}
}

// hasSuffixFold reports whether s ends with lit, ignoring ASCII case. lit must
// be lower case.
func hasSuffixFold(s []byte, lit string) bool {
	if len(s) < len(lit) {
		return false
	}
	tail := s[len(s)-len(lit):]
	for i := 0; i < len(lit); i++ {
		if lower(tail[i]) != lit[i] {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func isWord(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}

// truncate cuts s to at most n characters without splitting a code point.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func trimRight(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
