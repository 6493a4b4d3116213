package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type BlockKind string

const (
	BlockHeader    BlockKind = "header"
	BlockBullet    BlockKind = "bullet"
	BlockParagraph BlockKind = "paragraph"
)

// maxHeaderLength is the length under which an all-caps line reads as a header.
const maxHeaderLength = 50

// Block is one display line of a formatted reply.
type Block struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text"`
}

// Format splits sanitized reply text into display blocks. A line containing
// "**", or a short line written entirely in upper case, is a header with the
// "**" markers removed. A line starting with "•", "-" or "*" is a bullet with
// its marker removed. Anything else is a paragraph. Blank lines, and lines
// left empty once their markers are removed, are dropped.
func Format(text string) []Block {
	lines := strings.Split(text, "\n")
	blocks := make([]Block, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b := Block{Kind: BlockParagraph, Text: line}
		switch {
		case isHeader(line):
			b = Block{Kind: BlockHeader, Text: strings.TrimSpace(strings.ReplaceAll(line, "**", ""))}
		case isBullet(line):
			b = Block{Kind: BlockBullet, Text: trimBulletMarker(line)}
		}
		// A bare marker such as "**" or "-" carries no text.
		if b.Text == "" {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func isHeader(line string) bool {
	if strings.Contains(line, "**") {
		return true
	}
	if utf8.RuneCountInString(line) >= maxHeaderLength {
		return false
	}
	// Lines without letters ("1.", "---") are upper case trivially.
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	return hasLetter && line == strings.ToUpper(line)
}

func isBullet(line string) bool {
	return strings.HasPrefix(line, "•") || strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*")
}

func trimBulletMarker(line string) string {
	_, size := utf8.DecodeRuneInString(line)
	return strings.TrimLeftFunc(line[size:], unicode.IsSpace)
}
