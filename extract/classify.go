package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// lineKind is the heuristic classification of one extracted paragraph.
type lineKind int

const (
	linePlain lineKind = iota
	lineName
	lineContact
	lineHeading
	lineBullet
	lineEmpty
)

var (
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
	urlPattern   = regexp.MustCompile(`(?i)(linkedin\.com|github\.com|https?://)\S*`)
)

var bulletGlyphs = []string{"•", "◦", "▪", "‣", "- ", "– ", "* "}

// nameWindow bounds how deep a name/title line may appear. Resumes carry the
// candidate name in the first lines; past that, short title-cased text is a
// heading, not a name.
const nameWindow = 3

// classify assigns a kind to each paragraph. Explicit markers (numbering,
// bullet glyphs, heading styles) win over text-shape heuristics.
func classify(paragraphs []paragraph) []lineKind {
	kinds := make([]lineKind, len(paragraphs))
	seen := 0

	for i, p := range paragraphs {
		text := strings.TrimSpace(p.text)
		if text == "" {
			kinds[i] = lineEmpty
			continue
		}
		seen++

		switch {
		case p.listItem || hasBulletGlyph(text):
			kinds[i] = lineBullet
		case isContactLine(text):
			kinds[i] = lineContact
		case isHeadingStyle(p.style):
			kinds[i] = lineHeading
		case seen <= nameWindow && isNameLine(text):
			kinds[i] = lineName
		case isHeadingShape(text):
			kinds[i] = lineHeading
		default:
			kinds[i] = linePlain
		}
	}

	return kinds
}

func hasBulletGlyph(text string) bool {
	for _, g := range bulletGlyphs {
		if strings.HasPrefix(text, g) {
			return true
		}
	}
	return false
}

// stripBullet removes a leading glyph so rendered list items do not repeat it.
func stripBullet(text string) string {
	for _, g := range bulletGlyphs {
		if strings.HasPrefix(text, g) {
			return strings.TrimSpace(strings.TrimPrefix(text, g))
		}
	}
	return text
}

func isContactLine(text string) bool {
	return emailPattern.MatchString(text) ||
		phonePattern.MatchString(text) ||
		urlPattern.MatchString(text)
}

func isHeadingStyle(style string) bool {
	return strings.HasPrefix(strings.ToLower(style), "heading") ||
		strings.EqualFold(style, "title")
}

// isNameLine matches 2-4 title-cased words with no digits, the usual shape
// of a candidate's name or document title line.
func isNameLine(text string) bool {
	if len(text) > 48 || strings.ContainsAny(text, "0123456789@/") {
		return false
	}
	words := strings.Fields(text)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		r := []rune(w)
		if !unicode.IsUpper(r[0]) {
			return false
		}
	}
	return true
}

// isHeadingShape matches short run-in section labels: few words, no
// sentence-terminating punctuation.
func isHeadingShape(text string) bool {
	if len(text) > 48 {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	if strings.ContainsRune(".!?,;:", last) {
		return false
	}
	words := strings.Fields(text)
	if len(words) > 6 {
		return false
	}
	return isAllCaps(text) || allWordsTitleCased(words)
}

func isAllCaps(text string) bool {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func allWordsTitleCased(words []string) bool {
	for _, w := range words {
		r := []rune(w)
		if len(r) == 0 || !unicode.IsUpper(r[0]) {
			return false
		}
	}
	return len(words) > 0
}
