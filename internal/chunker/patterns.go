package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	markdownHeading = regexp.MustCompile(`^#{1,6}\s+(.+?)(?:\s+#+)?\s*$`)
	chapterHeading  = regexp.MustCompile(`(?i)^(chapter|section)\s+(\d+|[ivxlcdm]+)\b`)
	numberedHeading = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\p{Lu}[^.!?]*$`)
	numberedItem    = regexp.MustCompile(`^(\d+|[a-zA-Z])[.)]$`)
)

const (
	maxHeadingRunes = 80
	maxCapsRunes    = 60
	maxCapsWords    = 8
	maxColonRunes   = 60
	maxColonWords   = 6
	maxNumberedWord = 10
)

// headingTitle reports whether line starts a new section and returns the
// section title derived from it.
func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	runes := utf8.RuneCountInString(trimmed)
	words := len(strings.Fields(trimmed))

	if m := markdownHeading.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if runes <= maxHeadingRunes && chapterHeading.MatchString(trimmed) {
		return trimmed, true
	}
	if runes <= maxHeadingRunes && words <= maxNumberedWord && numberedHeading.MatchString(trimmed) {
		return trimmed, true
	}
	if runes <= maxCapsRunes && words <= maxCapsWords && isAllCaps(trimmed) {
		return trimmed, true
	}
	if runes <= maxColonRunes && words <= maxColonWords && strings.HasSuffix(trimmed, ":") && !isListLine(trimmed) {
		return strings.TrimSpace(strings.TrimSuffix(trimmed, ":")), true
	}
	return "", false
}

// isAllCaps is true for lines with at least two letters, none lowercase.
func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if unicode.IsLower(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

func isListLine(s string) bool {
	first := strings.Fields(s)[0]
	return isListMarker(first)
}

// isListMarker matches bullets and numbered item markers: "-", "*", "•", "1.", "a)".
func isListMarker(word string) bool {
	switch word {
	case "-", "*", "•", "–", "+":
		return true
	}
	return numberedItem.MatchString(word)
}

func trimClosers(word string) string {
	return strings.TrimRight(word, "\"')]}»”’")
}

func isSentenceEnd(word string) bool {
	w := trimClosers(word)
	if w == "" {
		return false
	}
	switch w[len(w)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func startsUpper(word string) bool {
	for _, r := range word {
		if unicode.IsLetter(r) {
			return unicode.IsUpper(r)
		}
		if unicode.IsDigit(r) {
			return false
		}
	}
	return false
}

func isListIntroducer(word, next string) bool {
	return strings.HasSuffix(trimClosers(word), ":") && isListMarker(next)
}

// isHeadingToken matches a word that opens a heading inside running text.
func isHeadingToken(word, next string) bool {
	if strings.HasPrefix(word, "#") {
		return true
	}
	switch strings.ToLower(word) {
	case "chapter", "section":
		return next != "" && unicode.IsDigit([]rune(next)[0])
	}
	return false
}
