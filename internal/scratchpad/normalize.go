package scratchpad

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/gomarkdown/markdown"
)

// A list item holding only a checkbox, e.g. "- [ ]" or "* [x]".
var emptyChecklistItem = regexp.MustCompile(`^\s*[-*+]\s+\[[ xX]?\]\s*$`)

// Normalize prepares a draft for persisting: unix line endings, no checklist items
// without text, no leading blank lines and no trailing whitespace. Normalize is
// idempotent.
func Normalize(draft string) string {
	text := string(markdown.NormalizeNewlines([]byte(draft)))

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if emptyChecklistItem.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}

	text = strings.TrimRightFunc(strings.Join(kept, "\n"), unicode.IsSpace)
	return skipBlankLines(text)
}
