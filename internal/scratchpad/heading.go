package scratchpad

import "strings"

// DefaultHeadings are the title lines recognized when no list is configured.
var DefaultHeadings = []string{"# Scratchpad", "# ✏️ Scratchpad"}

// MatchHeading reports whether line is one of the accepted headings, ignoring case and
// surrounding whitespace.
func MatchHeading(line string, accepted []string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	for _, h := range accepted {
		if strings.EqualFold(line, strings.TrimSpace(h)) {
			return true
		}
	}
	return false
}

// StripHeading splits content into its heading line and the remaining body. The heading
// is only recognized on the first non-empty line; it is returned as written (trimmed) and
// removed together with the blank lines around it. Content without an accepted heading
// is returned unchanged with an empty heading.
func StripHeading(content string, accepted []string) (heading, body string) {
	rest := content
	for {
		line, tail, found := strings.Cut(rest, "\n")
		if strings.TrimSpace(line) != "" {
			if !MatchHeading(line, accepted) {
				return "", content
			}
			heading = strings.TrimSpace(line)
			if !found {
				return heading, ""
			}
			return heading, skipBlankLines(tail)
		}
		if !found {
			return "", content
		}
		rest = tail
	}
}

// AttachHeading prepends heading followed by a blank line. An empty body persists the
// heading alone.
func AttachHeading(body, heading string) string {
	if heading == "" {
		return body
	}
	if body == "" {
		return heading
	}
	return heading + "\n\n" + body
}

func skipBlankLines(s string) string {
	for {
		line, tail, found := strings.Cut(s, "\n")
		if !found || strings.TrimSpace(line) != "" {
			if !found && strings.TrimSpace(line) == "" {
				return ""
			}
			return s
		}
		s = tail
	}
}
