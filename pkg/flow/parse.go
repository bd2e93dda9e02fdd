package flow

import (
	"fmt"
	"strings"

	"confessd/pkg/models"
)

// DefaultLinkLabel substitutes for a missing label half in a link line.
const DefaultLinkLabel = "Open"

// ValidURL reports whether s starts with a recognized link scheme.
func ValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "tg://")
}

// ParseLinkLines parses an optional hyperlink block: one link per line,
// each 'label - url'. A line holding only a URL gets the generic default
// label. Blank lines are skipped; a line without a valid URL fails the
// whole block.
func ParseLinkLines(text string) ([]models.Link, error) {
	var out []models.Link
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, url, found := strings.Cut(line, " - ")
		if !found {
			// tolerate a bare URL with no label half
			label, url = DefaultLinkLabel, line
		}
		label = strings.TrimSpace(label)
		url = strings.TrimSpace(url)
		if label == "" {
			label = DefaultLinkLabel
		}
		if !ValidURL(url) {
			return nil, fmt.Errorf("line %q has no valid url", line)
		}
		out = append(out, models.Link{Label: label, URL: url})
	}
	return out, nil
}
