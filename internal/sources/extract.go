// Package sources separates human-readable assistant text from the trailing
// citation payload the model appends using the SOURCES_START/SOURCES_END
// wire convention. It is called on every streaming frame, so the common case
// (no marker yet) must stay cheap and partial payloads must never leak into
// the display text.
package sources

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/om01deshmukh/Atheron-AI/internal/domain"
)

const (
	StartMarker = "<!-- SOURCES_START -->"
	EndMarker   = "<!-- SOURCES_END -->"
)

var (
	blockRe    = regexp.MustCompile(`(?s)<!-- SOURCES_START -->(.*?)<!-- SOURCES_END -->`)
	citationRe = regexp.MustCompile(`\[\d+\]`)
	spacesRe   = regexp.MustCompile(`  +`)
)

// Extract returns the cleaned display text and the parsed source list for a
// possibly-partial assistant buffer. Malformed citation JSON is swallowed:
// sources stay empty and the marker block is still stripped. An opened but
// unterminated start marker hides everything from the marker onward so raw
// payload never flashes while the block is still arriving.
func Extract(content string) (string, []domain.Source) {
	if !strings.Contains(content, StartMarker) {
		return cleanup(content), nil
	}

	var parsed []domain.Source
	if m := blockRe.FindStringSubmatch(content); m != nil {
		inner := strings.TrimSpace(m[1])
		if inner != "" && strings.HasPrefix(inner, "[") {
			// Best-effort parse: bad JSON never breaks rendering.
			if err := json.Unmarshal([]byte(inner), &parsed); err != nil {
				parsed = nil
			}
		}
	}

	clean := blockRe.ReplaceAllString(content, "")

	// Still streaming: the end marker has not arrived yet.
	if i := strings.Index(clean, StartMarker); i >= 0 {
		clean = clean[:i]
	}

	return cleanup(clean), parsed
}

// cleanup strips inline citation markers like [1] and collapses the double
// spaces they leave behind.
func cleanup(s string) string {
	s = citationRe.ReplaceAllString(s, "")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
