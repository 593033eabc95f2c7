// Package detector guesses whether a fetched page renders its content with
// JavaScript, in which case a static fetch cannot see the price.
package detector

import (
	"bytes"
	"net/http"
)

// DefaultThreshold is the body size below which a script-heavy page is
// considered a client-rendered shell.
const DefaultThreshold = 2048

// Heuristic promotes pages that look like single-page-app shells.
type Heuristic struct {
	threshold int
}

// NewHeuristic creates a detector. A non-positive threshold uses
// DefaultThreshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Heuristic{threshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="__nuxt"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version="),
}

// ShouldPromote reports whether body, served with the given status, should
// be fetched again through a headless browser.
func (h *Heuristic) ShouldPromote(status int, body []byte) bool {
	if status != 0 && status != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	if len(lower) < h.threshold && scriptShare(lower) >= 25 {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, bytes.ToLower(marker)) {
			return true
		}
	}
	return false
}

// scriptShare returns the percentage of body covered by <script> elements.
// body must already be lower-cased.
func scriptShare(body []byte) int {
	total := len(body)
	if total == 0 {
		return 0
	}
	openTag := []byte("<script")
	closeTag := []byte("</script>")

	covered := 0
	pos := 0
	for pos < total {
		rel := bytes.Index(body[pos:], openTag)
		if rel < 0 {
			break
		}
		start := pos + rel
		end := total
		if gt := bytes.IndexByte(body[start:], '>'); gt >= 0 {
			contentStart := start + gt + 1
			if c := bytes.Index(body[contentStart:], closeTag); c >= 0 {
				end = contentStart + c + len(closeTag)
			}
		}
		covered += end - start
		pos = end
	}
	return covered * 100 / total
}
