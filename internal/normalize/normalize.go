// Package normalize rewrites request paths into stable grouping templates.
// Variable segments (numeric IDs, UUIDs, known opaque identifiers) are
// replaced with a placeholder so repeated timeouts on the same logical
// endpoint group into one reported issue instead of one per request.
package normalize

import (
	"regexp"
	"strings"
	"sync"

	"github.com/pterm/pterm"
)

// Placeholder replaces identifier-shaped path segments.
const Placeholder = ":id"

var (
	uuidRegex     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	projectRegex  = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{4}$`)
	offerRegex    = regexp.MustCompile(`^[0-9]+-[0-9]+$`)
	offerExtRegex = regexp.MustCompile(`^[0-9]+-[0-9]+-[A-Z]+$`)
)

// Normalizer applies the built-in segment rules plus any extra patterns
// loaded from a configuration file. The extra set is behind a RWMutex
// because it can be hot-reloaded (see patterns.go); the built-in rules
// never change.
type Normalizer struct {
	logger *pterm.Logger
	file   string

	mu    sync.RWMutex
	extra []*regexp.Regexp
}

// New creates a Normalizer. When patternsFile is non-empty the extra
// patterns are loaded immediately; a malformed file is a startup error so
// the self-check mode can catch it before a release is promoted.
func New(logger *pterm.Logger, patternsFile string) (*Normalizer, error) {
	n := &Normalizer{logger: logger, file: patternsFile}
	if patternsFile != "" {
		if err := n.Reload(); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Normalize rewrites a raw request path into its grouping template.
// The query string does not contribute to grouping and is dropped.
// Normalization is idempotent: placeholder segments pass through untouched.
func (n *Normalizer) Normalize(path string) string {
	if path == "" {
		return "/"
	}

	// The router logs the path together with the query; grouping must not
	// split on per-request query values.
	if idx := strings.IndexAny(path, "?#"); idx != -1 {
		path = path[:idx]
	}
	if path == "" {
		return "/"
	}

	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == "" || segment == Placeholder {
			continue
		}
		if n.isIdentifier(segment) {
			segments[i] = Placeholder
		}
	}
	return strings.Join(segments, "/")
}

// isIdentifier reports whether a path segment looks like a per-request
// identifier rather than a fixed route word. The rules are heuristics
// collected from real timeout traffic, not a guarantee.
func (n *Normalizer) isIdentifier(segment string) bool {
	if isNumeric(segment) {
		return true
	}
	if uuidRegex.MatchString(segment) {
		return true
	}
	if isSalesforceID(segment) {
		return true
	}
	if projectRegex.MatchString(segment) ||
		offerRegex.MatchString(segment) ||
		offerExtRegex.MatchString(segment) {
		return true
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, re := range n.extra {
		if re.MatchString(segment) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// isSalesforceID recognizes 15 and 18 character Salesforce record IDs.
// Ordinary words of the same length are excluded by requiring mixed case:
// an all-lowercase or all-uppercase token is not an ID.
func isSalesforceID(s string) bool {
	if len(s) != 15 && len(s) != 18 {
		return false
	}
	allLower := true
	allUpper := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			allUpper = false
		case c >= 'A' && c <= 'Z':
			allLower = false
		case c >= '0' && c <= '9':
			// digits make the token neither all-lower nor all-upper
			allLower = false
			allUpper = false
		default:
			return false
		}
	}
	return !allLower && !allUpper
}
