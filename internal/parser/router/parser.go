package router

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
)

// Envelope pattern for a logplex frame:
// [octet count] <pri>version timestamp hostname appname procid - message
// The leading octet count is optional so that already-unframed payloads
// (newline-delimited drains) parse the same way.
const envelopePattern = `^\s*(?:\d+ )?<\d+>\d+ (\S+) (\S+) (\S+) (\S+) -\s?(.*)$`

// Dyno runtime error pattern:
// Error R10 (Boot timeout) -> Web process failed to bind to $PORT ...
const dynoErrorPattern = `^\s*Error ([A-Z]\d{2}) \(([^)]+)\)(?:\s*->\s*(.*))?$`

// routerProcess is the procid the platform router logs under.
const routerProcess = "router"

// Parser turns drain frames into router log entries. It recognizes only
// frames carrying the platform router's structured prefix; app stdout and
// platform lifecycle frames are skipped, not errors.
type Parser struct {
	logger        *pterm.Logger
	envelopeRegex *regexp.Regexp
	dynoErrRegex  *regexp.Regexp
}

// NewParser creates a new router log parser instance.
func NewParser(logger *pterm.Logger) *Parser {
	return &Parser{
		logger:        logger,
		envelopeRegex: regexp.MustCompile(envelopePattern),
		dynoErrRegex:  regexp.MustCompile(dynoErrorPattern),
	}
}

// Name returns the parser identifier.
func (p *Parser) Name() string {
	return "router"
}

// ParseLine parses the syslog envelope of one frame.
func (p *Parser) ParseLine(raw string) (*Line, error) {
	matches := p.envelopeRegex.FindStringSubmatch(raw)
	if matches == nil {
		return nil, fmt.Errorf("frame does not match logplex envelope")
	}

	timestamp, err := time.Parse(time.RFC3339Nano, matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid frame timestamp %q: %w", matches[1], err)
	}

	origin := OriginUnknown
	switch matches[3] {
	case "heroku":
		origin = OriginPlatform
	case "app":
		origin = OriginApp
	}

	return &Line{
		Timestamp: timestamp,
		Origin:    origin,
		Process:   matches[4],
		Text:      matches[5],
	}, nil
}

// CanParse reports whether a frame is a platform router line.
func (p *Parser) CanParse(raw string) bool {
	line, err := p.ParseLine(raw)
	if err != nil {
		return false
	}
	return IsRouterLine(line)
}

// IsRouterLine reports whether an envelope belongs to the platform router.
func IsRouterLine(line *Line) bool {
	return line.Origin == OriginPlatform && line.Process == routerProcess
}

// Parse parses one frame into a router Entry. It returns (nil, nil) for
// frames that are not router lines; those are skipped silently upstream.
// A router line with missing or malformed required fields returns an
// *ExtractionError.
func (p *Parser) Parse(raw string) (*Entry, error) {
	line, err := p.ParseLine(raw)
	if err != nil {
		// Not even an enveloped frame. Treat like a non-router frame.
		p.logger.Trace("Skipping frame without logplex envelope",
			p.logger.Args("frame_preview", preview(raw)))
		return nil, nil
	}
	if !IsRouterLine(line) {
		return nil, nil
	}
	return p.ParseEntry(line)
}

// ParseEntry extracts the key=value attributes of a router line and
// validates the required fields: method, path, the service duration, and a
// status or symbolic error code.
func (p *Parser) ParseEntry(line *Line) (*Entry, error) {
	pairs := ParsePairs(line.Text)
	if len(pairs) == 0 {
		return nil, &ExtractionError{Field: "at", Reason: "no key=value pairs in router line"}
	}

	entry := &Entry{
		Timestamp: line.Timestamp,
		Method:    pairs["method"],
		Path:      pairs["path"],
		Host:      pairs["host"],
		Desc:      pairs["desc"],
		Dyno:      pairs["dyno"],
		RequestID: pairs["request_id"],
		Fwd:       pairs["fwd"],
		Attrs:     pairs,
	}

	if entry.Method == "" {
		return nil, &ExtractionError{Field: "method", Reason: "missing"}
	}
	if entry.Path == "" {
		return nil, &ExtractionError{Field: "path", Reason: "missing"}
	}

	service, ok := pairs["service"]
	if !ok {
		return nil, &ExtractionError{Field: "service", Reason: "missing"}
	}
	serviceMs, err := parseMs(service)
	if err != nil {
		return nil, &ExtractionError{Field: "service", Reason: err.Error()}
	}
	entry.ServiceMs = serviceMs

	if connect, ok := pairs["connect"]; ok {
		connectMs, err := parseMs(connect)
		if err != nil {
			return nil, &ExtractionError{Field: "connect", Reason: err.Error()}
		}
		entry.ConnectMs = connectMs
	}

	code := pairs["code"]
	status, hasStatus := pairs["status"]
	if code == "" && !hasStatus {
		return nil, &ExtractionError{Field: "status", Reason: "neither status nor code present"}
	}
	if code != "" {
		if !isErrorCode(code) {
			return nil, &ExtractionError{Field: "code", Reason: fmt.Sprintf("unrecognized error code %q", code)}
		}
		entry.Code = code
	}
	if hasStatus {
		n, err := strconv.Atoi(status)
		if err != nil {
			return nil, &ExtractionError{Field: "status", Reason: fmt.Sprintf("not an integer: %q", status)}
		}
		entry.Status = n
	}

	return entry, nil
}

// ParseDynoError parses a platform runtime error message out of a
// non-router line text. Returns false when the text is something else.
func (p *Parser) ParseDynoError(text string) (*DynoError, bool) {
	matches := p.dynoErrRegex.FindStringSubmatch(text)
	if matches == nil {
		return nil, false
	}
	return &DynoError{
		Code:   matches[1],
		Name:   matches[2],
		Detail: strings.TrimSpace(matches[3]),
	}, true
}

// ParseScaling parses a formation change message like
// "Scaled to web@4:Standard-1X worker@3:Standard-2X by user ops@example.com".
func ParseScaling(text string) (*ScalingEvent, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), "Scaled to ")
	if !ok {
		return nil, false
	}

	event := &ScalingEvent{}
	fields := strings.Fields(rest)
	i := 0
	for ; i < len(fields); i++ {
		proc, ok := parseProcScale(fields[i])
		if !ok {
			break
		}
		event.Procs = append(event.Procs, proc)
	}
	if len(event.Procs) == 0 {
		return nil, false
	}

	// The tail must be "by user <user>".
	if len(fields)-i != 3 || fields[i] != "by" || fields[i+1] != "user" {
		return nil, false
	}
	event.User = fields[i+2]
	return event, true
}

// parseProcScale parses a single "web@4:Standard-1X" element.
func parseProcScale(s string) (ProcScale, bool) {
	at := strings.IndexByte(s, '@')
	if at <= 0 {
		return ProcScale{}, false
	}
	colon := strings.IndexByte(s[at:], ':')
	if colon < 0 {
		return ProcScale{}, false
	}
	colon += at

	count, err := strconv.Atoi(s[at+1 : colon])
	if err != nil || count < 0 {
		return ProcScale{}, false
	}
	if s[colon+1:] == "" {
		return ProcScale{}, false
	}
	return ProcScale{Proc: s[:at], Count: count, Size: s[colon+1:]}, true
}

// ParsePairs extracts key=value attributes with a tolerant grammar: keys
// are bare identifiers (letters, digits, '-', '_', '#'), values are bare
// tokens or double-quoted strings with embedded spaces. Parsing stops at
// the first thing that is not a pair; the remainder is ignored.
func ParsePairs(text string) map[string]string {
	pairs := make(map[string]string)
	i := 0
	n := len(text)

	for i < n {
		for i < n && (text[i] == ' ' || text[i] == '\t') {
			i++
		}
		if i >= n {
			break
		}

		keyStart := i
		for i < n && isKeyChar(text[i]) {
			i++
		}
		if i == keyStart || i >= n || text[i] != '=' {
			break
		}
		key := text[keyStart:i]
		i++ // consume '='

		var value string
		if i < n && text[i] == '"' {
			i++
			valStart := i
			for i < n && text[i] != '"' {
				i++
			}
			if i >= n {
				// Unterminated quote: not a pair, stop here.
				break
			}
			value = text[valStart:i]
			i++ // consume closing quote
		} else {
			valStart := i
			for i < n && text[i] != ' ' && text[i] != '\t' {
				i++
			}
			value = text[valStart:i]
		}

		pairs[key] = value
	}

	if len(pairs) == 0 {
		return nil
	}
	return pairs
}

func isKeyChar(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == '#'
}

// parseMs parses an elapsed duration like "30000ms" or "2.5ms" into
// non-negative milliseconds. A bare number is accepted as milliseconds.
func parseMs(s string) (float64, error) {
	trimmed := strings.TrimSuffix(s, "ms")
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative duration: %q", s)
	}
	return v, nil
}

// isErrorCode reports whether s looks like a platform error code (H12,
// R10, L10, ...).
func isErrorCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	if s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	return s[1] >= '0' && s[1] <= '9' && s[2] >= '0' && s[2] <= '9'
}

func preview(s string) string {
	if len(s) > 150 {
		return s[:150] + "..."
	}
	return s
}
