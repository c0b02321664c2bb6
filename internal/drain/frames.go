package drain

import (
	"fmt"
	"strings"
)

// TokenHeader is the request header carrying the drain token that
// identifies which application's traffic a payload belongs to.
const TokenHeader = "Logplex-Drain-Token"

// ContentTypeLogplex is the content type Heroku uses for octet-counted
// drain payloads.
const ContentTypeLogplex = "application/logplex-1"

// Framing selects how a drain body is split into frames.
type Framing int

const (
	// FramingOctetCounted is syslog octet framing: each frame is prefixed
	// with its decimal byte length and a single space.
	FramingOctetCounted Framing = iota
	// FramingDelimited splits frames on newlines. Used as a fallback for
	// senders that do not octet-frame their payloads.
	FramingDelimited
)

// Frame is one self-contained unit of log data within a drain payload.
// The raw text still carries the syslog envelope; the router parser
// strips that later.
type Frame struct {
	Raw string
	// Length is the declared octet count for octet-counted framing,
	// 0 for delimited framing.
	Length int
}

// FramingError reports a malformed frame boundary. Frames decoded before
// the error are still returned to the caller and must still be processed.
type FramingError struct {
	Offset int
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error at byte %d: %s", e.Offset, e.Reason)
}

// DetectFraming picks the framing rule for a request content type.
func DetectFraming(contentType string) Framing {
	if strings.HasPrefix(strings.ToLower(contentType), ContentTypeLogplex) {
		return FramingOctetCounted
	}
	return FramingDelimited
}

// Decode splits a drain body into frames in a single pass.
//
// On a framing failure it returns the frames decoded so far together with a
// *FramingError describing where decoding stopped. The caller is expected to
// process the partial batch and report the error to the sender.
func Decode(body []byte, framing Framing) ([]Frame, error) {
	if framing == FramingDelimited {
		return decodeDelimited(body), nil
	}
	return decodeOctetCounted(body)
}

// decodeOctetCounted parses "<len> <frame>" repeated until body end.
func decodeOctetCounted(body []byte) ([]Frame, error) {
	var frames []Frame
	pos := 0

	for pos < len(body) {
		// Tolerate blank separators between frames.
		for pos < len(body) && (body[pos] == '\n' || body[pos] == '\r' || body[pos] == ' ') {
			pos++
		}
		if pos >= len(body) {
			break
		}

		start := pos
		length := 0
		digits := 0
		for pos < len(body) && body[pos] >= '0' && body[pos] <= '9' {
			length = length*10 + int(body[pos]-'0')
			digits++
			pos++
		}
		if digits == 0 {
			return frames, &FramingError{Offset: start, Reason: "expected decimal frame length"}
		}
		if pos >= len(body) || body[pos] != ' ' {
			return frames, &FramingError{Offset: pos, Reason: "expected space after frame length"}
		}
		pos++

		if length <= 0 {
			return frames, &FramingError{Offset: start, Reason: "frame length must be positive"}
		}
		if pos+length > len(body) {
			return frames, &FramingError{
				Offset: pos,
				Reason: fmt.Sprintf("declared length %d exceeds remaining %d bytes", length, len(body)-pos),
			}
		}

		frames = append(frames, Frame{Raw: string(body[pos : pos+length]), Length: length})
		pos += length
	}

	return frames, nil
}

// decodeDelimited splits on newlines, skipping empty lines.
func decodeDelimited(body []byte) []Frame {
	var frames []Frame
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		frames = append(frames, Frame{Raw: line})
	}
	return frames
}
