package router

import (
	"fmt"
	"time"
)

// Origin identifies who emitted a drain frame.
type Origin int

const (
	// OriginUnknown is any source name we do not recognize.
	OriginUnknown Origin = iota
	// OriginPlatform is the platform itself (router, dyno runtime).
	OriginPlatform
	// OriginApp is application stdout/stderr.
	OriginApp
)

// Line is the syslog envelope of one drain frame: everything before the
// free-form message, plus the message itself.
type Line struct {
	Timestamp time.Time
	Origin    Origin
	// Process is the emitting process, e.g. "router", "web.1", "api".
	Process string
	// Text is the message after the envelope. May be empty.
	Text string
}

// Entry is a fully parsed router log line. An Entry is either well formed
// (all required keys present and parseable) or it is never produced.
type Entry struct {
	Timestamp time.Time

	// Request info
	Method string
	Path   string
	Host   string

	// Outcome: Status is the numeric HTTP status (0 when absent),
	// Code the platform's symbolic error code ("H12" etc., empty when none).
	Status int
	Code   string
	Desc   string

	// Elapsed phases in milliseconds.
	ConnectMs float64
	ServiceMs float64

	// Identifiers
	Dyno      string
	RequestID string
	Fwd       string

	// Attrs keeps every key=value pair of the line, including keys we do
	// not interpret. Unknown keys are preserved but never required.
	Attrs map[string]string
}

// ClientIP returns the first forwarded client address of the entry, or ""
// when the router did not record one.
func (e *Entry) ClientIP() string {
	if e.Fwd == "" {
		return ""
	}
	for i := 0; i < len(e.Fwd); i++ {
		if e.Fwd[i] == ',' {
			return e.Fwd[:i]
		}
	}
	return e.Fwd
}

// DynoError is a platform runtime error line, e.g.
// "Error R10 (Boot timeout) -> Web process failed to bind to $PORT ...".
type DynoError struct {
	Code   string
	Name   string
	Detail string
}

// ProcScale is one element of a scaling event, e.g. "web@4:Standard-1X".
type ProcScale struct {
	Proc  string
	Count int
	Size  string
}

// ScalingEvent is a formation change line:
// "Scaled to web@4:Standard-1X worker@3:Standard-2X by user ...".
type ScalingEvent struct {
	Procs []ProcScale
	User  string
}

// ExtractionError reports a router line whose required fields are missing
// or unparseable. Such lines are dropped and logged; they never fail the
// batch they arrived in.
type ExtractionError struct {
	Field  string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("router entry field %q: %s", e.Field, e.Reason)
}
