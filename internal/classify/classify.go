// Package classify decides which parsed log lines are worth reporting.
// Classification is pure: the same input always yields the same result,
// and nothing here performs I/O.
package classify

import (
	"drainwatch/internal/parser/router"
)

// TimeoutCode is the platform's request-timeout signal. The platform owns
// the timeout policy, so classification trusts this code and never
// inspects duration thresholds itself.
const TimeoutCode = "H12"

// TimeoutEvent is a router entry confirmed to be a request timeout,
// together with the normalized path template filled in by the pipeline
// before dispatch.
type TimeoutEvent struct {
	Entry          *router.Entry
	NormalizedPath string
}

// Timeout returns the entry wrapped as a TimeoutEvent when its error code
// is the platform timeout signal. Ordinary error statuses (plain 5xx
// without the timeout code) are not timeouts.
func Timeout(entry *router.Entry) (*TimeoutEvent, bool) {
	if entry == nil || entry.Code != TimeoutCode {
		return nil, false
	}
	return &TimeoutEvent{Entry: entry}, true
}
