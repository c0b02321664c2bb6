package report

import (
	"fmt"

	"drainwatch/internal/classify"
	"drainwatch/internal/enrichment"
	"drainwatch/internal/parser/router"
)

// Report kinds. The kind participates in the fingerprint so different
// failure classes never group into one issue.
const (
	KindRequestTimeout = "request-timeout"
	KindDynoError      = "dyno-error"
)

// ReportEvent is the outbound payload handed to a destination. It is built
// by the dispatcher's callers and owned by the dispatch call until the send
// completes or fails; nothing is persisted locally.
type ReportEvent struct {
	Kind        string
	Message     string
	Fingerprint []string
	Tags        map[string]string
	Context     map[string]any
	Destination Destination
}

// NewTimeoutReport builds the report for one classified timeout. The
// fingerprint is derived from method, normalized path and the timeout code
// so the destination's own deduplication groups repeated occurrences.
func NewTimeoutReport(event *classify.TimeoutEvent, dest Destination, loc *enrichment.Location) *ReportEvent {
	entry := event.Entry

	tags := map[string]string{
		"transaction": event.NormalizedPath,
		"method":      entry.Method,
	}
	if entry.Host != "" {
		tags["url"] = fmt.Sprintf("https://%s%s", entry.Host, entry.Path)
	}
	if entry.Dyno != "" {
		tags["dyno"] = entry.Dyno
	}

	context := map[string]any{
		"path":            entry.Path,
		"normalized_path": event.NormalizedPath,
		"service_ms":      entry.ServiceMs,
		"connect_ms":      entry.ConnectMs,
		"status":          entry.Status,
		"code":            entry.Code,
	}
	if entry.RequestID != "" {
		context["request_id"] = entry.RequestID
	}
	if entry.Dyno != "" {
		context["dyno"] = entry.Dyno
	}
	if ip := entry.ClientIP(); ip != "" {
		context["client_ip"] = ip
	}
	if loc != nil {
		context["client_country"] = loc.CountryCode
		if loc.City != "" {
			context["client_city"] = loc.City
		}
	}

	return &ReportEvent{
		Kind:        KindRequestTimeout,
		Message:     fmt.Sprintf("request timeout on %s", entry.Path),
		Fingerprint: []string{entry.Method, event.NormalizedPath, entry.Code},
		Tags:        tags,
		Context:     context,
		Destination: dest,
	}
}

// NewDynoErrorReport builds the report for a platform runtime error line
// such as "Error R10 (Boot timeout)". Grouping is per error code and
// process, not per occurrence.
func NewDynoErrorReport(dynoErr *router.DynoError, process string, dest Destination) *ReportEvent {
	context := map[string]any{
		"code": dynoErr.Code,
		"name": dynoErr.Name,
	}
	if dynoErr.Detail != "" {
		context["detail"] = dynoErr.Detail
	}
	if process != "" {
		context["process"] = process
	}

	return &ReportEvent{
		Kind:        KindDynoError,
		Message:     fmt.Sprintf("dyno error %s (%s)", dynoErr.Code, dynoErr.Name),
		Fingerprint: []string{KindDynoError, dynoErr.Code},
		Tags:        map[string]string{"dyno_error": dynoErr.Code},
		Context:     context,
		Destination: dest,
	}
}
