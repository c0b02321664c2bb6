package report

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// sentrySender delivers reports through one Sentry client per destination.
// The Sentry transport owns batching and retries; this wrapper only builds
// the scope and bounds the flush.
type sentrySender struct {
	client *sentry.Client
}

func newSentrySender(dest Destination, debug bool) (Sender, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dest.DSN,
		Environment: dest.Environment,
		Debug:       debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &sentrySender{client: client}, nil
}

func (s *sentrySender) Send(ctx context.Context, event *ReportEvent) error {
	scope := sentry.NewScope()
	scope.SetLevel(sentry.LevelError)
	scope.SetFingerprint(event.Fingerprint)
	for key, value := range event.Tags {
		scope.SetTag(key, value)
	}
	if len(event.Context) > 0 {
		scope.SetContext("router_log", sentry.Context(event.Context))
	}

	hub := sentry.NewHub(s.client, scope)
	hub.CaptureMessage(event.Message)

	// Capture only queues; flushing within the send budget is what tells
	// us the event actually left the process.
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	if !hub.Flush(timeout) {
		return fmt.Errorf("flush timed out after %s", timeout)
	}
	return nil
}

func (s *sentrySender) Flush(timeout time.Duration) bool {
	return s.client.Flush(timeout)
}
