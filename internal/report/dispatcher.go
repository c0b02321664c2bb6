package report

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/time/rate"
)

// DispatchError wraps a failed send. It is counted and logged; it never
// propagates to the inbound HTTP caller and never affects sibling events.
type DispatchError struct {
	Environment string
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s failed: %v", e.Environment, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Sender delivers one report to a destination endpoint. The production
// implementation wraps a Sentry client (sentry.go); tests inject fakes.
type Sender interface {
	Send(ctx context.Context, event *ReportEvent) error
	Flush(timeout time.Duration) bool
}

// SenderFactory builds the sender for one destination at startup.
type SenderFactory func(dest Destination) (Sender, error)

// Options tunes the dispatcher.
type Options struct {
	// SendTimeout bounds each outbound send so a slow destination cannot
	// accumulate unbounded in-flight work.
	SendTimeout time.Duration
	// RateEvery/RateBurst cap the outbound report rate across all
	// destinations. Bursty batches queue behind the limiter instead of
	// hammering the reporting endpoints.
	RateEvery time.Duration
	RateBurst int
	// Debug enables destination client debug logging.
	Debug bool
	// Factory overrides the sender construction; nil means Sentry.
	Factory SenderFactory
}

// Dispatcher owns one sender per configured destination and delivers
// report events to them, isolating failures per event.
type Dispatcher struct {
	senders map[string]Sender
	limiter *rate.Limiter
	timeout time.Duration
	logger  *pterm.Logger

	dispatched atomic.Int64
	failed     atomic.Int64
}

// NewDispatcher builds the per-destination senders from the mapping. A
// destination whose client cannot be constructed fails startup; the
// self-check mode relies on that.
func NewDispatcher(mapping *Mapping, opts Options, logger *pterm.Logger) (*Dispatcher, error) {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.RateEvery <= 0 {
		opts.RateEvery = 10 * time.Millisecond
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 50
	}
	factory := opts.Factory
	if factory == nil {
		factory = func(dest Destination) (Sender, error) {
			return newSentrySender(dest, opts.Debug)
		}
	}

	senders := make(map[string]Sender, mapping.Len())
	for _, dest := range mapping.Destinations() {
		sender, err := factory(dest)
		if err != nil {
			return nil, fmt.Errorf("failed to build sender for environment %q: %w", dest.Environment, err)
		}
		senders[dest.Token] = sender
		logger.Info("Configured report destination",
			logger.Args("token", dest.Token, "environment", dest.Environment))
	}

	return &Dispatcher{
		senders: senders,
		limiter: rate.NewLimiter(rate.Every(opts.RateEvery), opts.RateBurst),
		timeout: opts.SendTimeout,
		logger:  logger,
	}, nil
}

// Dispatch sends one report event to its destination. A failure is
// counted, logged and returned as *DispatchError; callers must not let it
// affect other events.
func (d *Dispatcher) Dispatch(ctx context.Context, event *ReportEvent) error {
	sender, ok := d.senders[event.Destination.Token]
	if !ok {
		return &UnknownSourceError{Token: event.Destination.Token}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		d.failed.Add(1)
		d.logger.Warn("Dropped report waiting for outbound rate limiter",
			d.logger.Args("environment", event.Destination.Environment, "error", err))
		return &DispatchError{Environment: event.Destination.Environment, Err: err}
	}

	if err := sender.Send(ctx, event); err != nil {
		d.failed.Add(1)
		d.logger.Warn("Failed to deliver report",
			d.logger.Args(
				"environment", event.Destination.Environment,
				"kind", event.Kind,
				"error", err,
			))
		return &DispatchError{Environment: event.Destination.Environment, Err: err}
	}

	d.dispatched.Add(1)
	d.logger.Debug("Report dispatched",
		d.logger.Args(
			"environment", event.Destination.Environment,
			"kind", event.Kind,
			"fingerprint", event.Fingerprint,
		))
	return nil
}

// Counts returns the lifetime dispatched and failed totals.
func (d *Dispatcher) Counts() (dispatched, failed int64) {
	return d.dispatched.Load(), d.failed.Load()
}

// Flush gives every destination client a chance to drain queued events,
// bounded by timeout. Used during graceful shutdown.
func (d *Dispatcher) Flush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for token, sender := range d.senders {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			d.logger.Warn("Shutdown flush budget exhausted before all destinations drained")
			return
		}
		if !sender.Flush(remaining) {
			d.logger.Warn("Destination did not drain before shutdown", d.logger.Args("token", token))
		}
	}
}
