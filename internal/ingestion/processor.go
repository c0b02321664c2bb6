package ingestion

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"drainwatch/internal/classify"
	"drainwatch/internal/drain"
	"drainwatch/internal/enrichment"
	"drainwatch/internal/metrics"
	"drainwatch/internal/normalize"
	"drainwatch/internal/parser/router"
	"drainwatch/internal/report"

	"github.com/pterm/pterm"
)

// Processor runs the frame pipeline for inbound drain batches: extract,
// classify, normalize, resolve, dispatch. Frames within a batch are
// independent, so they fan out over a bounded worker pool; one bad frame
// never affects its siblings.
type Processor struct {
	parser         *router.Parser
	normalizer     *normalize.Normalizer
	mapping        *report.Mapping
	dispatcher     *report.Dispatcher
	metrics        *metrics.Forwarder
	geoIP          *enrichment.GeoIPEnricher
	logger         *pterm.Logger
	workerPoolSize int

	// wg tracks in-flight batches so shutdown can drain them.
	wg sync.WaitGroup

	// Statistics
	framesSeen     atomic.Int64
	entriesDropped atomic.Int64
	timeoutsSeen   atomic.Int64
	unmapped       atomic.Int64
	dynoErrors     atomic.Int64
}

// Stats is a snapshot of pipeline counters, served by the stats endpoint.
type Stats struct {
	FramesSeen     int64 `json:"frames_seen"`
	EntriesDropped int64 `json:"entries_dropped"`
	Timeouts       int64 `json:"timeouts"`
	DynoErrors     int64 `json:"dyno_errors"`
	UnmappedEvents int64 `json:"unmapped_events"`
	Dispatched     int64 `json:"dispatched"`
	DispatchFailed int64 `json:"dispatch_failed"`
}

// NewProcessor wires the pipeline. metricsFwd and geoIP may be nil; both
// are optional enrichments and nil disables them.
func NewProcessor(
	parser *router.Parser,
	normalizer *normalize.Normalizer,
	mapping *report.Mapping,
	dispatcher *report.Dispatcher,
	metricsFwd *metrics.Forwarder,
	geoIP *enrichment.GeoIPEnricher,
	logger *pterm.Logger,
	workerPoolSize int,
) *Processor {
	if workerPoolSize <= 0 {
		workerPoolSize = 4
	}
	return &Processor{
		parser:         parser,
		normalizer:     normalizer,
		mapping:        mapping,
		dispatcher:     dispatcher,
		metrics:        metricsFwd,
		geoIP:          geoIP,
		logger:         logger,
		workerPoolSize: workerPoolSize,
	}
}

// Enqueue hands a decoded batch to the pipeline without blocking the HTTP
// handler. The batch is processed on background workers; the caller has
// already acknowledged the sender by the time processing runs.
func (p *Processor) Enqueue(token string, frames []drain.Frame) {
	if len(frames) == 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.ProcessBatch(context.Background(), token, frames)
	}()
}

// ProcessBatch fans the batch out over the worker pool and waits for it.
// Frame outcomes are self-contained; no ordering is guaranteed or needed.
func (p *Processor) ProcessBatch(ctx context.Context, token string, frames []drain.Frame) {
	p.framesSeen.Add(int64(len(frames)))

	workers := p.workerPoolSize
	if workers > len(frames) {
		workers = len(frames)
	}

	jobs := make(chan drain.Frame)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for frame := range jobs {
				p.processFrame(ctx, token, frame)
			}
		}()
	}

	for _, frame := range frames {
		jobs <- frame
	}
	close(jobs)
	wg.Wait()

	p.logger.Debug("Processed drain batch",
		p.logger.Args("frames", len(frames), "token", token))
}

// processFrame runs one frame through extract -> classify -> normalize ->
// resolve -> dispatch. Every failure is contained at frame granularity.
func (p *Processor) processFrame(ctx context.Context, token string, frame drain.Frame) {
	line, err := p.parser.ParseLine(frame.Raw)
	if err != nil {
		// Not an enveloped log frame. Nothing to do.
		p.logger.Trace("Skipping unparseable frame", p.logger.Args("error", err))
		return
	}

	if router.IsRouterLine(line) {
		p.processRouterLine(ctx, token, line)
		return
	}
	p.processOtherLine(ctx, token, line)
}

// processRouterLine is the core timeout path.
func (p *Processor) processRouterLine(ctx context.Context, token string, line *router.Line) {
	entry, err := p.parser.ParseEntry(line)
	if err != nil {
		// Malformed single entry: dropped and logged, never surfaced to
		// the sender. Sibling frames keep processing.
		p.entriesDropped.Add(1)
		p.logger.Debug("Dropped malformed router entry", p.logger.Args("error", err))
		return
	}

	event, ok := classify.Timeout(entry)
	if !ok {
		return
	}
	p.timeoutsSeen.Add(1)

	event.NormalizedPath = p.normalizer.Normalize(entry.Path)

	dest, err := p.mapping.Resolve(token)
	if err != nil {
		// Unknown source: the batch was already acknowledged; this shows
		// up only in our own counters and logs.
		p.unmapped.Add(1)
		p.logger.Debug("No destination for timeout event", p.logger.Args("token", token))
		return
	}

	var loc *enrichment.Location
	if l, ok := p.geoIP.Lookup(entry.ClientIP()); ok {
		loc = &l
	}

	// Dispatch errors are counted and logged by the dispatcher itself.
	_ = p.dispatcher.Dispatch(ctx, report.NewTimeoutReport(event, dest, loc))
}

// processOtherLine handles the supplementary platform signals: dyno error
// codes, scaling events and runtime samples. App stdout that matches none
// of these is skipped silently.
func (p *Processor) processOtherLine(ctx context.Context, token string, line *router.Line) {
	if line.Origin == router.OriginPlatform {
		if dynoErr, ok := p.parser.ParseDynoError(line.Text); ok {
			p.dynoErrors.Add(1)
			dest, err := p.mapping.Resolve(token)
			if err != nil {
				p.unmapped.Add(1)
				return
			}
			_ = p.dispatcher.Dispatch(ctx, report.NewDynoErrorReport(dynoErr, line.Process, dest))
			return
		}
	}

	if event, ok := router.ParseScaling(line.Text); ok {
		p.metrics.RecordScaling(event, line.Timestamp)
		return
	}

	if line.Origin == router.OriginPlatform {
		if pairs := router.ParsePairs(line.Text); pairs != nil {
			process := pairs["source"]
			if process == "" {
				process = line.Process
			}
			p.metrics.RecordSamples(process, pairs, line.Timestamp)
		}
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Processor) Stats() Stats {
	dispatched, failed := p.dispatcher.Counts()
	return Stats{
		FramesSeen:     p.framesSeen.Load(),
		EntriesDropped: p.entriesDropped.Load(),
		Timeouts:       p.timeoutsSeen.Load(),
		DynoErrors:     p.dynoErrors.Load(),
		UnmappedEvents: p.unmapped.Load(),
		Dispatched:     dispatched,
		DispatchFailed: failed,
	}
}

// Wait blocks until all in-flight batches finish or the timeout elapses.
// Returns false when the timeout hit first.
func (p *Processor) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
