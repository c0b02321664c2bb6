package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"drainwatch/internal/parser/router"
)

// samplePrefix marks runtime metric keys in platform log lines, e.g.
// "sample#memory_total=221.47MB".
const samplePrefix = "sample#"

// defaultResendInterval re-emits the last scaling gauges so dashboards do
// not read the formation as zero between scaling events.
const defaultResendInterval = 10 * time.Second

// Forwarder turns parsed platform lines into Graphite measurements.
// A nil *Forwarder is valid and drops everything, so the pipeline does not
// branch on whether metrics are configured.
type Forwarder struct {
	client *GraphiteClient
	logger *pterm.Logger

	resendEvery time.Duration

	mu          sync.Mutex
	lastScaling []router.ProcScale
}

// NewForwarder wires a forwarder to a Graphite client.
func NewForwarder(client *GraphiteClient, resendEvery time.Duration, logger *pterm.Logger) *Forwarder {
	if resendEvery <= 0 {
		resendEvery = defaultResendInterval
	}
	return &Forwarder{client: client, logger: logger, resendEvery: resendEvery}
}

// RecordScaling emits one gauge per process of a formation change and
// remembers the event for periodic re-sending.
func (f *Forwarder) RecordScaling(event *router.ScalingEvent, at time.Time) {
	if f == nil || event == nil {
		return
	}

	f.mu.Lock()
	f.lastScaling = append([]router.ProcScale(nil), event.Procs...)
	f.mu.Unlock()

	f.emitScaling(event.Procs, at)
	f.logger.Debug("Recorded scaling event",
		f.logger.Args("procs", len(event.Procs), "user", event.User))
}

// RecordSamples emits the sample# metrics of one platform runtime line.
// process is the emitting process ("web.1"); values keep their numeric
// prefix and drop the unit suffix ("221.47MB" -> 221.47).
func (f *Forwarder) RecordSamples(process string, pairs map[string]string, at time.Time) {
	if f == nil || len(pairs) == 0 {
		return
	}

	for key, raw := range pairs {
		name, ok := strings.CutPrefix(key, samplePrefix)
		if !ok {
			continue
		}
		value, ok := parseSampleValue(raw)
		if !ok {
			f.logger.Trace("Skipping unparseable sample value",
				f.logger.Args("key", key, "value", raw))
			continue
		}
		f.client.Add(Measurement{
			Name:  "dyno." + process + "." + name,
			Value: value,
			Time:  at,
		})
	}
}

// emitScaling sends one "scaling.<proc>" gauge per process.
func (f *Forwarder) emitScaling(procs []router.ProcScale, at time.Time) {
	for _, proc := range procs {
		f.client.Add(Measurement{
			Name:  "scaling." + proc.Proc,
			Value: float64(proc.Count),
			Time:  at,
		})
	}
}

// Run re-sends the last scaling gauges until done is closed.
func (f *Forwarder) Run(done <-chan struct{}) {
	if f == nil {
		return
	}

	ticker := time.NewTicker(f.resendEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				f.mu.Lock()
				procs := append([]router.ProcScale(nil), f.lastScaling...)
				f.mu.Unlock()
				if len(procs) == 0 {
					continue
				}
				f.emitScaling(procs, time.Now())
				f.logger.Trace("Re-sent scaling gauges", f.logger.Args("procs", len(procs)))
			}
		}
	}()
}

// Shutdown drains the underlying client queue.
func (f *Forwarder) Shutdown(timeout time.Duration) {
	if f == nil {
		return
	}
	f.client.Shutdown(timeout)
}

// parseSampleValue extracts the leading numeric part of a sample value,
// e.g. "184.68MB" -> 184.68, "149293pages" -> 149293.
func parseSampleValue(s string) (float64, bool) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9') {
			i++
			continue
		}
		break
	}
	if i == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
