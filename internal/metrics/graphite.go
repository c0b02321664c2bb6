// Package metrics forwards platform runtime samples and formation changes
// to a hosted Graphite sink. Measurements are queued in memory and flushed
// in the background; losing a flush is acceptable, blocking the log
// pipeline is not.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// DefaultEndpoint is the hosted Graphite HTTP sink.
const DefaultEndpoint = "https://www.hostedgraphite.com/api/v1/sink"

const (
	// flushInterval forces a flush even when the queue stays short.
	flushInterval = time.Minute
	// flushAfterQueueLength triggers a flush on a busy queue.
	flushAfterQueueLength = 100
)

// Measurement is one named value at one point in time.
type Measurement struct {
	Name  string
	Value float64
	Time  time.Time
}

// String renders the Graphite plaintext form: "name value unix_ts".
func (m Measurement) String() string {
	return fmt.Sprintf("%s %v %d", m.Name, m.Value, m.Time.Unix())
}

// GraphiteClient queues measurements and sends them to the sink in
// background batches.
type GraphiteClient struct {
	apiKey   string
	endpoint string
	httpc    *http.Client
	logger   *pterm.Logger

	mu        sync.Mutex
	queue     []Measurement
	lastFlush time.Time

	// wg tracks in-flight background sends so shutdown can drain them.
	wg sync.WaitGroup
}

// NewGraphiteClient creates a client for the given API key. An empty
// endpoint selects the hosted sink; tests point it at a local server.
func NewGraphiteClient(apiKey, endpoint string, logger *pterm.Logger) *GraphiteClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &GraphiteClient{
		apiKey:    apiKey,
		endpoint:  endpoint,
		httpc:     &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
		queue:     make([]Measurement, 0, flushAfterQueueLength+1),
		lastFlush: time.Now(),
	}
}

// Add queues one measurement, flushing in the background when the queue is
// old or long enough.
func (c *GraphiteClient) Add(m Measurement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue = append(c.queue, m)
	if time.Since(c.lastFlush) <= flushInterval && len(c.queue) <= flushAfterQueueLength {
		return
	}
	c.flushLocked()
}

// flushLocked hands the current queue to a background send. Caller holds mu.
func (c *GraphiteClient) flushLocked() {
	if len(c.queue) == 0 {
		c.lastFlush = time.Now()
		return
	}

	batch := c.queue
	c.queue = make([]Measurement, 0, flushAfterQueueLength+1)
	c.lastFlush = time.Now()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.send(batch); err != nil {
			c.logger.Warn("Failed to send metrics batch",
				c.logger.Args("count", len(batch), "error", err))
		}
	}()
}

// send posts one batch in the Graphite plaintext protocol.
func (c *GraphiteClient) send(batch []Measurement) error {
	var body strings.Builder
	for _, m := range batch {
		body.WriteString(m.String())
		body.WriteByte('\n')
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, strings.NewReader(body.String()))
	if err != nil {
		return fmt.Errorf("failed to build metrics request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("metrics post failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("metrics sink returned %s", resp.Status)
	}

	c.logger.Trace("Flushed metrics batch", c.logger.Args("count", len(batch)))
	return nil
}

// Shutdown flushes whatever is queued and waits for in-flight sends,
// bounded by timeout.
func (c *GraphiteClient) Shutdown(timeout time.Duration) {
	c.mu.Lock()
	c.flushLocked()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Warn("Metrics flush did not finish before shutdown deadline")
	}
}

// queueLen is a test hook.
func (c *GraphiteClient) queueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
