package metrics

import (
	"context"
	"time"
)

// StatusCounts reports the current job counts by status bucket, e.g.
// as produced by a snapshot build.
type StatusCounts interface {
	JobStatusCounts(ctx context.Context) (map[string]int, error)
}

// ConnectionCounts reports the current connection registry sizes.
type ConnectionCounts interface {
	ConnectionCounts() map[string]int
}

// Collector periodically samples queue and registry state into gauges.
type Collector struct {
	store  StatusCounts
	reg    ConnectionCounts
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(store StatusCounts, reg ConnectionCounts) *Collector {
	return &Collector{
		store:  store,
		reg:    reg,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectJobMetrics()
	c.collectConnectionMetrics()
}

func (c *Collector) collectJobMetrics() {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := c.store.JobStatusCounts(ctx)
	if err != nil {
		return
	}
	for status, n := range counts {
		JobsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

func (c *Collector) collectConnectionMetrics() {
	if c.reg == nil {
		return
	}
	for variant, n := range c.reg.ConnectionCounts() {
		ConnectionsTotal.WithLabelValues(variant).Set(float64(n))
	}
}
