package metrics

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"
)

// StoreStats contains record store statistics for metrics
type StoreStats struct {
	// Templates is keyed by "<source>_<status>"
	Templates   map[string]int
	Comparisons map[string]int
	Backups     int
	BackupBytes int64
}

// StatsProvider provides record store statistics for metrics
type StatsProvider interface {
	Stats(ctx context.Context) (*StoreStats, error)
}

// Collector periodically refreshes the store and system gauges
type Collector struct {
	metrics   *Metrics
	stats     StatsProvider
	interval  time.Duration
	startTime time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector. stats may be nil.
func NewCollector(m *Metrics, stats StatsProvider, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 15 * time.Second
	}

	return &Collector{
		metrics:   m,
		stats:     stats,
		interval:  interval,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the collector background task
func (c *Collector) Start(ctx context.Context) {
	c.Collect(ctx)

	c.wg.Add(1)
	go c.run(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect updates the gauges once
func (c *Collector) Collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.stats == nil {
		return
	}
	stats, err := c.stats.Stats(ctx)
	if err != nil {
		return
	}

	c.metrics.Templates.Reset()
	for key, n := range stats.Templates {
		source, status := splitLabelKey(key)
		c.metrics.Templates.WithLabelValues(source, status).Set(float64(n))
	}

	c.metrics.Comparisons.Reset()
	for status, n := range stats.Comparisons {
		c.metrics.Comparisons.WithLabelValues(status).Set(float64(n))
	}

	c.metrics.Backups.Set(float64(stats.Backups))
	c.metrics.BackupBytes.Set(float64(stats.BackupBytes))
}

func splitLabelKey(key string) (string, string) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, ""
}
