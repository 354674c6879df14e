package metrics

import (
	"time"

	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// ExpectedLeaderInfo exposes the stored leader of each cluster as an info
// metric (value is always 1)
var ExpectedLeaderInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "leadercheck_expected_leader_info",
		Help: "Expected leader recorded in the config store",
	},
	[]string{"cluster", "leader"},
)

func init() {
	prometheus.MustRegister(ExpectedLeaderInfo)
}

// RecordSource lists the stored leader records
type RecordSource interface {
	Records() ([]types.LeaderRecord, error)
}

// Collector refreshes store-derived metrics
type Collector struct {
	source   RecordSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector. A non-positive interval
// defaults to one minute.
func NewCollector(source RecordSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect refreshes the metrics once
func (c *Collector) Collect() {
	records, err := c.source.Records()
	if err != nil {
		return
	}

	// Drop series of leaders that are no longer expected
	ExpectedLeaderInfo.Reset()
	for _, r := range records {
		ExpectedLeaderInfo.WithLabelValues(r.Cluster.String(), r.Hostname).Set(1)
	}
}
