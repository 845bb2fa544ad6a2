// Package metrics exports block-layer activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks allocation, release, compaction and scheduling activity of a
// volume. A nil *Metrics is valid and records nothing.
//
// All metrics use the disksim_ prefix.
type Metrics struct {
	// AllocationsTotal counts file creations by strategy and result.
	AllocationsTotal *prometheus.CounterVec

	// AllocatedBlocksTotal counts blocks committed to files, by strategy.
	AllocatedBlocksTotal *prometheus.CounterVec

	// BlocksReleasedTotal counts blocks returned to the free set.
	BlocksReleasedTotal prometheus.Counter

	// CompactionsTotal counts compaction runs.
	CompactionsTotal prometheus.Counter

	// CompactionMovedBlocksTotal counts blocks whose address changed during
	// compaction.
	CompactionMovedBlocksTotal prometheus.Counter

	// UsedBlocks is the current number of used blocks.
	UsedBlocks prometheus.Gauge

	// FragmentationRate is the current fragmentation rate, 0 to 100.
	FragmentationRate prometheus.Gauge

	// ScheduleMovement is the distribution of total head movement per
	// scheduled queue, by policy.
	ScheduleMovement *prometheus.HistogramVec
}

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// New creates the metrics and registers them with `reg`. It panics if
// registration fails, which only happens if they were already registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AllocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "disksim_allocations_total",
				Help: "Total file allocations by strategy and result",
			},
			[]string{"strategy", "result"},
		),
		AllocatedBlocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "disksim_allocated_blocks_total",
				Help: "Total blocks committed to files by strategy",
			},
			[]string{"strategy"},
		),
		BlocksReleasedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "disksim_blocks_released_total",
				Help: "Total blocks returned to the free set",
			},
		),
		CompactionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "disksim_compactions_total",
				Help: "Total compaction runs",
			},
		),
		CompactionMovedBlocksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "disksim_compaction_moved_blocks_total",
				Help: "Total blocks relocated by compaction",
			},
		),
		UsedBlocks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "disksim_used_blocks",
				Help: "Current number of used blocks",
			},
		),
		FragmentationRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "disksim_fragmentation_rate",
				Help: "Current fragmentation rate as a percentage",
			},
		),
		ScheduleMovement: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "disksim_schedule_movement",
				Help:    "Total head movement per scheduled request queue",
				Buckets: prometheus.ExponentialBuckets(8, 2, 12),
			},
			[]string{"policy"},
		),
	}

	reg.MustRegister(
		m.AllocationsTotal,
		m.AllocatedBlocksTotal,
		m.BlocksReleasedTotal,
		m.CompactionsTotal,
		m.CompactionMovedBlocksTotal,
		m.UsedBlocks,
		m.FragmentationRate,
		m.ScheduleMovement,
	)

	return m
}

// ObserveAllocation records one file creation attempt.
func (m *Metrics) ObserveAllocation(strategy string, blocks int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.AllocationsTotal.WithLabelValues(strategy, resultFailure).Inc()
		return
	}
	m.AllocationsTotal.WithLabelValues(strategy, resultSuccess).Inc()
	m.AllocatedBlocksTotal.WithLabelValues(strategy).Add(float64(blocks))
}

// ObserveRelease records blocks being returned to the free set.
func (m *Metrics) ObserveRelease(blocks int) {
	if m == nil {
		return
	}
	m.BlocksReleasedTotal.Add(float64(blocks))
}

// ObserveCompaction records one compaction run.
func (m *Metrics) ObserveCompaction(movedBlocks int) {
	if m == nil {
		return
	}
	m.CompactionsTotal.Inc()
	m.CompactionMovedBlocksTotal.Add(float64(movedBlocks))
}

// ObserveSchedule records the total head movement of one scheduled queue.
func (m *Metrics) ObserveSchedule(policy string, totalMovement int) {
	if m == nil {
		return
	}
	m.ScheduleMovement.WithLabelValues(policy).Observe(float64(totalMovement))
}

// SetUsage updates the usage gauges.
func (m *Metrics) SetUsage(usedBlocks uint, fragmentationRate float64) {
	if m == nil {
		return
	}
	m.UsedBlocks.Set(float64(usedBlocks))
	m.FragmentationRate.Set(fragmentationRate)
}
