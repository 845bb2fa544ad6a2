package metrics_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/metrics"
	"github.com/dargueta/disksim/scheduler"
	simtest "github.com/dargueta/disksim/testing"
	"github.com/dargueta/disksim/volume"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics__NilSafe(t *testing.T) {
	var m *metrics.Metrics

	m.ObserveAllocation("linked", 3, nil)
	m.ObserveAllocation("linked", 0, errors.New("nope"))
	m.ObserveRelease(4)
	m.ObserveCompaction(2)
	m.ObserveSchedule("SCAN", 100)
	m.SetUsage(10, 25)
}

func TestMetrics__ImplementsRecorder(t *testing.T) {
	var _ volume.Recorder = metrics.New(prometheus.NewRegistry())
}

func TestMetrics__Allocation(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveAllocation("linked", 3, nil)
	m.ObserveAllocation("linked", 2, nil)
	m.ObserveAllocation("linked", 0, disksim.ErrInsufficientSpace)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AllocationsTotal.WithLabelValues("linked", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AllocationsTotal.WithLabelValues("linked", "failure")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.AllocatedBlocksTotal.WithLabelValues("linked")))
}

func TestMetrics__DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	assert.Panics(t, func() { metrics.New(reg) })
}

func TestMetrics__WiredIntoVolume(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	vol, err := volume.New(volume.Options{
		TotalBlocks: 10,
		BlockSize:   1,
		Random:      simtest.FixedSource{},
		Metrics:     m,
	})
	require.NoError(t, err)

	_, err = vol.CreateFile("a", 4, disksim.Continuous)
	require.NoError(t, err)
	_, err = vol.CreateFile("b", 3, disksim.Continuous)
	require.NoError(t, err)
	_, err = vol.DeleteFile("a")
	require.NoError(t, err)
	_, err = vol.CreateFile("c", 5, disksim.Continuous)
	require.ErrorIs(t, err, disksim.ErrInsufficientContiguousSpace)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AllocationsTotal.WithLabelValues("continuous", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AllocationsTotal.WithLabelValues("continuous", "failure")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BlocksReleasedTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.UsedBlocks))

	_, err = vol.Compact()
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompactionsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CompactionMovedBlocksTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FragmentationRate))

	_, err = vol.Schedule([]int{9, 0}, 4, scheduler.SSTF, scheduler.Options{})
	require.NoError(t, err)

	expected := `
# HELP disksim_used_blocks Current number of used blocks
# TYPE disksim_used_blocks gauge
disksim_used_blocks 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "disksim_used_blocks"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ScheduleMovement))
}
