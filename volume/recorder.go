package volume

import (
	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/fragmentation"
)

// Recorder receives measurements from a Volume. Implementations must be safe
// to call while the volume's lock is held, so they must not call back into the
// volume.
type Recorder interface {
	// ObserveAllocation records one file creation attempt. `blocks` is the
	// number of blocks committed, which is 0 on failure.
	ObserveAllocation(strategy string, blocks int, err error)
	ObserveRelease(blocks int)
	ObserveCompaction(movedBlocks int)
	ObserveSchedule(policy string, totalMovement int)
	// SetUsage publishes the current number of used blocks and fragmentation
	// rate.
	SetUsage(usedBlocks uint, fragmentationRate float64)
}

func (vol *Volume) observeAllocation(strategy disksim.Strategy, blocks int, err error) {
	if vol.metrics != nil {
		vol.metrics.ObserveAllocation(strategy.String(), blocks, err)
	}
}

// publishUsage must be called with the lock held, or before the volume is
// shared.
func (vol *Volume) publishUsage() {
	if vol.metrics == nil {
		return
	}
	vol.metrics.SetUsage(
		vol.tracker.UsedCount(),
		fragmentation.Rate(vol.tracker.UsedBlocks()))
}
