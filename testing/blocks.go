package testing

import (
	"io"
	"testing"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/freespace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// Range returns the block numbers [start, end) in ascending order.
func Range(start, end uint) disksim.BlockList {
	blocks := make(disksim.BlockList, 0, end-start)
	for i := start; i < end; i++ {
		blocks = append(blocks, disksim.BlockID(i))
	}
	return blocks
}

// RequirePartition fails the test immediately unless the free and used sets of
// `tracker` are disjoint and together cover every block on the disk.
func RequirePartition(t *testing.T, tracker *freespace.Tracker) {
	require.NoError(t, tracker.Check(), "tracker failed its self-check")

	free := tracker.FreeBlocks()
	used := tracker.UsedBlocks()
	require.EqualValues(
		t,
		tracker.TotalBlocks(),
		len(free)+len(used),
		"free and used sets don't cover the disk",
	)

	seen := make(map[disksim.BlockID]bool, tracker.TotalBlocks())
	for _, block := range free {
		seen[block] = true
	}
	for _, block := range used {
		require.Falsef(t, seen[block], "block %d is both free and used", block)
		seen[block] = true
	}
	for i := uint(0); i < tracker.TotalBlocks(); i++ {
		require.Truef(t, seen[disksim.BlockID(i)], "block %d is neither free nor used", i)
	}
}

// AssertConsecutive checks that `blocks` is strictly increasing by 1.
func AssertConsecutive(t *testing.T, blocks disksim.BlockList) bool {
	for i := 1; i < len(blocks); i++ {
		if !assert.Equalf(
			t, blocks[i-1]+1, blocks[i], "blocks %v aren't consecutive at index %d", blocks, i,
		) {
			return false
		}
	}
	return true
}

// AssertDistinct checks that no block appears twice in `blocks`.
func AssertDistinct(t *testing.T, blocks disksim.BlockList) bool {
	seen := make(map[disksim.BlockID]struct{}, len(blocks))
	for _, block := range blocks {
		if _, dup := seen[block]; dup {
			return assert.Failf(t, "duplicate block", "block %d appears twice in %v", block, blocks)
		}
		seen[block] = struct{}{}
	}
	return true
}

// NewStream wraps a copy of `data` in a fixed-size in-memory stream. Writes to
// the stream do not affect `data`, and writing past the end fails.
func NewStream(data []byte) io.ReadWriteSeeker {
	buffer := make([]byte, len(data))
	copy(buffer, data)
	return bytesextra.NewReadWriteSeeker(buffer)
}
