package defrag_test

import (
	"testing"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/defrag"
	"github.com/dargueta/disksim/fragmentation"
	"github.com/dargueta/disksim/freespace"
	simtest "github.com/dargueta/disksim/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan__OrderByFirstAppearance(t *testing.T) {
	// "b" was presumably created later but its first block comes before any
	// of "a"'s, so it's moved first.
	owners := map[disksim.BlockID]disksim.FileID{
		1: "b", 8: "b",
		3: "a", 4: "a", 9: "a",
		6: "c",
	}
	mapping := defrag.Plan(owners)
	assert.Equal(
		t,
		map[disksim.BlockID]disksim.BlockID{
			1: 0, 8: 1,
			3: 2, 4: 3, 9: 4,
			6: 5,
		},
		mapping,
	)
}

func TestCompact(t *testing.T) {
	tracker := freespace.New(12)
	require.NoError(t, tracker.Reserve([]disksim.BlockID{2, 3, 10}, "a"))
	require.NoError(t, tracker.Reserve([]disksim.BlockID{6, 5}, "b"))
	before := tracker.Clone()

	result, err := defrag.Compact(tracker)
	require.NoError(t, err)
	assert.True(t, tracker.Equal(before), "Compact modified its input")

	assert.Equal(t, 5, result.ProcessedBlocks)
	assert.Equal(t, 5, result.MovedBlocks)
	assert.Equal(t, []disksim.BlockID(simtest.Range(0, 5)), result.Tracker.UsedBlocks())
	assert.Equal(t, []disksim.BlockID(simtest.Range(5, 12)), result.Tracker.FreeBlocks())
	assert.Equal(t, []disksim.BlockID{0, 1, 2}, result.Tracker.BlocksOwnedBy("a"))
	assert.Equal(t, []disksim.BlockID{3, 4}, result.Tracker.BlocksOwnedBy("b"))
	assert.Zero(t, fragmentation.Rate(result.Tracker.UsedBlocks()))
	simtest.RequirePartition(t, result.Tracker)

	// The file's own order survives: "b" listed 6 before 5.
	assert.Equal(t, disksim.BlockList{4, 3}, defrag.Remap(disksim.BlockList{6, 5}, result.Mapping))
}

// Compacting twice leaves the layout from the first pass alone.
func TestCompact__Idempotent(t *testing.T) {
	tracker := freespace.New(20)
	require.NoError(t, tracker.Reserve([]disksim.BlockID{4, 11, 17}, "a"))
	require.NoError(t, tracker.Reserve([]disksim.BlockID{1, 9}, "b"))

	first, err := defrag.Compact(tracker)
	require.NoError(t, err)
	second, err := defrag.Compact(first.Tracker)
	require.NoError(t, err)

	assert.Zero(t, second.MovedBlocks)
	assert.True(t, first.Tracker.Equal(second.Tracker))
	for oldBlock, newBlock := range second.Mapping {
		assert.Equal(t, oldBlock, newBlock)
	}
}

func TestCompact__EmptyDisk(t *testing.T) {
	result, err := defrag.Compact(freespace.New(8))
	require.NoError(t, err)
	assert.Zero(t, result.MovedBlocks)
	assert.Zero(t, result.ProcessedBlocks)
	assert.EqualValues(t, 8, result.Tracker.FreeCount())
}

func TestRemap__UnmappedBlocksKept(t *testing.T) {
	mapping := map[disksim.BlockID]disksim.BlockID{5: 0}
	assert.Equal(t, disksim.BlockList{0, 7}, defrag.Remap(disksim.BlockList{5, 7}, mapping))
}
