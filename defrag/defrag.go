// Package defrag compacts a disk: it moves every used block to the front of
// the disk so that the used blocks occupy [0, used) and the free blocks
// occupy [used, total).
package defrag

import (
	"sort"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/freespace"
)

// Result describes a compaction. Nothing is applied to the caller's state
// until it swaps in Tracker and remaps its file lists with [Remap].
type Result struct {
	// MovedBlocks is the number of blocks whose address changed. Compacting an
	// already compact disk moves nothing.
	MovedBlocks int
	// ProcessedBlocks is the number of used blocks that were considered.
	ProcessedBlocks int
	// Mapping maps every used block's old address to its new one.
	Mapping map[disksim.BlockID]disksim.BlockID
	// Tracker is a new tracker built from scratch for the compacted layout.
	Tracker *freespace.Tracker
}

// Plan computes where every used block goes. Files are processed in the order
// of their lowest-numbered block, i.e. in the order they first appear on the
// disk. Within a file, blocks keep their physical order. A single counter
// starting at 0 hands out the new addresses across all files.
func Plan(owners map[disksim.BlockID]disksim.FileID) map[disksim.BlockID]disksim.BlockID {
	usedBlocks := make([]disksim.BlockID, 0, len(owners))
	for block := range owners {
		usedBlocks = append(usedBlocks, block)
	}
	sort.Slice(usedBlocks, func(i, j int) bool { return usedBlocks[i] < usedBlocks[j] })

	// Walking the sorted block list means each file is first seen at its
	// lowest block, and each file's blocks are collected in ascending order.
	fileOrder := []disksim.FileID{}
	blocksByFile := make(map[disksim.FileID][]disksim.BlockID)
	for _, block := range usedBlocks {
		owner := owners[block]
		if _, seen := blocksByFile[owner]; !seen {
			fileOrder = append(fileOrder, owner)
		}
		blocksByFile[owner] = append(blocksByFile[owner], block)
	}

	mapping := make(map[disksim.BlockID]disksim.BlockID, len(usedBlocks))
	next := disksim.BlockID(0)
	for _, owner := range fileOrder {
		for _, oldBlock := range blocksByFile[owner] {
			mapping[oldBlock] = next
			next++
		}
	}
	return mapping
}

// Compact plans a compaction of `tracker` and builds the resulting tracker. The
// tracker passed in is never modified.
func Compact(tracker *freespace.Tracker) (*Result, error) {
	owners := tracker.Owners()
	mapping := Plan(owners)

	newOwners := make(map[disksim.BlockID]disksim.FileID, len(owners))
	moved := 0
	for oldBlock, newBlock := range mapping {
		newOwners[newBlock] = owners[oldBlock]
		if oldBlock != newBlock {
			moved++
		}
	}

	newTracker, err := freespace.NewFromOwners(tracker.TotalBlocks(), newOwners)
	if err != nil {
		return nil, err
	}

	return &Result{
		MovedBlocks:     moved,
		ProcessedBlocks: len(mapping),
		Mapping:         mapping,
		Tracker:         newTracker,
	}, nil
}

// Remap rewrites a file's block list through `mapping`, keeping the list's own
// order. For indexed files this means the index block stays first. Blocks
// missing from the mapping are kept as they are.
func Remap(blocks disksim.BlockList, mapping map[disksim.BlockID]disksim.BlockID) disksim.BlockList {
	out := make(disksim.BlockList, len(blocks))
	for i, block := range blocks {
		if newBlock, ok := mapping[block]; ok {
			out[i] = newBlock
		} else {
			out[i] = block
		}
	}
	return out
}
