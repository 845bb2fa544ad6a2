// Package allocator decides which free blocks a new file gets. It never changes
// free-space state itself: it works from a private copy of the free list and
// returns the chosen blocks, and the caller commits them once it's sure the
// whole request succeeded.
package allocator

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/dargueta/disksim"
)

// RandomSource picks pseudo-random indices. IntN must return a value in
// [0, n) and may panic if n <= 0. *rand.Rand from math/rand/v2 satisfies it.
type RandomSource interface {
	IntN(n int) int
}

// Allocator selects blocks for files under one of the allocation strategies.
type Allocator struct {
	random RandomSource
}

// New creates an allocator drawing random blocks from `random`. Passing nil
// gives an allocator seeded from the runtime's random generator.
func New(random RandomSource) *Allocator {
	if random == nil {
		random = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Allocator{random: random}
}

// NewSeeded creates an allocator whose random draws are fully determined by
// `seed`.
func NewSeeded(seed uint64) *Allocator {
	return New(NewSeededSource(seed))
}

// NewSeededSource creates a random source whose output is fully determined by
// `seed`.
func NewSeededSource(seed uint64) RandomSource {
	return rand.New(rand.NewPCG(seed, seed))
}

// Allocate chooses `count` data blocks from `space` using `strategy`. For
// indexed allocation the returned list is one block longer than `count`: the
// first entry is the index block.
//
// On failure the returned list is nil and the error is either
// [disksim.ErrInsufficientContiguousSpace] or [disksim.ErrInsufficientSpace].
func (alloc *Allocator) Allocate(
	count uint, strategy disksim.Strategy, space disksim.FreeSpace,
) (disksim.BlockList, error) {
	freeBlocks := space.FreeBlocks()

	switch strategy {
	case disksim.Continuous:
		return Contiguous(count, freeBlocks)
	case disksim.Linked:
		return alloc.Linked(count, freeBlocks)
	case disksim.Indexed:
		return alloc.Indexed(count, freeBlocks)
	default:
		return nil, disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unsupported allocation strategy %d", int(strategy)))
	}
}

// Contiguous returns the first run of `count` consecutive block numbers in
// `freeBlocks`, which must be sorted in ascending order. It is first-fit:
// runs are considered left to right and the first long enough one wins.
func Contiguous(count uint, freeBlocks []disksim.BlockID) (disksim.BlockList, error) {
	if count == 0 {
		return disksim.BlockList{}, nil
	}

	runSize := uint(0)
	runStart := 0

	for i, block := range freeBlocks {
		if i == 0 || block != freeBlocks[i-1]+1 {
			// Either the first block or a gap before this one, so a new run
			// starts here.
			runSize = 0
			runStart = i
		}

		runSize++
		if runSize == count {
			blocks := make(disksim.BlockList, count)
			copy(blocks, freeBlocks[runStart:runStart+int(count)])
			return blocks, nil
		}
	}

	return nil, disksim.ErrInsufficientContiguousSpace.WithMessage(
		fmt.Sprintf(
			"no run of %d consecutive free blocks (%d blocks free in total)",
			count,
			len(freeBlocks)))
}

// Linked draws `count` blocks uniformly at random from `freeBlocks` without
// replacement. `freeBlocks` is consumed as scratch space.
func (alloc *Allocator) Linked(count uint, freeBlocks []disksim.BlockID) (disksim.BlockList, error) {
	if uint(len(freeBlocks)) < count {
		return nil, disksim.ErrInsufficientSpace.WithMessage(
			fmt.Sprintf("need %d blocks, only %d free", count, len(freeBlocks)))
	}

	blocks, _ := alloc.draw(count, freeBlocks)
	return blocks, nil
}

// Indexed takes the lowest-numbered free block as the index block, then draws
// `count` data blocks at random like Linked. `freeBlocks` must be sorted in
// ascending order and is consumed as scratch space.
func (alloc *Allocator) Indexed(count uint, freeBlocks []disksim.BlockID) (disksim.BlockList, error) {
	needed := disksim.Indexed.BlocksNeeded(count)
	if uint(len(freeBlocks)) < needed {
		return nil, disksim.ErrInsufficientSpace.WithMessage(
			fmt.Sprintf(
				"need %d blocks (%d data + 1 index), only %d free",
				needed,
				count,
				len(freeBlocks)))
	}

	blocks := make(disksim.BlockList, 0, needed)
	blocks = append(blocks, freeBlocks[0])

	dataBlocks, _ := alloc.draw(count, freeBlocks[1:])
	return append(blocks, dataBlocks...), nil
}

// draw removes `count` random entries from `pool` and returns them in the
// order they were drawn, along with what's left of the pool. The caller must
// make sure the pool is big enough.
func (alloc *Allocator) draw(count uint, pool []disksim.BlockID) (disksim.BlockList, []disksim.BlockID) {
	blocks := make(disksim.BlockList, 0, count)
	for i := uint(0); i < count; i++ {
		index := alloc.random.IntN(len(pool))
		blocks = append(blocks, pool[index])
		pool = slices.Delete(pool, index, index+1)
	}
	return blocks, pool
}
