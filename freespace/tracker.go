// Package freespace owns the partition of a disk's blocks into free and used
// sets. Every used block maps to exactly one owning file.
package freespace

import (
	"fmt"
	"sort"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/disksim"
	"github.com/hashicorp/go-multierror"
)

// Tracker records which blocks are in use and who owns them. A set bit in
// the bitmap means the block is used. The zero value is not usable; create
// trackers with New or NewFromOwners.
type Tracker struct {
	usedBitmap  bitmap.Bitmap
	owners      map[disksim.BlockID]disksim.FileID
	totalBlocks uint
}

// New creates a tracker for `totalBlocks` blocks, all of them free.
func New(totalBlocks uint) *Tracker {
	return &Tracker{
		usedBitmap:  bitmap.New(int(totalBlocks)),
		owners:      make(map[disksim.BlockID]disksim.FileID),
		totalBlocks: totalBlocks,
	}
}

// NewFromOwners builds a tracker from scratch out of a block -> owner mapping.
// Every block not in the mapping is free. It fails if any block is out of
// range.
func NewFromOwners(totalBlocks uint, owners map[disksim.BlockID]disksim.FileID) (*Tracker, error) {
	tracker := New(totalBlocks)
	for block, owner := range owners {
		if uint(block) >= totalBlocks {
			return nil, disksim.ErrBlockOutOfRange.WithMessage(
				fmt.Sprintf("block %d not in range [0, %d)", block, totalBlocks))
		}
		tracker.usedBitmap.Set(int(block), true)
		tracker.owners[block] = owner
	}
	return tracker, nil
}

// TotalBlocks gives the number of blocks on the disk.
func (tracker *Tracker) TotalBlocks() uint {
	return tracker.totalBlocks
}

// UsedCount gives the number of blocks currently owned by a file.
func (tracker *Tracker) UsedCount() uint {
	return uint(len(tracker.owners))
}

// FreeCount gives the number of blocks not owned by any file.
func (tracker *Tracker) FreeCount() uint {
	return tracker.totalBlocks - tracker.UsedCount()
}

// IsFree returns true if `block` is on the disk and not in use.
func (tracker *Tracker) IsFree(block disksim.BlockID) bool {
	if uint(block) >= tracker.totalBlocks {
		return false
	}
	return !tracker.usedBitmap.Get(int(block))
}

// Owner returns the file holding `block`. The second return value is false if
// the block is free or out of range.
func (tracker *Tracker) Owner(block disksim.BlockID) (disksim.FileID, bool) {
	owner, ok := tracker.owners[block]
	return owner, ok
}

// FreeBlocks returns every free block in ascending order. The slice is a copy.
func (tracker *Tracker) FreeBlocks() []disksim.BlockID {
	blocks := make([]disksim.BlockID, 0, tracker.FreeCount())
	for i := uint(0); i < tracker.totalBlocks; i++ {
		if !tracker.usedBitmap.Get(int(i)) {
			blocks = append(blocks, disksim.BlockID(i))
		}
	}
	return blocks
}

// UsedBlocks returns every used block in ascending order. The slice is a copy.
func (tracker *Tracker) UsedBlocks() []disksim.BlockID {
	blocks := make([]disksim.BlockID, 0, len(tracker.owners))
	for i := uint(0); i < tracker.totalBlocks; i++ {
		if tracker.usedBitmap.Get(int(i)) {
			blocks = append(blocks, disksim.BlockID(i))
		}
	}
	return blocks
}

// Owners returns a copy of the block -> owner mapping.
func (tracker *Tracker) Owners() map[disksim.BlockID]disksim.FileID {
	out := make(map[disksim.BlockID]disksim.FileID, len(tracker.owners))
	for block, owner := range tracker.owners {
		out[block] = owner
	}
	return out
}

// BlocksOwnedBy returns the blocks held by `owner` in ascending order.
func (tracker *Tracker) BlocksOwnedBy(owner disksim.FileID) []disksim.BlockID {
	blocks := []disksim.BlockID{}
	for block, blockOwner := range tracker.owners {
		if blockOwner == owner {
			blocks = append(blocks, block)
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	return blocks
}

// Bitmap returns a copy of the used-block bitmap, one bit per block, least
// significant bit first.
func (tracker *Tracker) Bitmap() []byte {
	out := make([]byte, len(tracker.usedBitmap))
	copy(out, tracker.usedBitmap)
	return out
}

// Clone returns a deep copy of the tracker. Changes to the copy never affect
// the original.
func (tracker *Tracker) Clone() *Tracker {
	clone := &Tracker{
		usedBitmap:  bitmap.Bitmap(tracker.Bitmap()),
		owners:      tracker.Owners(),
		totalBlocks: tracker.totalBlocks,
	}
	return clone
}

// Reserve marks every block in `blocks` as used by `owner`. Either all blocks
// are reserved or, if any block is out of range, already used, or listed twice,
// none are and an error is returned.
func (tracker *Tracker) Reserve(blocks []disksim.BlockID, owner disksim.FileID) error {
	seen := make(map[disksim.BlockID]struct{}, len(blocks))
	for _, block := range blocks {
		if uint(block) >= tracker.totalBlocks {
			return disksim.ErrBlockOutOfRange.WithMessage(
				fmt.Sprintf(
					"invalid block id: %d not in range [0, %d)",
					block,
					tracker.totalBlocks))
		}
		if tracker.usedBitmap.Get(int(block)) {
			return disksim.ErrDoubleReservation.WithMessage(
				fmt.Sprintf(
					"block %d is already used by %q",
					block,
					tracker.owners[block]))
		}
		if _, dup := seen[block]; dup {
			return disksim.ErrDoubleReservation.WithMessage(
				fmt.Sprintf("block %d requested twice for %q", block, owner))
		}
		seen[block] = struct{}{}
	}

	for _, block := range blocks {
		tracker.usedBitmap.Set(int(block), true)
		tracker.owners[block] = owner
	}
	return nil
}

// Release returns blocks to the free set. Releasing a block that is already
// free or doesn't exist does nothing.
func (tracker *Tracker) Release(blocks []disksim.BlockID) {
	for _, block := range blocks {
		if uint(block) >= tracker.totalBlocks {
			continue
		}
		tracker.usedBitmap.Set(int(block), false)
		delete(tracker.owners, block)
	}
}

// Equal returns true if both trackers describe the same disk size, the same
// used blocks, and the same owners.
func (tracker *Tracker) Equal(other *Tracker) bool {
	if tracker.totalBlocks != other.totalBlocks || len(tracker.owners) != len(other.owners) {
		return false
	}
	for block, owner := range tracker.owners {
		if otherOwner, ok := other.owners[block]; !ok || otherOwner != owner {
			return false
		}
	}
	return true
}

// Check verifies that the bitmap and the owner map agree, i.e. that the free
// and used sets are disjoint and together cover every block. All violations
// are reported, not just the first.
func (tracker *Tracker) Check() error {
	var result *multierror.Error

	for i := uint(0); i < tracker.totalBlocks; i++ {
		block := disksim.BlockID(i)
		_, owned := tracker.owners[block]
		used := tracker.usedBitmap.Get(int(i))

		if used && !owned {
			result = multierror.Append(
				result, fmt.Errorf("block %d is marked used but has no owner", block))
		} else if owned && !used {
			result = multierror.Append(
				result, fmt.Errorf("block %d has an owner but is marked free", block))
		}
	}

	for block := range tracker.owners {
		if uint(block) >= tracker.totalBlocks {
			result = multierror.Append(
				result,
				fmt.Errorf("block %d is owned but not in range [0, %d)", block, tracker.totalBlocks))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return disksim.ErrInconsistentState.Wrap(err)
	}
	return nil
}
