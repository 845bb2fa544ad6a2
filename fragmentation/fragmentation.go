// Package fragmentation measures how scattered the used blocks of a disk are.
//
// The headline number, [Rate], is a discontinuity ratio: the share of used
// blocks that don't directly follow the previous used block. It does not
// measure wasted space, and it doesn't care which file a block belongs to, so
// two files sitting next to each other look exactly like one file. That is
// the intended, simplified teaching metric. [Extents] and [FileExtents] give
// the per-file view when it's needed.
package fragmentation

import (
	"sort"

	"github.com/dargueta/disksim"
)

// Extent is a maximal run of consecutive blocks.
type Extent struct {
	Start  disksim.BlockID
	Length uint
}

// End returns the block just past the extent.
func (e Extent) End() disksim.BlockID {
	return e.Start + disksim.BlockID(e.Length)
}

func sortedCopy(blocks []disksim.BlockID) []disksim.BlockID {
	sorted := make([]disksim.BlockID, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

// Breaks counts the positions in the sorted block list where a block isn't
// exactly one more than its predecessor.
func Breaks(used []disksim.BlockID) uint {
	sorted := sortedCopy(used)
	breaks := uint(0)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			breaks++
		}
	}
	return breaks
}

// Rate returns the fragmentation rate of `used` as a percentage in [0, 100]:
// the number of breaks divided by the number of used blocks. It is 0 when no
// blocks are used.
func Rate(used []disksim.BlockID) float64 {
	if len(used) == 0 {
		return 0
	}
	return float64(Breaks(used)) / float64(len(used)) * 100
}

// Extents splits `blocks` into maximal runs of consecutive block numbers,
// ordered by starting block. The input need not be sorted.
func Extents(blocks []disksim.BlockID) []Extent {
	sorted := sortedCopy(blocks)
	extents := []Extent{}

	for i, block := range sorted {
		if i > 0 && block == sorted[i-1] {
			continue
		}
		if len(extents) > 0 && extents[len(extents)-1].End() == block {
			extents[len(extents)-1].Length++
			continue
		}
		extents = append(extents, Extent{Start: block, Length: 1})
	}
	return extents
}

// FileExtents returns the number of extents each owner's blocks form.
func FileExtents(owners map[disksim.BlockID]disksim.FileID) map[disksim.FileID]int {
	byFile := make(map[disksim.FileID][]disksim.BlockID)
	for block, owner := range owners {
		byFile[owner] = append(byFile[owner], block)
	}

	counts := make(map[disksim.FileID]int, len(byFile))
	for owner, blocks := range byFile {
		counts[owner] = len(Extents(blocks))
	}
	return counts
}

// LargestRun returns the longest extent in `blocks`. When several are equally
// long, the one with the lowest starting block wins. The zero Extent is
// returned for an empty input.
func LargestRun(blocks []disksim.BlockID) Extent {
	largest := Extent{}
	for _, extent := range Extents(blocks) {
		if extent.Length > largest.Length {
			largest = extent
		}
	}
	return largest
}
