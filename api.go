package disksim

// BlockID is the index of a block on the simulated disk. Blocks are numbered
// from 0 to TotalBlocks-1.
type BlockID uint

// FileID uniquely identifies a file on a volume. The core never interprets it;
// naming and hierarchy belong to the caller.
type FileID string

// BlockList is the ordered sequence of blocks held by one file.
//
// For continuous allocation the list is strictly increasing by 1. For linked
// and indexed allocation the order is arbitrary but fixed; for indexed files
// the first entry is always the index block.
type BlockList []BlockID

// Clone returns a copy of the list that shares no memory with the original.
func (l BlockList) Clone() BlockList {
	if l == nil {
		return nil
	}
	out := make(BlockList, len(l))
	copy(out, l)
	return out
}

// File is the data-bearing entity the block layer deals with. Directories
// carry no blocks and never appear here.
type File struct {
	ID         FileID
	Size       uint64
	Blocks     BlockList
	Allocation Strategy
}

// IndexBlock returns the index block of an indexed file. The second return
// value is false for any other allocation strategy or an empty block list.
func (f File) IndexBlock() (BlockID, bool) {
	if f.Allocation != Indexed || len(f.Blocks) == 0 {
		return 0, false
	}
	return f.Blocks[0], true
}

// DataBlocks returns the blocks that hold file payload, i.e. everything but the
// index block for indexed files.
func (f File) DataBlocks() BlockList {
	if _, ok := f.IndexBlock(); ok {
		return f.Blocks[1:]
	}
	return f.Blocks
}

// DataBlocksForSize gives the number of data blocks needed to hold `size` bytes
// with blocks of `blockSize` bytes, rounded up.
func DataBlocksForSize(size uint64, blockSize uint) uint {
	if blockSize == 0 {
		return 0
	}
	bs := uint64(blockSize)
	return uint((size + bs - 1) / bs)
}

// FreeSpace is the read-only view of free-space state the allocator works
// from. FreeBlocks must return a fresh, ascending slice the caller may modify.
type FreeSpace interface {
	FreeBlocks() []BlockID
	FreeCount() uint
}
