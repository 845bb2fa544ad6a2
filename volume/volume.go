// Package volume is the single owner of a simulated disk's state: its
// geometry, free-space tracker and file table. Every operation runs to
// completion under one lock, and every operation that can fail leaves the
// state exactly as it found it.
package volume

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/allocator"
	"github.com/dargueta/disksim/defrag"
	"github.com/dargueta/disksim/fragmentation"
	"github.com/dargueta/disksim/freespace"
	"github.com/dargueta/disksim/internal/logger"
	"github.com/dargueta/disksim/scheduler"
)

// Options configures a new Volume.
type Options struct {
	TotalBlocks uint
	// BlockSize is the size of a block in bytes.
	BlockSize uint
	// Random drives linked and indexed allocation. If nil, a randomly seeded
	// source is used.
	Random allocator.RandomSource
	// Logger receives structured logs. If nil, nothing is logged.
	Logger *slog.Logger
	// Metrics receives operation counts. May be nil.
	Metrics Recorder
}

type fileEntry struct {
	file     disksim.File
	sequence uint64
}

// Volume is a simulated disk together with the files stored on it.
type Volume struct {
	mu           sync.Mutex
	blockSize    uint
	tracker      *freespace.Tracker
	files        map[disksim.FileID]*fileEntry
	nextSequence uint64
	allocator    *allocator.Allocator
	logger       *slog.Logger
	metrics      Recorder
}

// New creates an empty volume.
func New(opts Options) (*Volume, error) {
	if opts.TotalBlocks == 0 {
		return nil, disksim.ErrInvalidArgument.WithMessage("total blocks must be positive")
	}
	if opts.BlockSize == 0 {
		return nil, disksim.ErrInvalidArgument.WithMessage("block size must be positive")
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	vol := &Volume{
		blockSize: opts.BlockSize,
		tracker:   freespace.New(opts.TotalBlocks),
		files:     make(map[disksim.FileID]*fileEntry),
		allocator: allocator.New(opts.Random),
		logger:    log.With("component", "volume"),
		metrics:   opts.Metrics,
	}
	vol.publishUsage()
	return vol, nil
}

// Restore rebuilds a volume from a list of file records. Free space is derived
// from the files' block lists; nothing else is trusted. Files are registered
// in the order given. It fails if any block is out of range or claimed twice,
// or if a file's block count doesn't match its size and strategy.
func Restore(opts Options, files []disksim.File) (*Volume, error) {
	vol, err := New(opts)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if _, exists := vol.files[file.ID]; exists {
			return nil, disksim.ErrExists.WithMessage(fmt.Sprintf("duplicate file id %q", file.ID))
		}
		if err := checkBlockCount(file, vol.blockSize); err != nil {
			return nil, err
		}
		if err := vol.tracker.Reserve(file.Blocks, file.ID); err != nil {
			return nil, err
		}
		vol.record(file)
	}

	vol.publishUsage()
	return vol, nil
}

// checkBlockCount verifies that a file holds exactly as many blocks as its
// size and strategy require, and that continuous files are consecutive.
func checkBlockCount(file disksim.File, blockSize uint) error {
	expected := file.Allocation.BlocksNeeded(disksim.DataBlocksForSize(file.Size, blockSize))
	if uint(len(file.Blocks)) != expected {
		return disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"file %q has %d blocks but a %d-byte %s file needs %d",
				file.ID,
				len(file.Blocks),
				file.Size,
				file.Allocation,
				expected))
	}

	if file.Allocation == disksim.Continuous {
		for i := 1; i < len(file.Blocks); i++ {
			if file.Blocks[i] != file.Blocks[i-1]+1 {
				return disksim.ErrInvalidArgument.WithMessage(
					fmt.Sprintf(
						"continuous file %q is not consecutive at index %d (%d after %d)",
						file.ID,
						i,
						file.Blocks[i],
						file.Blocks[i-1]))
			}
		}
	}
	return nil
}

func (vol *Volume) record(file disksim.File) {
	vol.files[file.ID] = &fileEntry{file: file, sequence: vol.nextSequence}
	vol.nextSequence++
}

// TotalBlocks gives the number of blocks on the disk.
func (vol *Volume) TotalBlocks() uint {
	vol.mu.Lock()
	defer vol.mu.Unlock()
	return vol.tracker.TotalBlocks()
}

// BlockSize gives the size of a block in bytes.
func (vol *Volume) BlockSize() uint {
	return vol.blockSize
}

// Allocate picks blocks for `size` bytes of data under `strategy` without
// committing them. Use CreateFile to allocate and record a file in one step.
func (vol *Volume) Allocate(size uint64, strategy disksim.Strategy) (disksim.BlockList, error) {
	vol.mu.Lock()
	defer vol.mu.Unlock()
	return vol.allocate(size, strategy)
}

func (vol *Volume) allocate(size uint64, strategy disksim.Strategy) (disksim.BlockList, error) {
	dataBlocks := disksim.DataBlocksForSize(size, vol.blockSize)
	needed := strategy.BlocksNeeded(dataBlocks)
	if vol.tracker.FreeCount() < needed {
		return nil, disksim.ErrInsufficientSpace.WithMessage(
			fmt.Sprintf(
				"%s allocation of %d bytes needs %d blocks, only %d free",
				strategy,
				size,
				needed,
				vol.tracker.FreeCount()))
	}
	return vol.allocator.Allocate(dataBlocks, strategy, vol.tracker)
}

// CreateFile allocates blocks for a new file of `size` bytes and records it.
// On any failure nothing changes.
func (vol *Volume) CreateFile(id disksim.FileID, size uint64, strategy disksim.Strategy) (disksim.File, error) {
	vol.mu.Lock()
	defer vol.mu.Unlock()

	logger := vol.logger.With("file", id, "size", size, "strategy", strategy.String())

	if id == "" {
		return disksim.File{}, disksim.ErrInvalidArgument.WithMessage("file id is empty")
	}
	if _, exists := vol.files[id]; exists {
		return disksim.File{}, disksim.ErrExists.WithMessage(fmt.Sprintf("file %q", id))
	}

	blocks, err := vol.allocate(size, strategy)
	if err != nil {
		logger.Warn("allocation failed", "error", err)
		vol.observeAllocation(strategy, 0, err)
		return disksim.File{}, err
	}

	if err := vol.tracker.Reserve(blocks, id); err != nil {
		// The allocator only hands out free blocks, so this is a bug.
		logger.Error("reservation of allocated blocks failed", "blocks", blocks, "error", err)
		vol.observeAllocation(strategy, 0, err)
		return disksim.File{}, err
	}

	file := disksim.File{ID: id, Size: size, Blocks: blocks, Allocation: strategy}
	vol.record(file)

	logger.Debug("file created", "blocks", blocks)
	vol.observeAllocation(strategy, len(blocks), nil)
	vol.publishUsage()
	return cloneFile(file), nil
}

// DeleteFile releases a file's blocks and forgets it.
func (vol *Volume) DeleteFile(id disksim.FileID) (disksim.File, error) {
	vol.mu.Lock()
	defer vol.mu.Unlock()

	entry, ok := vol.files[id]
	if !ok {
		return disksim.File{}, disksim.ErrNotFound.WithMessage(fmt.Sprintf("file %q", id))
	}

	vol.tracker.Release(entry.file.Blocks)
	delete(vol.files, id)

	vol.logger.Debug("file deleted", "file", id, "blocks", entry.file.Blocks)
	if vol.metrics != nil {
		vol.metrics.ObserveRelease(len(entry.file.Blocks))
	}
	vol.publishUsage()
	return cloneFile(entry.file), nil
}

// Release returns blocks picked by [Volume.Allocate] to the free set. Blocks
// that are already free are ignored. Blocks owned by a file are never
// released here: the call fails with ErrInvalidArgument and nothing changes.
// Use DeleteFile to free a file's blocks.
func (vol *Volume) Release(blocks disksim.BlockList) error {
	vol.mu.Lock()
	defer vol.mu.Unlock()

	for _, block := range blocks {
		owner, used := vol.tracker.Owner(block)
		if !used {
			continue
		}
		if _, recorded := vol.files[owner]; recorded {
			return disksim.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("block %d belongs to file %q", block, owner))
		}
	}

	vol.tracker.Release(blocks)
	if vol.metrics != nil {
		vol.metrics.ObserveRelease(len(blocks))
	}
	vol.publishUsage()
	return nil
}

// FragmentationRate gives the current fragmentation rate as a percentage.
func (vol *Volume) FragmentationRate() float64 {
	vol.mu.Lock()
	defer vol.mu.Unlock()
	return fragmentation.Rate(vol.tracker.UsedBlocks())
}

// CompactionResult summarizes a compaction.
type CompactionResult struct {
	MovedBlocks     int
	ProcessedBlocks int
	RateBefore      float64
	RateAfter       float64
}

// Compact moves every used block to the front of the disk and rewrites every
// file's block list to match.
func (vol *Volume) Compact() (CompactionResult, error) {
	vol.mu.Lock()
	defer vol.mu.Unlock()

	rateBefore := fragmentation.Rate(vol.tracker.UsedBlocks())
	result, err := defrag.Compact(vol.tracker)
	if err != nil {
		vol.logger.Error("compaction failed", "error", err)
		return CompactionResult{}, err
	}

	// Compute every new list before changing anything.
	newLists := make(map[disksim.FileID]disksim.BlockList, len(vol.files))
	for id, entry := range vol.files {
		newLists[id] = defrag.Remap(entry.file.Blocks, result.Mapping)
	}
	for id, blocks := range newLists {
		vol.files[id].file.Blocks = blocks
	}
	vol.tracker = result.Tracker

	summary := CompactionResult{
		MovedBlocks:     result.MovedBlocks,
		ProcessedBlocks: result.ProcessedBlocks,
		RateBefore:      rateBefore,
		RateAfter:       fragmentation.Rate(vol.tracker.UsedBlocks()),
	}
	vol.logger.Info(
		"compaction finished",
		"moved", summary.MovedBlocks,
		"processed", summary.ProcessedBlocks,
		"rate_before", summary.RateBefore,
		"rate_after", summary.RateAfter)
	if vol.metrics != nil {
		vol.metrics.ObserveCompaction(summary.MovedBlocks)
	}
	vol.publishUsage()
	return summary, nil
}

// Schedule runs the disk scheduler over `requests`. If opts.MaxBlock is 0 it
// defaults to the last block of this volume. Requests past the end of the
// disk are rejected under every policy.
func (vol *Volume) Schedule(
	requests []int, head int, policy scheduler.Policy, opts scheduler.Options,
) (scheduler.Result, error) {
	opts, err := vol.scheduleOptions(requests, head, opts)
	if err != nil {
		return scheduler.Result{Policy: policy}, err
	}

	result, err := scheduler.Schedule(requests, head, policy, opts)
	if err != nil {
		return result, err
	}
	vol.observeSchedule(result, len(requests))
	return result, nil
}

// Compare runs `requests` through every scheduling policy, with the same
// defaults and bounds checks as [Volume.Schedule].
func (vol *Volume) Compare(requests []int, head int, opts scheduler.Options) ([]scheduler.Result, error) {
	opts, err := vol.scheduleOptions(requests, head, opts)
	if err != nil {
		return nil, err
	}

	results, err := scheduler.Compare(requests, head, opts)
	if err != nil {
		return nil, err
	}
	for _, result := range results {
		vol.observeSchedule(result, len(requests))
	}
	return results, nil
}

func (vol *Volume) scheduleOptions(
	requests []int, head int, opts scheduler.Options,
) (scheduler.Options, error) {
	lastBlock := int(vol.TotalBlocks()) - 1
	if opts.MaxBlock == 0 {
		opts.MaxBlock = lastBlock
	}
	if opts.MaxBlock > lastBlock {
		return opts, disksim.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("max block %d is past the end of the disk (%d)", opts.MaxBlock, lastBlock))
	}
	if head > lastBlock {
		return opts, disksim.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("head position %d is past the end of the disk (%d)", head, lastBlock))
	}
	for i, request := range requests {
		if request > lastBlock {
			return opts, disksim.ErrArgumentOutOfRange.WithMessage(
				fmt.Sprintf("request %d targets block %d past the end of the disk (%d)", i, request, lastBlock))
		}
	}
	return opts, nil
}

func (vol *Volume) observeSchedule(result scheduler.Result, requests int) {
	vol.logger.Debug(
		"requests scheduled",
		"policy", result.Policy.String(),
		"requests", requests,
		"movement", result.TotalMovement)
	if vol.metrics != nil {
		vol.metrics.ObserveSchedule(result.Policy.String(), result.TotalMovement)
	}
}

// Status is a point-in-time summary of the volume.
type Status struct {
	TotalBlocks uint
	BlockSize   uint
	UsedBlocks  uint
	FreeBlocks  uint
	Files       int
	// Utilization is the share of used blocks, as a percentage.
	Utilization  float64
	FragmentRate float64
	// LargestFreeRun is the longest continuous allocation that can succeed.
	LargestFreeRun uint
}

// Stat returns a summary of the volume.
func (vol *Volume) Stat() Status {
	vol.mu.Lock()
	defer vol.mu.Unlock()

	total := vol.tracker.TotalBlocks()
	used := vol.tracker.UsedCount()
	return Status{
		TotalBlocks:    total,
		BlockSize:      vol.blockSize,
		UsedBlocks:     used,
		FreeBlocks:     vol.tracker.FreeCount(),
		Files:          len(vol.files),
		Utilization:    float64(used) / float64(total) * 100,
		FragmentRate:   fragmentation.Rate(vol.tracker.UsedBlocks()),
		LargestFreeRun: fragmentation.LargestRun(vol.tracker.FreeBlocks()).Length,
	}
}

// File returns a copy of the file with the given ID.
func (vol *Volume) File(id disksim.FileID) (disksim.File, error) {
	vol.mu.Lock()
	defer vol.mu.Unlock()

	entry, ok := vol.files[id]
	if !ok {
		return disksim.File{}, disksim.ErrNotFound.WithMessage(fmt.Sprintf("file %q", id))
	}
	return cloneFile(entry.file), nil
}

// Files returns copies of every file in creation order.
func (vol *Volume) Files() []disksim.File {
	vol.mu.Lock()
	defer vol.mu.Unlock()

	entries := make([]*fileEntry, 0, len(vol.files))
	for _, entry := range vol.files {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].sequence < entries[j].sequence })

	files := make([]disksim.File, len(entries))
	for i, entry := range entries {
		files[i] = cloneFile(entry.file)
	}
	return files
}

// BlockState describes one block for display purposes.
type BlockState struct {
	Block disksim.BlockID `csv:"block"`
	Used  bool            `csv:"used"`
	Owner disksim.FileID  `csv:"owner"`
	// Index is true for the index block of an indexed file.
	Index bool `csv:"index"`
}

// BlockMap describes every block on the disk in order.
func (vol *Volume) BlockMap() []BlockState {
	vol.mu.Lock()
	defer vol.mu.Unlock()

	indexBlocks := make(map[disksim.BlockID]bool)
	for _, entry := range vol.files {
		if block, ok := entry.file.IndexBlock(); ok {
			indexBlocks[block] = true
		}
	}

	states := make([]BlockState, vol.tracker.TotalBlocks())
	for i := range states {
		block := disksim.BlockID(i)
		owner, used := vol.tracker.Owner(block)
		states[i] = BlockState{Block: block, Used: used, Owner: owner, Index: indexBlocks[block]}
	}
	return states
}

// FreeBlocks returns the free blocks in ascending order.
func (vol *Volume) FreeBlocks() []disksim.BlockID {
	vol.mu.Lock()
	defer vol.mu.Unlock()
	return vol.tracker.FreeBlocks()
}

// UsedBitmap returns the used-block bitmap, one bit per block.
func (vol *Volume) UsedBitmap() []byte {
	vol.mu.Lock()
	defer vol.mu.Unlock()
	return vol.tracker.Bitmap()
}

// Check verifies the volume's internal consistency: the tracker's own
// invariants, and that the file table and tracker agree block for block.
func (vol *Volume) Check() error {
	vol.mu.Lock()
	defer vol.mu.Unlock()

	if err := vol.tracker.Check(); err != nil {
		return err
	}

	claimed := uint(0)
	for id, entry := range vol.files {
		for _, block := range entry.file.Blocks {
			owner, ok := vol.tracker.Owner(block)
			if !ok || owner != id {
				return disksim.ErrInconsistentState.WithMessage(
					fmt.Sprintf("file %q lists block %d but the tracker says %q owns it", id, block, owner))
			}
		}
		claimed += uint(len(entry.file.Blocks))
	}
	if claimed != vol.tracker.UsedCount() {
		return disksim.ErrInconsistentState.WithMessage(
			fmt.Sprintf("files claim %d blocks but %d are in use", claimed, vol.tracker.UsedCount()))
	}
	return nil
}

func cloneFile(file disksim.File) disksim.File {
	file.Blocks = file.Blocks.Clone()
	return file
}
