package volume_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/scheduler"
	simtest "github.com/dargueta/disksim/testing"
	"github.com/dargueta/disksim/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newVolume creates a volume with 1-byte blocks so that sizes equal block
// counts.
func newVolume(t *testing.T, totalBlocks uint) *volume.Volume {
	vol, err := volume.New(volume.Options{
		TotalBlocks: totalBlocks,
		BlockSize:   1,
		Random:      simtest.FixedSource{},
	})
	require.NoError(t, err)
	return vol
}

type layout struct {
	free  []disksim.BlockID
	files []disksim.File
}

func layoutOf(vol *volume.Volume) layout {
	return layout{free: vol.FreeBlocks(), files: vol.Files()}
}

func TestNew__RejectsZeroGeometry(t *testing.T) {
	_, err := volume.New(volume.Options{TotalBlocks: 0, BlockSize: 512})
	assert.ErrorIs(t, err, disksim.ErrInvalidArgument)

	_, err = volume.New(volume.Options{TotalBlocks: 10, BlockSize: 0})
	assert.ErrorIs(t, err, disksim.ErrInvalidArgument)
}

func TestVolume__ContinuousScenario(t *testing.T) {
	vol := newVolume(t, 10)

	first, err := vol.CreateFile("first", 4, disksim.Continuous)
	require.NoError(t, err)
	assert.Equal(t, disksim.BlockList{0, 1, 2, 3}, first.Blocks)

	second, err := vol.CreateFile("second", 3, disksim.Continuous)
	require.NoError(t, err)
	assert.Equal(t, disksim.BlockList{4, 5, 6}, second.Blocks)

	deleted, err := vol.DeleteFile("first")
	require.NoError(t, err)
	assert.Equal(t, first.Blocks, deleted.Blocks)
	assert.Equal(t, []disksim.BlockID{0, 1, 2, 3, 7, 8, 9}, vol.FreeBlocks())

	before := layoutOf(vol)
	_, err = vol.CreateFile("third", 5, disksim.Continuous)
	assert.ErrorIs(t, err, disksim.ErrInsufficientContiguousSpace)
	assert.EqualValues(t, 7, vol.Stat().FreeBlocks, "7 blocks should still be free")
	assert.Equal(t, before, layoutOf(vol), "failed allocation changed the layout")

	_, err = vol.File("third")
	assert.ErrorIs(t, err, disksim.ErrNotFound)
}

func TestCreateFile__SizeRoundsUpToBlocks(t *testing.T) {
	vol, err := volume.New(volume.Options{TotalBlocks: 16, BlockSize: 512})
	require.NoError(t, err)

	file, err := vol.CreateFile("a", 1025, disksim.Continuous)
	require.NoError(t, err)
	assert.Equal(t, disksim.BlockList{0, 1, 2}, file.Blocks)
	assert.EqualValues(t, 1025, file.Size)
}

func TestCreateFile__EmptyFile(t *testing.T) {
	vol := newVolume(t, 4)

	file, err := vol.CreateFile("empty", 0, disksim.Linked)
	require.NoError(t, err)
	assert.Empty(t, file.Blocks)

	indexed, err := vol.CreateFile("indexed", 0, disksim.Indexed)
	require.NoError(t, err)
	assert.Equal(t, disksim.BlockList{0}, indexed.Blocks, "an empty indexed file still takes an index block")
}

func TestCreateFile__DuplicateID(t *testing.T) {
	vol := newVolume(t, 10)
	_, err := vol.CreateFile("a", 2, disksim.Continuous)
	require.NoError(t, err)

	before := layoutOf(vol)
	_, err = vol.CreateFile("a", 2, disksim.Linked)
	assert.ErrorIs(t, err, disksim.ErrExists)
	assert.Equal(t, before, layoutOf(vol))
}

func TestCreateFile__EmptyID(t *testing.T) {
	vol := newVolume(t, 10)
	_, err := vol.CreateFile("", 2, disksim.Continuous)
	assert.ErrorIs(t, err, disksim.ErrInvalidArgument)
}

func TestCreateFile__IndexedNeedsExtraBlock(t *testing.T) {
	vol := newVolume(t, 4)

	before := layoutOf(vol)
	_, err := vol.CreateFile("a", 4, disksim.Indexed)
	assert.ErrorIs(t, err, disksim.ErrInsufficientSpace)
	assert.Equal(t, before, layoutOf(vol))

	file, err := vol.CreateFile("a", 3, disksim.Indexed)
	require.NoError(t, err)
	assert.Len(t, file.Blocks, 4)
	index, ok := file.IndexBlock()
	require.True(t, ok)
	assert.EqualValues(t, 0, index)
	assert.Len(t, file.DataBlocks(), 3)
}

func TestCreateFile__LinkedInsufficientSpace(t *testing.T) {
	vol := newVolume(t, 5)
	_, err := vol.CreateFile("a", 3, disksim.Continuous)
	require.NoError(t, err)

	before := layoutOf(vol)
	_, err = vol.CreateFile("b", 3, disksim.Linked)
	assert.ErrorIs(t, err, disksim.ErrInsufficientSpace)
	assert.Equal(t, before, layoutOf(vol))
}

func TestAllocate__DoesNotCommit(t *testing.T) {
	vol := newVolume(t, 8)

	blocks, err := vol.Allocate(3, disksim.Continuous)
	require.NoError(t, err)
	assert.Equal(t, disksim.BlockList{0, 1, 2}, blocks)
	assert.Len(t, vol.FreeBlocks(), 8)
	assert.Empty(t, vol.Files())
}

func TestDeleteFile__NotFound(t *testing.T) {
	vol := newVolume(t, 8)
	_, err := vol.DeleteFile("missing")
	assert.ErrorIs(t, err, disksim.ErrNotFound)
}

func TestVolume__CreateThenDeleteRestoresLayout(t *testing.T) {
	for _, strategy := range disksim.Strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			vol, err := volume.New(volume.Options{TotalBlocks: 32, BlockSize: 1})
			require.NoError(t, err)

			_, err = vol.CreateFile("keep", 5, disksim.Linked)
			require.NoError(t, err)

			before := vol.FreeBlocks()
			_, err = vol.CreateFile("temp", 7, strategy)
			require.NoError(t, err)
			_, err = vol.DeleteFile("temp")
			require.NoError(t, err)

			assert.Equal(t, before, vol.FreeBlocks())
			require.NoError(t, vol.Check())
		})
	}
}

func TestRelease__IgnoresFreeBlocks(t *testing.T) {
	vol := newVolume(t, 8)
	blocks, err := vol.Allocate(3, disksim.Continuous)
	require.NoError(t, err)

	require.NoError(t, vol.Release(blocks))
	assert.Len(t, vol.FreeBlocks(), 8)
}

func TestRelease__RefusesBlocksOwnedByFiles(t *testing.T) {
	vol := newVolume(t, 8)
	a, err := vol.CreateFile("a", 3, disksim.Continuous)
	require.NoError(t, err)
	before := vol.FreeBlocks()

	err = vol.Release(a.Blocks)
	assert.ErrorIs(t, err, disksim.ErrInvalidArgument)
	assert.Equal(t, before, vol.FreeBlocks())
	require.NoError(t, vol.Check())

	// A mix of free and owned blocks is rejected as a whole.
	err = vol.Release(disksim.BlockList{7, a.Blocks[1]})
	assert.ErrorIs(t, err, disksim.ErrInvalidArgument)
	assert.Equal(t, before, vol.FreeBlocks())

	// The blocks stay with "a", so a new file can't be handed them.
	b, err := vol.CreateFile("b", 3, disksim.Continuous)
	require.NoError(t, err)
	simtest.AssertDistinct(t, append(a.Blocks.Clone(), b.Blocks...))
	require.NoError(t, vol.Check())

	_, err = vol.Compact()
	require.NoError(t, err)
	require.NoError(t, vol.Check())

	_, err = vol.DeleteFile("a")
	require.NoError(t, err)
	require.NoError(t, vol.Check())
	b, err = vol.File("b")
	require.NoError(t, err)
	assert.Len(t, vol.FreeBlocks(), 8-len(b.Blocks))
}

func TestFiles__CreationOrder(t *testing.T) {
	vol := newVolume(t, 20)
	for _, id := range []disksim.FileID{"c", "a", "b"} {
		_, err := vol.CreateFile(id, 2, disksim.Continuous)
		require.NoError(t, err)
	}

	ids := []disksim.FileID{}
	for _, file := range vol.Files() {
		ids = append(ids, file.ID)
	}
	assert.Equal(t, []disksim.FileID{"c", "a", "b"}, ids)
}

func TestFile__ReturnsCopy(t *testing.T) {
	vol := newVolume(t, 8)
	_, err := vol.CreateFile("a", 2, disksim.Continuous)
	require.NoError(t, err)

	file, err := vol.File("a")
	require.NoError(t, err)
	file.Blocks[0] = 7

	again, err := vol.File("a")
	require.NoError(t, err)
	assert.Equal(t, disksim.BlockList{0, 1}, again.Blocks)
}

func TestCompact__RemapsFiles(t *testing.T) {
	vol, err := volume.Restore(
		volume.Options{TotalBlocks: 12, BlockSize: 1},
		[]disksim.File{
			{ID: "a", Size: 2, Blocks: disksim.BlockList{2, 3}, Allocation: disksim.Continuous},
			{ID: "b", Size: 2, Blocks: disksim.BlockList{9, 5}, Allocation: disksim.Linked},
			{ID: "c", Size: 1, Blocks: disksim.BlockList{11, 7}, Allocation: disksim.Indexed},
		},
	)
	require.NoError(t, err)
	require.Greater(t, vol.FragmentationRate(), 0.0)

	result, err := vol.Compact()
	require.NoError(t, err)
	assert.Equal(t, 6, result.ProcessedBlocks)
	assert.Equal(t, 6, result.MovedBlocks)
	assert.Greater(t, result.RateBefore, 0.0)
	assert.Equal(t, 0.0, result.RateAfter)
	assert.Equal(t, 0.0, vol.FragmentationRate())

	// a comes first on disk, then b (lowest block 5), then c (lowest block 7).
	a, err := vol.File("a")
	require.NoError(t, err)
	assert.Equal(t, disksim.BlockList{0, 1}, a.Blocks)

	b, err := vol.File("b")
	require.NoError(t, err)
	assert.Equal(t, disksim.BlockList{3, 2}, b.Blocks, "linked order must be preserved")

	c, err := vol.File("c")
	require.NoError(t, err)
	assert.Equal(t, disksim.BlockList{5, 4}, c.Blocks, "index block must stay first")

	assert.Equal(t, simtest.Range(6, 12), disksim.BlockList(vol.FreeBlocks()))
	require.NoError(t, vol.Check())
}

func TestCompact__Idempotent(t *testing.T) {
	vol, err := volume.New(volume.Options{TotalBlocks: 64, BlockSize: 1, Random: simtest.FixedSource{Index: 3}})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := vol.CreateFile(disksim.FileID(fmt.Sprintf("f%d", i)), uint64(i+2), disksim.Strategies[i%3])
		require.NoError(t, err)
	}
	_, err = vol.DeleteFile("f2")
	require.NoError(t, err)

	_, err = vol.Compact()
	require.NoError(t, err)
	after := layoutOf(vol)

	second, err := vol.Compact()
	require.NoError(t, err)
	assert.Zero(t, second.MovedBlocks)
	assert.Equal(t, after, layoutOf(vol))
}

func TestVolume__ContinuousSucceedsAfterCompaction(t *testing.T) {
	vol := newVolume(t, 10)
	_, err := vol.CreateFile("first", 4, disksim.Continuous)
	require.NoError(t, err)
	_, err = vol.CreateFile("second", 3, disksim.Continuous)
	require.NoError(t, err)
	_, err = vol.DeleteFile("first")
	require.NoError(t, err)

	_, err = vol.Compact()
	require.NoError(t, err)

	file, err := vol.CreateFile("third", 5, disksim.Continuous)
	require.NoError(t, err)
	assert.Equal(t, disksim.BlockList{3, 4, 5, 6, 7}, file.Blocks)
}

func TestStat(t *testing.T) {
	vol := newVolume(t, 10)
	_, err := vol.CreateFile("a", 2, disksim.Continuous)
	require.NoError(t, err)
	_, err = vol.CreateFile("b", 3, disksim.Continuous)
	require.NoError(t, err)
	_, err = vol.DeleteFile("a")
	require.NoError(t, err)

	status := vol.Stat()
	assert.EqualValues(t, 10, status.TotalBlocks)
	assert.EqualValues(t, 1, status.BlockSize)
	assert.EqualValues(t, 3, status.UsedBlocks)
	assert.EqualValues(t, 7, status.FreeBlocks)
	assert.Equal(t, 1, status.Files)
	assert.InDelta(t, 30.0, status.Utilization, 0.0001)
	assert.Equal(t, 0.0, status.FragmentRate)
	assert.EqualValues(t, 5, status.LargestFreeRun)
}

func TestBlockMap(t *testing.T) {
	vol := newVolume(t, 6)
	_, err := vol.CreateFile("a", 1, disksim.Continuous)
	require.NoError(t, err)
	_, err = vol.CreateFile("b", 2, disksim.Indexed)
	require.NoError(t, err)

	blockMap := vol.BlockMap()
	require.Len(t, blockMap, 6)
	assert.Equal(t, volume.BlockState{Block: 0, Used: true, Owner: "a"}, blockMap[0])
	assert.Equal(t, volume.BlockState{Block: 1, Used: true, Owner: "b", Index: true}, blockMap[1])
	assert.Equal(t, volume.BlockState{Block: 2, Used: true, Owner: "b"}, blockMap[2])
	assert.Equal(t, volume.BlockState{Block: 3, Used: true, Owner: "b"}, blockMap[3])
	assert.Equal(t, volume.BlockState{Block: 5}, blockMap[5])
}

func TestRestore__RejectsBadRecords(t *testing.T) {
	opts := volume.Options{TotalBlocks: 8, BlockSize: 1}

	testCases := []struct {
		name  string
		files []disksim.File
		want  error
	}{
		{
			name: "out of range",
			files: []disksim.File{
				{ID: "a", Size: 1, Blocks: disksim.BlockList{8}, Allocation: disksim.Linked},
			},
			want: disksim.ErrBlockOutOfRange,
		},
		{
			name: "double ownership",
			files: []disksim.File{
				{ID: "a", Size: 2, Blocks: disksim.BlockList{1, 2}, Allocation: disksim.Continuous},
				{ID: "b", Size: 1, Blocks: disksim.BlockList{2}, Allocation: disksim.Linked},
			},
			want: disksim.ErrDoubleReservation,
		},
		{
			name: "wrong block count",
			files: []disksim.File{
				{ID: "a", Size: 2, Blocks: disksim.BlockList{1, 2}, Allocation: disksim.Indexed},
			},
			want: disksim.ErrInvalidArgument,
		},
		{
			name: "continuous with a gap",
			files: []disksim.File{
				{ID: "a", Size: 2, Blocks: disksim.BlockList{1, 3}, Allocation: disksim.Continuous},
			},
			want: disksim.ErrInvalidArgument,
		},
		{
			name: "duplicate id",
			files: []disksim.File{
				{ID: "a", Size: 1, Blocks: disksim.BlockList{1}, Allocation: disksim.Linked},
				{ID: "a", Size: 1, Blocks: disksim.BlockList{2}, Allocation: disksim.Linked},
			},
			want: disksim.ErrExists,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := volume.Restore(opts, tc.files)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRestore__DerivesFreeSpace(t *testing.T) {
	vol, err := volume.Restore(
		volume.Options{TotalBlocks: 6, BlockSize: 1},
		[]disksim.File{
			{ID: "a", Size: 2, Blocks: disksim.BlockList{4, 1}, Allocation: disksim.Linked},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, []disksim.BlockID{0, 2, 3, 5}, vol.FreeBlocks())
	require.NoError(t, vol.Check())
}

func TestSchedule__DefaultsMaxBlockToDiskEnd(t *testing.T) {
	vol := newVolume(t, 200)

	result, err := vol.Schedule(
		[]int{98, 183, 37, 122, 14, 124, 65, 67}, 53, scheduler.SCAN, scheduler.Options{})
	require.NoError(t, err)
	assert.Equal(t, 331, result.TotalMovement)
}

func TestCompare__RunsEveryPolicyWithinDisk(t *testing.T) {
	vol := newVolume(t, 200)
	queue := []int{98, 183, 37, 122, 14, 124, 65, 67}

	results, err := vol.Compare(queue, 53, scheduler.Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, scheduler.FCFS, results[0].Policy)
	assert.Equal(t, 640, results[0].TotalMovement)
	assert.Equal(t, 236, results[1].TotalMovement)
	assert.Equal(t, 331, results[2].TotalMovement)

	_, err = vol.Compare([]int{10, 250}, 53, scheduler.Options{})
	assert.ErrorIs(t, err, disksim.ErrArgumentOutOfRange)
}

func TestSchedule__RejectsRequestsPastDiskEnd(t *testing.T) {
	vol := newVolume(t, 100)

	_, err := vol.Schedule([]int{10, 150}, 0, scheduler.FCFS, scheduler.Options{})
	assert.ErrorIs(t, err, disksim.ErrArgumentOutOfRange)

	_, err = vol.Schedule([]int{10}, 100, scheduler.FCFS, scheduler.Options{})
	assert.ErrorIs(t, err, disksim.ErrArgumentOutOfRange)

	_, err = vol.Schedule([]int{10}, 0, scheduler.SCAN, scheduler.Options{MaxBlock: 120})
	assert.ErrorIs(t, err, disksim.ErrArgumentOutOfRange)
}

type fakeRecorder struct {
	mu           sync.Mutex
	allocations  map[string]int
	failures     int
	released     int
	moved        int
	movement     int
	usedBlocks   uint
	fragmentRate float64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{allocations: map[string]int{}}
}

func (r *fakeRecorder) ObserveAllocation(strategy string, blocks int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failures++
		return
	}
	r.allocations[strategy] += blocks
}

func (r *fakeRecorder) ObserveRelease(blocks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released += blocks
}

func (r *fakeRecorder) ObserveCompaction(movedBlocks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moved += movedBlocks
}

func (r *fakeRecorder) ObserveSchedule(_ string, totalMovement int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movement += totalMovement
}

func (r *fakeRecorder) SetUsage(usedBlocks uint, fragmentationRate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usedBlocks = usedBlocks
	r.fragmentRate = fragmentationRate
}

func TestVolume__ReportsMetrics(t *testing.T) {
	recorder := newFakeRecorder()
	vol, err := volume.New(volume.Options{
		TotalBlocks: 10,
		BlockSize:   1,
		Random:      simtest.FixedSource{},
		Metrics:     recorder,
	})
	require.NoError(t, err)

	_, err = vol.CreateFile("a", 3, disksim.Continuous)
	require.NoError(t, err)
	_, err = vol.CreateFile("b", 2, disksim.Indexed)
	require.NoError(t, err)
	_, err = vol.CreateFile("c", 20, disksim.Linked)
	require.Error(t, err)

	assert.Equal(t, 3, recorder.allocations["continuous"])
	assert.Equal(t, 3, recorder.allocations["indexed"])
	assert.Equal(t, 1, recorder.failures)
	assert.EqualValues(t, 6, recorder.usedBlocks)

	_, err = vol.DeleteFile("a")
	require.NoError(t, err)
	assert.Equal(t, 3, recorder.released)
	assert.EqualValues(t, 3, recorder.usedBlocks)

	result, err := vol.Compact()
	require.NoError(t, err)
	assert.Equal(t, result.MovedBlocks, recorder.moved)
	assert.Equal(t, 0.0, recorder.fragmentRate)

	_, err = vol.Schedule([]int{5, 2}, 0, scheduler.FCFS, scheduler.Options{})
	require.NoError(t, err)
	assert.Equal(t, 8, recorder.movement)
}

func TestVolume__ConcurrentUse(t *testing.T) {
	vol, err := volume.New(volume.Options{TotalBlocks: 256, BlockSize: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				id := disksim.FileID(fmt.Sprintf("w%d-%d", worker, i))
				_, err := vol.CreateFile(id, uint64(i%4+1), disksim.Strategies[i%3])
				if err != nil {
					assert.Truef(
						t,
						errors.Is(err, disksim.ErrInsufficientSpace) ||
							errors.Is(err, disksim.ErrInsufficientContiguousSpace),
						"unexpected error: %v", err)
					continue
				}
				if i%2 == 0 {
					_, err = vol.DeleteFile(id)
					assert.NoError(t, err)
				}
				if i%7 == 0 {
					_, err = vol.Compact()
					assert.NoError(t, err)
				}
			}
		}(worker)
	}
	wg.Wait()

	require.NoError(t, vol.Check())
	status := vol.Stat()
	assert.EqualValues(t, 256, status.UsedBlocks+status.FreeBlocks)
}
