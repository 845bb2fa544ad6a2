package testing

// FixedSource is a random source that always picks the same index, clamped to
// the size of the pool. With the default value of 0 it always takes the
// lowest-numbered remaining block, which makes random allocations predictable.
type FixedSource struct {
	Index int
}

func (s FixedSource) IntN(n int) int {
	if s.Index >= n {
		return n - 1
	}
	return s.Index
}

// SequenceSource replays a fixed list of picks, each taken modulo the pool
// size. Once the list runs out it starts over from the beginning.
type SequenceSource struct {
	Picks []int
	next  int
}

func (s *SequenceSource) IntN(n int) int {
	if len(s.Picks) == 0 {
		return 0
	}
	pick := s.Picks[s.next%len(s.Picks)]
	s.next++
	return pick % n
}
