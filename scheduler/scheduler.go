// Package scheduler orders disk requests under the classic head-scheduling
// policies and reports how far the head travels.
//
// Every function here is pure: nothing is kept between calls and the input
// slices are never modified. Movement is measured in blocks, not time.
package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dargueta/disksim"
)

// Policy is a disk scheduling discipline.
type Policy int

const (
	// FCFS services requests in arrival order.
	FCFS Policy = iota
	// SSTF always services the pending request closest to the head.
	SSTF
	// SCAN sweeps the head in one direction, then reverses.
	SCAN
)

// Policies lists every policy in declaration order.
var Policies = []Policy{FCFS, SSTF, SCAN}

func (p Policy) String() string {
	switch p {
	case FCFS:
		return "FCFS"
	case SSTF:
		return "SSTF"
	case SCAN:
		return "SCAN"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a case-insensitive policy name into a Policy.
func ParsePolicy(text string) (Policy, error) {
	for _, policy := range Policies {
		if strings.EqualFold(strings.TrimSpace(text), policy.String()) {
			return policy, nil
		}
	}
	return FCFS, disksim.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("unknown scheduling policy %q", text))
}

// Direction is the initial sweep direction for SCAN.
type Direction int

const (
	// Up moves toward higher block numbers first.
	Up Direction = iota
	// Down moves toward block 0 first.
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// ParseDirection converts "up" or "down" (any case) into a Direction.
func ParseDirection(text string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "up", "":
		return Up, nil
	case "down":
		return Down, nil
	default:
		return Up, disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown scan direction %q", text))
	}
}

// Options holds the settings only some policies use.
type Options struct {
	// MaxBlock is the highest block number on the disk. SCAN travels to it
	// before reversing when sweeping up.
	MaxBlock int
	// Direction is the initial SCAN sweep direction.
	Direction Direction
}

// Step is one movement of the head.
type Step struct {
	From     int `csv:"from"`
	To       int `csv:"to"`
	Distance int `csv:"distance"`
	// Boundary is true for the SCAN sweep to the edge of the disk, which
	// services no request.
	Boundary bool `csv:"boundary"`
}

// Result is the outcome of scheduling one request queue.
type Result struct {
	Policy Policy
	// Sequence is the order in which requests are serviced.
	Sequence []int
	// Steps lists every head movement, including SCAN boundary sweeps.
	Steps         []Step
	TotalMovement int
	// AverageSeek is TotalMovement divided by the number of serviced requests,
	// or 0 when there are none.
	AverageSeek float64
}

// Schedule orders `requests` starting from head position `head` under
// `policy`. An empty queue gives a zero-movement result, not an error.
// Negative positions are rejected, as are positions past opts.MaxBlock for
// SCAN.
func Schedule(requests []int, head int, policy Policy, opts Options) (Result, error) {
	if err := validate(requests, head, policy, opts); err != nil {
		return Result{Policy: policy}, err
	}

	var trace tracer
	trace.head = head

	switch policy {
	case FCFS:
		fcfs(&trace, requests)
	case SSTF:
		sstf(&trace, requests)
	case SCAN:
		scan(&trace, requests, opts)
	default:
		return Result{Policy: policy}, disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unsupported scheduling policy %d", int(policy)))
	}

	return trace.result(policy), nil
}

// Compare runs the same request queue through every policy.
func Compare(requests []int, head int, opts Options) ([]Result, error) {
	results := make([]Result, 0, len(Policies))
	for _, policy := range Policies {
		result, err := Schedule(requests, head, policy, opts)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func validate(requests []int, head int, policy Policy, opts Options) error {
	if head < 0 {
		return disksim.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("head position %d is negative", head))
	}
	for i, request := range requests {
		if request < 0 {
			return disksim.ErrArgumentOutOfRange.WithMessage(
				fmt.Sprintf("request %d targets negative block %d", i, request))
		}
	}

	if policy != SCAN {
		return nil
	}
	if opts.MaxBlock < head {
		return disksim.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("head position %d is past the last block %d", head, opts.MaxBlock))
	}
	for i, request := range requests {
		if request > opts.MaxBlock {
			return disksim.ErrArgumentOutOfRange.WithMessage(
				fmt.Sprintf(
					"request %d targets block %d past the last block %d",
					i,
					request,
					opts.MaxBlock))
		}
	}
	return nil
}

// tracer accumulates head movements.
type tracer struct {
	head     int
	sequence []int
	steps    []Step
	total    int
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (t *tracer) moveTo(position int, boundary bool) {
	distance := abs(position - t.head)
	t.steps = append(t.steps, Step{From: t.head, To: position, Distance: distance, Boundary: boundary})
	t.total += distance
	t.head = position
	if !boundary {
		t.sequence = append(t.sequence, position)
	}
}

func (t *tracer) result(policy Policy) Result {
	result := Result{
		Policy:        policy,
		Sequence:      t.sequence,
		Steps:         t.steps,
		TotalMovement: t.total,
	}
	if result.Sequence == nil {
		result.Sequence = []int{}
		result.Steps = []Step{}
	}
	if len(t.sequence) > 0 {
		result.AverageSeek = float64(t.total) / float64(len(t.sequence))
	}
	return result
}

func fcfs(trace *tracer, requests []int) {
	for _, request := range requests {
		trace.moveTo(request, false)
	}
}

func sstf(trace *tracer, requests []int) {
	remaining := make([]int, len(requests))
	copy(remaining, requests)

	for len(remaining) > 0 {
		// Strict less-than keeps the earliest request on ties.
		nearest := 0
		nearestDistance := abs(remaining[0] - trace.head)
		for i := 1; i < len(remaining); i++ {
			if distance := abs(remaining[i] - trace.head); distance < nearestDistance {
				nearest = i
				nearestDistance = distance
			}
		}

		trace.moveTo(remaining[nearest], false)
		remaining = append(remaining[:nearest], remaining[nearest+1:]...)
	}
}

// scan services the requests on the starting side of the head nearest first,
// then, only if the other side has requests, travels to the edge of the disk
// and services the other side nearest first.
func scan(trace *tracer, requests []int, opts Options) {
	left := []int{}
	right := []int{}
	for _, request := range requests {
		if request < trace.head {
			left = append(left, request)
		} else {
			right = append(right, request)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(left)))
	sort.Ints(right)

	first, second, edge := right, left, opts.MaxBlock
	if opts.Direction == Down {
		first, second, edge = left, right, 0
	}

	for _, request := range first {
		trace.moveTo(request, false)
	}
	if len(second) == 0 {
		return
	}
	trace.moveTo(edge, true)
	for _, request := range second {
		trace.moveTo(request, false)
	}
}
