package disksim

import "strings"

// Strategy selects how blocks are picked for a new file.
type Strategy int

const (
	// Continuous hands out the first run of consecutive free blocks.
	Continuous Strategy = iota
	// Linked draws blocks at random from anywhere on the disk.
	Linked
	// Indexed reserves one index block and draws the data blocks at random.
	Indexed
)

// Strategies lists every allocation strategy in declaration order.
var Strategies = []Strategy{Continuous, Linked, Indexed}

func (s Strategy) String() string {
	switch s {
	case Continuous:
		return "continuous"
	case Linked:
		return "linked"
	case Indexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// BlocksNeeded returns the total number of blocks a file needs under this
// strategy when it holds `dataBlocks` blocks of payload. Indexed files need one
// extra block for the index.
func (s Strategy) BlocksNeeded(dataBlocks uint) uint {
	if s == Indexed {
		return dataBlocks + 1
	}
	return dataBlocks
}

// ParseStrategy converts text into a Strategy. Anything it doesn't recognize,
// including the empty string, maps to Continuous. This is the only place
// where unknown strategy names are tolerated.
func ParseStrategy(text string) Strategy {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "linked":
		return Linked
	case "indexed":
		return Indexed
	default:
		return Continuous
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It never fails; see
// ParseStrategy.
func (s *Strategy) UnmarshalText(text []byte) error {
	*s = ParseStrategy(string(text))
	return nil
}
