package compression

import (
	"fmt"
	"io"
)

const maxRunLength = 257

// EncodeRLE8 run-length encodes `data`.
func EncodeRLE8(data []byte) []byte {
	packed := make([]byte, 0, len(data)/2+1)

	for i := 0; i < len(data); {
		value := data[i]
		runLength := 1
		for i+runLength < len(data) && data[i+runLength] == value {
			runLength++
		}
		i += runLength

		for runLength >= 2 {
			chunk := min(runLength, maxRunLength)
			packed = append(packed, value, value, byte(chunk-2))
			runLength -= chunk
		}
		if runLength == 1 {
			packed = append(packed, value)
		}
	}
	return packed
}

// DecodeRLE8 reverses [EncodeRLE8]. It fails if the decoded data would be
// longer than `limit` bytes, or if the input ends in the middle of a run.
func DecodeRLE8(packed []byte, limit int) ([]byte, error) {
	data := make([]byte, 0, min(limit, len(packed)*2))

	for i := 0; i < len(packed); i++ {
		value := packed[i]
		count := 1

		if i+1 < len(packed) && packed[i+1] == value {
			if i+2 >= len(packed) {
				return nil, fmt.Errorf(
					"%w: missing repeat count after two %02x bytes at offset %d",
					io.ErrUnexpectedEOF,
					value,
					i)
			}
			count = int(packed[i+2]) + 2
			i += 2
		}

		if len(data)+count > limit {
			return nil, fmt.Errorf("decoded data exceeds the limit of %d bytes", limit)
		}
		for ; count > 0; count-- {
			data = append(data, value)
		}
	}
	return data, nil
}
