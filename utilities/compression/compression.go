package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Compress run-length encodes `data` and gzips the result.
func Compress(data []byte) ([]byte, error) {
	var buffer bytes.Buffer

	// The highest level costs next to nothing for bitmap-sized inputs.
	gzWriter, err := gzip.NewWriterLevel(&buffer, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err = gzWriter.Write(EncodeRLE8(data)); err != nil {
		return nil, err
	}
	if err = gzWriter.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Decompress reverses [Compress]. The decompressed data must be exactly
// `expectedSize` bytes long.
func Decompress(packed []byte, expectedSize int) ([]byte, error) {
	gzReader, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, err
	}
	defer gzReader.Close()

	// RLE8 never takes more than 3 bytes per input byte, so anything longer is
	// garbage. Stop reading there instead of inflating it.
	encodedLimit := int64(expectedSize)*3 + 1
	encoded, err := io.ReadAll(io.LimitReader(gzReader, encodedLimit))
	if err != nil {
		return nil, err
	}
	if int64(len(encoded)) == encodedLimit {
		return nil, fmt.Errorf("compressed data is too large for %d bytes", expectedSize)
	}

	data, err := DecodeRLE8(encoded, expectedSize)
	if err != nil {
		return nil, err
	}
	if len(data) != expectedSize {
		return nil, fmt.Errorf("decompressed %d bytes, expected %d", len(data), expectedSize)
	}
	return data, nil
}
