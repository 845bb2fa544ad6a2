package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/utilities/compression"
	"github.com/dargueta/disksim/volume"
	"github.com/noxer/bytewriter"
)

// ImageMagic starts every block-map image.
var ImageMagic = [4]byte{'D', 'S', 'B', 'M'}

// ImageVersion is the block-map image version this package writes.
const ImageVersion = 1

const (
	imageFlagCompressed uint16 = 1 << iota
)

// MaxImageBlocks is the largest disk an image can describe. It bounds the
// bitmap a reader will allocate to 16 MiB.
const MaxImageBlocks = 1 << 27

// maxCompressionOverhead bounds the gzip framing around a compressed bitmap.
const maxCompressionOverhead = 1024

// imageHeader is the fixed-size, little-endian header of a block-map image.
// It's followed by PayloadSize bytes of bitmap, compressed or not.
type imageHeader struct {
	Magic       [4]byte
	Version     uint16
	Flags       uint16
	TotalBlocks uint32
	BlockSize   uint32
	UsedBlocks  uint32
	PayloadSize uint32
}

var imageHeaderSize = binary.Size(imageHeader{})

// Image is a compact picture of which blocks of a disk are in use. It carries
// no file information and can't be restored into a volume.
type Image struct {
	TotalBlocks uint
	BlockSize   uint
	// Bitmap has one bit per block, least significant bit first. A set bit
	// means the block is used.
	Bitmap []byte
}

// ImageOf takes a block-map image of a volume.
func ImageOf(vol *volume.Volume) Image {
	totalBlocks := vol.TotalBlocks()
	used := vol.UsedBitmap()

	packed := make([]byte, bitmapSize(totalBlocks))
	copy(packed, used)
	return Image{
		TotalBlocks: totalBlocks,
		BlockSize:   vol.BlockSize(),
		Bitmap:      packed,
	}
}

func bitmapSize(totalBlocks uint) int {
	return int((totalBlocks + 7) / 8)
}

// UsedBlocks counts the set bits in the bitmap.
func (img Image) UsedBlocks() uint {
	used := 0
	for _, b := range img.Bitmap {
		used += bits.OnesCount8(b)
	}
	return uint(used)
}

// IsUsed reports whether `block` is used.
func (img Image) IsUsed(block disksim.BlockID) bool {
	if uint(block) >= img.TotalBlocks {
		return false
	}
	return bitmap.Bitmap(img.Bitmap).Get(int(block))
}

// Write serializes the image to `w`, gzip-compressing the bitmap if
// `compress` is set. It returns the number of bytes written.
func (img Image) Write(w io.Writer, compress bool) (int64, error) {
	if img.TotalBlocks > MaxImageBlocks || img.BlockSize > math.MaxUint32 {
		return 0, disksim.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"%d blocks of %d bytes can't be stored in an image (limit %d blocks)",
				img.TotalBlocks,
				img.BlockSize,
				MaxImageBlocks))
	}
	if len(img.Bitmap) != bitmapSize(img.TotalBlocks) {
		return 0, disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"bitmap is %d bytes, %d blocks need %d",
				len(img.Bitmap),
				img.TotalBlocks,
				bitmapSize(img.TotalBlocks)))
	}

	header := imageHeader{
		Magic:       ImageMagic,
		Version:     ImageVersion,
		TotalBlocks: uint32(img.TotalBlocks),
		BlockSize:   uint32(img.BlockSize),
		UsedBlocks:  uint32(img.UsedBlocks()),
	}

	payload := img.Bitmap
	if compress {
		var err error
		payload, err = compression.Compress(img.Bitmap)
		if err != nil {
			return 0, err
		}
		header.Flags |= imageFlagCompressed
	}
	header.PayloadSize = uint32(len(payload))

	buffer := make([]byte, imageHeaderSize+len(payload))
	writer := bytewriter.New(buffer)

	if err := binary.Write(writer, binary.LittleEndian, &header); err != nil {
		return 0, err
	}
	if _, err := writer.Write(payload); err != nil {
		return 0, err
	}

	n, err := w.Write(buffer)
	return int64(n), err
}

// ReadImage reads an image written by [Image.Write].
func ReadImage(r io.Reader) (Image, error) {
	var header imageHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return Image{}, disksim.ErrCorruptSnapshot.Wrap(err)
	}

	if header.Magic != ImageMagic {
		return Image{}, disksim.ErrCorruptSnapshot.WithMessage(
			fmt.Sprintf("bad magic %q", header.Magic[:]))
	}
	if header.Version != ImageVersion {
		return Image{}, disksim.ErrCorruptSnapshot.WithMessage(
			fmt.Sprintf("unsupported image version %d", header.Version))
	}
	if header.TotalBlocks == 0 || header.BlockSize == 0 {
		return Image{}, disksim.ErrCorruptSnapshot.WithMessage(
			fmt.Sprintf("invalid geometry: %d blocks of %d bytes", header.TotalBlocks, header.BlockSize))
	}

	if header.TotalBlocks > MaxImageBlocks {
		return Image{}, disksim.ErrCorruptSnapshot.WithMessage(
			fmt.Sprintf("%d blocks is more than an image can hold", header.TotalBlocks))
	}

	expectedSize := bitmapSize(uint(header.TotalBlocks))
	compressed := header.Flags&imageFlagCompressed != 0
	if !compressed && int(header.PayloadSize) != expectedSize {
		return Image{}, disksim.ErrCorruptSnapshot.WithMessage(
			fmt.Sprintf(
				"bitmap is %d bytes, %d blocks need %d",
				header.PayloadSize,
				header.TotalBlocks,
				expectedSize))
	}

	if compressed && int(header.PayloadSize) > expectedSize*3+maxCompressionOverhead {
		return Image{}, disksim.ErrCorruptSnapshot.WithMessage(
			fmt.Sprintf("compressed bitmap of %d bytes is implausibly large", header.PayloadSize))
	}

	// PayloadSize only bounds the read; it never sizes a buffer up front.
	payload, err := io.ReadAll(io.LimitReader(r, int64(header.PayloadSize)))
	if err != nil {
		return Image{}, disksim.ErrCorruptSnapshot.Wrap(err)
	}
	if len(payload) != int(header.PayloadSize) {
		return Image{}, disksim.ErrCorruptSnapshot.Wrap(io.ErrUnexpectedEOF)
	}

	if compressed {
		payload, err = compression.Decompress(payload, expectedSize)
		if err != nil {
			return Image{}, disksim.ErrCorruptSnapshot.Wrap(err)
		}
	}

	img := Image{
		TotalBlocks: uint(header.TotalBlocks),
		BlockSize:   uint(header.BlockSize),
		Bitmap:      payload,
	}

	// Bits past the last block must be clear.
	if spare := uint(expectedSize*8) - img.TotalBlocks; spare > 0 {
		if payload[expectedSize-1]>>(8-spare) != 0 {
			return Image{}, disksim.ErrCorruptSnapshot.WithMessage("bits set past the last block")
		}
	}
	if img.UsedBlocks() != uint(header.UsedBlocks) {
		return Image{}, disksim.ErrCorruptSnapshot.WithMessage(
			fmt.Sprintf(
				"header says %d blocks are used, bitmap has %d",
				header.UsedBlocks,
				img.UsedBlocks()))
	}
	return img, nil
}
