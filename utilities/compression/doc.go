// Package compression shrinks block-map bitmaps for storage.
//
// Bitmaps of mostly empty or mostly full disks are long runs of 0x00 or 0xff,
// so they are run-length encoded first and the result is gzipped.
//
// The run-length encoding is RLE8, as used by the Microsoft BMP format: if a
// byte B occurs N times where N >= 2, B is written twice, followed by a third
// (unsigned) byte indicating how many additional times B occurred. For example:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// A run of up to 257 bytes takes three bytes. Longer runs are split, so a run
// of 300 "X" is stored as `XX 255 XX 41`. A byte occurring exactly twice costs
// three bytes.
package compression
