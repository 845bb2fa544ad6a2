// Package snapshot saves and restores volumes.
//
// A snapshot is a Document listing the disk geometry and every file with its
// blocks. Free space is never trusted on reload: it is recomputed from the
// file list, and a stored free list that disagrees makes the snapshot invalid.
package snapshot

import (
	"fmt"
	"time"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/catalog"
	"github.com/dargueta/disksim/volume"
	"github.com/hashicorp/go-multierror"
)

// FormatVersion is the document version this package writes.
const FormatVersion = 1

// FileSystemType identifies documents written by this package.
const FileSystemType = "disksim"

// Document is the serializable form of a volume and its catalog.
type Document struct {
	Version        int          `json:"version" yaml:"version"`
	FileSystemType string       `json:"fileSystemType" yaml:"fileSystemType"`
	SavedAt        time.Time    `json:"savedAt" yaml:"savedAt"`
	Disk           Disk         `json:"disk" yaml:"disk"`
	Files          []FileRecord `json:"files" yaml:"files"`
}

// Disk holds the disk-wide fields.
type Disk struct {
	TotalBlocks uint `json:"totalBlocks" yaml:"totalBlocks"`
	BlockSize   uint `json:"blockSize" yaml:"blockSize"`

	// FreeBlocks is informational. If present it must match the free space
	// implied by Files.
	FreeBlocks   []disksim.BlockID `json:"freeBlocks,omitempty" yaml:"freeBlocks,omitempty"`
	FragmentRate float64           `json:"fragmentRate" yaml:"fragmentRate"`
}

// FileRecord is one file.
type FileRecord struct {
	ID         disksim.FileID    `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Size       uint64            `json:"size" yaml:"size"`
	Blocks     disksim.BlockList `json:"blocks" yaml:"blocks"`
	Allocation disksim.Strategy  `json:"allocation" yaml:"allocation"`
	CreatedAt  time.Time         `json:"createdAt" yaml:"createdAt"`
}

// Capture builds a document from a volume and the catalog naming its files.
// `names` may be nil, in which case files are saved without names. The volume
// must not be modified while Capture runs.
func Capture(vol *volume.Volume, names *catalog.Catalog, savedAt time.Time) Document {
	files := vol.Files()
	records := make([]FileRecord, len(files))

	for i, file := range files {
		records[i] = FileRecord{
			ID:         file.ID,
			Size:       file.Size,
			Blocks:     file.Blocks,
			Allocation: file.Allocation,
		}
		if names == nil {
			continue
		}
		if name, ok := names.NameOf(file.ID); ok {
			entry, err := names.Lookup(name)
			if err == nil {
				records[i].Name = entry.Name
				records[i].CreatedAt = entry.CreatedAt
			}
		}
	}

	return Document{
		Version:        FormatVersion,
		FileSystemType: FileSystemType,
		SavedAt:        savedAt.UTC(),
		Disk: Disk{
			TotalBlocks:  vol.TotalBlocks(),
			BlockSize:    vol.BlockSize(),
			FreeBlocks:   vol.FreeBlocks(),
			FragmentRate: vol.FragmentationRate(),
		},
		Files: records,
	}
}

// Validate checks a document for consistency and reports every problem it
// finds, not just the first. The error matches [disksim.ErrCorruptSnapshot]
// and, through it, the kinds of the individual problems.
func Validate(doc *Document) error {
	var result *multierror.Error

	if doc.Version != FormatVersion {
		result = multierror.Append(result, disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unsupported document version %d", doc.Version)))
	}
	if doc.FileSystemType != "" && doc.FileSystemType != FileSystemType {
		result = multierror.Append(result, disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unsupported file system type %q", doc.FileSystemType)))
	}
	if doc.Disk.TotalBlocks == 0 || doc.Disk.BlockSize == 0 {
		result = multierror.Append(result, disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"invalid geometry: %d blocks of %d bytes",
				doc.Disk.TotalBlocks,
				doc.Disk.BlockSize)))
		// Nothing else can be checked without a geometry.
		return disksim.ErrCorruptSnapshot.Wrap(result)
	}

	owners := make(map[disksim.BlockID]disksim.FileID)
	seenIDs := make(map[disksim.FileID]bool)
	seenNames := make(map[string]bool)

	for i, record := range doc.Files {
		if err := validateRecord(i, record, doc.Disk, owners, seenIDs, seenNames); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if doc.Disk.FreeBlocks != nil {
		if err := validateFreeList(doc.Disk, owners); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return disksim.ErrCorruptSnapshot.Wrap(err)
	}
	return nil
}

func validateRecord(
	index int,
	record FileRecord,
	disk Disk,
	owners map[disksim.BlockID]disksim.FileID,
	seenIDs map[disksim.FileID]bool,
	seenNames map[string]bool,
) error {
	var result *multierror.Error
	label := fmt.Sprintf("file %d (%q)", index, record.ID)

	if record.ID == "" {
		result = multierror.Append(result, disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("file %d has no ID", index)))
	} else if seenIDs[record.ID] {
		result = multierror.Append(result, disksim.ErrExists.WithMessage(
			fmt.Sprintf("%s: duplicate file ID", label)))
	}
	seenIDs[record.ID] = true

	if record.Name != "" {
		if seenNames[record.Name] {
			result = multierror.Append(result, disksim.ErrExists.WithMessage(
				fmt.Sprintf("%s: duplicate name %q", label, record.Name)))
		}
		seenNames[record.Name] = true
	}

	expected := record.Allocation.BlocksNeeded(disksim.DataBlocksForSize(record.Size, disk.BlockSize))
	if uint(len(record.Blocks)) != expected {
		result = multierror.Append(result, disksim.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"%s: has %d blocks, a %d-byte %s file needs %d",
				label,
				len(record.Blocks),
				record.Size,
				record.Allocation,
				expected)))
	}

	for i, block := range record.Blocks {
		if uint(block) >= disk.TotalBlocks {
			result = multierror.Append(result, disksim.ErrBlockOutOfRange.WithMessage(
				fmt.Sprintf("%s: block %d is past the end of the disk (%d blocks)", label, block, disk.TotalBlocks)))
			continue
		}
		if owner, taken := owners[block]; taken {
			result = multierror.Append(result, disksim.ErrDoubleReservation.WithMessage(
				fmt.Sprintf("%s: block %d is also claimed by %q", label, block, owner)))
			continue
		}
		owners[block] = record.ID

		if record.Allocation == disksim.Continuous && i > 0 && block != record.Blocks[i-1]+1 {
			result = multierror.Append(result, disksim.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("%s: continuous file is not consecutive at index %d", label, i)))
		}
	}

	return result.ErrorOrNil()
}

func validateFreeList(disk Disk, owners map[disksim.BlockID]disksim.FileID) error {
	listed := make(map[disksim.BlockID]bool, len(disk.FreeBlocks))
	for _, block := range disk.FreeBlocks {
		if uint(block) >= disk.TotalBlocks {
			return disksim.ErrBlockOutOfRange.WithMessage(
				fmt.Sprintf("free list contains block %d, past the end of the disk", block))
		}
		if _, used := owners[block]; used {
			return disksim.ErrInconsistentState.WithMessage(
				fmt.Sprintf("free list contains block %d, which belongs to %q", block, owners[block]))
		}
		listed[block] = true
	}

	for i := uint(0); i < disk.TotalBlocks; i++ {
		block := disksim.BlockID(i)
		if _, used := owners[block]; !used && !listed[block] {
			return disksim.ErrInconsistentState.WithMessage(
				fmt.Sprintf("block %d is neither free nor owned by a file", block))
		}
	}
	return nil
}

// Restore validates a document and rebuilds the volume and catalog it
// describes. The geometry in `opts` is replaced by the document's. Files
// without a name are cataloged under their ID.
func Restore(doc *Document, opts volume.Options) (*volume.Volume, *catalog.Catalog, error) {
	if err := Validate(doc); err != nil {
		return nil, nil, err
	}

	opts.TotalBlocks = doc.Disk.TotalBlocks
	opts.BlockSize = doc.Disk.BlockSize

	files := make([]disksim.File, len(doc.Files))
	for i, record := range doc.Files {
		files[i] = disksim.File{
			ID:         record.ID,
			Size:       record.Size,
			Blocks:     record.Blocks.Clone(),
			Allocation: record.Allocation,
		}
	}

	vol, err := volume.Restore(opts, files)
	if err != nil {
		return nil, nil, disksim.ErrCorruptSnapshot.Wrap(err)
	}

	names := catalog.New()
	for _, record := range doc.Files {
		name := record.Name
		if name == "" {
			name = string(record.ID)
		}
		entry := catalog.Entry{ID: record.ID, Name: name, CreatedAt: record.CreatedAt}
		if err := names.Add(entry); err != nil {
			return nil, nil, disksim.ErrCorruptSnapshot.Wrap(err)
		}
	}

	return vol, names, nil
}
