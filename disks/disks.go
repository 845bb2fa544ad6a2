// Package disks provides predefined disk geometries that can be used to size a
// simulated volume.
package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dargueta/disksim"
	"github.com/jszwec/csvutil"
)

// DefaultSlug is the slug of the preset used when none is configured.
const DefaultSlug = "default"

////////////////////////////////////////////////////////////////////////////////
// Geometry

type DiskGeometry struct {
	Name               string `csv:"name"`
	Slug               string `csv:"slug"`
	FirstYearAvailable uint   `csv:"first_year_available"`
	FormFactor         string `csv:"form_factor"`
	IsRemovable        uint   `csv:"is_removable"`

	// BitsPerAddressUnit gives the number of bits in the device's smallest
	// addressible unit of memory. For most devices it's a byte (8).
	BitsPerAddressUnit uint `csv:"bits_per_address_unit"`

	// AddressUnitsPerSector gives the number of address units in a sector. A
	// sector is one simulated block.
	AddressUnitsPerSector uint `csv:"address_units_per_sector"`
	SectorsPerTrack       uint `csv:"sectors_per_track"`

	// TotalDataTracks gives the number of data tracks per head.
	TotalDataTracks uint `csv:"total_data_tracks"`
	HiddenTracks    uint `csv:"hidden_tracks"`
	// Heads gives the number of heads in the device.
	Heads uint   `csv:"heads"`
	Notes string `csv:"notes"`
}

// TotalSizeBytes gives the size of the storage device, rounded up to the nearest
// byte.
func (g *DiskGeometry) TotalSizeBytes() int64 {
	bits := int64(
		g.BitsPerAddressUnit * g.AddressUnitsPerSector * g.SectorsPerTrack *
			g.TotalDataTracks * g.Heads)
	if bits%8 == 0 {
		return bits / 8
	}
	return (bits / 8) + 1
}

// BlockSize gives the size of one sector in bytes, rounded up.
func (g *DiskGeometry) BlockSize() uint {
	bits := g.BitsPerAddressUnit * g.AddressUnitsPerSector
	return (bits + 7) / 8
}

// TotalBlocks gives the number of data sectors on the device.
func (g *DiskGeometry) TotalBlocks() uint {
	return g.SectorsPerTrack * g.TotalDataTracks * g.Heads
}

func (g *DiskGeometry) validate() error {
	if g.Slug == "" {
		return fmt.Errorf("preset %q has no slug", g.Name)
	}
	if g.BlockSize() == 0 || g.TotalBlocks() == 0 {
		return fmt.Errorf("preset %q has no usable blocks", g.Slug)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////

// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats
//
//go:embed disk-presets.csv
var diskPresetsRawCSV string
var diskGeometries map[string]DiskGeometry

// GetPredefinedDiskGeometry looks up a preset by its slug.
func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	geometry, ok := diskGeometries[slug]
	if ok {
		return geometry, nil
	}

	return DiskGeometry{}, disksim.ErrNotFound.WithMessage(
		fmt.Sprintf("no predefined disk geometry exists with slug %q", slug))
}

// Presets returns every predefined geometry sorted by slug.
func Presets() []DiskGeometry {
	presets := make([]DiskGeometry, 0, len(diskGeometries))
	for _, geometry := range diskGeometries {
		presets = append(presets, geometry)
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].Slug < presets[j].Slug })
	return presets
}

func init() {
	geometries, err := parseGeometries(strings.NewReader(diskPresetsRawCSV))
	if err != nil {
		panic(err)
	}
	diskGeometries = geometries
}

func parseGeometries(reader io.Reader) (map[string]DiskGeometry, error) {
	csvReader := csv.NewReader(reader)
	csvReader.Comma = '|'

	decoder, err := csvutil.NewDecoder(csvReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder: %w", err)
	}

	geometries := make(map[string]DiskGeometry)

	for {
		var row DiskGeometry
		if err = decoder.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", len(geometries)+1, err)
		}

		if err = row.validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", len(geometries)+1, err)
		}

		_, exists := geometries[row.Slug]
		if exists {
			return nil, fmt.Errorf(
				"duplicate definition for disk %q found on row %d",
				row.Slug,
				len(geometries)+1)
		}
		geometries[row.Slug] = row
	}
	return geometries, nil
}
