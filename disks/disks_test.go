package disks_test

import (
	"strings"
	"testing"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/disks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPredefinedDiskGeometry__Default(t *testing.T) {
	geometry, err := disks.GetPredefinedDiskGeometry(disks.DefaultSlug)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, geometry.TotalBlocks())
	assert.EqualValues(t, 4096, geometry.BlockSize())
	assert.EqualValues(t, 4096000, geometry.TotalSizeBytes())
}

func TestGetPredefinedDiskGeometry__Floppy(t *testing.T) {
	geometry, err := disks.GetPredefinedDiskGeometry("pc-1440k")
	require.NoError(t, err)
	assert.EqualValues(t, 2880, geometry.TotalBlocks())
	assert.EqualValues(t, 512, geometry.BlockSize())
	assert.EqualValues(t, 1474560, geometry.TotalSizeBytes())
	assert.EqualValues(t, 1, geometry.IsRemovable)
}

func TestGetPredefinedDiskGeometry__Missing(t *testing.T) {
	_, err := disks.GetPredefinedDiskGeometry("no-such-disk")
	assert.ErrorIs(t, err, disksim.ErrNotFound)
}

func TestPresets__SortedAndUsable(t *testing.T) {
	presets := disks.Presets()
	require.NotEmpty(t, presets)

	for i, preset := range presets {
		assert.NotZero(t, preset.TotalBlocks(), preset.Slug)
		assert.NotZero(t, preset.BlockSize(), preset.Slug)
		if i > 0 {
			assert.Less(t, presets[i-1].Slug, preset.Slug)
		}
	}
}

func TestDiskGeometry__OddWordSize(t *testing.T) {
	geometry := disks.DiskGeometry{
		BitsPerAddressUnit:    12,
		AddressUnitsPerSector: 129,
		SectorsPerTrack:       1,
		TotalDataTracks:       3,
		Heads:                 1,
	}
	assert.EqualValues(t, 194, geometry.BlockSize())
	assert.EqualValues(t, 581, geometry.TotalSizeBytes())
}

func TestParseGeometries__Duplicate(t *testing.T) {
	raw := "name|slug|bits_per_address_unit|address_units_per_sector|sectors_per_track|total_data_tracks|heads\n" +
		"A|a|8|512|9|40|2\n" +
		"B|a|8|512|9|40|2\n"
	_, err := disks.ParseGeometries(strings.NewReader(raw))
	assert.ErrorContains(t, err, "duplicate definition")
}

func TestParseGeometries__NoBlocks(t *testing.T) {
	raw := "name|slug|bits_per_address_unit|address_units_per_sector|sectors_per_track|total_data_tracks|heads\n" +
		"A|a|8|512|0|40|2\n"
	_, err := disks.ParseGeometries(strings.NewReader(raw))
	assert.ErrorContains(t, err, "no usable blocks")
}
