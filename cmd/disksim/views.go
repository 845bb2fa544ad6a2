package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/catalog"
	"github.com/dargueta/disksim/fragmentation"
	"github.com/dargueta/disksim/internal/output"
	"github.com/dargueta/disksim/scheduler"
	"github.com/dargueta/disksim/volume"
	"github.com/dustin/go-humanize"
)

// fileRecord is one row of `ls`.
type fileRecord struct {
	Name       string `csv:"name" json:"name" yaml:"name"`
	ID         string `csv:"id" json:"id" yaml:"id"`
	Size       uint64 `csv:"size" json:"size" yaml:"size"`
	Strategy   string `csv:"strategy" json:"strategy" yaml:"strategy"`
	BlockCount int    `csv:"block_count" json:"blockCount" yaml:"blockCount"`
	Extents    int    `csv:"extents" json:"extents" yaml:"extents"`
	Blocks     string `csv:"blocks" json:"blocks" yaml:"blocks"`
}

func displayName(names *catalog.Catalog, id disksim.FileID) string {
	if name, ok := names.NameOf(id); ok {
		return name
	}
	return string(id)
}

func fileRows(vol *volume.Volume, names *catalog.Catalog) []fileRecord {
	files := vol.Files()
	rows := make([]fileRecord, len(files))
	for i, file := range files {
		rows[i] = fileRecord{
			Name:       displayName(names, file.ID),
			ID:         string(file.ID),
			Size:       file.Size,
			Strategy:   file.Allocation.String(),
			BlockCount: len(file.Blocks),
			Extents:    len(fragmentation.Extents(file.Blocks)),
			Blocks:     formatBlocks(file.Blocks),
		}
	}
	return rows
}

// formatBlocks lists blocks in file order, collapsing ascending runs into
// ranges: [4 5 6 9 2] becomes "4-6,9,2".
func formatBlocks(blocks disksim.BlockList) string {
	if len(blocks) == 0 {
		return "-"
	}

	parts := []string{}
	start := 0
	for i := 1; i <= len(blocks); i++ {
		if i < len(blocks) && blocks[i] == blocks[i-1]+1 {
			continue
		}
		if i-1 == start {
			parts = append(parts, strconv.FormatUint(uint64(blocks[start]), 10))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", blocks[start], blocks[i-1]))
		}
		start = i
	}
	return strings.Join(parts, ",")
}

func formatInts(values []int) string {
	parts := make([]string, len(values))
	for i, value := range values {
		parts[i] = strconv.Itoa(value)
	}
	return strings.Join(parts, " ")
}

// statusRecord is the output of `stat`.
type statusRecord struct {
	TotalBlocks    uint    `csv:"total_blocks" json:"totalBlocks" yaml:"totalBlocks"`
	BlockSize      uint    `csv:"block_size" json:"blockSize" yaml:"blockSize"`
	UsedBlocks     uint    `csv:"used_blocks" json:"usedBlocks" yaml:"usedBlocks"`
	FreeBlocks     uint    `csv:"free_blocks" json:"freeBlocks" yaml:"freeBlocks"`
	Files          int     `csv:"files" json:"files" yaml:"files"`
	Utilization    float64 `csv:"utilization" json:"utilization" yaml:"utilization"`
	FragmentRate   float64 `csv:"fragmentation_rate" json:"fragmentationRate" yaml:"fragmentationRate"`
	LargestFreeRun uint    `csv:"largest_free_run" json:"largestFreeRun" yaml:"largestFreeRun"`
}

func statusRecordOf(status volume.Status) statusRecord {
	return statusRecord{
		TotalBlocks:    status.TotalBlocks,
		BlockSize:      status.BlockSize,
		UsedBlocks:     status.UsedBlocks,
		FreeBlocks:     status.FreeBlocks,
		Files:          status.Files,
		Utilization:    status.Utilization,
		FragmentRate:   status.FragmentRate,
		LargestFreeRun: status.LargestFreeRun,
	}
}

func (r statusRecord) pairs() [][2]string {
	capacity := uint64(r.TotalBlocks) * uint64(r.BlockSize)
	return [][2]string{
		{"Capacity", humanize.IBytes(capacity)},
		{"Block size", humanize.IBytes(uint64(r.BlockSize))},
		{"Total blocks", strconv.FormatUint(uint64(r.TotalBlocks), 10)},
		{"Used blocks", strconv.FormatUint(uint64(r.UsedBlocks), 10)},
		{"Free blocks", strconv.FormatUint(uint64(r.FreeBlocks), 10)},
		{"Files", strconv.Itoa(r.Files)},
		{"Utilization", fmt.Sprintf("%.2f%%", r.Utilization)},
		{"Fragmentation", fmt.Sprintf("%.2f%%", r.FragmentRate)},
		{"Largest free run", strconv.FormatUint(uint64(r.LargestFreeRun), 10)},
	}
}

// blockRecord is one row of `map` in a machine-readable format.
type blockRecord struct {
	Block uint   `csv:"block" json:"block" yaml:"block"`
	Used  bool   `csv:"used" json:"used" yaml:"used"`
	Owner string `csv:"owner" json:"owner,omitempty" yaml:"owner,omitempty"`
	Index bool   `csv:"index" json:"index" yaml:"index"`
}

func blockMapRecords(states []volume.BlockState, names *catalog.Catalog) []blockRecord {
	records := make([]blockRecord, len(states))
	for i, state := range states {
		records[i] = blockRecord{Block: uint(state.Block), Used: state.Used, Index: state.Index}
		if state.Used {
			records[i].Owner = displayName(names, state.Owner)
		}
	}
	return records
}

const gridSymbols = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// gridCells gives one character per block: '.' for free blocks, a letter per
// file in order of first appearance, '#' for index blocks. Files beyond the
// symbol set share '*'. The legend table maps symbols back to files.
func gridCells(states []volume.BlockState, names *catalog.Catalog) (string, *output.TableData) {
	symbols := make(map[disksim.FileID]byte)
	counts := make(map[disksim.FileID]int)
	order := []disksim.FileID{}
	symbolFor := func(id disksim.FileID) byte {
		if symbol, ok := symbols[id]; ok {
			return symbol
		}
		symbol := byte('*')
		if len(order) < len(gridSymbols) {
			symbol = gridSymbols[len(order)]
		}
		symbols[id] = symbol
		order = append(order, id)
		return symbol
	}

	cells := make([]byte, len(states))
	for i, state := range states {
		switch {
		case !state.Used:
			cells[i] = '.'
		case state.Index:
			symbolFor(state.Owner)
			counts[state.Owner]++
			cells[i] = '#'
		default:
			cells[i] = symbolFor(state.Owner)
			counts[state.Owner]++
		}
	}

	legend := output.NewTableData("Symbol", "File", "Blocks").Numeric(2)
	for _, id := range order {
		legend.AddRow(string(symbols[id]), displayName(names, id), strconv.Itoa(counts[id]))
	}
	return string(cells), legend
}

func stepsTable(result scheduler.Result) *output.TableData {
	table := output.NewTableData("From", "To", "Distance", "Note").Numeric(0, 1, 2)
	for _, step := range result.Steps {
		note := ""
		if step.Boundary {
			note = "boundary"
		}
		table.AddRow(strconv.Itoa(step.From), strconv.Itoa(step.To), strconv.Itoa(step.Distance), note)
	}
	table.SetFooter("", "Total", strconv.Itoa(result.TotalMovement))
	return table
}

// comparisonRecord is one policy's row of `schedule --compare`.
type comparisonRecord struct {
	Policy        string  `csv:"policy" json:"policy" yaml:"policy"`
	Sequence      string  `csv:"sequence" json:"sequence" yaml:"sequence"`
	TotalMovement int     `csv:"total_movement" json:"totalMovement" yaml:"totalMovement"`
	AverageSeek   float64 `csv:"average_seek" json:"averageSeek" yaml:"averageSeek"`
}

func comparisonRecords(results []scheduler.Result) []comparisonRecord {
	records := make([]comparisonRecord, len(results))
	for i, result := range results {
		records[i] = comparisonRecord{
			Policy:        result.Policy.String(),
			Sequence:      formatInts(result.Sequence),
			TotalMovement: result.TotalMovement,
			AverageSeek:   result.AverageSeek,
		}
	}
	return records
}

func comparisonTable(results []scheduler.Result) *output.TableData {
	table := output.NewTableData("Policy", "Sequence", "Total movement", "Average seek").Numeric(2, 3)
	for _, record := range comparisonRecords(results) {
		table.AddRow(
			record.Policy,
			record.Sequence,
			strconv.Itoa(record.TotalMovement),
			strconv.FormatFloat(record.AverageSeek, 'f', 2, 64))
	}
	return table
}
