package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/catalog"
	"github.com/dargueta/disksim/config"
	"github.com/dargueta/disksim/disks"
	"github.com/dargueta/disksim/internal/output"
	"github.com/dargueta/disksim/scheduler"
	"github.com/dargueta/disksim/snapshot"
	"github.com/dargueta/disksim/volume"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

func (env *environment) printer(ctx *cli.Context) (*output.Printer, error) {
	format, err := output.ParseFormat(ctx.String("format"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	return output.NewPrinter(ctx.App.Writer, format), nil
}

func (env *environment) initDisk(ctx *cli.Context) error {
	if !ctx.Bool("force") {
		if _, err := os.Stat(env.imagePath); err == nil {
			return cli.Exit(
				fmt.Sprintf("%q already exists; use --force to overwrite it", env.imagePath), 1)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	totalBlocks := env.cfg.Disk.TotalBlocks
	blockSize := env.cfg.Disk.BlockSize
	if preset := ctx.String("preset"); preset != "" {
		geometry, err := disks.GetPredefinedDiskGeometry(preset)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		totalBlocks = geometry.TotalBlocks()
		blockSize = geometry.BlockSize()
	}
	if ctx.IsSet("blocks") {
		totalBlocks = ctx.Uint("blocks")
	}
	if ctx.IsSet("block-size") {
		blockSize = ctx.Uint("block-size")
	}

	opts := env.volumeOptions()
	opts.TotalBlocks = totalBlocks
	opts.BlockSize = blockSize
	vol, err := volume.New(opts)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	if err := env.save(vol, catalog.New()); err != nil {
		return err
	}
	fmt.Fprintf(
		ctx.App.Writer,
		"Created %s disk of %d blocks x %s at %s\n",
		humanize.IBytes(uint64(totalBlocks)*uint64(blockSize)),
		totalBlocks,
		humanize.IBytes(uint64(blockSize)),
		env.imagePath)
	return nil
}

func (env *environment) createFile(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return cli.Exit("usage: disksim create NAME SIZE", 2)
	}
	name := ctx.Args().Get(0)
	size, err := humanize.ParseBytes(ctx.Args().Get(1))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid size %q: %s", ctx.Args().Get(1), err), 2)
	}

	strategy := env.cfg.Strategy()
	if ctx.IsSet("strategy") {
		strategy = disksim.ParseStrategy(ctx.String("strategy"))
	}

	vol, names, err := env.load()
	if err != nil {
		return err
	}

	entry, err := names.Reserve(name)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	file, err := vol.CreateFile(entry.ID, size, strategy)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := names.Add(entry); err != nil {
		return err
	}

	if err := env.save(vol, names); err != nil {
		return err
	}
	fmt.Fprintf(
		ctx.App.Writer,
		"Created %s (%s, %s) in blocks %s\n",
		name,
		humanize.IBytes(size),
		strategy,
		formatBlocks(file.Blocks))
	return nil
}

func (env *environment) deleteFile(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return cli.Exit("usage: disksim delete NAME", 2)
	}
	name := ctx.Args().First()

	vol, names, err := env.load()
	if err != nil {
		return err
	}

	entry, err := names.Lookup(name)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	file, err := vol.DeleteFile(entry.ID)
	if err != nil {
		return err
	}
	if _, err := names.Remove(name); err != nil {
		return err
	}

	if err := env.save(vol, names); err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "Deleted %s, freeing %d blocks\n", name, len(file.Blocks))
	return nil
}

func (env *environment) listFiles(ctx *cli.Context) error {
	printer, err := env.printer(ctx)
	if err != nil {
		return err
	}
	vol, names, err := env.load()
	if err != nil {
		return err
	}

	rows := fileRows(vol, names)
	table := output.NewTableData("Name", "Size", "Strategy", "Blocks", "Extents", "Block list").Numeric(1, 3, 4)
	for _, row := range rows {
		table.AddRow(
			row.Name,
			humanize.IBytes(row.Size),
			row.Strategy,
			strconv.Itoa(row.BlockCount),
			strconv.Itoa(row.Extents),
			row.Blocks)
	}
	return printer.Print(table, rows)
}

func (env *environment) showStatus(ctx *cli.Context) error {
	printer, err := env.printer(ctx)
	if err != nil {
		return err
	}
	vol, _, err := env.load()
	if err != nil {
		return err
	}

	status := statusRecordOf(vol.Stat())
	if printer.Format() == output.FormatTable {
		return output.PrintKeyValues(ctx.App.Writer, status.pairs())
	}
	return printer.Print(nil, []statusRecord{status})
}

func (env *environment) defragment(ctx *cli.Context) error {
	vol, names, err := env.load()
	if err != nil {
		return err
	}

	result, err := vol.Compact()
	if err != nil {
		return err
	}
	if err := env.save(vol, names); err != nil {
		return err
	}
	fmt.Fprintf(
		ctx.App.Writer,
		"Moved %d of %d used blocks; fragmentation %.2f%% -> %.2f%%\n",
		result.MovedBlocks,
		result.ProcessedBlocks,
		result.RateBefore,
		result.RateAfter)
	return nil
}

func (env *environment) showBlockMap(ctx *cli.Context) error {
	printer, err := env.printer(ctx)
	if err != nil {
		return err
	}
	vol, names, err := env.load()
	if err != nil {
		return err
	}

	blockMap := vol.BlockMap()
	if printer.Format() != output.FormatTable {
		return printer.Print(nil, blockMapRecords(blockMap, names))
	}

	width := ctx.Int("width")
	if width <= 0 {
		return cli.Exit("--width must be positive", 2)
	}
	cells, legend := gridCells(blockMap, names)
	if err := output.PrintGrid(ctx.App.Writer, cells, width); err != nil {
		return err
	}
	if len(legend.Rows()) == 0 {
		return nil
	}
	fmt.Fprintln(ctx.App.Writer)
	return output.PrintTable(ctx.App.Writer, legend)
}

func (env *environment) schedule(ctx *cli.Context) error {
	printer, err := env.printer(ctx)
	if err != nil {
		return err
	}
	requests, err := parseRequests(ctx.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	policy, err := env.cfg.Policy()
	if err != nil {
		return err
	}
	if ctx.IsSet("policy") {
		if policy, err = scheduler.ParsePolicy(ctx.String("policy")); err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}

	opts := scheduler.Options{MaxBlock: env.cfg.Scheduler.MaxBlock}
	if opts.Direction, err = env.cfg.Direction(); err != nil {
		return err
	}
	if ctx.IsSet("direction") {
		if opts.Direction, err = scheduler.ParseDirection(ctx.String("direction")); err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}
	if ctx.IsSet("max") {
		opts.MaxBlock = ctx.Int("max")
	}
	head := ctx.Int("head")

	// Without a disk, the queue is scheduled against the configured geometry.
	run := func(policy scheduler.Policy) (scheduler.Result, error) {
		return scheduler.Schedule(requests, head, policy, standaloneOptions(env.cfg, opts))
	}
	compare := func() ([]scheduler.Result, error) {
		return scheduler.Compare(requests, head, standaloneOptions(env.cfg, opts))
	}
	if _, statErr := os.Stat(env.imagePath); statErr == nil {
		vol, _, err := env.load()
		if err != nil {
			return err
		}
		run = func(policy scheduler.Policy) (scheduler.Result, error) {
			return vol.Schedule(requests, head, policy, opts)
		}
		compare = func() ([]scheduler.Result, error) {
			return vol.Compare(requests, head, opts)
		}
	}

	if ctx.Bool("compare") {
		results, err := compare()
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return printer.Print(comparisonTable(results), comparisonRecords(results))
	}

	result, err := run(policy)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := printer.Print(stepsTable(result), result.Steps); err != nil {
		return err
	}
	if printer.Format() == output.FormatTable {
		printer.Printf(
			"%s: sequence %s, total movement %d, average seek %.2f\n",
			result.Policy,
			formatInts(result.Sequence),
			result.TotalMovement,
			result.AverageSeek)
	}
	return nil
}

func (env *environment) listPresets(ctx *cli.Context) error {
	printer, err := env.printer(ctx)
	if err != nil {
		return err
	}

	presets := disks.Presets()
	table := output.NewTableData("Slug", "Name", "Blocks", "Block size", "Capacity").Numeric(2, 3, 4)
	for _, preset := range presets {
		table.AddRow(
			preset.Slug,
			preset.Name,
			strconv.FormatUint(uint64(preset.TotalBlocks()), 10),
			humanize.IBytes(uint64(preset.BlockSize())),
			humanize.IBytes(uint64(preset.TotalSizeBytes())))
	}
	return printer.Print(table, presets)
}

func (env *environment) exportImage(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return cli.Exit("usage: disksim export-image OUTPUT", 2)
	}
	vol, _, err := env.load()
	if err != nil {
		return err
	}

	f, err := os.Create(ctx.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := snapshot.ImageOf(vol).Write(f, ctx.Bool("compress"))
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "Wrote %s to %s\n", humanize.IBytes(uint64(n)), ctx.Args().First())
	return nil
}

func (env *environment) inspectImage(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return cli.Exit("usage: disksim inspect-image INPUT", 2)
	}
	f, err := os.Open(ctx.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := snapshot.ReadImage(f)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	used := img.UsedBlocks()
	return output.PrintKeyValues(ctx.App.Writer, [][2]string{
		{"Total blocks", strconv.FormatUint(uint64(img.TotalBlocks), 10)},
		{"Block size", humanize.IBytes(uint64(img.BlockSize))},
		{"Used blocks", strconv.FormatUint(uint64(used), 10)},
		{"Free blocks", strconv.FormatUint(uint64(img.TotalBlocks-used), 10)},
	})
}

func standaloneOptions(cfg *config.Config, opts scheduler.Options) scheduler.Options {
	if opts.MaxBlock == 0 {
		opts.MaxBlock = int(cfg.Disk.TotalBlocks) - 1
	}
	return opts
}

// parseRequests accepts block numbers as separate arguments, comma-separated,
// or both.
func parseRequests(args []string) ([]int, error) {
	requests := []int{}
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			request, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("invalid block number %q", field)
			}
			requests = append(requests, request)
		}
	}
	return requests, nil
}
