package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %s\n", err.Error())
		os.Exit(1)
	}
}

func newApp() *cli.App {
	env := &environment{}

	formatFlag := &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"o"},
		Value:   "table",
		Usage:   "output format: table, json, yaml or csv",
	}

	return &cli.App{
		Name:  "disksim",
		Usage: "Simulate block allocation, fragmentation and disk scheduling",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{"DISKSIM_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Value:   "disksim.json",
				Usage:   "snapshot file holding the simulated disk (.json, .yaml or .yml)",
				EnvVars: []string{"DISKSIM_IMAGE"},
			},
		},
		Before: env.setUp,
		After:  env.tearDown,
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Create an empty disk",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "preset", Usage: "disk preset (see `presets`)"},
					&cli.UintFlag{Name: "blocks", Usage: "number of blocks, overriding the preset"},
					&cli.UintFlag{Name: "block-size", Usage: "block size in bytes, overriding the preset"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite an existing disk"},
				},
				Action: env.initDisk,
			},
			{
				Name:      "create",
				Usage:     "Create a file",
				ArgsUsage: "NAME SIZE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "strategy",
						Aliases: []string{"s"},
						Usage:   "allocation strategy: continuous, linked or indexed",
					},
				},
				Action: env.createFile,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a file",
				ArgsUsage: "NAME",
				Action:    env.deleteFile,
			},
			{
				Name:   "ls",
				Usage:  "List files",
				Flags:  []cli.Flag{formatFlag},
				Action: env.listFiles,
			},
			{
				Name:    "stat",
				Aliases: []string{"df"},
				Usage:   "Show disk usage and fragmentation",
				Flags:   []cli.Flag{formatFlag},
				Action:  env.showStatus,
			},
			{
				Name:   "defrag",
				Usage:  "Compact the disk",
				Action: env.defragment,
			},
			{
				Name:  "map",
				Usage: "Show which file owns each block",
				Flags: []cli.Flag{
					formatFlag,
					&cli.IntFlag{Name: "width", Value: 32, Usage: "blocks per row in the grid"},
				},
				Action: env.showBlockMap,
			},
			{
				Name:      "schedule",
				Usage:     "Order a queue of block requests",
				ArgsUsage: "REQUEST...",
				Flags: []cli.Flag{
					formatFlag,
					&cli.StringFlag{Name: "policy", Aliases: []string{"p"}, Usage: "FCFS, SSTF or SCAN"},
					&cli.IntFlag{Name: "head", Usage: "starting head position"},
					&cli.IntFlag{Name: "max", Usage: "highest block number (default: last block of the disk)"},
					&cli.StringFlag{Name: "direction", Usage: "initial SCAN direction: up or down"},
					&cli.BoolFlag{Name: "compare", Usage: "run every policy and compare"},
				},
				Action: env.schedule,
			},
			{
				Name:   "presets",
				Usage:  "List predefined disk geometries",
				Flags:  []cli.Flag{formatFlag},
				Action: env.listPresets,
			},
			{
				Name:      "export-image",
				Usage:     "Write the block map as a binary image",
				ArgsUsage: "OUTPUT",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "compress", Aliases: []string{"z"}, Usage: "gzip the bitmap"},
				},
				Action: env.exportImage,
			},
			{
				Name:      "inspect-image",
				Usage:     "Summarize a binary block-map image",
				ArgsUsage: "INPUT",
				Action:    env.inspectImage,
			},
		},
	}
}
