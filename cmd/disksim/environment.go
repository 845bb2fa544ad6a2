package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/dargueta/disksim/allocator"
	"github.com/dargueta/disksim/catalog"
	"github.com/dargueta/disksim/config"
	"github.com/dargueta/disksim/internal/logger"
	"github.com/dargueta/disksim/metrics"
	"github.com/dargueta/disksim/snapshot"
	"github.com/dargueta/disksim/volume"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

// environment holds what every command needs: configuration, logging,
// metrics, and the location of the disk snapshot.
type environment struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	imagePath string
	now       func() time.Time
}

func (env *environment) setUp(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	env.cfg = cfg

	log, closer, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return err
	}
	env.logger = log
	env.logCloser = closer

	if cfg.Metrics.Enabled {
		env.registry = prometheus.NewRegistry()
		env.metrics = metrics.New(env.registry)
	}

	env.imagePath = ctx.String("image")
	if env.now == nil {
		env.now = time.Now
	}
	return nil
}

func (env *environment) tearDown(ctx *cli.Context) error {
	var result *multierror.Error
	if env.registry != nil {
		if err := prometheus.WriteToTextfile(env.cfg.Metrics.Textfile, env.registry); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if env.logCloser != nil {
		result = multierror.Append(result, env.logCloser.Close())
	}
	return result.ErrorOrNil()
}

func (env *environment) volumeOptions() volume.Options {
	opts := volume.Options{
		Logger: env.logger,
	}
	if env.metrics != nil {
		opts.Metrics = env.metrics
	}
	if env.cfg.Allocation.Seed != 0 {
		opts.Random = allocator.NewSeededSource(env.cfg.Allocation.Seed)
	}
	return opts
}

// load restores the disk from the snapshot file.
func (env *environment) load() (*volume.Volume, *catalog.Catalog, error) {
	doc, err := snapshot.Load(env.imagePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, cli.Exit(
			fmt.Sprintf("no disk at %q; create one with `disksim init`", env.imagePath), 1)
	}
	if err != nil {
		return nil, nil, err
	}

	vol, names, err := snapshot.Restore(doc, env.volumeOptions())
	if err != nil {
		return nil, nil, err
	}
	env.logger.Debug("disk loaded", "path", env.imagePath, "files", names.Len())
	return vol, names, nil
}

// save writes the disk back to the snapshot file.
func (env *environment) save(vol *volume.Volume, names *catalog.Catalog) error {
	doc := snapshot.Capture(vol, names, env.now())
	if err := snapshot.Save(env.imagePath, &doc); err != nil {
		return err
	}
	env.logger.Debug("disk saved", "path", env.imagePath)
	return nil
}
