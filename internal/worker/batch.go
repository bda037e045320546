package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Processor turns one input record into its output file
type Processor interface {
	ProcessFile(ctx context.Context, in, out string) error
}

// Event describes what the driver did with one input file
type Event struct {
	Input   string
	Output  string
	Skipped bool // output already existed
	DryRun  bool // would have been processed
}

// Summary counts the outcome of a run
type Summary struct {
	Processed int
	Skipped   int
}

// Driver walks a data directory and processes every record whose output
// does not exist yet. Records are handled one at a time in lexical order.
type Driver struct {
	processor Processor
	dryRun    bool
	progress  func(Event)
	logger    *zap.Logger
}

// DriverOption configures a Driver
type DriverOption func(*Driver)

// WithDryRun reports pending records without processing them
func WithDryRun(dryRun bool) DriverOption {
	return func(d *Driver) { d.dryRun = dryRun }
}

// WithProgress registers a callback invoked after every file
func WithProgress(fn func(Event)) DriverOption {
	return func(d *Driver) { d.progress = fn }
}

// WithLogger sets the driver logger
func WithLogger(logger *zap.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDriver creates a driver around processor
func NewDriver(processor Processor, opts ...DriverOption) *Driver {
	d := &Driver{
		processor: processor,
		progress:  func(Event) {},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes every regular file under dataDir, writing to
// suppDir/<basename>. Existing outputs are skipped. The first error stops
// the run and is returned along with the counts so far.
func (d *Driver) Run(ctx context.Context, dataDir, suppDir string) (Summary, error) {
	var sum Summary

	err := filepath.WalkDir(dataDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		out := filepath.Join(suppDir, filepath.Base(path))

		exists, err := fileExists(out)
		if err != nil {
			return err
		}
		if exists {
			sum.Skipped++
			d.logger.Debug("output exists, skipping", zap.String("input", path), zap.String("output", out))
			d.progress(Event{Input: path, Output: out, Skipped: true})
			return nil
		}

		if d.dryRun {
			sum.Processed++
			d.progress(Event{Input: path, Output: out, DryRun: true})
			return nil
		}

		if err := d.processor.ProcessFile(ctx, path, out); err != nil {
			return fmt.Errorf("process %s: %w", path, err)
		}
		sum.Processed++
		d.progress(Event{Input: path, Output: out})
		return nil
	})
	if err != nil {
		return sum, err
	}

	d.logger.Info("run complete",
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Bool("dry_run", d.dryRun))

	return sum, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
