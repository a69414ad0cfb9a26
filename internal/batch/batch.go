// Package batch submits every code file of a folder to the execution backend,
// one by one or with bounded parallelism, and collects a report.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudcompute/webclient/internal/models"
	"github.com/cloudcompute/webclient/internal/submission"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Options configures a batch run.
type Options struct {
	Dir    string
	Ext    string
	APIKey string
	// Parallel is the maximum number of requests in flight; 1 or less runs sequentially.
	Parallel int
}

// Outcome is the result of one file.
type Outcome struct {
	File     string        `yaml:"file"`
	OK       bool          `yaml:"ok"`
	Output   string        `yaml:"output,omitempty"`
	Errors   string        `yaml:"errors,omitempty"`
	Message  string        `yaml:"message,omitempty"`
	Duration time.Duration `yaml:"duration"`
}

// Report summarizes a batch run.
type Report struct {
	Dir       string    `yaml:"dir"`
	Started   time.Time `yaml:"started"`
	Parallel  int       `yaml:"parallel"`
	Succeeded int       `yaml:"succeeded"`
	Failed    int       `yaml:"failed"`
	Results   []Outcome `yaml:"results"`
}

// Collect lists the regular files of dir with the given extension, sorted by name.
func Collect(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading tasks folder: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// Run submits every matching file and returns the report. Per-file failures
// are recorded in the report; only a cancelled ctx or an unreadable folder
// fails the run.
func Run(ctx context.Context, sub submission.Submitter, opts Options, logger *slog.Logger) (*Report, error) {
	files, err := Collect(opts.Dir, opts.Ext)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Dir:      opts.Dir,
		Started:  time.Now(),
		Parallel: max(opts.Parallel, 1),
		Results:  make([]Outcome, len(files)),
	}
	logger = logger.With("component", "batch")
	logger.Info("starting batch", "dir", opts.Dir, "files", len(files), "parallel", report.Parallel)

	if report.Parallel == 1 {
		for i, name := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report.Results[i] = submitFile(ctx, sub, opts, name, logger)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(report.Parallel)
		var mu sync.Mutex
		for i, name := range files {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				out := submitFile(gctx, sub, opts, name, logger)
				mu.Lock()
				report.Results[i] = out
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	for _, out := range report.Results {
		if out.OK {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	logger.Info("batch finished", "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

func submitFile(ctx context.Context, sub submission.Submitter, opts Options, name string, logger *slog.Logger) Outcome {
	start := time.Now()
	out := Outcome{File: name}

	res, err := Submit(ctx, sub, opts.APIKey, filepath.Join(opts.Dir, name))
	out.Duration = time.Since(start).Round(time.Millisecond)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			out.Message = err.Error()
		} else {
			out.Message = submission.ViewForError(err).Message
		}
		logger.Warn("submission failed", "file", name, "error", err)
		return out
	}

	out.OK = true
	out.Output = res.Output
	if submission.HasErrors(res) {
		out.Errors = res.Error
	}
	logger.Debug("submission done", "file", name, "duration", out.Duration)
	return out
}

// Submit validates and sends one file from disk.
func Submit(ctx context.Context, sub submission.Submitter, apiKey, path string) (*models.ExecutionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, submission.ErrMissingFile
		}
		return nil, fmt.Errorf("reading code file: %w", err)
	}
	defer f.Close()

	if err := submission.Validate(apiKey, true); err != nil {
		return nil, err
	}
	return sub.ProcessCode(ctx, strings.TrimSpace(apiKey), filepath.Base(path), f)
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}
