// Package scheduler discovers files in the watch directory and fans them
// out to independent pipeline runs on a fixed-size worker pool.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cmgoffena13/file-loader/internal/domain"
	"github.com/cmgoffena13/file-loader/internal/pipeline"
	"github.com/cmgoffena13/file-loader/internal/readers"
)

// Scheduler runs file pipelines in parallel with failure isolation: a
// panicking pipeline becomes a failed Result, never a crashed process.
type Scheduler struct {
	processor *pipeline.Processor
	workers   int
	log       *logrus.Logger
}

// New builds a scheduler with the given worker count.
func New(processor *pipeline.Processor, workers int, log *logrus.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{processor: processor, workers: workers, log: log}
}

// Discover lists the supported files in the watch directory. Hidden files
// are skipped; discovery order is filesystem-defined.
func Discover(directory string) ([]string, error) {
	info, err := os.Stat(directory)
	if err != nil {
		return nil, fmt.Errorf("watch directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", directory)
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to list watch directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !readers.Supported(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(directory, entry.Name()))
	}
	return files, nil
}

// Run processes every discovered file and returns when each has reached a
// terminal state. Cancelling ctx stops new pipelines from starting; running
// pipelines cancel at their next I/O boundary.
func (s *Scheduler) Run(ctx context.Context, directory string) ([]pipeline.Result, error) {
	files, err := Discover(directory)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		s.log.Warnf("no files found in directory: %s", directory)
		return nil, nil
	}

	jobs := make(chan string)
	results := make(chan pipeline.Result, len(files))

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- s.runOne(ctx, path)
			}
		}()
	}

	for _, path := range files {
		select {
		case <-ctx.Done():
			// Undispatched files are simply not started this cycle.
		case jobs <- path:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()
	close(results)

	all := make([]pipeline.Result, 0, len(files))
	for result := range results {
		all = append(all, result)
	}

	successful := 0
	for _, result := range all {
		if result.Status == "" || result.Skipped {
			continue
		}
		if result.Status != domain.LoadStatusFailed {
			successful++
		}
	}
	s.log.Infof("processed %d files: %d successful, %d failed", len(all), successful, len(all)-successful)
	return all, nil
}

// runOne isolates a single pipeline, converting panics into failed results.
func (s *Scheduler) runOne(ctx context.Context, path string) (result pipeline.Result) {
	defer func() {
		if p := recover(); p != nil {
			s.log.WithField("file", filepath.Base(path)).
				Errorf("pipeline panicked: %v\n%s", p, debug.Stack())
			result = pipeline.Result{
				FileName:     filepath.Base(path),
				Status:       domain.LoadStatusFailed,
				ErrorType:    "Internal Error",
				ErrorMessage: fmt.Sprintf("panic: %v", p),
			}
		}
	}()
	return s.processor.ProcessFile(ctx, path)
}
