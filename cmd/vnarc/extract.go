package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harukana/vnarc/internal/format"
	"github.com/harukana/vnarc/internal/utils"
)

type ExtractionStats struct {
	StartTime    time.Time
	Extracted    atomic.Int64
	Failed       atomic.Int64
	BytesWritten atomic.Int64
}

var extractFiles []string

var extractCmd = &cobra.Command{
	Use:   "extract <archive>",
	Short: "Extract entries from an archive to disk",
	Long: `Extract opens an archive, streams each entry through its filter chain,
and writes the decoded bytes under the output directory. Entries are
extracted concurrently; a failing entry is logged and counted without
aborting its siblings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats := &ExtractionStats{StartTime: time.Now()}

		a, err := format.Open(args[0], cfg.Options())
		if err != nil {
			return err
		}
		defer a.Close()

		entries := a.Entries()
		want := make(map[string]bool, len(extractFiles))
		for _, name := range extractFiles {
			want[name] = true
		}

		var selected []int
		for i, e := range entries {
			if len(want) == 0 || want[e.Name] {
				selected = append(selected, i)
			}
		}
		for name := range want {
			found := false
			for _, i := range selected {
				if entries[i].Name == name {
					found = true
					break
				}
			}
			if !found {
				slog.Warn("Entry not found in archive", "entry", name)
			}
		}
		if len(selected) == 0 {
			slog.Info("Nothing to extract", "archive", args[0])
			return nil
		}

		slog.Info("Starting extraction",
			"archive", args[0],
			"format", a.FormatName(),
			"entries", len(selected),
			"workers", cfg.Workers)

		progress := utils.NewProgress(len(selected), !noProgress)

		g, _ := errgroup.WithContext(context.Background())
		g.SetLimit(cfg.Workers)
		for _, i := range selected {
			i := i
			g.Go(func() error {
				name := entries[i].Name
				if err := extractEntry(a.OpenIndex, i, name, cfg.Output, stats); err != nil {
					stats.Failed.Add(1)
					slog.Error("Entry extraction failed", "entry", name, "error", err)
				} else {
					stats.Extracted.Add(1)
				}
				progress.Step(name)
				return nil
			})
		}
		// Workers log and count failures instead of returning them.
		_ = g.Wait()
		progress.Finish()

		slog.Info("Extraction complete",
			"extracted", stats.Extracted.Load(),
			"failed", stats.Failed.Load(),
			"bytes", stats.BytesWritten.Load(),
			"warnings", a.Diagnostics().Warnings(),
			"elapsed", time.Since(stats.StartTime).Round(time.Millisecond))
		if failed := stats.Failed.Load(); failed > 0 {
			return fmt.Errorf("%d of %d entries failed", failed, len(selected))
		}
		return nil
	},
}

type openFunc func(i int) (io.ReadSeekCloser, error)

func extractEntry(open openFunc, index int, name, outDir string, stats *ExtractionStats) error {
	stream, err := open(index)
	if err != nil {
		return err
	}
	defer stream.Close()

	dest, err := safeJoin(outDir, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	n, err := io.Copy(f, stream)
	stats.BytesWritten.Add(n)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("writing %q: %w", dest, err)
	}
	return nil
}

// safeJoin maps an entry name onto the output directory, rejecting
// names that would escape it. Archive names use either separator.
func safeJoin(outDir, name string) (string, error) {
	clean := filepath.Clean(strings.ReplaceAll(name, "\\", "/"))
	if clean == "" || clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("entry name %q escapes the output directory", name)
	}
	return filepath.Join(outDir, clean), nil
}

func init() {
	extractCmd.Flags().StringSliceVar(&extractFiles, "files", []string{}, "comma-separated list of entry names to extract")
	rootCmd.AddCommand(extractCmd)
}
