package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nexus/internal/domain"
)

var errIngestFailures = errors.New("some files failed to ingest")

func ingestCMD(opts *rootOptions) *cobra.Command {
	var (
		exts        []string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "ingest <path|glob|dir>...",
		Short: "Ingest files into the knowledge base",
		Long:  "Ingest files, globs or directories. Directories are walked and filtered by --ext.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if !cmd.Flags().Changed("ext") {
				exts = a.Config.Ingest.Extensions
			}

			paths, err := collectFiles(args, exts)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files matching %s found", strings.Join(exts, ","))
			}

			ingestor := a.Ingestor
			if cmd.Flags().Changed("concurrency") {
				ingestor = ingestor.WithConcurrency(concurrency)
			}
			report := ingestFiles(cmd.Context(), ingestor.IngestBatch, paths)
			printReport(cmd.OutOrStdout(), report)
			if report.Failed > 0 {
				return errIngestFailures
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&exts, "ext", []string{".txt", ".md", ".pdf", ".docx"}, "file extensions to pick up when walking directories")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "files ingested in parallel")
	return cmd
}

// collectFiles expands globs and walks directories. Explicit file arguments are kept
// whatever their extension, even when they cannot be stat'ed; directory entries are
// filtered by exts. Order is stable and duplicates are dropped. Only a malformed
// pattern is an error.
func collectFiles(args, exts []string) ([]string, error) {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = true
	}

	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if matches == nil {
			matches = []string{arg}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				add(m)
				continue
			}
			var found []string
			err = filepath.WalkDir(m, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					// reported when the file is read
					found = append(found, p)
					if d != nil && d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if d.IsDir() {
					if p != m && strings.HasPrefix(d.Name(), ".") {
						return filepath.SkipDir
					}
					return nil
				}
				if allowed[strings.ToLower(filepath.Ext(p))] {
					found = append(found, p)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			slices.Sort(found)
			for _, p := range found {
				add(p)
			}
		}
	}
	return out, nil
}

// ingestFiles reads each path and hands the readable ones to batch. A file that cannot be
// read fails on its own; the report keeps the order of paths.
func ingestFiles(ctx context.Context, batch func(context.Context, []domain.Document) domain.BatchReport, paths []string) domain.BatchReport {
	results := make([]domain.IngestionResult, len(paths))
	docs := make([]domain.Document, 0, len(paths))
	slots := make([]int, 0, len(paths))
	for i, p := range paths {
		name := filepath.Base(p)
		data, err := os.ReadFile(p)
		if err != nil {
			results[i] = domain.IngestionResult{
				FileName: name,
				Error:    fmt.Errorf("%w: %w", domain.ErrExtraction, err).Error(),
			}
			continue
		}
		docs = append(docs, domain.Document{FileName: name, Content: data})
		slots = append(slots, i)
	}

	if len(docs) > 0 {
		ingested := batch(ctx, docs)
		for j, r := range ingested.Results {
			results[slots[j]] = r
		}
	}

	report := domain.BatchReport{Results: results}
	for _, r := range results {
		if r.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report
}

func printReport(w io.Writer, report domain.BatchReport) {
	for _, r := range report.Results {
		if r.Success {
			fmt.Fprintf(w, "ok    %s  %d chunks  type=%s  priority=%d  tags=%s  (%s)\n",
				r.FileName, r.ChunksCount, r.Classification.Type, r.Classification.Priority,
				strings.Join(r.Classification.Tags, ","), r.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(w, "FAIL  %s  %s\n", r.FileName, r.Error)
	}
	fmt.Fprintf(w, "\n%d succeeded, %d failed\n", report.Succeeded, report.Failed)
}
