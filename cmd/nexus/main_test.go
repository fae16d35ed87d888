package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/domain"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func TestCollectFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b.md":          "b",
		"a.txt":         "a",
		"skip.go":       "package x",
		"nested/c.PDF":  "c",
		".hidden/d.txt": "d",
		"notes/e.log":   "e",
		"notes/f.docx":  "f",
	})

	got, err := collectFiles([]string{root, filepath.Join(root, "notes", "e.log"), filepath.Join(root, "a.txt")}, []string{".txt", "md", ".pdf", ".docx"})
	require.NoError(t, err)
	rel := make([]string, len(got))
	for i, p := range got {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		rel[i] = filepath.ToSlash(r)
	}
	assert.Equal(t, []string{"a.txt", "b.md", "nested/c.PDF", "notes/f.docx", "notes/e.log"}, rel)
}

func TestCollectFilesGlobAndMissing(t *testing.T) {
	root := writeTree(t, map[string]string{"x1.txt": "1", "x2.txt": "2", "y.md": "y"})
	got, err := collectFiles([]string{filepath.Join(root, "x*.txt")}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	absent := filepath.Join(root, "absent.txt")
	got, err = collectFiles([]string{absent}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{absent}, got)

	_, err = collectFiles([]string{"[bad"}, nil)
	assert.Error(t, err)
}

func TestIngestFilesIsolatesUnreadableFiles(t *testing.T) {
	root := writeTree(t, map[string]string{"a.md": "alpha", "c.md": "gamma"})
	paths := []string{filepath.Join(root, "a.md"), filepath.Join(root, "b.md"), filepath.Join(root, "c.md")}

	var submitted []string
	batch := func(_ context.Context, docs []domain.Document) domain.BatchReport {
		report := domain.BatchReport{}
		for _, d := range docs {
			submitted = append(submitted, d.FileName)
			report.Results = append(report.Results, domain.IngestionResult{FileName: d.FileName, Success: true, Classification: &domain.Classification{}})
			report.Succeeded++
		}
		return report
	}

	report := ingestFiles(context.Background(), batch, paths)
	assert.Equal(t, []string{"a.md", "c.md"}, submitted)
	require.Len(t, report.Results, 3)
	assert.Equal(t, "a.md", report.Results[0].FileName)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, "b.md", report.Results[1].FileName)
	assert.False(t, report.Results[1].Success)
	assert.Contains(t, report.Results[1].Error, domain.ErrExtraction.Error())
	assert.Equal(t, "c.md", report.Results[2].FileName)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, domain.BatchReport{
		Results: []domain.IngestionResult{
			{FileName: "a.md", Success: true, ChunksCount: 2, Classification: &domain.Classification{Type: "Guide", Tags: []string{"ops", "hr"}, Priority: 2}},
			{FileName: "b.txt", Error: "document appears to be empty or could not be read"},
		},
		Succeeded: 1,
		Failed:    1,
	})
	out := buf.String()
	assert.Contains(t, out, "ok    a.md  2 chunks  type=Guide  priority=2  tags=ops,hr")
	assert.Contains(t, out, "FAIL  b.txt  document appears to be empty")
	assert.Contains(t, out, "1 succeeded, 1 failed")
}

func offlineConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := strings.Join([]string{
		"openai:",
		"  api_key_env: NEXUS_TEST_NO_KEY",
		"embedder:",
		"  type: hashing",
		"  dimension: 128",
		"classifier:",
		"  type: extractive",
		"vector_store:",
		"  type: sqlite",
		"  sqlite:",
		"    data_dir: " + filepath.Join(dir, "data"),
		"retrieval:",
		"  threshold: 0.2",
		"log:",
		"  level: error",
		"",
	}, "\n")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIngestThenSearch(t *testing.T) {
	t.Setenv("NEXUS_TEST_NO_KEY", "")
	cfg := offlineConfig(t)
	docs := writeTree(t, map[string]string{
		"refunds.md": "Refunds are processed within five business days.",
		"empty.txt":  "   ",
	})

	out, err := run(t, "--config", cfg, "ingest", docs, "--concurrency", "2")
	assert.ErrorIs(t, err, errIngestFailures)
	assert.Contains(t, out, "ok    refunds.md")
	assert.Contains(t, out, "FAIL  empty.txt")
	assert.Contains(t, out, "1 succeeded, 1 failed")

	out, err = run(t, "--config", cfg, "search", "refunds", "processed", "business", "days")
	require.NoError(t, err)
	assert.Contains(t, out, "[Source: refunds.md]")
	assert.Contains(t, out, "1. refunds.md")

	out, err = run(t, "--config", cfg, "search", "--threshold", "0.99", "unrelated", "words")
	require.NoError(t, err)
	assert.Contains(t, out, "No relevant documents were found in the knowledge base.")
}

func TestIngestContinuesPastBrokenSymlink(t *testing.T) {
	t.Setenv("NEXUS_TEST_NO_KEY", "")
	cfg := offlineConfig(t)
	docs := writeTree(t, map[string]string{"good.md": "Expense reports are due on the fifth of each month."})
	require.NoError(t, os.Symlink(filepath.Join(docs, "missing.txt"), filepath.Join(docs, "broken.txt")))

	out, err := run(t, "--config", cfg, "ingest", docs)
	assert.ErrorIs(t, err, errIngestFailures)
	assert.Contains(t, out, "FAIL  broken.txt  extraction failed")
	assert.Contains(t, out, "ok    good.md")
	assert.Contains(t, out, "1 succeeded, 1 failed")

	out, err = run(t, "--config", cfg, "search", "expense", "reports", "due")
	require.NoError(t, err)
	assert.Contains(t, out, "[Source: good.md]")
}

func TestAskWithoutKeyFails(t *testing.T) {
	t.Setenv("NEXUS_TEST_NO_KEY", "")
	_, err := run(t, "--config", offlineConfig(t), "ask", "anything")
	assert.ErrorContains(t, err, "chat is unavailable")
}

func TestMigrateValidatesArgs(t *testing.T) {
	_, err := run(t, "--config", offlineConfig(t), "migrate", "sideways")
	assert.Error(t, err)
	_, err = run(t, "--config", offlineConfig(t), "migrate", "up")
	assert.ErrorContains(t, err, "not configured")
}
