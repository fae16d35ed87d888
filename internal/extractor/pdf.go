package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

const pdfTool = "pdftotext"

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPath(name string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func (execRunner) LookPath(name string) (string, error) { return exec.LookPath(name) }

// PDF extracts page text with poppler's pdftotext. Each call stages the document in a
// temporary file that is removed before Extract returns.
type PDF struct {
	runner CommandRunner
	tmpDir string
}

func NewPDF() *PDF { return &PDF{runner: execRunner{}} }

// NewPDFWithRunner is NewPDF with an injected command runner and staging directory.
func NewPDFWithRunner(runner CommandRunner, tmpDir string) *PDF {
	return &PDF{runner: runner, tmpDir: tmpDir}
}

// CheckAvailable reports whether pdftotext can be found.
func (p *PDF) CheckAvailable() error {
	if _, err := p.runner.LookPath(pdfTool); err != nil {
		return fmt.Errorf("%w: %s", ErrPDFToolNotFound, InstallInstructions())
	}
	return nil
}

// Extract writes content to a temp file, runs pdftotext on it and returns the text.
func (p *PDF) Extract(ctx context.Context, content []byte) (string, error) {
	if err := p.CheckAvailable(); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(p.tmpDir, "nexus-*.pdf")
	if err != nil {
		return "", fmt.Errorf("stage pdf: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(content); err != nil {
		f.Close()
		return "", fmt.Errorf("stage pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("stage pdf: %w", err)
	}

	out, err := p.runner.Run(ctx, pdfTool, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// InstallInstructions describes how to install pdftotext.
func InstallInstructions() string {
	return "install pdftotext (poppler): brew install poppler | apt install poppler-utils | dnf install poppler-utils"
}
