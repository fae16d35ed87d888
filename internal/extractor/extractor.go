// Package extractor turns uploaded file bytes into plain text.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"nexus/internal/domain"
)

var _ domain.Extractor = (*Extractor)(nil)

// Extractor dispatches on the lowercased file extension: .docx and .pdf get format
// specific handling, everything else is read as UTF-8 text.
type Extractor struct {
	pdf *PDF
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithPDF replaces the PDF backend, mostly to inject a fake CommandRunner.
func WithPDF(p *PDF) Option {
	return func(e *Extractor) { e.pdf = p }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{pdf: NewPDF()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns the text of the file. Failures wrap domain.ErrExtraction; text that is
// blank after trimming fails with domain.ErrEmptyDocument.
func (e *Extractor) Extract(ctx context.Context, content []byte, fileName string) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".docx":
		text, err = extractDOCX(content)
	case ".pdf":
		text, err = e.pdf.Extract(ctx, content)
	default:
		text, err = extractPlain(content)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrExtraction, fileName, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyDocument
	}
	return text, nil
}

func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	return string(content), nil
}
