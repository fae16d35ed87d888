package domain

import "errors"

// Pipeline failure kinds. Stage errors wrap one of these together with the cause.
var (
	ErrExtraction    = errors.New("extraction failed")
	ErrEmptyDocument = errors.New("document appears to be empty or could not be read")
	ErrNoContent     = errors.New("no content chunks created after processing")
	ErrEmbedding     = errors.New("embedding failed")
	ErrStore         = errors.New("database storage failed")
)
