// Package llm defines the completion backend used for classification and answering.
package llm

import (
	"context"

	"nexus/internal/domain"
)

// Options tune a single completion call.
type Options struct {
	Model       string
	Temperature float32
	// JSON constrains the reply to a single JSON object.
	JSON bool
}

// Completer sends a message list to a language model and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, messages []domain.Message, opts Options) (string, error)
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
