// Package classifier derives document-level metadata (type, tags, summary, priority).
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"nexus/internal/domain"
	"nexus/internal/llm"
)

const (
	DefaultType       = "General"
	DefaultSummary    = "Content uploaded via Knowledge Factory."
	DefaultPriority   = 3
	DefaultModel      = "gpt-4o-mini"
	DefaultPrefixSize = 4000
)

// DefaultTags is returned when no tags could be derived.
func DefaultTags() []string { return []string{"Unclassified"} }

// Default is the classification used whenever the model cannot provide one.
func Default() domain.Classification {
	return domain.Classification{
		Type:     DefaultType,
		Tags:     DefaultTags(),
		Summary:  DefaultSummary,
		Priority: DefaultPriority,
	}
}

const systemPrompt = "You are a professional knowledge librarian. You file internal documents for a sales and support team."

const userPrompt = `Classify the following document and answer with a single JSON object with these keys:
- "type": the kind of document, e.g. "Case Study", "Product Manual", "SOP", "Objection Handling"
- "tags": an array of short keywords, e.g. ["Cloud", "Security"]
- "summary": one sentence describing the content
- "priority": an integer from 1 (low) to 5 (high)

Document name: %s
Content (first %d characters):
%s`

var _ domain.Classifier = (*LLM)(nil)

// LLM classifies documents with a JSON-mode completion call. It never fails: any
// backend or parse error yields Default().
type LLM struct {
	completer  llm.Completer
	model      string
	prefixSize int
	log        *zap.Logger
}

// Config tunes the LLM classifier.
type Config struct {
	Model      string
	PrefixSize int
}

func NewLLM(completer llm.Completer, cfg Config, log *zap.Logger) *LLM {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.PrefixSize <= 0 {
		cfg.PrefixSize = DefaultPrefixSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LLM{completer: completer, model: cfg.Model, prefixSize: cfg.PrefixSize, log: log.Named("classifier")}
}

func (c *LLM) Classify(ctx context.Context, text, fileName string) domain.Classification {
	prefix := truncateRunes(text, c.prefixSize)
	messages := []domain.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(userPrompt, fileName, c.prefixSize, prefix)},
	}
	reply, err := c.completer.Complete(ctx, messages, llm.Options{Model: c.model, JSON: true})
	if err != nil {
		c.log.Warn("classification failed, using defaults", zap.String("file", fileName), zap.Error(err))
		return Default()
	}
	cls, err := parse(reply)
	if err != nil {
		c.log.Warn("classification reply is not valid JSON, using defaults", zap.String("file", fileName), zap.Error(err))
		return Default()
	}
	return cls
}

// reply mirrors the JSON the model is asked for. Pointers and RawMessage let absent
// keys be told apart from present ones.
type reply struct {
	Type     *string         `json:"type"`
	Tags     []string        `json:"tags"`
	Summary  *string         `json:"summary"`
	Priority json.RawMessage `json:"priority"`
}

func parse(raw string) (domain.Classification, error) {
	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return domain.Classification{}, err
	}
	out := Default()
	if r.Type != nil && strings.TrimSpace(*r.Type) != "" {
		out.Type = strings.TrimSpace(*r.Type)
	}
	if r.Tags != nil {
		out.Tags = r.Tags
	}
	if r.Summary != nil && strings.TrimSpace(*r.Summary) != "" {
		out.Summary = strings.TrimSpace(*r.Summary)
	}
	if p, ok := parsePriority(r.Priority); ok {
		out.Priority = p
	}
	return out, nil
}

// parsePriority accepts a JSON number or a numeric string and clamps it to 1..5.
// Zero, null and anything unparsable count as absent.
func parsePriority(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = v
	}
	p := int(f)
	if p == 0 {
		return 0, false
	}
	if p < 1 {
		p = 1
	}
	if p > 5 {
		p = 5
	}
	return p, true
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
