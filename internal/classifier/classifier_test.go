package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/domain"
	"nexus/internal/llm"
)

type fakeCompleter struct {
	reply    string
	err      error
	messages []domain.Message
	opts     llm.Options
}

func (f *fakeCompleter) Complete(_ context.Context, messages []domain.Message, opts llm.Options) (string, error) {
	f.messages = messages
	f.opts = opts
	return f.reply, f.err
}

func TestClassifyBackendFailureReturnsDefault(t *testing.T) {
	c := NewLLM(&fakeCompleter{err: errors.New("401 unauthorized")}, Config{}, nil)

	got := c.Classify(context.Background(), "some text", "doc.txt")
	assert.Equal(t, domain.Classification{
		Type:     "General",
		Tags:     []string{"Unclassified"},
		Summary:  "Content uploaded via Knowledge Factory.",
		Priority: 3,
	}, got)
}

func TestClassifyParsesReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  domain.Classification
	}{
		{
			name:  "complete",
			reply: `{"type":"SOP","tags":["Cloud","Security","Cloud"],"summary":"How to deploy.","priority":5}`,
			want:  domain.Classification{Type: "SOP", Tags: []string{"Cloud", "Security", "Cloud"}, Summary: "How to deploy.", Priority: 5},
		},
		{
			name:  "only type",
			reply: `{"type":"Case Study"}`,
			want:  domain.Classification{Type: "Case Study", Tags: []string{"Unclassified"}, Summary: DefaultSummary, Priority: 3},
		},
		{
			name:  "empty object",
			reply: `{}`,
			want:  Default(),
		},
		{
			name:  "empty strings and zero priority count as absent",
			reply: `{"type":"","summary":"  ","priority":0}`,
			want:  Default(),
		},
		{
			name:  "empty tag list is kept",
			reply: `{"tags":[]}`,
			want:  domain.Classification{Type: DefaultType, Tags: []string{}, Summary: DefaultSummary, Priority: 3},
		},
		{
			name:  "string priority",
			reply: `{"priority":"4"}`,
			want:  domain.Classification{Type: DefaultType, Tags: DefaultTags(), Summary: DefaultSummary, Priority: 4},
		},
		{
			name:  "priority clamped",
			reply: `{"priority":9}`,
			want:  domain.Classification{Type: DefaultType, Tags: DefaultTags(), Summary: DefaultSummary, Priority: 5},
		},
		{
			name:  "malformed json",
			reply: `type: SOP`,
			want:  Default(),
		},
		{
			name:  "tags of the wrong type",
			reply: `{"tags":"Cloud"}`,
			want:  Default(),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewLLM(&fakeCompleter{reply: tc.reply}, Config{}, nil)
			assert.Equal(t, tc.want, c.Classify(context.Background(), "text", "doc.md"))
		})
	}
}

func TestClassifySendsBoundedPrefixAndFileName(t *testing.T) {
	fc := &fakeCompleter{reply: `{}`}
	c := NewLLM(fc, Config{}, nil)
	text := strings.Repeat("é", 4000) + "TAIL-MARKER"

	c.Classify(context.Background(), text, "pricing.docx")

	require.Len(t, fc.messages, 2)
	assert.Equal(t, llm.RoleSystem, fc.messages[0].Role)
	user := fc.messages[1].Content
	assert.Contains(t, user, "pricing.docx")
	assert.Contains(t, user, strings.Repeat("é", 4000))
	assert.NotContains(t, user, "TAIL-MARKER")
	assert.True(t, fc.opts.JSON)
	assert.Equal(t, DefaultModel, fc.opts.Model)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "hi", truncateRunes("hi", 10))
	assert.True(t, utf8.ValidString(truncateRunes("日本語テキスト", 3)))
	assert.Equal(t, "日本語", truncateRunes("日本語テキスト", 3))
}

func TestDefaultReturnsFreshTags(t *testing.T) {
	a := Default()
	a.Tags[0] = "mutated"
	assert.Equal(t, []string{"Unclassified"}, Default().Tags)
}

func TestExtractiveClassifier(t *testing.T) {
	text := "Tracker cloud storage keeps evidence safe. Evidence chain of custody matters. " +
		"Cloud evidence retention is configurable per agency. The weather was nice."
	got := NewExtractive(3).Classify(context.Background(), text, "evidence.txt")

	assert.Equal(t, DefaultType, got.Type)
	assert.Equal(t, DefaultPriority, got.Priority)
	require.Len(t, got.Tags, 3)
	assert.Equal(t, "evidence", got.Tags[0])
	assert.Equal(t, "cloud", got.Tags[1])
	assert.Contains(t, got.Summary, "vidence")
}

func TestExtractiveEmptyText(t *testing.T) {
	assert.Equal(t, Default(), NewExtractive(0).Classify(context.Background(), "  ... ", "x.txt"))
}
