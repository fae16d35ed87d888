package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassificationMetadataCopiesTags(t *testing.T) {
	c := Classification{Type: "SOP", Tags: []string{"a", "b"}, Summary: "s", Priority: 2}

	m0 := c.Metadata("file.txt", 0)
	m1 := c.Metadata("file.txt", 1)
	m0[MetaTags].([]string)[0] = "changed"

	assert.Equal(t, []string{"a", "b"}, m1[MetaTags])
	assert.Equal(t, []string{"a", "b"}, c.Tags)
	assert.Equal(t, "file.txt", m1[MetaSource])
	assert.Equal(t, 1, m1[MetaChunkIndex])
	assert.Equal(t, 2, m1[MetaPriority])
}

func TestUniqueSources(t *testing.T) {
	got := UniqueSources([]string{"b.md", "a.txt", "b.md", "c.pdf", "a.txt"})
	assert.Equal(t, []string{"b.md", "a.txt", "c.pdf"}, got)
	assert.Empty(t, UniqueSources(nil))
}

func TestDocumentExtension(t *testing.T) {
	assert.Equal(t, ".docx", Document{FileName: "Report.DOCX"}.Extension())
	assert.Equal(t, "", Document{FileName: "README"}.Extension())
}

func TestMatchSource(t *testing.T) {
	assert.Equal(t, "x.md", Match{Metadata: map[string]any{MetaSource: "x.md"}}.Source())
	assert.Equal(t, "", Match{}.Source())
}
