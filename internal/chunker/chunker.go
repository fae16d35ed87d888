package chunker

import "strings"

const (
	DefaultMaxChars = 2000
	DefaultOverlap  = 200
)

// Span is the rune range [Start, End) of the source text an emitted chunk was cut from.
type Span struct {
	Start int
	End   int
}

// CharChunker splits text into bounded chunks that overlap by a fixed number of characters,
// preferring to cut at a newline and then at a space in the second half of the window.
type CharChunker struct {
	maxChars int
	overlap  int
}

func NewCharChunker(maxChars, overlap int) *CharChunker {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars / 10
	}
	return &CharChunker{maxChars: maxChars, overlap: overlap}
}

// Chunk returns the trimmed, non-empty chunks of text in order.
func (c *CharChunker) Chunk(text string) []string {
	runes := []rune(text)
	spans := c.spans(runes)
	chunks := make([]string, 0, len(spans))
	for _, sp := range spans {
		chunk := strings.TrimSpace(string(runes[sp.Start:sp.End]))
		if chunk == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Spans reports the untrimmed source ranges Chunk cuts text into.
func (c *CharChunker) Spans(text string) []Span {
	return c.spans([]rune(text))
}

func (c *CharChunker) spans(runes []rune) []Span {
	n := len(runes)
	var out []Span
	start := 0
	for start < n {
		end := start + c.maxChars
		if end < n {
			end = c.breakPoint(runes, start, end)
		}
		stop := end
		if stop > n {
			stop = n
		}
		out = append(out, Span{Start: start, End: stop})
		if end >= n {
			break
		}
		next := end - c.overlap
		if next <= start {
			// stalled: resume without overlap
			next = end
		}
		start = next
	}
	return out
}

// breakPoint moves end back to the last newline, or failing that the last space,
// as long as the cut stays past the middle of the window.
func (c *CharChunker) breakPoint(runes []rune, start, end int) int {
	mid := start + c.maxChars/2
	if i := lastIndexAt(runes, '\n', end); i > mid {
		return i
	}
	if i := lastIndexAt(runes, ' ', end); i > mid {
		return i
	}
	return end
}

func lastIndexAt(runes []rune, r rune, from int) int {
	if from >= len(runes) {
		from = len(runes) - 1
	}
	for i := from; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
