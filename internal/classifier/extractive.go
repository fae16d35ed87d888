package classifier

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"nexus/internal/domain"
)

var _ domain.Classifier = (*Extractive)(nil)

var (
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?\n]+[.!?\n])`)
)

// Extractive classifies without a model: the summary is the highest ranked sentence by
// normalised token frequency and the tags are the most frequent keywords.
type Extractive struct {
	maxTags   int
	stopwords map[string]struct{}
}

func NewExtractive(maxTags int) *Extractive {
	if maxTags <= 0 {
		maxTags = 3
	}
	return &Extractive{maxTags: maxTags, stopwords: defaultStopwords()}
}

func (e *Extractive) Classify(_ context.Context, text, _ string) domain.Classification {
	out := Default()
	freq := e.frequencies(text)
	if len(freq) == 0 {
		return out
	}
	if tags := e.topTerms(freq); len(tags) > 0 {
		out.Tags = tags
	}
	if s := e.bestSentence(text, freq); s != "" {
		out.Summary = s
	}
	return out
}

// frequencies counts non-stopword tokens, normalised by the most frequent one.
func (e *Extractive) frequencies(text string) map[string]float64 {
	freq := map[string]float64{}
	for _, tok := range e.tokens(text) {
		freq[tok]++
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	for k, v := range freq {
		freq[k] = v / maxF
	}
	return freq
}

func (e *Extractive) topTerms(freq map[string]float64) []string {
	terms := make([]string, 0, len(freq))
	for t := range freq {
		if len([]rune(t)) < 3 {
			continue
		}
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > e.maxTags {
		terms = terms[:e.maxTags]
	}
	return terms
}

func (e *Extractive) bestSentence(text string, freq map[string]float64) string {
	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	best, bestScore := "", 0.0
	for _, sent := range sentences {
		toks := e.tokens(sent)
		if len(toks) == 0 {
			continue
		}
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// sqrt length normalisation keeps long sentences from always winning
		score /= math.Sqrt(float64(len(toks)))
		if score > bestScore {
			best, bestScore = strings.TrimSpace(sent), score
		}
	}
	return best
}

func (e *Extractive) tokens(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := e.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "we", "you", "our", "your", "they", "their", "has", "have", "had", "not", "all", "any", "each", "which", "who", "what", "when", "where", "how",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
