// Package search ranks short documents against a keyword query. It backs the
// gallery's free-text search over settlement descriptions.
//
// Scoring is Jaccard similarity between the query token set Q and a
// document token set D: |Q ∩ D| / |Q ∪ D|. Ties break on shorter text, then
// on ID, so results are deterministic. An Index is immutable after New and
// safe for concurrent use.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Doc is an input document.
type Doc struct {
	ID   string
	Text string
}

// Hit is a ranked document.
type Hit struct {
	ID    string
	Score float64
}

// DefaultStopwords are dropped from queries and documents.
var DefaultStopwords = []string{
	"a", "an", "and", "at", "by", "for", "from", "in", "of", "on", "or",
	"the", "to", "was", "were", "with",
}

// Option configures New.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
}

// WithStopwords replaces DefaultStopwords. An empty list disables stopword
// removal.
func WithStopwords(words []string) Option {
	return func(c *config) { c.stopwords = wordSet(words) }
}

// WithMaxDocs caps how many documents are indexed.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

func wordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			m[w] = struct{}{}
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

type doc struct {
	id     string
	tokens map[string]struct{}
	runes  int
}

// Index is an in-memory keyword index.
type Index struct {
	cfg  config
	docs []doc
}

// New indexes docs. Documents without any token are skipped.
func New(docs []Doc, opts ...Option) *Index {
	cfg := config{stopwords: wordSet(DefaultStopwords)}
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		if cfg.maxDocs > 0 && len(out) >= cfg.maxDocs {
			break
		}
		toks := tokenize(d.Text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, tokens: toks, runes: utf8.RuneCountInString(d.Text)})
	}
	return &Index{cfg: cfg, docs: out}
}

// Len reports the number of indexed documents.
func (i *Index) Len() int { return len(i.docs) }

// TopK returns up to k documents sharing at least one token with q, best
// first. k <= 0 returns every match.
func (i *Index) TopK(q string, k int) []Hit {
	qt := tokenize(q, i.cfg.stopwords)
	if len(qt) == 0 || len(i.docs) == 0 {
		return nil
	}

	type scored struct {
		hit   Hit
		runes int
	}
	var buf []scored
	for _, d := range i.docs {
		over := overlap(qt, d.tokens)
		if over == 0 {
			continue
		}
		union := len(qt) + len(d.tokens) - over
		buf = append(buf, scored{
			hit:   Hit{ID: d.id, Score: float64(over) / float64(union)},
			runes: d.runes,
		})
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].hit.Score != buf[b].hit.Score {
			return buf[a].hit.Score > buf[b].hit.Score
		}
		if buf[a].runes != buf[b].runes {
			return buf[a].runes < buf[b].runes
		}
		return buf[a].hit.ID < buf[b].hit.ID
	})

	if k <= 0 || k > len(buf) {
		k = len(buf)
	}
	out := make([]Hit, k)
	for j := 0; j < k; j++ {
		out[j] = buf[j].hit
	}
	return out
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokens returns the distinct lowercase tokens of s after stopword removal,
// in first-seen order.
func Tokens(s string) []string {
	stop := wordSet(DefaultStopwords)
	var out []string
	seen := map[string]struct{}{}
	for _, w := range wordRE.FindAllString(strings.ToLower(s), -1) {
		if _, skip := stop[w]; skip {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
