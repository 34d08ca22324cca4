package memory

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// bm25Index scores documents with Okapi BM25 (k1=1.5, b=0.75). It is rebuilt
// whole on every add or delete, which stays cheap well past 10^5 records.
type bm25Index struct {
	k1         float64
	b          float64
	corpusSize int
	avgdl      float64
	docFreqs   []map[string]int
	docLen     []int
	idf        map[string]float64
}

type bm25Hit struct {
	index int
	score float64
}

func newBM25(corpus []string) *bm25Index {
	idx := &bm25Index{
		k1:         1.5,
		b:          0.75,
		corpusSize: len(corpus),
		idf:        make(map[string]float64),
	}

	df := make(map[string]int)
	var totalLen int
	for _, doc := range corpus {
		tokens := tokenize(doc)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		idx.docFreqs = append(idx.docFreqs, freqs)
		idx.docLen = append(idx.docLen, len(tokens))
		totalLen += len(tokens)
		for tok := range freqs {
			df[tok]++
		}
	}
	if idx.corpusSize > 0 {
		idx.avgdl = float64(totalLen) / float64(idx.corpusSize)
	}
	for tok, freq := range df {
		idx.idf[tok] = math.Log((float64(idx.corpusSize)-float64(freq)+0.5)/(float64(freq)+0.5) + 1)
	}
	return idx
}

// tokenize lowercases and splits mixed-script text: runs of letters, digits
// and underscores become one token each, CJK ideographs one token per rune.
func tokenize(text string) []string {
	var tokens []string
	var run []rune
	flush := func() {
		if len(run) > 0 {
			tokens = append(tokens, string(run))
			run = run[:0]
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 0x4e00 && r <= 0x9fa5:
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			run = append(run, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func (idx *bm25Index) score(docIdx int, queryTokens []string) float64 {
	var score float64
	freqs := idx.docFreqs[docIdx]
	docLen := float64(idx.docLen[docIdx])
	for _, tok := range queryTokens {
		freq, ok := freqs[tok]
		if !ok {
			continue
		}
		f := float64(freq)
		numerator := idx.idf[tok] * f * (idx.k1 + 1)
		denominator := f + idx.k1*(1-idx.b+idx.b*docLen/(idx.avgdl+1e-6))
		score += numerator / denominator
	}
	return score
}

// search returns positive-scoring documents ranked best first.
func (idx *bm25Index) search(query string, topK int) []bm25Hit {
	tokens := tokenize(query)
	var hits []bm25Hit
	for i := 0; i < idx.corpusSize; i++ {
		if s := idx.score(i, tokens); s > 0 {
			hits = append(hits, bm25Hit{index: i, score: s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
