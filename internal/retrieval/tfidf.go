package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxFeatures bounds the TF-IDF vocabulary.
const DefaultMaxFeatures = 8000

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// TFIDF scores documents by cosine similarity of unigram+bigram TF-IDF vectors.
// The vector space is rebuilt from the documents on every call.
type TFIDF struct {
	MaxFeatures int
}

func (t TFIDF) Name() string { return "tfidf" }

// Score returns one cosine similarity per document, in document order.
func (t TFIDF) Score(query string, docs []Document) []float64 {
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores
	}

	docTerms := make([][]string, len(docs))
	for i, doc := range docs {
		docTerms[i] = terms(doc.Text())
	}
	vocab := t.vocabulary(docTerms)
	if len(vocab) == 0 {
		return scores
	}

	df := make(map[string]int, len(vocab))
	for _, ts := range docTerms {
		seen := make(map[string]struct{}, len(ts))
		for _, term := range ts {
			if _, ok := vocab[term]; !ok {
				continue
			}
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}
	idf := make(map[string]float64, len(vocab))
	n := float64(len(docs))
	for term := range vocab {
		idf[term] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	q := vectorize(terms(query), vocab, idf)
	if len(q) == 0 {
		return scores
	}
	for i, ts := range docTerms {
		scores[i] = clamp01(dot(q, vectorize(ts, vocab, idf)))
	}
	return scores
}

// vocabulary keeps the MaxFeatures terms with the highest corpus frequency.
func (t TFIDF) vocabulary(docTerms [][]string) map[string]struct{} {
	freq := map[string]int{}
	for _, ts := range docTerms {
		for _, term := range ts {
			freq[term]++
		}
	}

	limit := t.MaxFeatures
	if limit <= 0 {
		limit = DefaultMaxFeatures
	}
	all := make([]string, 0, len(freq))
	for term := range freq {
		all = append(all, term)
	}
	if len(all) > limit {
		sort.Slice(all, func(i, j int) bool {
			if freq[all[i]] != freq[all[j]] {
				return freq[all[i]] > freq[all[j]]
			}
			return all[i] < all[j]
		})
		all = all[:limit]
	}

	vocab := make(map[string]struct{}, len(all))
	for _, term := range all {
		vocab[term] = struct{}{}
	}
	return vocab
}

// terms returns the lowercase unigrams followed by the bigrams of text.
func terms(text string) []string {
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, 2*len(words))
	out = append(out, words...)
	for i := 0; i+1 < len(words); i++ {
		out = append(out, words[i]+" "+words[i+1])
	}
	return out
}

// vectorize builds an L2-normalised sparse TF-IDF vector.
func vectorize(ts []string, vocab map[string]struct{}, idf map[string]float64) map[string]float64 {
	vec := map[string]float64{}
	for _, term := range ts {
		if _, ok := vocab[term]; ok {
			vec[term]++
		}
	}
	var norm float64
	for term, tf := range vec {
		w := tf * idf[term]
		vec[term] = w
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for term := range vec {
		vec[term] /= norm
	}
	return vec
}

func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for term, w := range a {
		sum += w * b[term]
	}
	return sum
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
