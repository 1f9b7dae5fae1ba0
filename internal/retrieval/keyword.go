package retrieval

import "strings"

const titleBonus = 0.3

// Keyword scores documents by query word overlap, with a bonus for title hits.
type Keyword struct{}

func (Keyword) Name() string { return "keyword" }

// Score returns |q∩d|/|q| per document, plus titleBonus when any query
// word appears in the title, capped at 1.
func (Keyword) Score(query string, docs []Document) []float64 {
	scores := make([]float64, len(docs))
	qWords := wordSet(query)
	if len(qWords) == 0 {
		return scores
	}

	for i, doc := range docs {
		dWords := wordSet(doc.Text())
		overlap := 0
		for w := range qWords {
			if _, ok := dWords[w]; ok {
				overlap++
			}
		}
		score := float64(overlap) / float64(len(qWords))

		title := strings.ToLower(doc.Title)
		for w := range qWords {
			if strings.Contains(title, w) {
				score += titleBonus
				break
			}
		}
		if score > 1 {
			score = 1
		}
		scores[i] = score
	}
	return scores
}

func wordSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}
