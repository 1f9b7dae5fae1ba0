package retrieval_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/HBKDK/ci-llm-agent/internal/retrieval"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	articles []kb.Article
	err      error
}

func (s staticSource) ListAll(context.Context) ([]kb.Article, error) {
	return s.articles, s.err
}

func corpus() []kb.Article {
	return []kb.Article{
		{ID: "a1", Title: "Tasking linker memory overflow", Summary: "insufficient memory for code generation", Fix: "increase the near data section size in the linker script", Tags: []string{"tasking"}},
		{ID: "a2", Title: "CAN bus timeout", Summary: "CANoe reports a timeout on channel 1", Fix: "check termination resistors", Tags: []string{"can"}},
		{ID: "a3", Title: "Jenkins agent offline", Summary: "pipeline stuck waiting for executor", Fix: "restart the agent service", Tags: []string{"ci"}},
	}
}

func TestRetriever_EmptyCorpus(t *testing.T) {
	for _, scorer := range []retrieval.Scorer{retrieval.TFIDF{}, retrieval.Keyword{}} {
		r := retrieval.NewRetriever(staticSource{}, scorer, nil)
		hits, err := r.Search(context.Background(), "anything", 5)
		require.NoError(t, err)
		require.Empty(t, hits)
		require.NotNil(t, hits)
	}
}

func TestRetriever_EmptyQuery(t *testing.T) {
	for _, scorer := range []retrieval.Scorer{retrieval.TFIDF{}, retrieval.Keyword{}} {
		r := retrieval.NewRetriever(staticSource{articles: corpus()}, scorer, nil)
		hits, err := r.Search(context.Background(), "", 5)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		for _, h := range hits {
			require.Zero(t, h.Score)
		}
		require.Equal(t, []string{"a1", "a2", "a3"}, ids(hits))
	}
}

func TestRetriever_TFIDFRanksRelevantFirst(t *testing.T) {
	r := retrieval.NewRetriever(staticSource{articles: corpus()}, retrieval.TFIDF{}, nil)

	hits, err := r.Search(context.Background(), "main.c(45): error: insufficient memory for code generation", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "a1", hits[0].ID)
	require.Greater(t, hits[0].Score, hits[1].Score)
	require.LessOrEqual(t, hits[0].Score, 1.0)
	require.GreaterOrEqual(t, hits[1].Score, 0.0)
}

func TestRetriever_IdenticalDocumentScoresOne(t *testing.T) {
	articles := corpus()
	r := retrieval.NewRetriever(staticSource{articles: articles}, retrieval.TFIDF{}, nil)

	doc := retrieval.Document{Title: articles[1].Title, Summary: articles[1].Summary, Fix: articles[1].Fix, Tags: articles[1].Tags}
	hits, err := r.Search(context.Background(), doc.Text(), 1)
	require.NoError(t, err)
	require.Equal(t, "a2", hits[0].ID)
	require.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestRetriever_TiesKeepCorpusOrder(t *testing.T) {
	articles := []kb.Article{
		{ID: "x", Title: "same", Summary: "same words", Fix: "same"},
		{ID: "y", Title: "same", Summary: "same words", Fix: "same"},
		{ID: "z", Title: "other", Summary: "unrelated", Fix: "nothing"},
	}
	r := retrieval.NewRetriever(staticSource{articles: articles}, retrieval.TFIDF{}, nil)

	hits, err := r.Search(context.Background(), "same words", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y", "z"}, ids(hits))
	require.Equal(t, hits[0].Score, hits[1].Score)
}

func TestRetriever_SourceError(t *testing.T) {
	r := retrieval.NewRetriever(staticSource{err: errors.New("db down")}, nil, nil)
	_, err := r.Search(context.Background(), "q", 5)
	require.Error(t, err)
}

func TestKeyword_Score(t *testing.T) {
	docs := []retrieval.Document{
		{Title: "CAN timeout", Summary: "bus timeout on channel", Fix: "check wiring"},
		{Title: "Other", Summary: "timeout", Fix: ""},
		{Title: "None", Summary: "nothing", Fix: ""},
	}
	scores := retrieval.Keyword{}.Score("can timeout", docs)
	require.InDelta(t, 1.0, scores[0], 1e-9)
	require.InDelta(t, 0.5, scores[1], 1e-9)
	require.InDelta(t, 0.0, scores[2], 1e-9)
}

func TestKeyword_TitleBonus(t *testing.T) {
	docs := []retrieval.Document{{Title: "linker script", Summary: "", Fix: ""}}
	scores := retrieval.Keyword{}.Score("linker overflow memory", docs)
	require.InDelta(t, 1.0/3.0+0.3, scores[0], 1e-9)
}

func TestTFIDF_VocabularyBound(t *testing.T) {
	docs := []retrieval.Document{
		{Title: "alpha beta", Summary: "alpha"},
		{Title: "gamma delta", Summary: "gamma"},
	}
	// Only the two most frequent terms survive, so "beta" is out of vocabulary.
	scores := retrieval.TFIDF{MaxFeatures: 2}.Score("beta", docs)
	require.Equal(t, []float64{0, 0}, scores)

	scores = retrieval.TFIDF{MaxFeatures: 2}.Score("alpha", docs)
	require.Greater(t, scores[0], 0.0)
	require.Zero(t, scores[1])
}

// largeCorpus builds n documents of 120 words each; document marked has the
// only occurrence of "needle".
func largeCorpus(n, marked int) []retrieval.Document {
	docs := make([]retrieval.Document, n)
	for i := range docs {
		words := make([]string, 0, 120)
		for j := 0; j < 120; j++ {
			words = append(words, fmt.Sprintf("term%d", (i*7+j*13)%900))
		}
		if i == marked {
			words = append(words, "needle")
		}
		docs[i] = retrieval.Document{Title: fmt.Sprintf("doc %d", i), Summary: strings.Join(words, " ")}
	}
	return docs
}

func TestTFIDF_LargeCorpus(t *testing.T) {
	docs := largeCorpus(400, 123)

	start := time.Now()
	scores := retrieval.TFIDF{}.Score("needle in the build log", docs)
	elapsed := time.Since(start)

	require.Len(t, scores, 400)
	for i, s := range scores {
		if i == 123 {
			require.Greater(t, s, 0.0)
			continue
		}
		require.Zero(t, s, "doc %d", i)
	}
	require.Less(t, elapsed, time.Second)
}

func BenchmarkTFIDF_Score(b *testing.B) {
	docs := largeCorpus(400, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		retrieval.TFIDF{}.Score("term13 term26 needle", docs)
	}
}

func TestNewScorer(t *testing.T) {
	s, err := retrieval.NewScorer("", 0)
	require.NoError(t, err)
	require.Equal(t, "tfidf", s.Name())

	s, err = retrieval.NewScorer("keyword", 0)
	require.NoError(t, err)
	require.Equal(t, "keyword", s.Name())

	_, err = retrieval.NewScorer("bm25", 0)
	require.Error(t, err)
}

func ids(hits []retrieval.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}
