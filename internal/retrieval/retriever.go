// Package retrieval ranks knowledge base articles against symptom queries
// and turns the ranking into a confidence score.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/HBKDK/ci-llm-agent/internal/metrics"
	"go.uber.org/zap"
)

// DefaultTopK is the number of hits returned when the caller passes zero.
const DefaultTopK = 5

// Document is the searchable view of an article.
type Document struct {
	Title   string
	Summary string
	Fix     string
	Tags    []string
}

// Text concatenates the searchable fields.
func (d Document) Text() string {
	return strings.Join([]string{d.Title, d.Summary, d.Fix, strings.Join(d.Tags, " ")}, "\n")
}

// Scorer assigns one similarity score in [0,1] per document.
type Scorer interface {
	Name() string
	Score(query string, docs []Document) []float64
}

// NewScorer returns the scorer for an algorithm name.
func NewScorer(algorithm string, maxFeatures int) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "tfidf":
		return TFIDF{MaxFeatures: maxFeatures}, nil
	case "keyword":
		return Keyword{}, nil
	default:
		return nil, fmt.Errorf("unknown retrieval algorithm %q", algorithm)
	}
}

// Hit is a scored article. Hits are never persisted.
type Hit struct {
	kb.Article
	Score float64 `json:"score"`
}

// ArticleSource provides the full corpus in a stable order.
type ArticleSource interface {
	ListAll(ctx context.Context) ([]kb.Article, error)
}

// Retriever searches the knowledge base.
type Retriever struct {
	source ArticleSource
	scorer Scorer
	logger *zap.Logger
}

// NewRetriever creates a retriever. A nil scorer defaults to TF-IDF.
func NewRetriever(source ArticleSource, scorer Scorer, logger *zap.Logger) *Retriever {
	if scorer == nil {
		scorer = TFIDF{MaxFeatures: DefaultMaxFeatures}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{source: source, scorer: scorer, logger: logger}
}

// Search returns up to topK hits by descending score. Ties keep corpus order.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.WithLabelValues(r.scorer.Name()).Observe(time.Since(start).Seconds())
	}()

	if topK <= 0 {
		topK = DefaultTopK
	}
	articles, err := r.source.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	if len(articles) == 0 {
		return []Hit{}, nil
	}

	docs := make([]Document, len(articles))
	for i, a := range articles {
		docs[i] = Document{Title: a.Title, Summary: a.Summary, Fix: a.Fix, Tags: a.Tags}
	}
	scores := r.scorer.Score(query, docs)

	hits := make([]Hit, len(articles))
	for i, a := range articles {
		hits[i] = Hit{Article: a, Score: scores[i]}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	r.logger.Debug("kb search",
		zap.String("algorithm", r.scorer.Name()),
		zap.Int("corpus", len(articles)),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}
