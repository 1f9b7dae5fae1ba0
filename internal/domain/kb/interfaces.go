package kb

import (
	"context"
	"time"
)

// Repository provides persistence for knowledge base articles.
type Repository interface {
	Create(ctx context.Context, article *Article) error
	Get(ctx context.Context, id string) (*Article, error)
	GetByTitle(ctx context.Context, title string) (*Article, error)
	Update(ctx context.Context, article *Article) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]Article, error)
	ListAll(ctx context.Context) ([]Article, error)
	IncrementUsage(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int, error)
}

// ListOptions filters article listings.
type ListOptions struct {
	ErrorType string
	Limit     int
	Offset    int
}
