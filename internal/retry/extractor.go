package retry

import (
	"context"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// Extractor decorates a crawler.Extractor with a Retrier.
type Extractor struct {
	next    crawler.Extractor
	retrier *Retrier
}

// WrapExtractor returns next guarded by r.
func WrapExtractor(next crawler.Extractor, r *Retrier) *Extractor {
	return &Extractor{next: next, retrier: r}
}

// Extract runs the wrapped extractor under the retry policy.
func (e *Extractor) Extract(ctx context.Context, url string) (crawler.Extraction, error) {
	return Run(ctx, e.retrier, func(ctx context.Context) (crawler.Extraction, error) {
		return e.next.Extract(ctx, url)
	})
}
