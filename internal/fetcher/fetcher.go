package fetcher

import (
	"context"
)

// Fetcher performs exactly one HTTP GET per call and classifies the
// result; it never retries and never parses content.
type Fetcher interface {
	Fetch(ctx context.Context, crawlDepth int, fetchParam FetchParam) FetchOutcome
}
