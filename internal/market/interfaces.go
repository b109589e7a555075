package market

import (
	"context"
	"time"
)

// CatalogAPI is the point-query surface of the upstream player collection.
type CatalogAPI interface {
	// RecordPage fetches one page of the player collection.
	RecordPage(ctx context.Context, page, size int) (RecordPage, error)
	// FindRecordByName performs the upstream exact-name search.
	FindRecordByName(ctx context.Context, name string) (Record, error)
	// RecordByID fetches a single record by its opaque ID.
	RecordByID(ctx context.Context, id string) (Record, error)
}

// ListingSource serves listing pages for the aggregator. StartURL selects
// the endpoint implied by the query's filters; ListingPage follows any page
// URL, including server-supplied next links.
type ListingSource interface {
	StartURL(q ListingQuery) string
	ListingPage(ctx context.Context, pageURL string) (ListingPage, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper pauses between paced operations, honoring context cancellation.
// Tests substitute a no-op implementation.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
