package admission

import (
	"context"
	"io"
	"time"
)

// Fetcher performs a single HTTP GET against the publisher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Source fetches the region index and the per-region feeds from the publisher.
type Source interface {
	FetchRegionIndex(ctx context.Context, year int) ([]RegionLink, error)
	FetchOffers(ctx context.Context, year int, regionCode string) ([]RawOffer, error)
	FetchCandidates(ctx context.Context, year int, regionCode string) ([]RawCandidate, error)
}

// Store is an open handle on one year's storage unit.
type Store interface {
	// InsertRegion is a no-op when the region code already exists.
	InsertRegion(ctx context.Context, region Region) error
	// InsertOffer writes one offer outside of any transaction.
	InsertOffer(ctx context.Context, offer Offer) error
	// InsertCandidates writes all candidates in one transaction; any failure rolls back every row.
	InsertCandidates(ctx context.Context, candidates []Candidate) error

	ListRegions(ctx context.Context) ([]Region, error)
	ListSchools(ctx context.Context, regionCode string) ([]string, error)
	ListSchoolOffers(ctx context.Context, regionCode, school string) ([]OfferSummary, error)
	GetOffer(ctx context.Context, regionCode string, id int) (Offer, error)
	ListOfferCandidates(ctx context.Context, regionCode string, offerID int) ([]Candidate, error)

	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces ingestion run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
