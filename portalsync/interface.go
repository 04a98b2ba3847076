package portalsync

import (
	"context"

	"github.com/portaldiscoverer/discoverer/bounds"
	"github.com/portaldiscoverer/discoverer/common/types"
)

//go:generate mockgen -typed -package=portalsync -destination=./mocks.go -source=./interface.go

// RemoteIndexClient talks to the authoritative index service.
type RemoteIndexClient interface {
	// Fetch returns index entries to merge. It may return the full index.
	Fetch(ctx context.Context) (types.Delta, error)
	// Submit sends a batch of new or changed records.
	Submit(ctx context.Context, records []types.CanonicalRecord) error
}

// RegionSource is implemented by clients that learn the search region from the service.
type RegionSource interface {
	SearchRegion() (bounds.Region, bool)
}

// Lookup resolves the baseline fingerprint of an entity.
type Lookup interface {
	Lookup(id types.EntityID) (types.Fingerprint, bool)
}
