package ingest

import (
	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/portalsync"
)

//go:generate mockgen -typed -package=ingest -destination=./mocks.go -source=./interface.go

// Engine classifies observations. It is implemented by *portalsync.Engine.
type Engine interface {
	Observe(types.Observation) portalsync.Classification
	Stats() portalsync.Stats
}
