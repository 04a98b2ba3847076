package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/portalsync"
)

var ErrTooManyObservations = errors.New("too many observations")

// Observation is a "portal added" event as sent by the map application.
// Absent coordinates are kept absent so the engine can discard them.
type Observation struct {
	GUID   types.EntityID `json:"guid"`
	LatE6  *int32         `json:"latE6"`
	LngE6  *int32         `json:"lngE6"`
	Name   string         `json:"name"`
	Region string         `json:"region,omitempty"`
}

func (o Observation) Observation() types.Observation {
	obs := types.Observation{ID: o.GUID, Name: o.Name, Region: o.Region}
	if o.LatE6 != nil && o.LngE6 != nil {
		obs.Coordinate = &types.Coordinate{LatE6: *o.LatE6, LngE6: *o.LngE6}
	}
	return obs
}

// Result reports the classification of a single observation.
type Result struct {
	GUID   types.EntityID    `json:"guid"`
	Kind   string            `json:"kind"`
	Reason string            `json:"reason,omitempty"`
	Ref    types.Fingerprint `json:"_ref,omitempty"`
}

func resultOf(c portalsync.Classification) Result {
	return Result{
		GUID:   c.ID,
		Kind:   c.Kind.String(),
		Reason: c.Reason.String(),
		Ref:    c.Record.Fingerprint,
	}
}

// decode accepts a single observation object or an array of them.
func decode(data []byte, limit int) ([]Observation, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var batch []Observation
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("decode observations: %w", err)
		}
		if limit > 0 && len(batch) > limit {
			return nil, fmt.Errorf("%w: %d > %d", ErrTooManyObservations, len(batch), limit)
		}
		return batch, nil
	}
	var single Observation
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("decode observation: %w", err)
	}
	return []Observation{single}, nil
}
