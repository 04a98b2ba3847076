package indexclient

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/portaldiscoverer/discoverer/bounds"
	"github.com/portaldiscoverer/discoverer/common/types"
)

const (
	// IndexPath serves the published guid index.
	IndexPath = "pidx"
	// SubmitPath accepts batches of portal records.
	SubmitPath = "spi"
	// BatchHeader carries a unique id per submitted batch.
	BatchHeader = "X-Batch-ID"
	// RequestHeader carries the request id of the caller.
	RequestHeader = "X-Request-ID"
	// ReporterHeader attributes submissions to a reporter.
	ReporterHeader = "X-Reporter"
)

const indexSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "oneOf": [
    {
      "type": "object",
      "required": ["k"],
      "additionalProperties": false,
      "properties": {
        "k": {"type": "object", "additionalProperties": {"type": "string", "pattern": "^[0-9a-f]*$"}},
        "r": {
          "type": "array",
          "items": {"type": "array", "minItems": 2, "maxItems": 2, "items": {"type": "number"}}
        }
      }
    },
    {"type": "object", "additionalProperties": {"type": "string", "pattern": "^[0-9a-f]*$"}}
  ]
}`

const submissionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["guid", "latE6", "lngE6", "name", "_ref"],
    "properties": {
      "guid": {"type": "string", "minLength": 1},
      "latE6": {"type": "integer", "minimum": -90000000, "maximum": 90000000},
      "lngE6": {"type": "integer", "minimum": -180000000, "maximum": 180000000},
      "name": {"type": "string", "minLength": 1},
      "_ref": {"type": "string", "pattern": "^[0-9a-f]+$"},
      "region": {"type": "string"}
    }
  }
}`

var (
	// IndexSchema validates the body served on IndexPath.
	IndexSchema = jsonschema.MustCompileString("index.schema.json", indexSchema)
	// SubmissionSchema validates the body posted to SubmitPath.
	SubmissionSchema = jsonschema.MustCompileString("submission.schema.json", submissionSchema)
)

// Portal is a single submitted record as it appears on the wire.
type Portal struct {
	GUID   types.EntityID    `json:"guid"`
	LatE6  int32             `json:"latE6"`
	LngE6  int32             `json:"lngE6"`
	Name   string            `json:"name"`
	Ref    types.Fingerprint `json:"_ref"`
	Region string            `json:"region,omitempty"`
}

func FromRecord(r types.CanonicalRecord) Portal {
	return Portal{
		GUID:   r.ID,
		LatE6:  r.Coordinate.LatE6,
		LngE6:  r.Coordinate.LngE6,
		Name:   r.Name,
		Ref:    r.Fingerprint,
		Region: r.Region,
	}
}

func (p Portal) Record() types.CanonicalRecord {
	return types.CanonicalRecord{
		ID:          p.GUID,
		Coordinate:  types.Coordinate{LatE6: p.LatE6, LngE6: p.LngE6},
		Name:        p.Name,
		Region:      p.Region,
		Fingerprint: p.Ref,
	}
}

// Envelope is the published index: guid to reference fingerprint, plus the
// search region polygon as [lng, lat] pairs.
type Envelope struct {
	Index  types.Delta  `json:"k"`
	Region [][2]float64 `json:"r,omitempty"`
}

// DecodeIndex validates and decodes an index body. Both the envelope and a
// bare guid to fingerprint object are accepted.
func DecodeIndex(data []byte) (Envelope, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal index: %w", err)
	}
	if err := IndexSchema.Validate(v); err != nil {
		return Envelope{}, fmt.Errorf("validate index: %w", err)
	}
	obj := v.(map[string]any)
	if _, ok := obj["k"].(map[string]any); ok {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return Envelope{}, fmt.Errorf("unmarshal index envelope: %w", err)
		}
		if env.Index == nil {
			env.Index = types.Delta{}
		}
		return env, nil
	}
	flat := make(types.Delta, len(obj))
	if err := json.Unmarshal(data, &flat); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal flat index: %w", err)
	}
	return Envelope{Index: flat}, nil
}

// SearchRegion returns the bounding rectangle of the published polygon.
func (e Envelope) SearchRegion() (bounds.Region, bool) {
	return bounds.FromPolygon(e.Region)
}

// DecodeSubmission validates and decodes a submitted batch.
func DecodeSubmission(data []byte) ([]Portal, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal submission: %w", err)
	}
	if err := SubmissionSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("validate submission: %w", err)
	}
	var portals []Portal
	if err := json.Unmarshal(data, &portals); err != nil {
		return nil, fmt.Errorf("unmarshal submission: %w", err)
	}
	return portals, nil
}
