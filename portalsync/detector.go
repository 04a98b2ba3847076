package portalsync

import (
	"go.uber.org/zap/zapcore"

	"github.com/portaldiscoverer/discoverer/bounds"
	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/fingerprint"
)

// Kind is the outcome of a single observation.
type Kind uint8

const (
	KindDiscarded Kind = iota
	KindQueued
	KindNew
	KindChanged
	KindUnchanged
)

func (k Kind) String() string {
	switch k {
	case KindDiscarded:
		return "discarded"
	case KindQueued:
		return "queued"
	case KindNew:
		return "new"
	case KindChanged:
		return "changed"
	case KindUnchanged:
		return "unchanged"
	}
	return "unknown"
}

// Reason explains a KindDiscarded outcome.
type Reason uint8

const (
	NoReason Reason = iota
	MissingField
	OutOfBounds
)

func (r Reason) String() string {
	switch r {
	case MissingField:
		return "missing-field"
	case OutOfBounds:
		return "out-of-bounds"
	}
	return ""
}

// Classification is returned for every observation handed to the engine.
// Record is set for KindNew, KindChanged and KindUnchanged; Previous only for KindChanged.
type Classification struct {
	Kind     Kind
	Reason   Reason
	ID       types.EntityID
	Record   types.CanonicalRecord
	Previous types.Fingerprint
}

// Submittable reports whether the outcome produced a record for the remote index.
func (c Classification) Submittable() bool {
	return c.Kind == KindNew || c.Kind == KindChanged
}

// MarshalLogObject implements logging encoder for Classification.
func (c Classification) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("kind", c.Kind.String())
	encoder.AddString("id", string(c.ID))
	if c.Reason != NoReason {
		encoder.AddString("reason", c.Reason.String())
	}
	if c.Record.Fingerprint != "" {
		encoder.AddString("ref", string(c.Record.Fingerprint))
	}
	if c.Previous != "" {
		encoder.AddString("previous", string(c.Previous))
	}
	return nil
}

// Detector classifies observations against the baseline index.
type Detector struct {
	Region   bounds.Region
	Computer fingerprint.Computer
}

// Classify validates obs, filters it by region and compares its fingerprint
// with the one known to idx.
func (d Detector) Classify(obs types.Observation, idx Lookup) Classification {
	if !obs.Complete() {
		return Classification{Kind: KindDiscarded, Reason: MissingField, ID: obs.ID}
	}
	if !d.Region.Contains(*obs.Coordinate) {
		return Classification{Kind: KindDiscarded, Reason: OutOfBounds, ID: obs.ID}
	}
	computer := d.Computer
	if computer == nil {
		computer = fingerprint.Default()
	}
	record := types.NewCanonicalRecord(obs, computer.Compute(obs.ID, *obs.Coordinate, obs.Name))
	known, ok := idx.Lookup(obs.ID)
	switch {
	case !ok:
		return Classification{Kind: KindNew, ID: obs.ID, Record: record}
	case known != record.Fingerprint:
		return Classification{Kind: KindChanged, ID: obs.ID, Record: record, Previous: known}
	default:
		return Classification{Kind: KindUnchanged, ID: obs.ID, Record: record}
	}
}
