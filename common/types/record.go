package types

import (
	"go.uber.org/zap/zapcore"
)

// EntityID is an opaque identifier, stable across observations of the same portal.
type EntityID string

// Fingerprint is the lower-case hex digest of a portal's canonical fields.
// The empty value means "absent".
type Fingerprint string

// Delta is a set of index entries to be merged into local state.
type Delta map[EntityID]Fingerprint

// Observation is a raw "entity observed" event from the host map application.
// A missing field is an empty ID or Name, or a nil Coordinate.
type Observation struct {
	ID         EntityID    `json:"guid"`
	Coordinate *Coordinate `json:"-"`
	Name       string      `json:"name"`
	Region     string      `json:"region,omitempty"`
}

// Complete reports whether all required fields are present.
func (o Observation) Complete() bool {
	return o.ID != "" && o.Name != "" && o.Coordinate != nil
}

// MarshalLogObject implements logging encoder for Observation.
func (o Observation) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("id", string(o.ID))
	encoder.AddString("name", o.Name)
	if o.Coordinate != nil {
		encoder.AddObject("coordinate", o.Coordinate)
	}
	return nil
}

// CanonicalRecord is the document submitted to the remote index.
// Fingerprint is derived from ID, Coordinate and Name only; construct
// records with NewCanonicalRecord and treat them as immutable.
type CanonicalRecord struct {
	ID          EntityID
	Coordinate  Coordinate
	Name        string
	Region      string
	Fingerprint Fingerprint
}

// NewCanonicalRecord builds a record from a complete observation and its fingerprint.
func NewCanonicalRecord(obs Observation, fp Fingerprint) CanonicalRecord {
	return CanonicalRecord{
		ID:          obs.ID,
		Coordinate:  *obs.Coordinate,
		Name:        obs.Name,
		Region:      obs.Region,
		Fingerprint: fp,
	}
}

// MarshalLogObject implements logging encoder for CanonicalRecord.
func (r CanonicalRecord) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("id", string(r.ID))
	encoder.AddString("name", r.Name)
	encoder.AddString("ref", string(r.Fingerprint))
	if r.Region != "" {
		encoder.AddString("region", r.Region)
	}
	return encoder.AddObject("coordinate", r.Coordinate)
}

// Records is a loggable list of records.
type Records []CanonicalRecord

// MarshalLogArray implements logging encoder for Records.
func (rs Records) MarshalLogArray(encoder zapcore.ArrayEncoder) error {
	for _, r := range rs {
		encoder.AppendString(string(r.ID))
	}
	return nil
}
