package portalsync

import "github.com/portaldiscoverer/discoverer/common/types"

// pendingSet holds records awaiting submission, at most one per entity.
// Records keep the position of their first detection; a later detection of
// the same entity replaces the record in place.
type pendingSet struct {
	records map[types.EntityID]types.CanonicalRecord
	order   []types.EntityID
}

func newPendingSet() *pendingSet {
	return &pendingSet{records: make(map[types.EntityID]types.CanonicalRecord)}
}

func (p *pendingSet) add(record types.CanonicalRecord) {
	if _, ok := p.records[record.ID]; !ok {
		p.order = append(p.order, record.ID)
	}
	p.records[record.ID] = record
}

// take removes and returns up to limit records in detection order.
// A non-positive limit takes everything.
func (p *pendingSet) take(limit int) []types.CanonicalRecord {
	n := len(p.order)
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}
	out := make([]types.CanonicalRecord, 0, n)
	for _, id := range p.order[:n] {
		out = append(out, p.records[id])
		delete(p.records, id)
	}
	p.order = append([]types.EntityID(nil), p.order[n:]...)
	return out
}

// restore puts back records of a failed submission ahead of newer entries.
// An entity detected again while the submission was in flight keeps its newer record.
func (p *pendingSet) restore(records []types.CanonicalRecord) int {
	restored := make([]types.EntityID, 0, len(records))
	for _, record := range records {
		if _, ok := p.records[record.ID]; ok {
			continue
		}
		p.records[record.ID] = record
		restored = append(restored, record.ID)
	}
	p.order = append(restored, p.order...)
	return len(restored)
}

func (p *pendingSet) get(id types.EntityID) (types.CanonicalRecord, bool) {
	record, ok := p.records[id]
	return record, ok
}

func (p *pendingSet) len() int {
	return len(p.order)
}
