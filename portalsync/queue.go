package portalsync

import "github.com/portaldiscoverer/discoverer/common/types"

// observationQueue holds observations that arrive before the first index merge.
type observationQueue struct {
	items []types.Observation
}

func (q *observationQueue) push(obs types.Observation) {
	q.items = append(q.items, obs)
}

// drain returns the queued observations in arrival order and empties the queue.
func (q *observationQueue) drain() []types.Observation {
	items := q.items
	q.items = nil
	return items
}

func (q *observationQueue) len() int {
	return len(q.items)
}
