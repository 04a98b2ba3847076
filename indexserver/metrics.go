package indexserver

import (
	"github.com/portaldiscoverer/discoverer/metrics"
)

const subsystem = "indexserver"

var (
	upserts = metrics.NewCounter(
		"upserts",
		subsystem,
		"submitted portals by upsert outcome",
		[]string{"outcome"},
	)
	rejected = metrics.NewCounter(
		"rejected_batches",
		subsystem,
		"submitted batches rejected before storage",
		[]string{"reason"},
	)
	refMismatch = upserts.WithLabelValues("ref_mismatch")
	published   = metrics.NewGauge(
		"published_version",
		subsystem,
		"id of the currently published index version",
		[]string{},
	).WithLabelValues()
	kmlRendered = metrics.NewCounter(
		"kml_rendered",
		subsystem,
		"number of times the kml export was regenerated",
		[]string{},
	).WithLabelValues()
)
