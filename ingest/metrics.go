package ingest

import (
	"github.com/portaldiscoverer/discoverer/metrics"
)

const subsystem = "ingest"

var (
	received = metrics.NewCounter(
		"observations",
		subsystem,
		"observations received by transport",
		[]string{"transport"},
	)
	receivedHTTP   = received.WithLabelValues("http")
	receivedStream = received.WithLabelValues("websocket")

	malformed = metrics.NewCounter(
		"malformed_messages",
		subsystem,
		"request bodies and stream messages that could not be decoded",
		[]string{},
	).WithLabelValues()

	streams = metrics.NewGauge(
		"streams",
		subsystem,
		"open websocket streams",
		[]string{},
	).WithLabelValues()
)
