package indexclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/portaldiscoverer/discoverer/metrics"
)

const namespace = "indexclient"

var requestDuration = metrics.NewHistogramWithBuckets(
	"request_duration_seconds",
	namespace,
	"duration of requests to the index service",
	[]string{"path", "status"},
	prometheus.ExponentialBuckets(0.01, 2, 12),
)
