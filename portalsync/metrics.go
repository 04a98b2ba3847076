package portalsync

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/portaldiscoverer/discoverer/metrics"
)

const namespace = "portalsync"

var (
	classifications = metrics.NewCounter(
		"classifications",
		namespace,
		"number of observations by outcome",
		[]string{"kind"},
	)
	classifiedBy = map[Kind]prometheus.Counter{
		KindDiscarded: classifications.WithLabelValues(KindDiscarded.String()),
		KindQueued:    classifications.WithLabelValues(KindQueued.String()),
		KindNew:       classifications.WithLabelValues(KindNew.String()),
		KindChanged:   classifications.WithLabelValues(KindChanged.String()),
		KindUnchanged: classifications.WithLabelValues(KindUnchanged.String()),
	}

	sizes = metrics.NewGauge(
		"size",
		namespace,
		"number of entries held by the engine",
		[]string{"set"},
	)
	queuedSize  = sizes.WithLabelValues("queued")
	pendingSize = sizes.WithLabelValues("pending")
	indexSize   = sizes.WithLabelValues("index")

	submissions = metrics.NewCounter(
		"submissions",
		namespace,
		"number of submissions by outcome",
		[]string{"outcome"},
	)
	submitOk    = submissions.WithLabelValues("ok")
	submitFail  = submissions.WithLabelValues("fail")
	submitStuck = submissions.WithLabelValues("stuck")

	submittedRecords = metrics.NewCounter(
		"submitted_records",
		namespace,
		"number of records accepted by the remote index",
		[]string{},
	).WithLabelValues()

	submitLatency = metrics.NewHistogramWithBuckets(
		"submit_latency_seconds",
		namespace,
		"latency of successful and failed submissions",
		[]string{},
		prometheus.ExponentialBuckets(0.05, 2, 10),
	).WithLabelValues()

	fetches = metrics.NewCounter(
		"fetches",
		namespace,
		"number of index fetches by outcome",
		[]string{"outcome"},
	)
	fetchOk   = fetches.WithLabelValues("ok")
	fetchFail = fetches.WithLabelValues("fail")
)
