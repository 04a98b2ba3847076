package metrics

import (
	"net/http"
	"sync"

	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

// the recorder registers its collectors once per process.
var httpMiddleware = sync.OnceValue(func() middleware.Middleware {
	return middleware.New(middleware.Config{
		Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Prefix: Namespace}),
	})
})

// InstrumentHandler records request duration, response size and inflight
// requests of h under the given handler id.
func InstrumentHandler(handlerID string, h http.Handler) http.Handler {
	return std.Handler(handlerID, httpMiddleware(), h)
}
