package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/log/logtest"
	"github.com/portaldiscoverer/discoverer/portalsync"
)

func newEngine(tb testing.TB) *portalsync.Engine {
	engine := portalsync.New(nil, portalsync.WithLogger(logtest.New(tb)))
	engine.Restore(types.Delta{})
	tb.Cleanup(func() { engine.Close(context.Background()) })
	return engine
}

func startServer(tb testing.TB, engine Engine, opts ...func(*Config)) (*Server, *httptest.Server) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://intel.ingress.com"}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv := New(engine, WithLogger(logtest.New(tb)), WithConfig(cfg))
	ts := httptest.NewServer(srv.Handler())
	tb.Cleanup(ts.Close)
	tb.Cleanup(func() { srv.Stop(context.Background()) })
	return srv, ts
}

func post(tb testing.TB, ts *httptest.Server, body string) (int, []byte) {
	resp, err := ts.Client().Post(ts.URL+"/observe", "application/json", strings.NewReader(body))
	require.NoError(tb, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(tb, err)
	return resp.StatusCode, data
}

func TestObserve(t *testing.T) {
	engine := newEngine(t)
	_, ts := startServer(t, engine)

	status, body := post(t, ts, `{"guid": "a.16", "latE6": 45510000, "lngE6": -122680000, "name": "Fountain"}`)
	require.Equal(t, http.StatusOK, status)
	var results []Result
	require.NoError(t, json.Unmarshal(body, &results))
	require.Len(t, results, 1)
	require.Equal(t, "new", results[0].Kind)
	require.NotEmpty(t, results[0].Ref)

	pending, ok := engine.Pending("a.16")
	require.True(t, ok)
	require.Equal(t, "Fountain", pending.Name)

	status, body = post(t, ts, `[
		{"guid": "b.16", "latE6": 45520000, "lngE6": -122660000, "name": "Mural"},
		{"guid": "c.16", "name": "Nowhere"}
	]`)
	require.Equal(t, http.StatusOK, status)
	var batch []Result
	require.NoError(t, json.Unmarshal(body, &batch))
	require.Len(t, batch, 2)
	require.NotEmpty(t, batch[0].Ref)
	require.NotEqual(t, results[0].Ref, batch[0].Ref)
	require.Equal(t, []Result{
		{GUID: "b.16", Kind: "new", Ref: batch[0].Ref},
		{GUID: "c.16", Kind: "discarded", Reason: "missing-field"},
	}, batch)
	require.Equal(t, 2, engine.Stats().Pending)
}

func TestObserveRejectsBadRequests(t *testing.T) {
	_, ts := startServer(t, newEngine(t), func(cfg *Config) {
		cfg.MaxBatchSize = 1
	})

	status, _ := post(t, ts, `{"guid": 1}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = post(t, ts, `[{"guid": "a"}, {"guid": "b"}]`)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)
	engine.EXPECT().Stats().Return(portalsync.Stats{
		Initialized: true,
		Known:       10,
		Pending:     2,
		Failed:      1,
		LastError:   portalsync.ErrStuckSubmission,
	})
	_, ts := startServer(t, engine)

	resp, err := ts.Client().Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Equal(t, Status{
		Initialized: true,
		Known:       10,
		Pending:     2,
		Failed:      1,
		LastError:   portalsync.ErrStuckSubmission.Error(),
	}, status)
}

func dial(tb testing.TB, ts *httptest.Server, origin string) *websocket.Conn {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/observe/ws", header)
	require.NoError(tb, err)
	tb.Cleanup(func() { conn.Close() })
	return conn
}

func TestStream(t *testing.T) {
	engine := newEngine(t)
	_, ts := startServer(t, engine)
	conn := dial(t, ts, "https://intel.ingress.com")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`[{"guid": "a.16", "latE6": 45510000, "lngE6": -122680000, "name": "Fountain"},
		  {"guid": "a.16", "latE6": 45510000, "lngE6": -122680000, "name": "Fountain"}]`)))
	var results []Result
	require.NoError(t, conn.ReadJSON(&results))
	require.Len(t, results, 2)
	require.Equal(t, "new", results[0].Kind)
	require.Equal(t, "new", results[1].Kind)
	require.Equal(t, 1, engine.Stats().Pending)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`nope`)))
	var reply map[string]string
	require.NoError(t, conn.ReadJSON(&reply))
	require.Contains(t, reply["error"], "decode observation")

	// the stream survives a malformed message
	require.NoError(t, conn.WriteJSON(Observation{GUID: "b.16", Name: "Mural"}))
	var discarded []Result
	require.NoError(t, conn.ReadJSON(&discarded))
	require.Equal(t, []Result{{GUID: "b.16", Kind: "discarded", Reason: "missing-field"}}, discarded)
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	_, ts := startServer(t, newEngine(t))
	header := http.Header{"Origin": []string{"https://example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/observe/ws", header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStopClosesStreams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	srv := New(newEngine(t), WithLogger(logtest.New(t)), WithConfig(cfg))
	require.NoError(t, srv.Start())

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/observe/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(Observation{GUID: "b.16", Name: "Mural"}))
	var results []Result
	require.NoError(t, conn.ReadJSON(&results))

	require.NoError(t, srv.Stop(context.Background()))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err)
}
