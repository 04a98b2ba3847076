package indexclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/portaldiscoverer/discoverer/bounds"
	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/log"
	"github.com/portaldiscoverer/discoverer/log/logtest"
)

func testClient(tb testing.TB, endpoint string) *Client {
	tb.Helper()
	cfg := DefaultConfig()
	cfg.RequestRetryDelay = time.Millisecond
	cfg.Reporter = "agent-7"
	c, err := New(endpoint, cfg, WithLogger(logtest.New(tb)))
	require.NoError(tb, err)
	return c
}

func TestNormalizeEndpoint(t *testing.T) {
	for in, want := range map[string]string{
		"http://example.com/api":   "http://example.com/api/",
		"http://example.com/api/":  "http://example.com/api/",
		"example.com:8080":         "http://example.com:8080/",
		" https://example.com ":    "https://example.com/",
		"https://example.com/a/b/": "https://example.com/a/b/",
	} {
		u, err := NormalizeEndpoint(in)
		require.NoError(t, err, in)
		require.Equal(t, want, u.String())
	}
	_, err := NormalizeEndpoint("")
	require.Error(t, err)
	_, err = NormalizeEndpoint("http://")
	require.Error(t, err)
}

func TestFetchFlatIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pidx", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"a1.16": "00ff", "b2.16": "abcd"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/api")
	delta, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.Delta{"a1.16": "00ff", "b2.16": "abcd"}, delta)
	_, ok := c.SearchRegion()
	require.False(t, ok)
}

func TestFetchEnvelopeAndETag(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(`{"k": {"a1.16": "00ff"}, "r": [[-125.2, 46.8], [-115.1, 46.8], [-115.1, 40.3], [-125.2, 40.3]]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	delta, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.Delta{"a1.16": "00ff"}, delta)
	region, ok := c.SearchRegion()
	require.True(t, ok)
	require.Equal(t, bounds.Region{North: 46_800_000, West: -125_200_000, South: 40_300_000, East: -115_100_000}, region)

	delta, err = c.Fetch(context.Background())
	require.NoError(t, err)
	require.Empty(t, delta)
	require.EqualValues(t, 2, calls.Load())
}

func TestFetchRejectsMalformedIndex(t *testing.T) {
	for _, body := range []string{`[]`, `{"a": 1}`, `{"k": {"a": "ZZ"}}`, `not json`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		c := testClient(t, srv.URL)
		_, err := c.Fetch(context.Background())
		require.ErrorIs(t, err, ErrUnexpectedBody, body)
		srv.Close()
	}
}

func TestStatusErrors(t *testing.T) {
	for status, want := range map[int]error{
		http.StatusBadRequest:   ErrInvalidRequest,
		http.StatusUnauthorized: ErrUnauthorized,
		http.StatusForbidden:    ErrUnauthorized,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", status)
		}))
		c := testClient(t, srv.URL)
		_, err := c.Fetch(context.Background())
		require.ErrorIs(t, err, want)
		require.ErrorIs(t, c.Submit(context.Background(), nil), want)
		srv.Close()
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	delta, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Empty(t, delta)
	require.EqualValues(t, 3, calls.Load())
}

func TestGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Fetch(context.Background())
	require.ErrorContains(t, err, "502")
}

func TestSubmit(t *testing.T) {
	record := types.CanonicalRecord{
		ID:          "a1.16",
		Coordinate:  types.Coordinate{LatE6: 45523064, LngE6: -122676483},
		Name:        "Pioneer Square",
		Region:      "pdx",
		Fingerprint: "00ff",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/spi", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "agent-7", r.Header.Get(ReporterHeader))
		require.Equal(t, "req-1", r.Header.Get(RequestHeader))
		_, err := uuid.Parse(r.Header.Get(BatchHeader))
		require.NoError(t, err)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `[{"guid":"a1.16","latE6":45523064,"lngE6":-122676483,"name":"Pioneer Square","_ref":"00ff","region":"pdx"}]`, string(body))
		portals, err := DecodeSubmission(body)
		require.NoError(t, err)
		require.Equal(t, record, portals[0].Record())
		json.NewEncoder(w).Encode("ok")
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	ctx := log.WithRequestID(context.Background(), "req-1")
	require.NoError(t, c.Submit(ctx, []types.CanonicalRecord{record}))
}

func TestSubmitUnexpectedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"maybe"`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	require.ErrorIs(t, c.Submit(context.Background(), nil), ErrUnexpectedBody)
}

func TestDecodeSubmissionValidates(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`[{"guid":"a","latE6":1,"lngE6":1,"name":"n"}]`,
		`[{"guid":"a","latE6":91000000,"lngE6":1,"name":"n","_ref":"ff"}]`,
		`[{"guid":"a","latE6":1.5,"lngE6":1,"name":"n","_ref":"ff"}]`,
		`[{"guid":"","latE6":1,"lngE6":1,"name":"n","_ref":"ff"}]`,
	} {
		_, err := DecodeSubmission([]byte(body))
		require.Error(t, err, body)
	}
}
