package portalsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/portaldiscoverer/discoverer/bounds"
	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/index"
	"github.com/portaldiscoverer/discoverer/log/logtest"
)

type testEngine struct {
	*Engine
	client *MockRemoteIndexClient
	clock  clockwork.FakeClock
}

func newTestEngine(tb testing.TB, cfg Config, opts ...Opt) *testEngine {
	tb.Helper()
	ctrl := gomock.NewController(tb)
	te := &testEngine{
		client: NewMockRemoteIndexClient(ctrl),
		clock:  clockwork.NewFakeClock(),
	}
	opts = append([]Opt{
		WithConfig(cfg),
		WithLogger(logtest.New(tb)),
		WithClock(te.clock),
	}, opts...)
	te.Engine = New(te.client, opts...)
	tb.Cleanup(func() {
		te.cancel()
		te.batcher.wg.Wait()
	})
	return te
}

// capture records every submitted batch.
func (te *testEngine) capture(batches *[][]types.CanonicalRecord) {
	te.client.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, records []types.CanonicalRecord) error {
			*batches = append(*batches, records)
			return nil
		}).AnyTimes()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SubmitTimeout = 0
	cfg.RetryBackoff = time.Second
	return cfg
}

func TestQueueReplayOrder(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 100
	te := newTestEngine(t, cfg)

	a := observation("a", "Alpha", 45.1, -122.1)
	b := observation("b", "Bravo", 45.2, -122.2)
	c := observation("c", "Charlie", 45.3, -122.3)
	for _, obs := range []types.Observation{a, b, c} {
		require.Equal(t, KindQueued, te.Observe(obs).Kind)
	}
	require.Equal(t, 3, te.Stats().Queued)

	te.client.EXPECT().Fetch(gomock.Any()).Return(types.Delta{"b": ref(b)}, nil)
	result, err := te.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Merged)
	require.Len(t, result.Replayed, 3)
	for i, want := range []struct {
		id   types.EntityID
		kind Kind
	}{{"a", KindNew}, {"b", KindUnchanged}, {"c", KindNew}} {
		require.Equal(t, want.id, result.Replayed[i].ID)
		require.Equal(t, want.kind, result.Replayed[i].Kind)
	}
	require.Zero(t, te.Stats().Queued)

	var batches [][]types.CanonicalRecord
	te.capture(&batches)
	require.NoError(t, te.Flush(context.Background()))
	require.Len(t, batches, 1)
	require.Equal(t, []types.EntityID{"a", "c"}, ids(batches[0]))
}

func TestSyncIsIdempotent(t *testing.T) {
	te := newTestEngine(t, testConfig())
	delta := types.Delta{"a": "01", "b": "02"}
	te.client.EXPECT().Fetch(gomock.Any()).Return(delta, nil).Times(2)

	result, err := te.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Merged)
	result, err = te.Sync(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Merged)
	require.Equal(t, delta, te.Index())
}

func TestSyncFailureLeavesStateUnchanged(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.Observe(observation("a", "Alpha", 45.1, -122.1))

	failure := errors.New("connection refused")
	te.client.EXPECT().Fetch(gomock.Any()).Return(nil, failure)
	_, err := te.Sync(context.Background())
	require.ErrorIs(t, err, failure)

	stats := te.Stats()
	require.False(t, stats.Initialized)
	require.Equal(t, 1, stats.Queued)
}

func TestBoundsExclusion(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 100
	te := newTestEngine(t, cfg, WithRegion(bounds.Default()))

	// before and after initialization
	far := observation("dc", "Monument", 38.9, -77.0)
	c := te.Observe(far)
	require.Equal(t, KindDiscarded, c.Kind)
	require.Equal(t, OutOfBounds, c.Reason)
	require.Zero(t, te.Stats().Queued)

	te.Restore(nil)
	require.Equal(t, OutOfBounds, te.Observe(far).Reason)
	require.Equal(t, KindNew, te.Observe(observation("pdx", "Fountain", 45.5, -122.6)).Kind)

	var batches [][]types.CanonicalRecord
	te.capture(&batches)
	require.NoError(t, te.Flush(context.Background()))
	require.Equal(t, []types.EntityID{"pdx"}, ids(batches[0]))
}

func TestReplayRechecksRegion(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 100
	te := newTestEngine(t, cfg)

	te.Observe(observation("dc", "Monument", 38.9, -77.0))
	te.SetRegion(bounds.Default())
	result := te.Restore(nil)
	require.Len(t, result.Replayed, 1)
	require.Equal(t, OutOfBounds, result.Replayed[0].Reason)
	require.Zero(t, te.Stats().Pending)
}

func TestSingleFlight(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.Restore(nil)

	started := make(chan []types.CanonicalRecord, 2)
	release := make(chan struct{})
	te.client.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, records []types.CanonicalRecord) error {
			started <- records
			<-release
			return nil
		}).Times(2)

	te.Observe(observation("a", "Alpha", 45.1, -122.1))
	first := <-started
	te.Observe(observation("b", "Bravo", 45.2, -122.2))
	te.Observe(observation("c", "Charlie", 45.3, -122.3))

	require.Empty(t, started)
	stats := te.Stats()
	require.True(t, stats.Flushing)
	require.Equal(t, 2, stats.Pending)

	close(release)
	second := <-started
	require.NoError(t, te.Flush(context.Background()))

	require.Equal(t, []types.EntityID{"a"}, ids(first))
	require.Equal(t, []types.EntityID{"b", "c"}, ids(second))
	stats = te.Stats()
	require.False(t, stats.Flushing)
	require.Zero(t, stats.Pending)
	require.EqualValues(t, 2, stats.Submitted)
}

func TestPendingDedup(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 100
	te := newTestEngine(t, cfg)
	te.Restore(nil)

	te.Observe(observation("a", "Old name", 45.1, -122.1))
	te.Observe(observation("a", "New name", 45.1, -122.1))
	pending, ok := te.Pending("a")
	require.True(t, ok)
	require.Equal(t, "New name", pending.Name)

	var batches [][]types.CanonicalRecord
	te.capture(&batches)
	require.NoError(t, te.Flush(context.Background()))
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	require.Equal(t, "New name", batches[0][0].Name)
}

func TestEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 3
	te := newTestEngine(t, cfg)

	a := observation("a", "Alpha", 45.1, -122.1)
	b := observation("b", "Bravo", 45.2, -122.2)
	renamed := observation("a", "Alpha Prime", 45.1, -122.1)

	te.client.EXPECT().Fetch(gomock.Any()).Return(types.Delta{}, nil)
	_, err := te.Sync(context.Background())
	require.NoError(t, err)
	for _, obs := range []types.Observation{a, b, renamed} {
		require.Equal(t, KindNew, te.Observe(obs).Kind)
	}

	var batches [][]types.CanonicalRecord
	te.capture(&batches)
	require.NoError(t, te.Flush(context.Background()))

	want := []types.CanonicalRecord{
		types.NewCanonicalRecord(renamed, ref(renamed)),
		types.NewCanonicalRecord(b, ref(b)),
	}
	require.Len(t, batches, 1)
	if diff := cmp.Diff(want, batches[0]); diff != "" {
		t.Errorf("submitted records mismatch (-want +got):\n%s", diff)
	}
}

// queuedScenario observes A, B and a renamed A before the first sync, which
// returns an older reference for A.
func queuedScenario(t *testing.T, te *testEngine) (a, b, renamed types.Observation) {
	t.Helper()
	a = observation("a", "Alpha", 45.1, -122.1)
	b = observation("b", "Bravo", 45.2, -122.2)
	renamed = observation("a", "Alpha Prime", 45.1, -122.1)
	for _, obs := range []types.Observation{a, b, renamed} {
		require.Equal(t, KindQueued, te.Observe(obs).Kind)
	}
	old := observation("a", "Alpha Old", 45.1, -122.1)
	te.client.EXPECT().Fetch(gomock.Any()).Return(types.Delta{"a": ref(old)}, nil)
	return a, b, renamed
}

func TestReplayedScenarioSubmitsLatest(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 100
	te := newTestEngine(t, cfg)
	_, b, renamed := queuedScenario(t, te)

	result, err := te.Sync(context.Background())
	require.NoError(t, err)
	kinds := make([]Kind, 0, len(result.Replayed))
	for _, c := range result.Replayed {
		kinds = append(kinds, c.Kind)
	}
	require.Equal(t, []Kind{KindChanged, KindNew, KindChanged}, kinds)

	var batches [][]types.CanonicalRecord
	te.capture(&batches)
	require.NoError(t, te.Flush(context.Background()))
	want := [][]types.CanonicalRecord{{
		types.NewCanonicalRecord(renamed, ref(renamed)),
		types.NewCanonicalRecord(b, ref(b)),
	}}
	if diff := cmp.Diff(want, batches); diff != "" {
		t.Errorf("submitted batches mismatch (-want +got):\n%s", diff)
	}
}

func TestReplayedScenarioThresholdOne(t *testing.T) {
	te := newTestEngine(t, testConfig())
	a, b, renamed := queuedScenario(t, te)

	release := make(chan struct{})
	var batches [][]types.CanonicalRecord
	te.client.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, records []types.CanonicalRecord) error {
			// hold the first submission until the replay is over
			<-release
			batches = append(batches, records)
			return nil
		}).Times(2)

	_, err := te.Sync(context.Background())
	require.NoError(t, err)
	close(release)
	require.NoError(t, te.Flush(context.Background()))

	want := [][]types.CanonicalRecord{
		{types.NewCanonicalRecord(a, ref(a))},
		{types.NewCanonicalRecord(b, ref(b)), types.NewCanonicalRecord(renamed, ref(renamed))},
	}
	if diff := cmp.Diff(want, batches); diff != "" {
		t.Errorf("submitted batches mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 2
	te := newTestEngine(t, cfg)
	te.Restore(nil)
	require.Equal(t, 2, te.BatchThreshold())

	// no submission expected yet
	te.Observe(observation("a", "Alpha", 45.1, -122.1))
	require.Equal(t, 1, te.Stats().Pending)

	var batches [][]types.CanonicalRecord
	te.capture(&batches)
	te.Observe(observation("b", "Bravo", 45.2, -122.2))
	require.NoError(t, te.Flush(context.Background()))
	require.Len(t, batches, 1)
	require.Equal(t, []types.EntityID{"a", "b"}, ids(batches[0]))

	te.SetBatchThreshold(0)
	require.Equal(t, 1, te.BatchThreshold())
}

func TestMaxBatchSize(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 100
	cfg.MaxBatchSize = 2
	te := newTestEngine(t, cfg)
	te.Restore(nil)
	for _, id := range []string{"a", "b", "c"} {
		te.Observe(observation(id, id, 45.1, -122.1))
	}

	var batches [][]types.CanonicalRecord
	te.capture(&batches)
	require.NoError(t, te.Flush(context.Background()))
	require.Len(t, batches, 2)
	require.Equal(t, []types.EntityID{"a", "b"}, ids(batches[0]))
	require.Equal(t, []types.EntityID{"c"}, ids(batches[1]))
}

func TestRestoreOnFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	te := newTestEngine(t, cfg)
	te.Restore(nil)

	started := make(chan struct{})
	release := make(chan struct{})
	failure := errors.New("bad gateway")
	te.client.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, []types.CanonicalRecord) error {
			close(started)
			<-release
			return failure
		})

	te.Observe(observation("a", "Alpha", 45.1, -122.1))
	te.Observe(observation("b", "Bravo", 45.2, -122.2))
	<-started
	// detected again while the failing submission is in flight
	te.Observe(observation("a", "Alpha Prime", 45.1, -122.1))
	close(release)
	require.Eventually(t, func() bool {
		return !te.Stats().Flushing
	}, time.Second, 10*time.Millisecond)

	stats := te.Stats()
	require.Equal(t, 2, stats.Pending)
	require.EqualValues(t, 1, stats.Failed)
	require.ErrorIs(t, stats.LastError, failure)
	a, ok := te.Pending("a")
	require.True(t, ok)
	require.Equal(t, "Alpha Prime", a.Name)

	var batches [][]types.CanonicalRecord
	te.capture(&batches)
	require.NoError(t, te.Flush(context.Background()))
	require.Equal(t, []types.EntityID{"b", "a"}, ids(batches[0]))
	require.NoError(t, te.Stats().LastError)
}

func TestDropOnFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.RestoreOnFailure = false
	cfg.BatchThreshold = 100
	te := newTestEngine(t, cfg)
	te.Restore(nil)
	te.Observe(observation("a", "Alpha", 45.1, -122.1))

	failure := errors.New("bad gateway")
	te.client.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(failure)
	require.ErrorIs(t, te.Flush(context.Background()), failure)
	require.Zero(t, te.Stats().Pending)
}

func TestRetryWithBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.BatchThreshold = 100
	te := newTestEngine(t, cfg)
	te.Restore(nil)
	te.Observe(observation("a", "Alpha", 45.1, -122.1))

	gomock.InOrder(
		te.client.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(errors.New("timeout")),
		te.client.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(nil),
	)
	errc := make(chan error, 1)
	go func() {
		errc <- te.Flush(context.Background())
	}()
	te.clock.BlockUntil(1)
	te.clock.Advance(cfg.RetryBackoff)
	require.NoError(t, <-errc)
	stats := te.Stats()
	require.Zero(t, stats.Pending)
	require.EqualValues(t, 1, stats.Failed)
	require.EqualValues(t, 1, stats.Submitted)
}

func TestStuckSubmission(t *testing.T) {
	cfg := testConfig()
	cfg.SubmitTimeout = 10 * time.Second
	cfg.MaxRetries = 0
	cfg.BatchThreshold = 100
	te := newTestEngine(t, cfg)
	te.Restore(nil)
	te.Observe(observation("a", "Alpha", 45.1, -122.1))

	te.client.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ []types.CanonicalRecord) error {
			<-ctx.Done()
			return ctx.Err()
		})
	errc := make(chan error, 1)
	go func() {
		errc <- te.Flush(context.Background())
	}()
	te.clock.BlockUntil(1)
	te.clock.Advance(cfg.SubmitTimeout)
	require.ErrorIs(t, <-errc, ErrStuckSubmission)

	stats := te.Stats()
	require.False(t, stats.Flushing)
	require.Equal(t, 1, stats.Pending)
	require.ErrorIs(t, stats.LastError, ErrStuckSubmission)
}

func TestNilRemotePausesSubmissions(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.SetRemote(nil)
	require.Nil(t, te.Remote())
	te.Restore(nil)

	te.Observe(observation("a", "Alpha", 45.1, -122.1))
	te.Observe(observation("b", "Bravo", 45.2, -122.2))
	require.Equal(t, 2, te.Stats().Pending)
	require.ErrorIs(t, te.Flush(context.Background()), ErrNoRemote)
	_, err := te.Sync(context.Background())
	require.ErrorIs(t, err, ErrNoRemote)

	var batches [][]types.CanonicalRecord
	te.capture(&batches)
	te.SetRemote(te.client)
	require.NoError(t, te.Flush(context.Background()))
	require.Len(t, batches, 1)
	require.Equal(t, []types.EntityID{"a", "b"}, ids(batches[0]))
}

func TestKnownAndHook(t *testing.T) {
	var seen []Kind
	cfg := testConfig()
	cfg.BatchThreshold = 100
	te := newTestEngine(t, cfg, WithHook(func(c Classification) {
		seen = append(seen, c.Kind)
	}))

	a := observation("a", "Alpha", 45.1, -122.1)
	te.Observe(a)
	te.Observe(types.Observation{ID: "broken"})
	te.client.EXPECT().Fetch(gomock.Any()).Return(types.Delta{"a": ref(a)}, nil)
	_, err := te.Sync(context.Background())
	require.NoError(t, err)
	require.True(t, te.Known("a"))
	require.False(t, te.Known("b"))

	require.Equal(t, []Kind{KindQueued, KindQueued, KindUnchanged, KindDiscarded}, seen)
}

type regionClient struct {
	*MockRemoteIndexClient
	*MockRegionSource
}

func TestAdoptRemoteRegion(t *testing.T) {
	cfg := testConfig()
	cfg.AdoptRemoteRegion = true
	ctrl := gomock.NewController(t)
	client := regionClient{NewMockRemoteIndexClient(ctrl), NewMockRegionSource(ctrl)}
	e := New(client, WithConfig(cfg), WithLogger(logtest.New(t)))
	t.Cleanup(func() { require.NoError(t, e.Close(context.Background())) })

	region := bounds.Default()
	client.MockRemoteIndexClient.EXPECT().Fetch(gomock.Any()).Return(types.Delta{}, nil)
	client.MockRegionSource.EXPECT().SearchRegion().Return(region, true)
	_, err := e.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, region, e.Region())
}

func TestRunRetriesInitialSync(t *testing.T) {
	cfg := testConfig()
	te := newTestEngine(t, cfg)

	gomock.InOrder(
		te.client.EXPECT().Fetch(gomock.Any()).Return(nil, errors.New("unreachable")),
		te.client.EXPECT().Fetch(gomock.Any()).Return(types.Delta{"a": "01"}, nil),
	)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- te.Run(ctx)
	}()
	te.clock.BlockUntil(1)
	te.clock.Advance(cfg.RetryBackoff)
	require.Eventually(t, func() bool {
		return te.Stats().Initialized
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}

func TestRunRefreshesPeriodically(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshInterval = time.Minute
	te := newTestEngine(t, cfg)

	fetched := make(chan struct{}, 3)
	te.client.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(context.Context) (types.Delta, error) {
		fetched <- struct{}{}
		return types.Delta{}, nil
	}).Times(2)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- te.Run(ctx)
	}()
	<-fetched
	te.clock.BlockUntil(1)
	te.clock.Advance(cfg.RefreshInterval)
	<-fetched
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}

func TestCloseFlushes(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 100
	ctrl := gomock.NewController(t)
	client := NewMockRemoteIndexClient(ctrl)
	e := New(client, WithConfig(cfg))
	e.Restore(nil)
	e.Observe(observation("a", "Alpha", 45.1, -122.1))

	client.EXPECT().Submit(gomock.Any(), gomock.Len(1)).Return(nil)
	require.NoError(t, e.Close(context.Background()))

	// closed engines keep classifying but never submit
	e.Observe(observation("b", "Bravo", 45.2, -122.2))
	require.Equal(t, 1, e.Stats().Pending)
}

func TestObserveDoesNotWaitForSnapshot(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 100
	persister := index.NewMockPersister(gomock.NewController(t))
	te := newTestEngine(t, cfg, WithStore(index.New(index.WithPersister(persister))))

	started := make(chan struct{})
	release := make(chan struct{})
	delta := types.Delta{"a": "01"}
	persister.EXPECT().Persist(delta).DoAndReturn(func(types.Delta) error {
		close(started)
		<-release
		return nil
	})
	te.client.EXPECT().Fetch(gomock.Any()).Return(delta, nil)
	errc := make(chan error, 1)
	go func() {
		_, err := te.Sync(context.Background())
		errc <- err
	}()
	<-started
	require.True(t, te.Known("a"))

	observed := make(chan Classification, 1)
	go func() {
		observed <- te.Observe(observation("b", "Bravo", 45.2, -122.2))
	}()
	select {
	case c := <-observed:
		require.Equal(t, KindNew, c.Kind)
	case <-time.After(time.Second):
		close(release)
		t.Fatal("observation blocked while the snapshot was written")
	}
	close(release)
	require.NoError(t, <-errc)
}
