// Package portalsync keeps locally observed portals synchronized with a remote index.
//
// Observations arriving before the first index merge are queued and replayed in
// order once it happens. Afterwards every observation is classified against the
// index, and new or changed portals are collected in a pending set which is
// submitted to the remote index with at most one submission in flight.
package portalsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/portaldiscoverer/discoverer/bounds"
	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/fingerprint"
	"github.com/portaldiscoverer/discoverer/index"
	"github.com/portaldiscoverer/discoverer/log"
)

// Hook is called with every classification. It runs while the engine holds
// its lock and must not call back into the engine.
type Hook func(Classification)

type Opt func(*Engine)

func WithLogger(logger *zap.Logger) Opt {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithConfig(cfg Config) Opt {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithComputer sets the fingerprint algorithm. It must match the one used by the remote index.
func WithComputer(computer fingerprint.Computer) Opt {
	return func(e *Engine) {
		e.detector.Computer = computer
	}
}

// WithStore uses store as the baseline index, for example one restored from a snapshot.
func WithStore(store *index.Store) Opt {
	return func(e *Engine) {
		e.store = store
	}
}

// WithRegion restricts the engine to observations inside region.
func WithRegion(region bounds.Region) Opt {
	return func(e *Engine) {
		e.detector.Region = region
	}
}

func WithHook(hook Hook) Opt {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hook)
	}
}

// SyncResult describes a completed Sync.
type SyncResult struct {
	// Fetched is the size of the delta returned by the remote index.
	Fetched int
	// Merged is the number of index entries inserted or changed.
	Merged int
	// Replayed holds the classifications of queued observations, in arrival order.
	Replayed []Classification
}

// Stats is a point in time view of the engine.
type Stats struct {
	Initialized bool
	Known       int
	Queued      int
	Pending     int
	Flushing    bool
	Submitted   uint64
	Failed      uint64
	LastError   error
}

// MarshalLogObject implements logging encoder for Stats.
func (s Stats) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddBool("initialized", s.Initialized)
	encoder.AddInt("known", s.Known)
	encoder.AddInt("queued", s.Queued)
	encoder.AddInt("pending", s.Pending)
	encoder.AddBool("flushing", s.Flushing)
	encoder.AddUint64("submitted", s.Submitted)
	encoder.AddUint64("failed", s.Failed)
	if s.LastError != nil {
		encoder.AddString("last_error", s.LastError.Error())
	}
	return nil
}

// Engine is the observation synchronization and deduplication engine.
type Engine struct {
	logger *zap.Logger
	cfg    Config
	clock  clockwork.Clock
	hooks  []Hook

	ctx    context.Context
	cancel context.CancelFunc

	batcher *batcher

	// mu orders observations against index merges.
	mu       sync.Mutex
	store    *index.Store
	detector Detector
	queue    observationQueue
}

// New creates an engine submitting to client. A nil client starts the engine
// with submissions paused; see SetRemote.
func New(client RemoteIndexClient, opts ...Opt) *Engine {
	e := &Engine{
		logger: zap.NewNop(),
		cfg:    DefaultConfig(),
		clock:  clockwork.NewRealClock(),
		detector: Detector{
			Computer: fingerprint.Default(),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = index.New()
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.batcher = newBatcher(e.ctx, e.logger, e.clock, e.cfg, client)
	indexSize.Set(float64(e.store.Len()))
	return e
}

// Observe handles a single "entity observed" event. It never blocks on the network.
func (e *Engine) Observe(obs types.Observation) Classification {
	e.mu.Lock()
	defer e.mu.Unlock()
	// out of region observations are dropped before they take space in the queue
	if obs.Coordinate != nil && !e.detector.Region.Contains(*obs.Coordinate) {
		return e.reportLocked(Classification{Kind: KindDiscarded, Reason: OutOfBounds, ID: obs.ID})
	}
	if !e.store.Initialized() {
		e.queue.push(obs)
		queuedSize.Set(float64(e.queue.len()))
		return e.reportLocked(Classification{Kind: KindQueued, ID: obs.ID})
	}
	return e.classifyLocked(obs)
}

func (e *Engine) classifyLocked(obs types.Observation) Classification {
	c := e.detector.Classify(obs, e.store)
	if c.Submittable() {
		e.batcher.add(c.Record)
	}
	return e.reportLocked(c)
}

func (e *Engine) reportLocked(c Classification) Classification {
	classifiedBy[c.Kind].Inc()
	if ce := e.logger.Check(zap.DebugLevel, "observation classified"); ce != nil {
		ce.Write(zap.Inline(c))
	}
	for _, hook := range e.hooks {
		hook(c)
	}
	return c
}

// Sync fetches the index from the remote, merges it and replays queued
// observations in arrival order. A failed fetch leaves the state unchanged.
func (e *Engine) Sync(ctx context.Context) (SyncResult, error) {
	remote := e.batcher.getRemote()
	if remote == nil {
		return SyncResult{}, ErrNoRemote
	}
	ctx = log.WithNewRequestID(ctx)
	if e.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()
	}
	delta, err := remote.Fetch(ctx)
	if err != nil {
		fetchFail.Inc()
		return SyncResult{}, fmt.Errorf("fetch index: %w", err)
	}
	fetchOk.Inc()
	if e.cfg.AdoptRemoteRegion {
		if source, ok := remote.(RegionSource); ok {
			if region, ok := source.SearchRegion(); ok {
				e.SetRegion(region)
			}
		}
	}
	result := e.apply(delta, true)
	e.logger.Info("index synced",
		log.ZContext(ctx),
		zap.Int("fetched", result.Fetched),
		zap.Int("merged", result.Merged),
		zap.Int("replayed", len(result.Replayed)),
	)
	return result, nil
}

// Refresh re-fetches the index. It is Sync without the replay report.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err := e.Sync(ctx)
	return err
}

// Restore merges a locally persisted snapshot. It initializes the engine like
// a fetch does, so queued observations are replayed against the snapshot.
func (e *Engine) Restore(delta types.Delta) SyncResult {
	return e.apply(delta, false)
}

// apply merges delta and replays the queue. The snapshot is written after the
// lock is released so that observations never wait for the disk.
func (e *Engine) apply(delta types.Delta, persist bool) SyncResult {
	result := e.merge(delta)
	if persist {
		// the in-memory index is up to date, only the local snapshot is stale
		if err := e.store.Persist(delta); err != nil {
			e.logger.Warn("failed to persist index delta", zap.Int("size", len(delta)), zap.Error(err))
		}
	}
	return result
}

// merge applies delta and replays the queue under a single lock so that no
// observation is classified ahead of an earlier queued one.
func (e *Engine) merge(delta types.Delta) SyncResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := SyncResult{Fetched: len(delta), Merged: e.store.Restore(delta)}
	indexSize.Set(float64(e.store.Len()))
	queued := e.queue.drain()
	queuedSize.Set(0)
	for _, obs := range queued {
		result.Replayed = append(result.Replayed, e.classifyLocked(obs))
	}
	return result
}

// Flush submits everything pending regardless of the batch threshold and
// waits until the pending set is drained or the submission fails.
func (e *Engine) Flush(ctx context.Context) error {
	return e.batcher.flush(ctx)
}

// Run performs the initial sync, retrying every RetryBackoff until it
// succeeds, then refreshes the index every RefreshInterval. It returns when
// ctx is canceled or the engine is closed.
func (e *Engine) Run(ctx context.Context) error {
	for {
		_, err := e.Sync(ctx)
		if err == nil {
			break
		}
		e.logger.Warn("initial sync failed", zap.Duration("retry", e.cfg.RetryBackoff), log.NiceZapError(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ctx.Done():
			return nil
		case <-e.clock.After(e.cfg.RetryBackoff):
		}
	}
	if e.cfg.RefreshInterval <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ctx.Done():
			return nil
		}
	}
	ticker := e.clock.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ctx.Done():
			return nil
		case <-ticker.Chan():
			if _, err := e.Sync(ctx); err != nil {
				e.logger.Warn("index refresh failed", log.NiceZapError(err))
			}
		}
	}
}

// Close makes a best effort to flush pending records within ctx, then stops
// background work and waits for it to exit.
func (e *Engine) Close(ctx context.Context) error {
	err := e.Flush(ctx)
	if errors.Is(err, ErrNoRemote) {
		err = nil
	}
	e.cancel()
	e.batcher.wg.Wait()
	return err
}

// SetRemote replaces the remote index. A nil client pauses submissions;
// records keep accumulating in the pending set until a client is set again.
func (e *Engine) SetRemote(client RemoteIndexClient) {
	e.batcher.setRemote(client)
}

func (e *Engine) Remote() RemoteIndexClient {
	return e.batcher.getRemote()
}

func (e *Engine) SetBatchThreshold(n int) {
	e.batcher.setThreshold(n)
}

func (e *Engine) BatchThreshold() int {
	return e.batcher.getThreshold()
}

// SetRegion changes the region of interest. Records already pending are kept.
func (e *Engine) SetRegion(region bounds.Region) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if region != e.detector.Region {
		e.logger.Info("region of interest changed", zap.Inline(region))
	}
	e.detector.Region = region
}

func (e *Engine) Region() bounds.Region {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.Region
}

// Known reports whether id is in the baseline index.
func (e *Engine) Known(id types.EntityID) bool {
	return e.store.Known(id)
}

// Pending returns the record waiting for submission for id, if any.
func (e *Engine) Pending(id types.EntityID) (types.CanonicalRecord, bool) {
	return e.batcher.pendingRecord(id)
}

// Index returns a copy of the baseline index.
func (e *Engine) Index() types.Delta {
	return e.store.Snapshot()
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	stats := Stats{
		Initialized: e.store.Initialized(),
		Known:       e.store.Len(),
		Queued:      e.queue.len(),
	}
	e.mu.Unlock()
	e.batcher.fill(&stats)
	return stats
}
