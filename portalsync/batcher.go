package portalsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/log"
)

var (
	// ErrStuckSubmission is recorded when a submission does not complete within SubmitTimeout.
	ErrStuckSubmission = errors.New("submission stuck")
	// ErrNoRemote is returned when an operation needs the remote index and none is configured.
	ErrNoRemote = errors.New("remote index not configured")
)

// flushRun tracks one submit loop. done is closed when the loop exits.
type flushRun struct {
	force bool
	done  chan struct{}
	err   error
}

// batcher owns the pending set and submits it to the remote index, with at
// most one submission in flight.
type batcher struct {
	logger  *zap.Logger
	clock   clockwork.Clock
	cfg     Config
	limiter *rate.Limiter

	// ctx is canceled when the engine closes.
	ctx context.Context
	wg  sync.WaitGroup

	mu        sync.Mutex
	remote    RemoteIndexClient
	threshold int
	pending   *pendingSet
	run       *flushRun
	lastErr   error
	submitted uint64
	failed    uint64
}

func newBatcher(ctx context.Context, logger *zap.Logger, clock clockwork.Clock, cfg Config, remote RemoteIndexClient) *batcher {
	b := &batcher{
		logger:    logger,
		clock:     clock,
		cfg:       cfg,
		ctx:       ctx,
		remote:    remote,
		threshold: max(cfg.BatchThreshold, 1),
		pending:   newPendingSet(),
	}
	if cfg.SubmitRate > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), max(cfg.SubmitBurst, 1))
	}
	return b
}

func (b *batcher) add(record types.CanonicalRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending.add(record)
	pendingSize.Set(float64(b.pending.len()))
	b.attemptLocked(false)
}

// attemptLocked starts a submit loop unless one is already running, no remote
// is configured, or the pending set is below the threshold. The first batch is
// taken before returning so that records added afterwards wait for the next one.
func (b *batcher) attemptLocked(force bool) *flushRun {
	if b.run != nil {
		return b.run
	}
	if b.remote == nil || b.ctx.Err() != nil {
		return nil
	}
	n := b.pending.len()
	if n == 0 || (!force && n < b.threshold) {
		return nil
	}
	run := &flushRun{force: force, done: make(chan struct{})}
	b.run = run
	batch := b.pending.take(b.cfg.MaxBatchSize)
	pendingSize.Set(float64(b.pending.len()))
	b.wg.Add(1)
	go b.loop(run, b.remote, batch)
	return run
}

// nextLocked returns the next batch for run, or nil when the loop should stop.
func (b *batcher) nextLocked(run *flushRun) (RemoteIndexClient, []types.CanonicalRecord) {
	n := b.pending.len()
	if b.remote == nil || n == 0 || (!run.force && n < b.threshold) {
		return nil, nil
	}
	batch := b.pending.take(b.cfg.MaxBatchSize)
	pendingSize.Set(float64(b.pending.len()))
	return b.remote, batch
}

func (b *batcher) finishLocked(run *flushRun, err error) {
	run.err = err
	b.run = nil
	close(run.done)
}

func (b *batcher) loop(run *flushRun, remote RemoteIndexClient, batch []types.CanonicalRecord) {
	defer b.wg.Done()
	failures := 0
	for {
		err := b.submit(remote, batch)

		b.mu.Lock()
		if err != nil {
			failures++
			b.failed++
			b.lastErr = err
			restored := 0
			if b.cfg.RestoreOnFailure {
				restored = b.pending.restore(batch)
				pendingSize.Set(float64(b.pending.len()))
			}
			b.logger.Warn("submission failed",
				zap.Int("records", len(batch)),
				zap.Int("restored", restored),
				zap.Int("failures", failures),
				zap.Error(err),
			)
			if failures > b.cfg.MaxRetries || b.ctx.Err() != nil {
				b.finishLocked(run, err)
				b.mu.Unlock()
				return
			}
			b.mu.Unlock()
			select {
			case <-b.clock.After(b.cfg.RetryBackoff):
			case <-b.ctx.Done():
			}
			b.mu.Lock()
		} else {
			failures = 0
			b.submitted++
			b.lastErr = nil
			b.logger.Debug("submitted records", zap.Array("ids", types.Records(batch)))
		}

		remote, batch = b.nextLocked(run)
		if batch == nil {
			b.finishLocked(run, err)
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
	}
}

// submit sends batch and waits for the reply for at most SubmitTimeout.
// An abandoned call keeps running in the background until the client returns;
// its context is canceled so a well behaved client returns promptly.
func (b *batcher) submit(remote RemoteIndexClient, batch []types.CanonicalRecord) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(b.ctx); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithCancel(log.WithNewRequestID(b.ctx))
	defer cancel()

	start := b.clock.Now()
	result := make(chan error, 1)
	go func() {
		result <- remote.Submit(ctx, batch)
	}()
	var timeout <-chan time.Time
	if b.cfg.SubmitTimeout > 0 {
		timeout = b.clock.After(b.cfg.SubmitTimeout)
	}
	select {
	case err := <-result:
		submitLatency.Observe(b.clock.Since(start).Seconds())
		if err != nil {
			submitFail.Inc()
			return fmt.Errorf("submit %d records: %w", len(batch), err)
		}
		submitOk.Inc()
		submittedRecords.Add(float64(len(batch)))
		return nil
	case <-timeout:
		submitStuck.Inc()
		b.logger.Error("abandoning stuck submission",
			log.ZContext(ctx),
			zap.Int("records", len(batch)),
			zap.Duration("timeout", b.cfg.SubmitTimeout),
		)
		return fmt.Errorf("%w: no reply after %s", ErrStuckSubmission, b.cfg.SubmitTimeout)
	case <-b.ctx.Done():
		return b.ctx.Err()
	}
}

// flush submits everything pending regardless of the threshold. It waits for
// a running loop first and returns the error of the forced loop, if any.
func (b *batcher) flush(ctx context.Context) error {
	for {
		b.mu.Lock()
		if run := b.run; run != nil {
			b.mu.Unlock()
			select {
			case <-run.done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if b.pending.len() == 0 {
			b.mu.Unlock()
			return nil
		}
		if b.remote == nil {
			b.mu.Unlock()
			return ErrNoRemote
		}
		run := b.attemptLocked(true)
		b.mu.Unlock()
		if run == nil {
			return b.ctx.Err()
		}
		select {
		case <-run.done:
			return run.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *batcher) setRemote(remote RemoteIndexClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remote = remote
	b.attemptLocked(false)
}

func (b *batcher) getRemote() RemoteIndexClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remote
}

func (b *batcher) setThreshold(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threshold = max(n, 1)
	b.attemptLocked(false)
}

func (b *batcher) getThreshold() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.threshold
}

func (b *batcher) pendingRecord(id types.EntityID) (types.CanonicalRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.get(id)
}

func (b *batcher) fill(stats *Stats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats.Pending = b.pending.len()
	stats.Flushing = b.run != nil
	stats.Submitted = b.submitted
	stats.Failed = b.failed
	stats.LastError = b.lastErr
}
