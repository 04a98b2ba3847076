package node

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/config"
	"github.com/portaldiscoverer/discoverer/fingerprint"
	"github.com/portaldiscoverer/discoverer/index"
	"github.com/portaldiscoverer/discoverer/indexclient"
	"github.com/portaldiscoverer/discoverer/ingest"
	"github.com/portaldiscoverer/discoverer/metrics"
	"github.com/portaldiscoverer/discoverer/portalsync"
	"github.com/portaldiscoverer/discoverer/sql"
	"github.com/portaldiscoverer/discoverer/sql/kvstore"
	"github.com/portaldiscoverer/discoverer/sql/snapshots"
)

// lockDataDir takes the exclusive lock of the data directory.
func lockDataDir(conf *config.Config) (*flock.Flock, error) {
	if err := os.MkdirAll(conf.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure data dir exists: %w", err)
	}
	fl := flock.New(conf.LockFile())
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("flock %s: %w", fl.Path(), err)
	} else if !locked {
		return nil, fmt.Errorf("only one discoverer instance should be running (locking file %s)", fl.Path())
	}
	return fl, nil
}

func unlock(logger *zap.Logger, fl *flock.Flock) {
	if fl == nil {
		return
	}
	if err := fl.Unlock(); err != nil {
		logger.Error("failed to unlock file", zap.String("path", fl.Path()), zap.Error(err))
	}
}

func openDB(conf *config.Config, path string, logger *zap.Logger) (*sql.Database, error) {
	db, err := sql.Open("file:"+path,
		sql.WithLogger(logger),
		sql.WithConnections(conf.DatabaseConnections),
		sql.WithLatencyMetering(conf.DatabaseLatencyMetering),
	)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// syncRecorder remembers the time of every successful fetch.
type syncRecorder struct {
	*indexclient.Client
	db     sql.Executor
	clock  clockwork.Clock
	logger *zap.Logger
}

func (r *syncRecorder) Fetch(ctx context.Context) (types.Delta, error) {
	delta, err := r.Client.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := kvstore.SetLastSync(r.db, r.clock.Now()); err != nil {
		r.logger.Warn("failed to record last sync", zap.Error(err))
	}
	return delta, nil
}

// Agent runs the synchronization engine behind the observation endpoints.
type Agent struct {
	conf   *config.Config
	logger *zap.Logger
	clock  clockwork.Clock

	db     *sql.Database
	engine *portalsync.Engine
	ingest *ingest.Server
}

func NewAgent(conf *config.Config, logger *zap.Logger) *Agent {
	return &Agent{conf: conf, logger: logger, clock: clockwork.NewRealClock()}
}

// Initialize opens the state database and builds the engine from the saved
// endpoint and index snapshot.
func (a *Agent) Initialize() error {
	named := func(name string) *zap.Logger {
		logger, err := a.conf.Logging.Named(a.logger, name)
		if err != nil {
			// levels were validated by MinLevel
			return a.logger.Named(name)
		}
		return logger
	}

	db, err := openDB(a.conf, a.conf.AgentDB(), named("database"))
	if err != nil {
		return err
	}
	a.db = db

	client, err := a.remote(named("client"))
	if err != nil {
		return err
	}
	computer, ok := fingerprint.ByName(a.conf.Fingerprint)
	if !ok {
		return fmt.Errorf("unknown fingerprint algorithm %q", a.conf.Fingerprint)
	}
	if a.conf.FingerprintCacheSize > 0 {
		if computer, err = fingerprint.NewCached(computer, a.conf.FingerprintCacheSize); err != nil {
			return err
		}
	}
	region, err := a.conf.Region.Region()
	if err != nil {
		return err
	}

	opts := []portalsync.Opt{
		portalsync.WithLogger(named("sync")),
		portalsync.WithConfig(a.conf.Sync),
		portalsync.WithClock(a.clock),
		portalsync.WithComputer(computer),
		portalsync.WithRegion(region),
		portalsync.WithStore(index.New(index.WithPersister(snapshots.NewPersister(db)))),
	}
	if client == nil {
		a.engine = portalsync.New(nil, opts...)
	} else {
		a.engine = portalsync.New(client, opts...)
	}

	snapshot, err := snapshots.Load(db)
	if err != nil {
		return fmt.Errorf("load index snapshot: %w", err)
	}
	if len(snapshot) > 0 {
		result := a.engine.Restore(snapshot)
		a.logger.Info("index snapshot restored", zap.Int("size", result.Merged))
	}

	a.ingest = ingest.New(a.engine,
		ingest.WithLogger(named("ingest")),
		ingest.WithConfig(a.conf.Ingest),
	)
	return nil
}

// remote returns the index client for the configured endpoint, or the one
// saved by a previous run. It returns nil when neither is known.
func (a *Agent) remote(logger *zap.Logger) (*syncRecorder, error) {
	endpoint := a.conf.Endpoint
	if endpoint == "" {
		saved, err := kvstore.GetEndpoint(a.db)
		switch {
		case errors.Is(err, sql.ErrNotFound):
			a.logger.Warn("no index endpoint configured, submissions are paused")
			return nil, nil
		case err != nil:
			return nil, err
		}
		endpoint = saved
	}
	client, err := indexclient.New(endpoint, a.conf.Client, indexclient.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("index client: %w", err)
	}
	if err := kvstore.SetEndpoint(a.db, client.Endpoint()); err != nil {
		return nil, err
	}
	a.logger.Info("using index endpoint", zap.String("endpoint", client.Endpoint()))
	return &syncRecorder{Client: client, db: a.db, clock: a.clock, logger: logger}, nil
}

// Listen opens the observation endpoints.
func (a *Agent) Listen() error {
	return a.ingest.Start()
}

// Start keeps the index in sync until ctx is canceled.
func (a *Agent) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if a.engine.Remote() == nil {
			<-ctx.Done()
			return nil
		}
		if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	startMetrics(ctx, eg, a.conf, a.logger)
	return eg.Wait()
}

// Cleanup stops taking observations, flushes pending portals and releases
// resources.
func (a *Agent) Cleanup(ctx context.Context) {
	if a.ingest != nil {
		if err := a.ingest.Stop(ctx); err != nil {
			a.logger.Warn("ingest server stopped with error", zap.Error(err))
		}
	}
	if a.engine != nil {
		if err := a.engine.Close(ctx); err != nil {
			a.logger.Warn("pending portals were not submitted", zap.Int("pending", a.engine.Stats().Pending), zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
}

func startMetrics(ctx context.Context, eg *errgroup.Group, conf *config.Config, logger *zap.Logger) {
	if conf.CollectMetrics {
		eg.Go(func() error {
			return metrics.Serve(ctx, logger.Named("metrics"), conf.MetricsPort)
		})
	}
	if conf.MetricsPush != "" {
		instance, _ := os.Hostname()
		eg.Go(func() error {
			metrics.PushLoop(ctx, logger.Named("metrics"), conf.MetricsPush, instance, conf.MetricsPushPeriod)
			return nil
		})
	}
}

func runAgent(ctx context.Context, conf *config.Config, logger *zap.Logger) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	fl, err := lockDataDir(conf)
	if err != nil {
		return err
	}
	defer unlock(logger, fl)

	agent := NewAgent(conf, logger)
	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout)
		defer cleanupCancel()
		agent.Cleanup(cleanupCtx)
	}()
	if err := agent.Initialize(); err != nil {
		return fmt.Errorf("initializing agent: %w", err)
	}
	if err := agent.Listen(); err != nil {
		return err
	}
	// blocks until the context is canceled or a service fails
	return agent.Start(ctx)
}
