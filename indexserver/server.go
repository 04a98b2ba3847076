// Package indexserver serves the portal index that agents fetch and submit to.
package indexserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/fingerprint"
	"github.com/portaldiscoverer/discoverer/indexclient"
	"github.com/portaldiscoverer/discoverer/log"
	"github.com/portaldiscoverer/discoverer/metrics"
	"github.com/portaldiscoverer/discoverer/sql"
	"github.com/portaldiscoverer/discoverer/sql/portals"
)

var ErrBatchTooLarge = errors.New("batch too large")

type Opt func(*Server)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithConfig(cfg Config) Opt {
	return func(s *Server) {
		s.cfg = cfg
	}
}

func WithFilesystem(fs afero.Fs) Opt {
	return func(s *Server) {
		s.fs = fs
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(s *Server) {
		s.clock = clock
	}
}

// WithComputer sets the algorithm used to derive reference fingerprints of
// submitted portals. Agents must be configured with the same one.
func WithComputer(computer fingerprint.Computer) Opt {
	return func(s *Server) {
		s.computer = computer
	}
}

type publication struct {
	version portals.Version
	body    []byte
}

// Server stores submitted portals and publishes the guid index.
type Server struct {
	logger   *zap.Logger
	cfg      Config
	fs       afero.Fs
	clock    clockwork.Clock
	computer fingerprint.Computer
	db       *sql.Database

	mu  sync.RWMutex
	pub publication

	kmlMu sync.Mutex

	srv *http.Server
	ln  net.Listener
	eg  errgroup.Group
}

// New creates a server backed by db and publishes the stored index.
func New(db *sql.Database, opts ...Opt) (*Server, error) {
	s := &Server{
		logger:   zap.NewNop(),
		cfg:      DefaultConfig(),
		fs:       afero.NewOsFs(),
		clock:    clockwork.NewRealClock(),
		computer: fingerprint.Default(),
		db:       db,
	}
	for _, opt := range opts {
		opt(s)
	}
	ctx := context.Background()
	if err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := portals.LatestVersion(tx)
		if !errors.Is(err, sql.ErrNotFound) {
			return err
		}
		n, err := portals.Count(tx)
		if err != nil {
			return err
		}
		_, err = portals.AddVersion(tx, n, s.clock.Now())
		return err
	}); err != nil {
		return nil, fmt.Errorf("initialize index version: %w", err)
	}
	if err := s.publish(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// publish rebuilds the served index body from the database unless a newer
// version is already published.
func (s *Server) publish(ctx context.Context) error {
	tx, err := s.db.Tx(ctx)
	if err != nil {
		return err
	}
	defer tx.Release()
	version, err := portals.LatestVersion(tx)
	if err != nil {
		return err
	}
	s.mu.RLock()
	current := s.pub.version
	s.mu.RUnlock()
	if current.ID >= version.ID {
		return nil
	}
	index, err := portals.Index(tx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(indexclient.Envelope{Index: index, Region: s.cfg.SearchRegion})
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub.version.ID < version.ID {
		s.pub = publication{version: version, body: body}
		published.Set(float64(version.ID))
		s.logger.Info("index published",
			log.ZContext(ctx),
			zap.Int64("version", version.ID),
			zap.Int("size", len(index)),
		)
	}
	return nil
}

func (s *Server) current() publication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pub
}

// Version returns the published index version.
func (s *Server) Version() portals.Version {
	return s.current().version
}

// SubmitResult counts upsert outcomes of a batch.
type SubmitResult struct {
	Created   int
	Updated   int
	Unchanged int
}

// Submit stores records in a single transaction and publishes a new index
// version when any of them was created or updated. Reference fingerprints are
// recomputed from the submitted fields.
func (s *Server) Submit(ctx context.Context, reporter string, records []types.CanonicalRecord) (SubmitResult, error) {
	if s.cfg.MaxBatchSize > 0 && len(records) > s.cfg.MaxBatchSize {
		return SubmitResult{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(records), s.cfg.MaxBatchSize)
	}
	now := s.clock.Now()
	var result SubmitResult
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		result = SubmitResult{}
		for _, r := range records {
			if ref := s.computer.Compute(r.ID, r.Coordinate, r.Name); ref != r.Fingerprint {
				refMismatch.Inc()
				s.logger.Debug("submitted reference does not match",
					log.ZContext(ctx),
					zap.Inline(r),
					zap.String("computed", string(ref)),
				)
				r.Fingerprint = ref
			}
			outcome, err := portals.Upsert(tx, r, reporter, now)
			if err != nil {
				return err
			}
			switch outcome {
			case portals.Created:
				result.Created++
			case portals.Updated:
				result.Updated++
			default:
				result.Unchanged++
			}
		}
		if result.Created+result.Updated == 0 {
			return nil
		}
		n, err := portals.Count(tx)
		if err != nil {
			return err
		}
		_, err = portals.AddVersion(tx, n, now)
		return err
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("store submission: %w", err)
	}
	upserts.WithLabelValues(portals.Created.String()).Add(float64(result.Created))
	upserts.WithLabelValues(portals.Updated.String()).Add(float64(result.Updated))
	upserts.WithLabelValues(portals.Unchanged.String()).Add(float64(result.Unchanged))
	s.logger.Info("submission stored",
		log.ZContext(ctx),
		zap.String("reporter", reporter),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
	)
	if result.Created+result.Updated > 0 {
		if err := s.publish(ctx); err != nil {
			return result, fmt.Errorf("publish index: %w", err)
		}
	}
	return result, nil
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, id string, h http.HandlerFunc) {
		mux.Handle(pattern, metrics.InstrumentHandler(id, h))
	}
	route("GET /"+indexclient.IndexPath, "/"+indexclient.IndexPath, s.handleIndex)
	route("GET /"+indexclient.SubmitPath, "/"+indexclient.SubmitPath, s.handlePing)
	route("POST /"+indexclient.SubmitPath, "/"+indexclient.SubmitPath, s.handleSubmit)
	route("GET /portal/{id}", "/portal", s.handlePortal)
	route("GET /hiscore", "/hiscore", s.handleLeaderboard)
	route("GET /fetchKml", "/fetchKml", s.handleKML)
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{
			"Content-Type",
			"If-None-Match",
			indexclient.BatchHeader,
			indexclient.RequestHeader,
			indexclient.ReporterHeader,
		},
		ExposedHeaders: []string{"ETag"},
	}).Handler(mux)
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.eg.Go(func() error {
		s.logger.Info("index server starts serving", zap.Stringer("addr", ln.Addr()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("index server shutdown", zap.Error(err))
	}
	return s.eg.Wait()
}
