// Package ingest receives observations from the map application and hands
// them to the synchronization engine.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/portaldiscoverer/discoverer/log"
	"github.com/portaldiscoverer/discoverer/metrics"
)

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

// Server exposes the observation endpoints.
type Server struct {
	logger   *zap.Logger
	cfg      Config
	engine   Engine
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup

	srv *http.Server
	ln  net.Listener
	eg  errgroup.Group
}

func New(engine Engine, opts ...Opt) *Server {
	s := &Server{
		logger: zap.NewNop(),
		cfg:    DefaultConfig(),
		engine: engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.allowedOrigin,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// allowedOrigin accepts clients that send no Origin header.
func (s *Server) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /observe", metrics.InstrumentHandler("/observe", http.HandlerFunc(s.handleObserve)))
	mux.Handle("GET /observe/ws", metrics.InstrumentHandler("/observe/ws", http.HandlerFunc(s.handleStream)))
	mux.Handle("GET /status", metrics.InstrumentHandler("/status", http.HandlerFunc(s.handleStatus)))
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)
}

func (s *Server) observe(batch []Observation) []Result {
	results := make([]Result, 0, len(batch))
	for _, o := range batch {
		results = append(results, resultOf(s.engine.Observe(o.Observation())))
	}
	return results
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	batch, err := decode(body, s.cfg.MaxBatchSize)
	if err != nil {
		malformed.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	receivedHTTP.Add(float64(len(batch)))
	writeJSON(w, s.observe(batch))
}

// Status is the engine state reported on /status.
type Status struct {
	Initialized bool   `json:"initialized"`
	Known       int    `json:"known"`
	Queued      int    `json:"queued"`
	Pending     int    `json:"pending"`
	Flushing    bool   `json:"flushing"`
	Submitted   uint64 `json:"submitted"`
	Failed      uint64 `json:"failed"`
	LastError   string `json:"lastError,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()
	status := Status{
		Initialized: stats.Initialized,
		Known:       stats.Known,
		Queued:      stats.Queued,
		Pending:     stats.Pending,
		Flushing:    stats.Flushing,
		Submitted:   stats.Submitted,
		Failed:      stats.Failed,
	}
	if stats.LastError != nil {
		status.LastError = stats.LastError.Error()
	}
	writeJSON(w, status)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s.conns.Add(1)
	go func() {
		defer s.conns.Done()
		s.stream(log.WithNewRequestID(s.ctx), conn)
	}()
}

// stream reads observation messages until the peer goes away or the server
// stops. Every message is answered with the classification results.
func (s *Server) stream(ctx context.Context, conn *websocket.Conn) {
	streams.Inc()
	defer streams.Dec()
	logger := s.logger.With(log.ZContext(ctx), zap.Stringer("remote", conn.RemoteAddr()))
	logger.Debug("observation stream opened")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	if s.cfg.MaxBodyBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxBodyBytes)
	}
	var limiter *rate.Limiter
	if s.cfg.StreamRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.StreamRate), max(s.cfg.StreamBurst, 1))
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				logger.Debug("observation stream failed", zap.Error(err))
			}
			logger.Debug("observation stream closed")
			return
		}
		batch, err := decode(msg, s.cfg.MaxBatchSize)
		if err != nil {
			malformed.Inc()
			logger.Debug("malformed observation message", zap.Error(err))
			if err := conn.WriteJSON(map[string]string{"error": err.Error()}); err != nil {
				return
			}
			continue
		}
		if limiter != nil {
			if err := limiter.WaitN(ctx, min(len(batch), limiter.Burst())); err != nil {
				return
			}
		}
		receivedStream.Add(float64(len(batch)))
		if err := conn.WriteJSON(s.observe(batch)); err != nil {
			logger.Debug("failed to reply on observation stream", zap.Error(err))
			return
		}
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.eg.Go(func() error {
		s.logger.Info("ingest server starts serving", zap.Stringer("addr", ln.Addr()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes open streams and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	s.conns.Wait()
	if s.srv == nil {
		return nil
	}
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("ingest server shutdown", zap.Error(err))
	}
	return s.eg.Wait()
}
