package indexserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/indexclient"
	"github.com/portaldiscoverer/discoverer/kml"
	"github.com/portaldiscoverer/discoverer/log"
	"github.com/portaldiscoverer/discoverer/sql"
	"github.com/portaldiscoverer/discoverer/sql/portals"
)

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", log.ZContext(r.Context()), zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, log.ZContext(r.Context()), zap.String("path", r.URL.Path), zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	pub := s.current()
	etag := pub.version.ETag()
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Last-Modified", pub.version.Created.UTC().Format(http.TimeFormat))
	w.Write(pub.body)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, "ok")
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if id := r.Header.Get(indexclient.RequestHeader); id != "" {
		ctx = log.WithRequestID(ctx, id)
	} else {
		ctx = log.WithNewRequestID(ctx)
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rejected.WithLabelValues("too_large").Inc()
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		rejected.WithLabelValues("read").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	submitted, err := indexclient.DecodeSubmission(body)
	if err != nil {
		rejected.WithLabelValues("invalid").Inc()
		s.logger.Debug("invalid submission", log.ZContext(ctx), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records := make([]types.CanonicalRecord, 0, len(submitted))
	for _, p := range submitted {
		records = append(records, p.Record())
	}
	_, err = s.Submit(ctx, r.Header.Get(indexclient.ReporterHeader), records)
	switch {
	case errors.Is(err, ErrBatchTooLarge):
		rejected.WithLabelValues("batch_size").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.fail(w, r.WithContext(ctx), "failed to store submission", err)
		return
	}
	s.writeJSON(w, r, "ok")
}

type revision struct {
	LatE6    int32             `json:"latE6"`
	LngE6    int32             `json:"lngE6"`
	Name     string            `json:"name"`
	Ref      types.Fingerprint `json:"_ref"`
	Reporter string            `json:"reporter,omitempty"`
	Replaced time.Time         `json:"replaced"`
}

type portalResponse struct {
	indexclient.Portal
	Reporter string     `json:"reporter,omitempty"`
	Created  time.Time  `json:"created"`
	Updated  time.Time  `json:"updated"`
	History  []revision `json:"_history"`
}

func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	id := types.EntityID(r.PathValue("id"))
	p, err := portals.Get(s.db, id)
	if errors.Is(err, sql.ErrNotFound) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		s.fail(w, r, "failed to load portal", err)
		return
	}
	revs, err := portals.History(s.db, id)
	if err != nil {
		s.fail(w, r, "failed to load portal history", err)
		return
	}
	resp := portalResponse{
		Portal:   indexclient.FromRecord(p.CanonicalRecord),
		Reporter: p.Reporter,
		Created:  p.Created.UTC(),
		Updated:  p.Updated.UTC(),
		History:  make([]revision, 0, len(revs)),
	}
	for _, rev := range revs {
		resp.History = append(resp.History, revision{
			LatE6:    rev.Coordinate.LatE6,
			LngE6:    rev.Coordinate.LngE6,
			Name:     rev.Name,
			Ref:      rev.Ref,
			Reporter: rev.Reporter,
			Replaced: rev.Replaced.UTC(),
		})
	}
	s.writeJSON(w, r, resp)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := portals.Leaderboard(s.db, s.cfg.LeaderboardSize)
	if err != nil {
		s.fail(w, r, "failed to load leaderboard", err)
		return
	}
	if board == nil {
		board = []portals.Reporter{}
	}
	s.writeJSON(w, r, board)
}

func (s *Server) handleKML(w http.ResponseWriter, r *http.Request) {
	path, version, err := s.kmlFile(r.Context())
	if err != nil {
		s.fail(w, r, "failed to render kml", err)
		return
	}
	f, err := s.fs.Open(path)
	if err != nil {
		s.fail(w, r, "failed to open kml", err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", kml.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="portals.kml"`)
	w.Header().Set("ETag", version.ETag())
	http.ServeContent(w, r, "portals.kml", version.Created, f)
}
