package indexserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/portaldiscoverer/discoverer/kml"
	"github.com/portaldiscoverer/discoverer/sql"
	"github.com/portaldiscoverer/discoverer/sql/portals"
)

// IntelLink points to the portal on the intel map.
func IntelLink(p portals.Portal) string {
	return fmt.Sprintf("https://intel.ingress.com/intel?ll=%.6f,%.6f&z=17", p.Coordinate.Lat(), p.Coordinate.Lng())
}

// RenderKML writes every stored portal as a KML document named name.
func RenderKML(db sql.Executor, w io.Writer, name string) error {
	enc := kml.NewEncoder(w)
	if err := enc.Begin(name); err != nil {
		return err
	}
	var encErr error
	if err := portals.IterateAll(db, func(p portals.Portal) bool {
		encErr = enc.Encode(p.CanonicalRecord, IntelLink(p))
		return encErr == nil
	}); err != nil {
		return err
	}
	if encErr != nil {
		return fmt.Errorf("encode portal: %w", encErr)
	}
	return enc.End()
}

func kmlName(version portals.Version) string {
	return "index-" + strconv.FormatInt(version.ID, 10) + ".kml"
}

// kmlFile returns the cached export of the published version, rendering it
// first if needed. Exports of older versions are removed.
func (s *Server) kmlFile(ctx context.Context) (string, portals.Version, error) {
	s.kmlMu.Lock()
	defer s.kmlMu.Unlock()

	version := s.current().version
	path := filepath.Join(s.cfg.CacheDir, kmlName(version))
	if _, err := s.fs.Stat(path); err == nil {
		return path, version, nil
	}
	if err := s.fs.MkdirAll(s.cfg.CacheDir, 0o700); err != nil {
		return "", portals.Version{}, fmt.Errorf("create kml cache dir: %w", err)
	}

	tx, err := s.db.Tx(ctx)
	if err != nil {
		return "", portals.Version{}, err
	}
	defer tx.Release()
	// the file is named after the version it was rendered from, which may be
	// newer than the published one
	version, err = portals.LatestVersion(tx)
	if err != nil {
		return "", portals.Version{}, err
	}
	path = filepath.Join(s.cfg.CacheDir, kmlName(version))
	tmp := path + ".tmp"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return "", portals.Version{}, fmt.Errorf("create kml: %w", err)
	}
	if err := RenderKML(tx, f, "portals"); err != nil {
		return "", portals.Version{}, errors.Join(err, f.Close(), s.fs.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return "", portals.Version{}, fmt.Errorf("close kml: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return "", portals.Version{}, fmt.Errorf("rename kml: %w", err)
	}
	kmlRendered.Inc()
	s.logger.Info("kml rendered", zap.Int64("version", version.ID), zap.String("path", path))

	stale, err := afero.Glob(s.fs, filepath.Join(s.cfg.CacheDir, "index-*.kml"))
	if err != nil {
		return path, version, nil
	}
	for _, old := range stale {
		if old == path {
			continue
		}
		if err := s.fs.Remove(old); err != nil {
			s.logger.Warn("failed to remove stale kml", zap.String("path", old), zap.Error(err))
		}
	}
	return path, version, nil
}
