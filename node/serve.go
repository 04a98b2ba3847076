package node

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/portaldiscoverer/discoverer/config"
	"github.com/portaldiscoverer/discoverer/exporter"
	"github.com/portaldiscoverer/discoverer/fingerprint"
	"github.com/portaldiscoverer/discoverer/indexserver"
	"github.com/portaldiscoverer/discoverer/kml"
)

// newServer opens the server database and builds the index server.
func newServer(conf *config.Config, logger *zap.Logger) (*indexserver.Server, func() error, error) {
	dbLogger, err := conf.Logging.Named(logger, "database")
	if err != nil {
		return nil, nil, err
	}
	srvLogger, err := conf.Logging.Named(logger, "server")
	if err != nil {
		return nil, nil, err
	}
	computer, ok := fingerprint.ByName(conf.Fingerprint)
	if !ok {
		return nil, nil, fmt.Errorf("unknown fingerprint algorithm %q", conf.Fingerprint)
	}
	db, err := openDB(conf, conf.ServerDB(), dbLogger)
	if err != nil {
		return nil, nil, err
	}
	srvConf := conf.Server
	if !filepath.IsAbs(srvConf.CacheDir) {
		srvConf.CacheDir = filepath.Join(conf.DataDir, srvConf.CacheDir)
	}
	srv, err := indexserver.New(db,
		indexserver.WithLogger(srvLogger),
		indexserver.WithConfig(srvConf),
		indexserver.WithFilesystem(afero.NewOsFs()),
		indexserver.WithComputer(computer),
	)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return srv, db.Close, nil
}

func runServer(ctx context.Context, conf *config.Config, logger *zap.Logger) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	fl, err := lockDataDir(conf)
	if err != nil {
		return err
	}
	defer unlock(logger, fl)

	srv, closeDB, err := newServer(conf, logger)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}
	defer closeDB()
	if err := srv.Start(); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	startMetrics(ctx, eg, conf, logger)
	eg.Go(func() error {
		<-ctx.Done()
		return srv.Stop(context.Background())
	})
	return eg.Wait()
}

func runExport(ctx context.Context, conf *config.Config, logger *zap.Logger, out, creds string) error {
	dbLogger, err := conf.Logging.Named(logger, "database")
	if err != nil {
		return err
	}
	db, err := openDB(conf, conf.ServerDB(), dbLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	sink, closeSink, err := exporter.Open(ctx, out, creds)
	if err != nil {
		return err
	}
	defer closeSink()
	return exporter.Export(ctx, logger, sink, kml.ContentType, func(w io.Writer) error {
		return indexserver.RenderKML(db, w, "portals")
	})
}
