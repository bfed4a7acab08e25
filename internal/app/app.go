// Package app assembles the pipeline from configuration. The one-shot
// command, the daemon and the Cloud Functions entry point share it.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/i474232898/air-quality-etl/internal/archive"
	"github.com/i474232898/air-quality-etl/internal/config"
	"github.com/i474232898/air-quality-etl/internal/metrics"
	"github.com/i474232898/air-quality-etl/internal/store"
	"github.com/i474232898/air-quality-etl/internal/weather"
	"github.com/i474232898/air-quality-etl/internal/weather/providers"
)

// App is a wired pipeline plus the resources it holds open.
type App struct {
	Config    *config.AppConfig
	Service   *weather.Service
	Metrics   *metrics.Recorder
	Warehouse weather.Warehouse
	// Reader is nil when the warehouse cannot read rows back.
	Reader weather.RangeReader

	closers []io.Closer
}

// New builds the pipeline described by cfg.
func New(ctx context.Context, cfg *config.AppConfig, log *zap.SugaredLogger) (*App, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Metrics: metrics.NewRecorder()}

	wh, err := a.openWarehouse(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Warehouse = wh
	if r, ok := wh.(weather.RangeReader); ok {
		a.Reader = r
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	om := providers.NewOpenMeteo(httpClient, cfg.AirQualityURL, cfg.ArchiveURL)

	opts := []weather.Option{
		weather.WithLogger(log),
		weather.WithRecorder(a.Metrics),
	}

	arch, err := a.openArchive(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if arch != nil {
		opts = append(opts, weather.WithArchiver(arch))
		log.Infow("archiving appended rows", "bucket", cfg.ArchiveBucket, "dir", cfg.ArchiveDir, "prefix", cfg.ArchivePrefix)
	}

	a.Service = weather.NewService(settings, wh, om, om, opts...)
	log.Infow("pipeline ready", "warehouse", wh.Name(), "location", cfg.Location.Name)
	return a, nil
}

func (a *App) openWarehouse(ctx context.Context, cfg *config.AppConfig) (weather.Warehouse, error) {
	switch cfg.Warehouse {
	case config.WarehouseSQL:
		s, err := store.OpenSQL(cfg.SQLDriver, cfg.SQLDSN, cfg.Table, cfg.SQLCreateTable)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case config.WarehouseMemory:
		return store.NewMemoryStore(), nil
	default:
		bq, err := store.NewBigQuery(ctx, cfg.ProjectID, cfg.Dataset, cfg.Table)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bq)
		return bq, nil
	}
}

// openArchive returns nil when neither a bucket nor a directory is configured.
func (a *App) openArchive(ctx context.Context, cfg *config.AppConfig) (weather.Archiver, error) {
	var targets archive.MultiUploader

	if cfg.ArchiveBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client)
		targets = append(targets, archive.NewGCSUploader(client, cfg.ArchiveBucket))
	}
	if cfg.ArchiveDir != "" {
		targets = append(targets, archive.NewLocalUploader(cfg.ArchiveDir))
	}

	switch len(targets) {
	case 0:
		return nil, nil
	case 1:
		return archive.NewParquet(targets[0], cfg.ArchivePrefix), nil
	default:
		return archive.NewParquet(targets, cfg.ArchivePrefix), nil
	}
}

// Close releases every client the App opened.
func (a *App) Close() error {
	var result error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result
}
