// Package airqualityetl is the Cloud Functions entry point of the daily
// air-quality ETL. Deploy with --entry-point=Main and a Pub/Sub or Cloud
// Scheduler trigger.
package airqualityetl

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/i474232898/air-quality-etl/internal/app"
	"github.com/i474232898/air-quality-etl/internal/config"
	"github.com/i474232898/air-quality-etl/internal/logger"
	"github.com/i474232898/air-quality-etl/internal/weather"
)

func init() {
	functions.CloudEvent("Main", Main)
}

// Main runs the pipeline once per event. The event payload is ignored.
// A returned error marks the invocation as failed; its message starts with
// the run status.
func Main(ctx context.Context, e event.Event) error {
	base := logger.Must(os.Getenv("LOG_LEVEL"))
	log := base.With("eventId", e.ID(), "eventType", e.Type())
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingProjectID) {
			log.Error("GCP_PROJECT_ID environment variable is missing.")
		} else {
			log.Errorw("invalid configuration", "error", err)
		}
		return fmt.Errorf("%s: %w", weather.StatusError, err)
	}
	// The level may come from CONFIG_FILE rather than the environment.
	log = logger.Reconfigure(base, cfg.LogLevel).With("eventId", e.ID(), "eventType", e.Type())

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Errorw("pipeline setup failed", "error", err)
		return fmt.Errorf("%s: %w", weather.StatusError, err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warnw("closing clients", "error", err)
		}
	}()

	res, err := a.Service.Run(ctx)

	if url := cfg.PushgatewayURL; url != "" {
		if perr := a.Metrics.Push(url, "air_quality_etl"); perr != nil {
			log.Warnw("metrics push failed", "error", perr)
		}
	}

	log.Infow("invocation finished", "status", res.Status, "runId", res.ID, "rows", res.Rows)
	if err != nil {
		return fmt.Errorf("%s: %w", res.Status, err)
	}
	return nil
}
