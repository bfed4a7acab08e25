package weather

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Settings are the fixed parameters of the job.
type Settings struct {
	Location     Location
	DefaultStart civil.Date
	// Zone decides which calendar day is "yesterday". Nil means UTC.
	Zone *time.Location
}

// Service runs the incremental pipeline:
// resolve window -> fetch air quality -> fetch weather -> join -> resample -> append.
type Service struct {
	settings  Settings
	warehouse Warehouse
	air       AirQualitySource
	weather   WeatherSource
	archive   Archiver
	metrics   Recorder
	log       *zap.SugaredLogger
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithArchiver copies appended rows to an archive after each successful append.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archive = a }
}

// WithRecorder reports run metrics to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a new Service.
func NewService(settings Settings, warehouse Warehouse, air AirQualitySource, wx WeatherSource, opts ...Option) *Service {
	if settings.DefaultStart.IsZero() {
		settings.DefaultStart = DefaultStartDate
	}
	s := &Service{
		settings:  settings,
		warehouse: warehouse,
		air:       air,
		weather:   wx,
		metrics:   noopRecorder{},
		log:       zap.NewNop().Sugar(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Window resolves the window a run started at asOf would fetch, without
// fetching or writing anything.
func (s *Service) Window(ctx context.Context, asOf time.Time) Window {
	end := Yesterday(asOf, s.settings.Zone)
	return ResolveWindow(ctx, s.warehouse, s.settings.DefaultStart, end, s.log)
}

// Run executes one pipeline invocation. The returned error is non-nil
// exactly when the status is StatusError.
func (s *Service) Run(ctx context.Context) (RunResult, error) {
	res := RunResult{ID: uuid.NewString()}
	log := s.log.With("runId", res.ID, "warehouse", s.warehouse.Name())
	log.Infow("job started", "location", s.settings.Location.Name)

	fail := func(err error) (RunResult, error) {
		res.Status = StatusError
		s.metrics.ObserveRun(string(res.Status), 0)
		log.Errorw("job failed", "error", err)
		return res, err
	}

	end := Yesterday(s.now(), s.settings.Zone)
	res.Window = ResolveWindow(ctx, s.warehouse, s.settings.DefaultStart, end, log)
	s.metrics.SetWatermark(res.Window.Start)

	if res.Window.Empty() {
		log.Infow("data up to date; exiting", "start", res.Window.Start.String(), "end", res.Window.End.String())
		res.Status = StatusUpToDate
		s.metrics.ObserveRun(string(res.Status), 0)
		return res, nil
	}

	log.Infow("fetching data", "start", res.Window.Start.String(), "end", res.Window.End.String())

	started := time.Now()
	aq, err := s.air.FetchAirQuality(ctx, s.settings.Location, res.Window)
	s.metrics.ObserveFetch("air_quality", time.Since(started), err)
	if err != nil {
		return fail(fmt.Errorf("fetch air quality: %w", err))
	}

	started = time.Now()
	wx, err := s.weather.FetchWeather(ctx, s.settings.Location, res.Window)
	s.metrics.ObserveFetch("weather", time.Since(started), err)
	if err != nil {
		return fail(fmt.Errorf("fetch weather: %w", err))
	}

	merged := Join(aq, wx)
	daily := ResampleDaily(merged)
	res.HoursJoined = len(merged)
	res.Rows = len(daily)
	log.Infow("merged hourly series",
		"airQualityHours", len(aq), "weatherHours", len(wx), "joinedHours", len(merged), "days", len(daily))

	if len(daily) == 0 {
		log.Warnw("no overlapping hours in window; nothing to append")
		res.Status = StatusSuccess
		s.metrics.ObserveRun(string(res.Status), 0)
		return res, nil
	}

	log.Infow("uploading merged rows", "rows", len(daily))
	if err := s.warehouse.Append(ctx, daily); err != nil {
		res.Rows = 0
		return fail(fmt.Errorf("append to %s: %w", s.warehouse.Name(), err))
	}

	if s.archive != nil {
		if err := s.archive.Archive(ctx, res.ID, res.Window, daily); err != nil {
			log.Warnw("archive failed; rows already appended", "error", err)
		}
	}

	res.Status = StatusSuccess
	s.metrics.ObserveRun(string(res.Status), res.Rows)
	log.Infow("success", "rows", res.Rows)
	return res, nil
}
