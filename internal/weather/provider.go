package weather

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

// AirQualitySource fetches hourly PM2.5 for a location and window.
type AirQualitySource interface {
	FetchAirQuality(ctx context.Context, loc Location, w Window) ([]AirQualityHour, error)
}

// WeatherSource fetches hourly weather for a location and window.
type WeatherSource interface {
	FetchWeather(ctx context.Context, loc Location, w Window) ([]WeatherHour, error)
}

// Watermark reports the last calendar day already stored in the destination.
// ok is false when the destination holds no rows.
type Watermark interface {
	LastStoredDate(ctx context.Context) (last civil.Date, ok bool, err error)
}

// Warehouse is the append-only destination table.
type Warehouse interface {
	Watermark
	Append(ctx context.Context, rows []DailyRecord) error
	Name() string
}

// RangeReader is implemented by warehouses that can read rows back.
type RangeReader interface {
	GetRange(ctx context.Context, from, to civil.Date) ([]DailyRecord, error)
}

// Archiver keeps a copy of the rows appended by a run.
type Archiver interface {
	Archive(ctx context.Context, runID string, w Window, rows []DailyRecord) error
}

// Recorder receives run metrics.
type Recorder interface {
	ObserveFetch(source string, d time.Duration, err error)
	ObserveRun(status string, rows int)
	SetWatermark(start civil.Date)
}

type noopRecorder struct{}

func (noopRecorder) ObserveFetch(string, time.Duration, error) {}
func (noopRecorder) ObserveRun(string, int)                    {}
func (noopRecorder) SetWatermark(civil.Date)                   {}
