package weather

import (
	"time"

	"cloud.google.com/go/civil"
)

// Status is the short outcome reported to whatever triggered a run.
type Status string

const (
	StatusSuccess  Status = "Success"
	StatusUpToDate Status = "OK"
	StatusError    Status = "Error"
)

// Location is the single monitored point.
// TimeZone only decides what "yesterday" means for the run; hourly series
// carry their own offset from the upstream API.
type Location struct {
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
	TimeZone  string  `json:"timeZone,omitempty" yaml:"timeZone"`
}

// Window is an inclusive calendar-day range to fetch.
type Window struct {
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
}

// Empty reports whether there is nothing left to fetch.
func (w Window) Empty() bool {
	return w.Start.After(w.End)
}

// Days returns the number of calendar days covered, 0 when empty.
func (w Window) Days() int {
	if w.Empty() {
		return 0
	}
	return w.End.DaysSince(w.Start) + 1
}

func (w Window) String() string {
	return w.Start.String() + ".." + w.End.String()
}

// AirQualityHour is one hourly PM2.5 observation. A nil value means the
// upstream series had a null for that hour.
type AirQualityHour struct {
	Time time.Time
	PM25 *float64
}

// WeatherHour is one hourly weather observation.
type WeatherHour struct {
	Time          time.Time
	Temperature   *float64
	Humidity      *float64
	WindSpeed     *float64
	WindDirection *float64
}

// MergedHour is an hour present in both the air-quality and the weather series.
type MergedHour struct {
	Time          time.Time
	PM25          *float64
	Temperature   *float64
	Humidity      *float64
	WindSpeed     *float64
	WindDirection *float64
}

// DailyRecord is one row of the destination table.
type DailyRecord struct {
	Date          civil.Date `json:"date"`
	PM25          *float64   `json:"pm2_5"`
	Temperature   *float64   `json:"temperature"`
	Humidity      *float64   `json:"humidity"`
	WindSpeed     *float64   `json:"windSpeed"`
	WindDirection *float64   `json:"windDirection"`
}

// RunResult summarises one pipeline invocation.
type RunResult struct {
	ID          string `json:"runId"`
	Status      Status `json:"status"`
	Window      Window `json:"window"`
	HoursJoined int    `json:"hoursJoined"`
	Rows        int    `json:"rows"`
}
