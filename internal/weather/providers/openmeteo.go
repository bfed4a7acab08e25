package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/air-quality-etl/internal/weather"
)

const (
	DefaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	DefaultArchiveURL    = "https://archive-api.open-meteo.com/v1/archive"

	hourlyTimeLayout = "2006-01-02T15:04"
)

// Hourly series names requested from Open-Meteo.
const (
	fieldPM25          = "pm2_5"
	fieldTemperature   = "temperature_2m"
	fieldHumidity      = "relative_humidity_2m"
	fieldWindSpeed     = "wind_speed_10m"
	fieldWindDirection = "wind_direction_10m"
)

var weatherFields = []string{fieldTemperature, fieldHumidity, fieldWindSpeed, fieldWindDirection}

// ErrMalformedPayload is matched by every PayloadError.
var ErrMalformedPayload = errors.New("malformed hourly payload")

// PayloadError reports an upstream response that does not have the expected
// hourly shape.
type PayloadError struct {
	Source string
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Source, ErrMalformedPayload, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PayloadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedPayload}
	}
	return []error{ErrMalformedPayload, e.Err}
}

// OpenMeteo fetches hourly air quality and historical weather from the
// Open-Meteo air-quality and archive APIs.
type OpenMeteo struct {
	client        *http.Client
	airQualityURL string
	archiveURL    string
	aqCircuit     *gobreaker.CircuitBreaker
	archCircuit   *gobreaker.CircuitBreaker
}

// NewOpenMeteo creates a client. Empty URLs fall back to the public endpoints.
func NewOpenMeteo(client *http.Client, airQualityURL, archiveURL string) *OpenMeteo {
	if airQualityURL == "" {
		airQualityURL = DefaultAirQualityURL
	}
	if archiveURL == "" {
		archiveURL = DefaultArchiveURL
	}
	return &OpenMeteo{
		client:        client,
		airQualityURL: airQualityURL,
		archiveURL:    archiveURL,
		aqCircuit:     newCircuit("openmeteo-air-quality"),
		archCircuit:   newCircuit("openmeteo-archive"),
	}
}

// FetchAirQuality returns hourly PM2.5 for the window.
func (p *OpenMeteo) FetchAirQuality(ctx context.Context, loc weather.Location, w weather.Window) ([]weather.AirQualityHour, error) {
	s, err := p.fetchHourly(ctx, "air-quality", p.airQualityURL, p.aqCircuit, loc, w, []string{fieldPM25})
	if err != nil {
		return nil, err
	}

	out := make([]weather.AirQualityHour, len(s.times))
	pm := s.values[fieldPM25]
	for i, t := range s.times {
		out[i] = weather.AirQualityHour{Time: t, PM25: pm[i]}
	}
	return out, nil
}

// FetchWeather returns hourly temperature, humidity and wind for the window.
func (p *OpenMeteo) FetchWeather(ctx context.Context, loc weather.Location, w weather.Window) ([]weather.WeatherHour, error) {
	s, err := p.fetchHourly(ctx, "weather-archive", p.archiveURL, p.archCircuit, loc, w, weatherFields)
	if err != nil {
		return nil, err
	}

	out := make([]weather.WeatherHour, len(s.times))
	for i, t := range s.times {
		out[i] = weather.WeatherHour{
			Time:          t,
			Temperature:   s.values[fieldTemperature][i],
			Humidity:      s.values[fieldHumidity][i],
			WindSpeed:     s.values[fieldWindSpeed][i],
			WindDirection: s.values[fieldWindDirection][i],
		}
	}
	return out, nil
}

// hourlySeries is a validated hourly payload: every series has one value per time.
type hourlySeries struct {
	times  []time.Time
	values map[string][]*float64
}

type hourlyEnvelope struct {
	UTCOffsetSeconds int                        `json:"utc_offset_seconds"`
	Timezone         string                     `json:"timezone"`
	Error            bool                       `json:"error"`
	Reason           string                     `json:"reason"`
	Hourly           map[string]json.RawMessage `json:"hourly"`
}

func (p *OpenMeteo) fetchHourly(
	ctx context.Context,
	source, baseURL string,
	cb *gobreaker.CircuitBreaker,
	loc weather.Location,
	w weather.Window,
	fields []string,
) (hourlySeries, error) {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	values.Set("start_date", w.Start.String())
	values.Set("end_date", w.End.String())
	values.Set("hourly", strings.Join(fields, ","))
	values.Set("timezone", "auto")

	req, err := http.NewRequest(http.MethodGet, baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return hourlySeries{}, err
	}

	resp, err := doRequest(ctx, p.client, cb, req)
	if err != nil {
		return hourlySeries{}, fmt.Errorf("%s: %w", source, err)
	}
	defer resp.Body.Close()

	var env hourlyEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return hourlySeries{}, &PayloadError{Source: source, Reason: "undecodable response body", Err: err}
	}
	return decodeHourly(source, env, fields)
}

// decodeHourly enforces the payload contract shared by both endpoints.
func decodeHourly(source string, env hourlyEnvelope, fields []string) (hourlySeries, error) {
	if env.Error {
		return hourlySeries{}, &PayloadError{Source: source, Reason: "upstream error: " + env.Reason}
	}
	if env.Hourly == nil {
		return hourlySeries{}, &PayloadError{Source: source, Reason: `missing "hourly" object`}
	}

	rawTimes, ok := env.Hourly["time"]
	if !ok {
		return hourlySeries{}, &PayloadError{Source: source, Reason: `missing "hourly.time" array`}
	}
	var stamps []string
	if err := json.Unmarshal(rawTimes, &stamps); err != nil {
		return hourlySeries{}, &PayloadError{Source: source, Reason: `"hourly.time" is not a string array`, Err: err}
	}

	zone := time.FixedZone(env.Timezone, env.UTCOffsetSeconds)
	times := make([]time.Time, len(stamps))
	for i, s := range stamps {
		t, err := time.ParseInLocation(hourlyTimeLayout, s, zone)
		if err != nil {
			return hourlySeries{}, &PayloadError{Source: source, Reason: fmt.Sprintf("bad timestamp %q", s), Err: err}
		}
		times[i] = t
	}

	series := hourlySeries{times: times, values: make(map[string][]*float64, len(fields))}
	for _, f := range fields {
		raw, ok := env.Hourly[f]
		if !ok {
			return hourlySeries{}, &PayloadError{Source: source, Reason: fmt.Sprintf("missing %q series", "hourly."+f)}
		}
		var vals []*float64
		if err := json.Unmarshal(raw, &vals); err != nil {
			return hourlySeries{}, &PayloadError{Source: source, Reason: fmt.Sprintf("%q is not a numeric array", "hourly."+f), Err: err}
		}
		if len(vals) != len(times) {
			return hourlySeries{}, &PayloadError{
				Source: source,
				Reason: fmt.Sprintf("%q has %d values for %d timestamps", "hourly."+f, len(vals), len(times)),
			}
		}
		series.values[f] = vals
	}
	return series, nil
}
