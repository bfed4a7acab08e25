package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/air-quality-etl/internal/config"
	"github.com/i474232898/air-quality-etl/internal/weather"
)

func openMeteoStub(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.ProjectID = "test-project"
	cfg.Warehouse = config.WarehouseMemory
	cfg.AirQualityURL = openMeteoStub(t, `{
		"utc_offset_seconds": 19800, "timezone": "Asia/Kolkata",
		"hourly": {"time": ["2024-01-01T00:00", "2024-01-01T01:00"], "pm2_5": [100, 50]}
	}`)
	cfg.ArchiveURL = openMeteoStub(t, `{
		"utc_offset_seconds": 19800, "timezone": "Asia/Kolkata",
		"hourly": {
			"time": ["2024-01-01T01:00", "2024-01-01T02:00"],
			"temperature_2m": [10, 11],
			"relative_humidity_2m": [80, 81],
			"wind_speed_10m": [2, 3],
			"wind_direction_10m": [90, 91]
		}
	}`)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewMemoryPipelineEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.ArchiveDir = t.TempDir()

	a, err := New(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.Equal(t, "memory", a.Warehouse.Name())
	require.NotNil(t, a.Reader)

	res, err := a.Service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, weather.StatusSuccess, res.Status)
	assert.Equal(t, 1, res.HoursJoined)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, weather.DefaultStartDate, res.Window.Start)

	rows, err := a.Reader.GetRange(context.Background(), res.Window.Start, res.Window.End)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01-01", rows[0].Date.String())
	assert.Equal(t, 50.0, *rows[0].PM25)
	assert.Equal(t, 10.0, *rows[0].Temperature)

	matches, err := filepath.Glob(filepath.Join(cfg.ArchiveDir, "weather_data", "delhi_daily", "dt=*", "daily_"+res.ID+".parquet"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestNewWithoutArchive(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}

func TestNewRejectsBadSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.DefaultStartDate = "yesterday"

	_, err := New(context.Background(), cfg, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestNewUnknownSQLDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Warehouse = config.WarehouseSQL
	cfg.SQLDriver = "oracle"
	cfg.SQLDSN = "x"

	_, err := New(context.Background(), cfg, zap.NewNop().Sugar())
	assert.Error(t, err)
}
