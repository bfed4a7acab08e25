package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-quality-etl/internal/weather"
)

// clearEnv isolates a test from variables set on the machine running it.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "GCP_PROJECT_ID", "BQ_DATASET", "BQ_TABLE",
		"LOCATION_NAME", "LOCATION_LAT", "LOCATION_LON", "LOCATION_TZ",
		"DEFAULT_START_DATE", "AIR_QUALITY_URL", "WEATHER_ARCHIVE_URL", "HTTP_TIMEOUT",
		"WAREHOUSE", "SQL_DRIVER", "SQL_DSN", "SQL_CREATE_TABLE",
		"ARCHIVE_BUCKET", "ARCHIVE_DIR", "ARCHIVE_PREFIX",
		"SCHEDULE_AT", "PORT", "LOG_LEVEL", "PUSHGATEWAY_URL",
	} {
		t.Setenv(k, "")
	}
	// Keep a stray .env in the working directory out of the way.
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GCP_PROJECT_ID", "my-project")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "my-project", cfg.ProjectID)
	assert.Equal(t, "weather_data", cfg.Dataset)
	assert.Equal(t, "delhi_daily", cfg.Table)
	assert.Equal(t, "my-project.weather_data.delhi_daily", cfg.FullTableID())
	assert.Equal(t, 28.6139, cfg.Location.Latitude)
	assert.Equal(t, 77.2090, cfg.Location.Longitude)
	assert.Equal(t, "2020-01-01", cfg.DefaultStartDate)
	assert.Equal(t, WarehouseBigQuery, cfg.Warehouse)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}

func TestLoadMissingProjectID(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingProjectID)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GCP_PROJECT_ID", "p")
	t.Setenv("BQ_TABLE", "mumbai_daily")
	t.Setenv("LOCATION_NAME", "Mumbai")
	t.Setenv("LOCATION_LAT", "19.076")
	t.Setenv("LOCATION_LON", "72.8777")
	t.Setenv("LOCATION_TZ", "Asia/Kolkata")
	t.Setenv("HTTP_TIMEOUT", "1m")
	t.Setenv("WAREHOUSE", "SQL")
	t.Setenv("SQL_DRIVER", "sqlite")
	t.Setenv("SQL_DSN", "file:aq.db")
	t.Setenv("SQL_CREATE_TABLE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mumbai_daily", cfg.Table)
	assert.Equal(t, weather.Location{Name: "Mumbai", Latitude: 19.076, Longitude: 72.8777, TimeZone: "Asia/Kolkata"}, cfg.Location)
	assert.Equal(t, time.Minute, cfg.HTTPTimeout)
	assert.Equal(t, WarehouseSQL, cfg.Warehouse)
	assert.True(t, cfg.SQLCreateTable)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"latitude not a number": {"LOCATION_LAT": "north"},
		"latitude out of range": {"LOCATION_LAT": "123"},
		"bad timeout":           {"HTTP_TIMEOUT": "soon"},
		"bad start date":        {"DEFAULT_START_DATE": "01/01/2020"},
		"bad warehouse":         {"WAREHOUSE": "snowflake"},
		"sql without dsn":       {"WAREHOUSE": "sql", "SQL_DRIVER": "postgres"},
		"bad schedule":          {"SCHEDULE_AT": "2am"},
		"bad zone":              {"LOCATION_TZ": "Mars/Olympus"},
		"bad url":               {"AIR_QUALITY_URL": "not a url"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("GCP_PROJECT_ID", "p")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
projectId: from-yaml
table: kolkata_daily
location:
  name: Kolkata
  latitude: 22.5726
  longitude: 88.3639
httpTimeout: 45s
archiveDir: /tmp/archive
logLevel: ERROR
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("BQ_TABLE", "from_env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-yaml", cfg.ProjectID)
	assert.Equal(t, "from_env", cfg.Table)
	assert.Equal(t, "Kolkata", cfg.Location.Name)
	assert.Equal(t, 22.5726, cfg.Location.Latitude)
	// Fields the file leaves out keep their defaults.
	assert.Equal(t, "UTC", cfg.Location.TimeZone)
	assert.Equal(t, "weather_data", cfg.Dataset)
	assert.Equal(t, 45*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "/tmp/archive", cfg.ArchiveDir)
	assert.Equal(t, "ERROR", cfg.LogLevel)
}

func TestLoadMissingYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("GCP_PROJECT_ID", "p")

	_, err := Load()
	assert.Error(t, err)
}

func TestSettings(t *testing.T) {
	cfg := Defaults()
	cfg.DefaultStartDate = "2023-06-01"
	cfg.Location.TimeZone = "Asia/Kolkata"

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01", s.DefaultStart.String())
	assert.Equal(t, "Asia/Kolkata", s.Zone.String())
	assert.Equal(t, "Delhi", s.Location.Name)
}
