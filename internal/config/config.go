package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	// LOCATION_TZ must resolve on minimal images without zoneinfo.
	_ "time/tzdata"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/air-quality-etl/internal/weather"
	"github.com/i474232898/air-quality-etl/internal/weather/providers"
)

// ErrMissingProjectID is returned when GCP_PROJECT_ID is not set anywhere.
var ErrMissingProjectID = errors.New("GCP_PROJECT_ID environment variable is missing")

var validate = validator.New()

// Warehouse kinds.
const (
	WarehouseBigQuery = "bigquery"
	WarehouseSQL      = "sql"
	WarehouseMemory   = "memory"
)

type AppConfig struct {
	ProjectID string `yaml:"projectId"`
	Dataset   string `yaml:"dataset" validate:"required"`
	Table     string `yaml:"table" validate:"required"`

	Location weather.Location `yaml:"location"`

	// DefaultStartDate is used when the destination table is empty or unreadable.
	DefaultStartDate string `yaml:"defaultStartDate" validate:"required,datetime=2006-01-02"`

	AirQualityURL string        `yaml:"airQualityUrl" validate:"required,url"`
	ArchiveURL    string        `yaml:"weatherArchiveUrl" validate:"required,url"`
	HTTPTimeout   time.Duration `yaml:"httpTimeout" validate:"gt=0"`

	// Warehouse selects the sink: bigquery, sql or memory.
	Warehouse      string `yaml:"warehouse" validate:"oneof=bigquery sql memory"`
	SQLDriver      string `yaml:"sqlDriver" validate:"omitempty,oneof=postgres mysql sqlite"`
	SQLDSN         string `yaml:"sqlDsn"`
	SQLCreateTable bool   `yaml:"sqlCreateTable"`

	// Parquet archive of appended rows; both empty disables it.
	ArchiveBucket string `yaml:"archiveBucket"`
	ArchiveDir    string `yaml:"archiveDir"`
	ArchivePrefix string `yaml:"archivePrefix"`

	// ScheduleAt is the daily UTC run time in daemon mode (HH:MM).
	ScheduleAt string `yaml:"scheduleAt" validate:"required,datetime=15:04"`
	Port       string `yaml:"port" validate:"required,numeric"`
	LogLevel   string `yaml:"logLevel"`

	PushgatewayURL string `yaml:"pushgatewayUrl" validate:"omitempty,url"`
}

// Defaults returns the configuration of the Delhi daily job.
func Defaults() *AppConfig {
	return &AppConfig{
		Dataset: "weather_data",
		Table:   "delhi_daily",
		Location: weather.Location{
			Name:      "Delhi",
			Latitude:  28.6139,
			Longitude: 77.2090,
			TimeZone:  "UTC",
		},
		DefaultStartDate: weather.DefaultStartDate.String(),
		AirQualityURL:    providers.DefaultAirQualityURL,
		ArchiveURL:       providers.DefaultArchiveURL,
		HTTPTimeout:      30 * time.Second,
		Warehouse:        WarehouseBigQuery,
		ArchivePrefix:    "weather_data/delhi_daily",
		ScheduleAt:       "02:00",
		Port:             "8080",
		LogLevel:         "INFO",
	}
}

// Load reads configuration: defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables. A .env file is loaded
// first when present.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("INFO: could not load .env file: %v", err)
	}

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) mergeYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	c.ProjectID = getenvDefault("GCP_PROJECT_ID", c.ProjectID)
	c.Dataset = getenvDefault("BQ_DATASET", c.Dataset)
	c.Table = getenvDefault("BQ_TABLE", c.Table)

	c.Location.Name = getenvDefault("LOCATION_NAME", c.Location.Name)
	c.Location.TimeZone = getenvDefault("LOCATION_TZ", c.Location.TimeZone)
	var err error
	if c.Location.Latitude, err = getenvFloat("LOCATION_LAT", c.Location.Latitude); err != nil {
		return err
	}
	if c.Location.Longitude, err = getenvFloat("LOCATION_LON", c.Location.Longitude); err != nil {
		return err
	}

	c.DefaultStartDate = getenvDefault("DEFAULT_START_DATE", c.DefaultStartDate)
	c.AirQualityURL = getenvDefault("AIR_QUALITY_URL", c.AirQualityURL)
	c.ArchiveURL = getenvDefault("WEATHER_ARCHIVE_URL", c.ArchiveURL)

	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = d
	}

	c.Warehouse = strings.ToLower(getenvDefault("WAREHOUSE", c.Warehouse))
	c.SQLDriver = getenvDefault("SQL_DRIVER", c.SQLDriver)
	c.SQLDSN = getenvDefault("SQL_DSN", c.SQLDSN)
	if v := os.Getenv("SQL_CREATE_TABLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SQL_CREATE_TABLE: %w", err)
		}
		c.SQLCreateTable = b
	}

	c.ArchiveBucket = getenvDefault("ARCHIVE_BUCKET", c.ArchiveBucket)
	c.ArchiveDir = getenvDefault("ARCHIVE_DIR", c.ArchiveDir)
	c.ArchivePrefix = getenvDefault("ARCHIVE_PREFIX", c.ArchivePrefix)

	c.ScheduleAt = getenvDefault("SCHEDULE_AT", c.ScheduleAt)
	c.Port = getenvDefault("PORT", c.Port)
	c.LogLevel = getenvDefault("LOG_LEVEL", c.LogLevel)
	c.PushgatewayURL = getenvDefault("PUSHGATEWAY_URL", c.PushgatewayURL)
	return nil
}

// Validate checks the configuration. A missing project id is reported as
// ErrMissingProjectID so callers can tell it apart.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return ErrMissingProjectID
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Warehouse == WarehouseSQL && (c.SQLDriver == "" || c.SQLDSN == "") {
		return errors.New("invalid configuration: WAREHOUSE=sql needs SQL_DRIVER and SQL_DSN")
	}
	if _, err := time.LoadLocation(c.Location.TimeZone); err != nil {
		return fmt.Errorf("invalid LOCATION_TZ %q: %w", c.Location.TimeZone, err)
	}
	return nil
}

// Settings converts the configuration into pipeline settings.
func (c *AppConfig) Settings() (weather.Settings, error) {
	start, err := civil.ParseDate(c.DefaultStartDate)
	if err != nil {
		return weather.Settings{}, fmt.Errorf("invalid DEFAULT_START_DATE: %w", err)
	}
	zone, err := time.LoadLocation(c.Location.TimeZone)
	if err != nil {
		return weather.Settings{}, fmt.Errorf("invalid LOCATION_TZ: %w", err)
	}
	return weather.Settings{Location: c.Location, DefaultStart: start, Zone: zone}, nil
}

// FullTableID returns project.dataset.table.
func (c *AppConfig) FullTableID() string {
	return c.ProjectID + "." + c.Dataset + "." + c.Table
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
