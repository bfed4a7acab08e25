package airqualityetl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-quality-etl/internal/config"
)

func newEvent() event.Event {
	e := event.New()
	e.SetID("evt-1")
	e.SetType("google.cloud.pubsub.topic.v1.messagePublished")
	e.SetSource("//pubsub.googleapis.com/projects/p/topics/daily")
	return e
}

func TestMainMissingProjectID(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GCP_PROJECT_ID", "")

	err := Main(context.Background(), newEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingProjectID)
	assert.Contains(t, err.Error(), "Error")
}

func TestMainRunsPipeline(t *testing.T) {
	aq := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hourly": {"time": ["2024-01-01T00:00"], "pm2_5": [42]}}`))
	}))
	defer aq.Close()
	wx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hourly": {
			"time": ["2024-01-01T00:00"],
			"temperature_2m": [20], "relative_humidity_2m": [40],
			"wind_speed_10m": [1], "wind_direction_10m": [0]
		}}`))
	}))
	defer wx.Close()

	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GCP_PROJECT_ID", "p")
	t.Setenv("WAREHOUSE", "memory")
	t.Setenv("AIR_QUALITY_URL", aq.URL)
	t.Setenv("WEATHER_ARCHIVE_URL", wx.URL)
	t.Setenv("ARCHIVE_BUCKET", "")
	t.Setenv("ARCHIVE_DIR", "")
	t.Setenv("PUSHGATEWAY_URL", "")

	assert.NoError(t, Main(context.Background(), newEvent()))
}

func TestMainReportsUpstreamFailure(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GCP_PROJECT_ID", "p")
	t.Setenv("WAREHOUSE", "memory")
	t.Setenv("AIR_QUALITY_URL", down.URL)
	t.Setenv("WEATHER_ARCHIVE_URL", down.URL)
	t.Setenv("ARCHIVE_BUCKET", "")
	t.Setenv("ARCHIVE_DIR", "")
	t.Setenv("PUSHGATEWAY_URL", "")

	err := Main(context.Background(), newEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error")
}
