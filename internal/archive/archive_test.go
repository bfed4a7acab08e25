package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-quality-etl/internal/weather"
)

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func f(v float64) *float64 { return &v }

var testWindow = weather.Window{Start: day("2024-01-01"), End: day("2024-01-02")}

var testRows = []weather.DailyRecord{
	{Date: day("2024-01-01"), PM25: f(120.5), Temperature: f(12), Humidity: f(80), WindSpeed: f(2.5), WindDirection: f(270)},
	{Date: day("2024-01-02"), PM25: f(98.25)},
}

type memUploader struct {
	objects map[string][]byte
	err     error
}

func (m *memUploader) Upload(_ context.Context, name string, data io.Reader, _ string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[name] = b
	return nil
}

func TestEncodeWritesParquet(t *testing.T) {
	data, err := Encode(testRows)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.True(t, bytes.HasPrefix(data, []byte("PAR1")))
	assert.True(t, bytes.HasSuffix(data, []byte("PAR1")))
}

// panickingWriter fails inside Write the way the parquet library does on a
// schema mismatch.
type panickingWriter struct {
	onStop bool
	stops  int
}

func (w *panickingWriter) Write(interface{}) error {
	if !w.onStop {
		panic("reflect: call of reflect.Value.Type on zero Value")
	}
	return nil
}

func (w *panickingWriter) WriteStop() error {
	w.stops++
	if w.onStop {
		panic("index out of range")
	}
	return nil
}

func TestWriteRowsRecoversFromWritePanic(t *testing.T) {
	w := &panickingWriter{}
	var err error
	require.NotPanics(t, func() { err = writeRows(w, testRows) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Zero(t, w.stops)
}

func TestWriteRowsRecoversFromStopPanic(t *testing.T) {
	w := &panickingWriter{onStop: true}
	var err error
	require.NotPanics(t, func() { err = writeRows(w, testRows) })
	require.Error(t, err)
	assert.Equal(t, 1, w.stops)
}

func TestObjectName(t *testing.T) {
	p := NewParquet(&memUploader{}, "weather_data/delhi_daily")
	assert.Equal(t,
		"weather_data/delhi_daily/dt=2024-01-01_2024-01-02/daily_run-1.parquet",
		p.ObjectName("run-1", testWindow))
}

func TestArchiveUploadsOneObject(t *testing.T) {
	up := &memUploader{}
	p := NewParquet(up, "archive")

	require.NoError(t, p.Archive(context.Background(), "run-1", testWindow, testRows))
	require.Len(t, up.objects, 1)
	obj, ok := up.objects["archive/dt=2024-01-01_2024-01-02/daily_run-1.parquet"]
	require.True(t, ok)
	assert.True(t, bytes.HasPrefix(obj, []byte("PAR1")))
}

func TestArchiveNothing(t *testing.T) {
	up := &memUploader{}
	require.NoError(t, NewParquet(up, "archive").Archive(context.Background(), "run-1", testWindow, nil))
	assert.Empty(t, up.objects)
}

func TestArchiveUploadError(t *testing.T) {
	up := &memUploader{err: errors.New("permission denied")}
	err := NewParquet(up, "archive").Archive(context.Background(), "run-1", testWindow, testRows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestLocalUploader(t *testing.T) {
	dir := t.TempDir()
	u := NewLocalUploader(dir)

	require.NoError(t, u.Upload(context.Background(), "a/b/c.parquet", bytes.NewReader([]byte("PAR1")), parquetContentType))

	got, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.parquet"))
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(got))
}

func TestMultiUploader(t *testing.T) {
	ok1, ok2 := &memUploader{}, &memUploader{}
	m := MultiUploader{ok1, ok2}

	require.NoError(t, m.Upload(context.Background(), "x", bytes.NewReader([]byte("data")), ""))
	assert.Equal(t, []byte("data"), ok1.objects["x"])
	assert.Equal(t, []byte("data"), ok2.objects["x"])
}

func TestMultiUploaderCollectsErrors(t *testing.T) {
	good := &memUploader{}
	m := MultiUploader{
		&memUploader{err: errors.New("gcs down")},
		good,
		&memUploader{err: errors.New("disk full")},
	}

	err := m.Upload(context.Background(), "x", bytes.NewReader([]byte("data")), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gcs down")
	assert.Contains(t, err.Error(), "disk full")
	// The healthy target still received the object.
	assert.Equal(t, []byte("data"), good.objects["x"])
}
