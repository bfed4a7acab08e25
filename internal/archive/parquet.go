// Package archive keeps a Parquet copy of every batch of daily rows the job
// appends, partitioned by fetch window.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/civil"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/i474232898/air-quality-etl/internal/weather"
)

const parquetContentType = "application/vnd.apache.parquet"

var epoch = civil.Date{Year: 1970, Month: time.January, Day: 1}

// parquetRow is the on-disk layout of one daily record.
type parquetRow struct {
	Date          int32    `parquet:"name=date, type=INT32, convertedtype=DATE"`
	PM25          *float64 `parquet:"name=pm2_5, type=DOUBLE, repetitiontype=OPTIONAL"`
	Temperature   *float64 `parquet:"name=temperature, type=DOUBLE, repetitiontype=OPTIONAL"`
	Humidity      *float64 `parquet:"name=humidity, type=DOUBLE, repetitiontype=OPTIONAL"`
	WindSpeed     *float64 `parquet:"name=wind_speed, type=DOUBLE, repetitiontype=OPTIONAL"`
	WindDirection *float64 `parquet:"name=wind_direction, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// Parquet encodes rows as one Parquet object per run and uploads it.
type Parquet struct {
	uploader Uploader
	prefix   string
}

// NewParquet creates an archiver writing under prefix.
func NewParquet(uploader Uploader, prefix string) *Parquet {
	return &Parquet{uploader: uploader, prefix: prefix}
}

// ObjectName returns the object path for a run:
// <prefix>/dt=<start>_<end>/daily_<runID>.parquet
func (p *Parquet) ObjectName(runID string, w weather.Window) string {
	return path.Join(p.prefix, fmt.Sprintf("dt=%s_%s", w.Start, w.End), "daily_"+runID+".parquet")
}

// Archive implements weather.Archiver.
func (p *Parquet) Archive(ctx context.Context, runID string, w weather.Window, rows []weather.DailyRecord) error {
	if len(rows) == 0 {
		return nil
	}
	data, err := Encode(rows)
	if err != nil {
		return err
	}
	name := p.ObjectName(runID, w)
	if err := p.uploader.Upload(ctx, name, bytes.NewReader(data), parquetContentType); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// Encode renders rows as a single-row-group, snappy-compressed Parquet file.
func Encode(rows []weather.DailyRecord) ([]byte, error) {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(parquetRow), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	if err := writeRows(pw, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rowWriter is the part of writer.ParquetWriter Encode uses.
type rowWriter interface {
	Write(src interface{}) error
	WriteStop() error
}

func writeRows(pw rowWriter, rows []weather.DailyRecord) (err error) {
	// Write and WriteStop can panic on schema/value mismatches inside the library.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parquet writer panicked: %v", rec)
		}
	}()

	for _, r := range rows {
		row := parquetRow{
			Date:          int32(r.Date.DaysSince(epoch)),
			PM25:          r.PM25,
			Temperature:   r.Temperature,
			Humidity:      r.Humidity,
			WindSpeed:     r.WindSpeed,
			WindDirection: r.WindDirection,
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("write parquet row %s: %w", r.Date, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish parquet file: %w", err)
	}
	return nil
}
