package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/i474232898/air-quality-etl/internal/weather"
)

// Column names of the destination table.
const (
	ColTimestamp     = "timestamp"
	ColPM25          = "PM2_5"
	ColTemperature   = "Temperature"
	ColHumidity      = "Humidity"
	ColWindSpeed     = "Wind_Speed"
	ColWindDirection = "Wind_Direction"
)

// DailySchema is the BigQuery schema of the destination table. Every
// measurement is nullable because upstream series can contain nulls.
var DailySchema = bigquery.Schema{
	{Name: ColTimestamp, Type: bigquery.DateTimeFieldType},
	{Name: ColPM25, Type: bigquery.FloatFieldType},
	{Name: ColTemperature, Type: bigquery.FloatFieldType},
	{Name: ColHumidity, Type: bigquery.FloatFieldType},
	{Name: ColWindSpeed, Type: bigquery.FloatFieldType},
	{Name: ColWindDirection, Type: bigquery.FloatFieldType},
}

// bqRow is the newline-delimited JSON shape loaded into BigQuery.
type bqRow struct {
	Timestamp     civil.DateTime `json:"timestamp"`
	PM25          *float64       `json:"PM2_5"`
	Temperature   *float64       `json:"Temperature"`
	Humidity      *float64       `json:"Humidity"`
	WindSpeed     *float64       `json:"Wind_Speed"`
	WindDirection *float64       `json:"Wind_Direction"`
}

// BigQuery is the warehouse backed by a BigQuery table.
type BigQuery struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
}

// NewBigQuery opens a client for projectID.
func NewBigQuery(ctx context.Context, projectID, datasetID, tableID string, opts ...option.ClientOption) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &BigQuery{client: client, projectID: projectID, datasetID: datasetID, tableID: tableID}, nil
}

func (b *BigQuery) Name() string { return "bigquery" }

// FullTableID returns project.dataset.table.
func (b *BigQuery) FullTableID() string {
	return fmt.Sprintf("%s.%s.%s", b.projectID, b.datasetID, b.tableID)
}

func lastDateQuery(fullTableID string) string {
	return fmt.Sprintf("SELECT DATE(MAX(`%s`)) AS last_date FROM `%s`", ColTimestamp, fullTableID)
}

// LastStoredDate returns the date of the newest stored row.
func (b *BigQuery) LastStoredDate(ctx context.Context) (civil.Date, bool, error) {
	q := b.client.Query(lastDateQuery(b.FullTableID()))
	it, err := q.Read(ctx)
	if err != nil {
		if IsTableMissing(err) {
			return civil.Date{}, false, fmt.Errorf("table %s does not exist yet: %w", b.FullTableID(), err)
		}
		return civil.Date{}, false, fmt.Errorf("query watermark: %w", err)
	}

	var row struct {
		LastDate bigquery.NullDate `bigquery:"last_date"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return civil.Date{}, false, nil
	}
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("read watermark: %w", err)
	}
	if !row.LastDate.Valid {
		return civil.Date{}, false, nil
	}
	return row.LastDate.Date, true, nil
}

// Append loads rows with a single append load job, creating the table on
// first use.
func (b *BigQuery) Append(ctx context.Context, rows []weather.DailyRecord) error {
	if len(rows) == 0 {
		return nil
	}
	payload, err := encodeNDJSON(rows)
	if err != nil {
		return err
	}

	src := bigquery.NewReaderSource(bytes.NewReader(payload))
	src.SourceFormat = bigquery.JSON
	src.Schema = DailySchema

	loader := b.client.Dataset(b.datasetID).Table(b.tableID).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteAppend

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("start load job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for load job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job %s: %w", job.ID(), err)
	}
	return nil
}

// Close releases the client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

func encodeNDJSON(rows []weather.DailyRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(bqRow{
			Timestamp:     civil.DateTime{Date: r.Date},
			PM25:          r.PM25,
			Temperature:   r.Temperature,
			Humidity:      r.Humidity,
			WindSpeed:     r.WindSpeed,
			WindDirection: r.WindDirection,
		}); err != nil {
			return nil, fmt.Errorf("encode row %s: %w", r.Date, err)
		}
	}
	return buf.Bytes(), nil
}
