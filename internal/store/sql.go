package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/i474232898/air-quality-etl/internal/weather"
)

const sqlBatchSize = 500

// sqlRow maps one daily record onto the destination table.
type sqlRow struct {
	Timestamp     time.Time `gorm:"column:timestamp;not null"`
	PM25          *float64  `gorm:"column:PM2_5"`
	Temperature   *float64  `gorm:"column:Temperature"`
	Humidity      *float64  `gorm:"column:Humidity"`
	WindSpeed     *float64  `gorm:"column:Wind_Speed"`
	WindDirection *float64  `gorm:"column:Wind_Direction"`
}

func toSQLRow(r weather.DailyRecord) sqlRow {
	return sqlRow{
		Timestamp:     r.Date.In(time.UTC),
		PM25:          r.PM25,
		Temperature:   r.Temperature,
		Humidity:      r.Humidity,
		WindSpeed:     r.WindSpeed,
		WindDirection: r.WindDirection,
	}
}

func (r sqlRow) record() weather.DailyRecord {
	return weather.DailyRecord{
		Date:          civil.DateOf(r.Timestamp.UTC()),
		PM25:          r.PM25,
		Temperature:   r.Temperature,
		Humidity:      r.Humidity,
		WindSpeed:     r.WindSpeed,
		WindDirection: r.WindDirection,
	}
}

// SQL is the warehouse backed by a relational table through gorm.
type SQL struct {
	db              *gorm.DB
	table           string
	createIfMissing bool
}

// OpenSQL connects with one of the supported drivers: postgres, mysql, sqlite.
func OpenSQL(driver, dsn, table string, createIfMissing bool) (*SQL, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return NewSQL(db, table, createIfMissing), nil
}

// NewSQL wraps an existing gorm handle.
func NewSQL(db *gorm.DB, table string, createIfMissing bool) *SQL {
	return &SQL{db: db, table: table, createIfMissing: createIfMissing}
}

func (s *SQL) Name() string { return "sql:" + s.db.Dialector.Name() }

// LastStoredDate returns the date of the newest stored row.
func (s *SQL) LastStoredDate(ctx context.Context) (civil.Date, bool, error) {
	var last any
	err := s.db.WithContext(ctx).
		Table(s.table).
		Select("MAX(?)", clause.Column{Name: ColTimestamp}).
		Row().
		Scan(&last)
	if err != nil {
		if IsTableMissing(err) {
			return civil.Date{}, false, fmt.Errorf("table %s does not exist yet: %w", s.table, err)
		}
		return civil.Date{}, false, fmt.Errorf("query watermark: %w", err)
	}
	return storedDate(last)
}

// storedDate converts the driver's MAX(timestamp) value to the UTC calendar
// day rows were written under. Drivers hand back time.Time (pgx, mysql with
// parseTime), text or bytes (sqlite, plain mysql).
func storedDate(v any) (civil.Date, bool, error) {
	switch t := v.(type) {
	case nil:
		return civil.Date{}, false, nil
	case time.Time:
		return civil.DateOf(t.UTC()), true, nil
	case []byte:
		return parseStoredDate(string(t))
	case string:
		return parseStoredDate(t)
	default:
		return civil.Date{}, false, fmt.Errorf("unexpected stored timestamp type %T", v)
	}
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
}

// parseStoredDate reads the calendar day from a driver's textual timestamp.
// Values with an offset are moved to UTC first; naive values
// ("2024-01-05 00:00:00") already are the stored day.
func parseStoredDate(s string) (civil.Date, bool, error) {
	if s == "" {
		return civil.Date{}, false, nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t.UTC()), true, nil
		}
	}
	if len(s) < len("2006-01-02") {
		return civil.Date{}, false, fmt.Errorf("unparseable stored timestamp %q", s)
	}
	d, err := civil.ParseDate(s[:len("2006-01-02")])
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("unparseable stored timestamp %q: %w", s, err)
	}
	return d, true, nil
}

// Append inserts rows in one transaction. Existing rows are never touched.
func (s *SQL) Append(ctx context.Context, rows []weather.DailyRecord) error {
	if len(rows) == 0 {
		return nil
	}
	db := s.db.WithContext(ctx)

	if s.createIfMissing && !db.Migrator().HasTable(s.table) {
		if err := db.Table(s.table).Migrator().CreateTable(&sqlRow{}); err != nil {
			return fmt.Errorf("create table %s: %w", s.table, err)
		}
	}

	batch := make([]sqlRow, len(rows))
	for i, r := range rows {
		batch[i] = toSQLRow(r)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(s.table).CreateInBatches(&batch, sqlBatchSize).Error; err != nil {
			return fmt.Errorf("insert into %s: %w", s.table, err)
		}
		return nil
	})
}

// GetRange returns stored rows between from and to (inclusive), sorted by date.
func (s *SQL) GetRange(ctx context.Context, from, to civil.Date) ([]weather.DailyRecord, error) {
	col := clause.Column{Name: ColTimestamp}
	var rows []sqlRow
	err := s.db.WithContext(ctx).
		Table(s.table).
		Where(clause.Gte{Column: col, Value: from.In(time.UTC)}).
		Where(clause.Lt{Column: col, Value: to.AddDays(1).In(time.UTC)}).
		Order(clause.OrderByColumn{Column: col}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	out := make([]weather.DailyRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// Close closes the underlying connection pool.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
