package weather

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"
)

// DefaultStartDate is the first day fetched into an empty destination.
var DefaultStartDate = civil.Date{Year: 2020, Month: time.January, Day: 1}

// Yesterday returns the calendar day before now in loc.
// Today is never fetched because its hourly series is still incomplete.
func Yesterday(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc)).AddDays(-1)
}

// ResolveWindow computes the next window to fetch.
//
// The start is the day after the last stored date, or defaultStart when the
// destination is empty. A failed watermark query is logged and treated as an
// empty destination; it never aborts the run.
func ResolveWindow(ctx context.Context, wm Watermark, defaultStart civil.Date, end civil.Date, log *zap.SugaredLogger) Window {
	start := defaultStart

	last, ok, err := wm.LastStoredDate(ctx)
	switch {
	case err != nil:
		log.Warnw("watermark query failed; falling back to default start date",
			"error", err, "defaultStart", defaultStart.String())
	case ok:
		start = last.AddDays(1)
	default:
		log.Infow("destination holds no rows yet", "defaultStart", defaultStart.String())
	}

	return Window{Start: start, End: end}
}
