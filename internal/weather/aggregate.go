package weather

import (
	"sort"

	"cloud.google.com/go/civil"
)

// Join combines the two hourly series on timestamp with inner-join
// semantics. Hours missing from either side are dropped. Duplicate
// timestamps within one series keep their first occurrence.
func Join(aq []AirQualityHour, wx []WeatherHour) []MergedHour {
	byTime := make(map[int64]WeatherHour, len(wx))
	for _, w := range wx {
		k := w.Time.Unix()
		if _, exists := byTime[k]; !exists {
			byTime[k] = w
		}
	}

	seen := make(map[int64]struct{}, len(aq))
	merged := make([]MergedHour, 0, len(aq))
	for _, a := range aq {
		k := a.Time.Unix()
		w, ok := byTime[k]
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		merged = append(merged, MergedHour{
			Time:          a.Time,
			PM25:          a.PM25,
			Temperature:   w.Temperature,
			Humidity:      w.Humidity,
			WindSpeed:     w.WindSpeed,
			WindDirection: w.WindDirection,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	return merged
}

// mean accumulates one column, skipping nulls.
type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}

type dayBucket struct {
	pm25, temp, humidity, windSpeed, windDir mean
}

// ResampleDaily buckets merged hours by calendar day, using each hour's own
// zone, and averages every column. Columns that are null for every hour of a
// day stay null. Days without hours produce no record. Output is sorted by
// date.
func ResampleDaily(merged []MergedHour) []DailyRecord {
	buckets := make(map[civil.Date]*dayBucket)
	for _, h := range merged {
		d := civil.DateOf(h.Time)
		b, ok := buckets[d]
		if !ok {
			b = &dayBucket{}
			buckets[d] = b
		}
		b.pm25.add(h.PM25)
		b.temp.add(h.Temperature)
		b.humidity.add(h.Humidity)
		b.windSpeed.add(h.WindSpeed)
		b.windDir.add(h.WindDirection)
	}

	days := make([]civil.Date, 0, len(buckets))
	for d := range buckets {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]DailyRecord, 0, len(days))
	for _, d := range days {
		b := buckets[d]
		out = append(out, DailyRecord{
			Date:          d,
			PM25:          b.pm25.value(),
			Temperature:   b.temp.value(),
			Humidity:      b.humidity.value(),
			WindSpeed:     b.windSpeed.value(),
			WindDirection: b.windDir.value(),
		})
	}
	return out
}
