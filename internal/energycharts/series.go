package energycharts

import (
	"strings"
	"time"
)

// DataSeries is one named generation time series from the Energy-Charts API.
// All series of a response share one timestamp axis; Data may contain nil
// entries meaning "no measurement at that tick", not zero. A DataSeries is
// immutable after construction and discarded on the next poll.
type DataSeries struct {
	Name       map[string]string
	Color      string
	Data       []*float64
	Timestamps []int64 // unix milliseconds, shared axis
	Visible    bool
}

// DataPoint is one (timestamp, value) pair of a series.
type DataPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// NameEN returns the English display name, falling back to "Unknown".
func (s DataSeries) NameEN() string {
	if name, ok := s.Name["en"]; ok {
		return name
	}
	return "Unknown"
}

// NameDE returns the German display name, falling back to "Unbekannt".
func (s DataSeries) NameDE() string {
	if name, ok := s.Name["de"]; ok {
		return name
	}
	return "Unbekannt"
}

var keyReplacer = strings.NewReplacer(
	" ", "_",
	"/", "_",
	"-", "_",
	"(", "",
	")", "",
	",", "",
)

// Key derives the stable source key from the English display name:
// lowercase, spaces/slashes/hyphens become underscores, parentheses and
// commas are stripped, runs of underscores collapse, leading/trailing
// underscores are trimmed. The same physical source yields the same key on
// every poll, which is what keeps per-source history continuous.
func (s DataSeries) Key() string {
	key := keyReplacer.Replace(strings.ToLower(s.NameEN()))
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	return strings.Trim(key, "_")
}

// IsForecast reports whether the series carries forecast or planned data
// rather than measurements.
func (s DataSeries) IsForecast() bool {
	key := s.Key()
	return strings.Contains(key, "_planned") || strings.Contains(key, "forecast")
}

// LatestValue returns the most recent non-absent value, scanning from the
// end. The second return is false when every entry is absent.
func (s DataSeries) LatestValue() (float64, bool) {
	for i := len(s.Data) - 1; i >= 0; i-- {
		if s.Data[i] != nil {
			return *s.Data[i], true
		}
	}
	return 0, false
}

// LatestTimestamp returns the timestamp of the most recent non-absent value.
func (s DataSeries) LatestTimestamp() (time.Time, bool) {
	for i := len(s.Data) - 1; i >= 0; i-- {
		if s.Data[i] != nil && i < len(s.Timestamps) {
			return time.UnixMilli(s.Timestamps[i]), true
		}
	}
	return time.Time{}, false
}

// DataPoints returns the series as (timestamp, value) pairs with absent
// values dropped.
func (s DataSeries) DataPoints() []DataPoint {
	points := make([]DataPoint, 0, len(s.Data))
	for i, v := range s.Data {
		if v == nil || i >= len(s.Timestamps) {
			continue
		}
		points = append(points, DataPoint{
			Time:  time.UnixMilli(s.Timestamps[i]),
			Value: *v,
		})
	}
	return points
}

// ApiSnapshot is the ordered collection of series parsed from one API
// response. It may be empty when the response was empty.
type ApiSnapshot struct {
	Series []DataSeries
}

// SeriesByKey returns the series with the given source key.
func (s ApiSnapshot) SeriesByKey(key string) (DataSeries, bool) {
	for _, ds := range s.Series {
		if ds.Key() == key {
			return ds, true
		}
	}
	return DataSeries{}, false
}

// Keys returns the source keys of all series in response order.
func (s ApiSnapshot) Keys() []string {
	keys := make([]string, len(s.Series))
	for i, ds := range s.Series {
		keys[i] = ds.Key()
	}
	return keys
}
