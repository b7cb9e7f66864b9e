// Package aggregate derives per-source records, production totals and
// category sums from a normalized API snapshot. Everything here is pure
// arithmetic over the input snapshot, so for a fixed input the output is
// reproducible bit for bit.
package aggregate

import (
	"math"
	"time"

	"github.com/Philra94/homeassistant-energy-charts/internal/energycharts"
)

// SourceRecord is the per-source derived view of one series. Value is nil
// when the series held no measurement at all.
type SourceRecord struct {
	Key       string     `json:"key"`
	Value     *float64   `json:"value"`
	Unit      string     `json:"unit"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	NameEN    string     `json:"name_en"`
	NameDE    string     `json:"name_de"`
	Color     string     `json:"color"`
	Category  string     `json:"category"`
}

// Totals holds production sums across all sources. Values are rounded to
// two decimal places; accumulation happens at full precision.
type Totals struct {
	TotalProduction float64 `json:"total_production"`
	TotalRenewable  float64 `json:"total_renewable"`
	TotalFossil     float64 `json:"total_fossil"`
	TotalNuclear    float64 `json:"total_nuclear"`
	RenewableShare  float64 `json:"renewable_share"`
}

// Categories holds the four independent group sums. Each is computed
// directly from the source records, not from Totals.
type Categories struct {
	SolarTotal  float64 `json:"solar_total"`
	WindTotal   float64 `json:"wind_total"`
	HydroTotal  float64 `json:"hydro_total"`
	FossilTotal float64 `json:"fossil_total"`
}

// Result is the full output of one aggregation pass.
type Result struct {
	Sources    map[string]SourceRecord `json:"sources"`
	Totals     Totals                  `json:"totals"`
	Categories Categories              `json:"categories"`
}

// Aggregate builds source records from the snapshot and computes totals and
// category sums. Forecast and planned series are excluded throughout; they
// never contribute to current-value aggregation.
func Aggregate(snap energycharts.ApiSnapshot) Result {
	sources := buildSources(snap)
	return Result{
		Sources:    sources,
		Totals:     computeTotals(sources),
		Categories: computeCategories(sources),
	}
}

func buildSources(snap energycharts.ApiSnapshot) map[string]SourceRecord {
	sources := make(map[string]SourceRecord, len(snap.Series))
	for _, series := range snap.Series {
		if series.IsForecast() {
			continue
		}
		key := series.Key()

		record := SourceRecord{
			Key:      key,
			Unit:     UnitMegawatt,
			NameEN:   series.NameEN(),
			NameDE:   series.NameDE(),
			Color:    series.Color,
			Category: CategoryOther,
		}
		if category, ok := SourceCategories[key]; ok {
			record.Category = category
		}
		if value, ok := series.LatestValue(); ok {
			record.Value = &value
		}
		if ts, ok := series.LatestTimestamp(); ok {
			record.Timestamp = &ts
		}

		sources[key] = record
	}
	return sources
}

func computeTotals(sources map[string]SourceRecord) Totals {
	var production, renewable, fossil, nuclear float64

	for _, record := range sources {
		if record.Value == nil {
			continue
		}
		value := *record.Value

		// Production counts only sources currently generating.
		if value > 0 {
			production += value
		}

		switch record.Category {
		case CategoryRenewable:
			renewable += value
		case CategoryFossil:
			fossil += value
		case CategoryNuclear:
			nuclear += value
		}
	}

	share := 0.0
	if production > 0 {
		share = renewable / production * 100
	}

	return Totals{
		TotalProduction: round2(production),
		TotalRenewable:  round2(renewable),
		TotalFossil:     round2(fossil),
		TotalNuclear:    round2(nuclear),
		RenewableShare:  round2(share),
	}
}

func computeCategories(sources map[string]SourceRecord) Categories {
	return Categories{
		SolarTotal:  round2(sumMembers(sources, solarSources)),
		WindTotal:   round2(sumMembers(sources, windSources)),
		HydroTotal:  round2(sumMembers(sources, hydroSources)),
		FossilTotal: round2(sumMembers(sources, FossilSources)),
	}
}

// sumMembers adds up whichever member keys are present and carry a value.
// Absent members contribute zero.
func sumMembers(sources map[string]SourceRecord, members []string) float64 {
	var sum float64
	for _, key := range members {
		if record, ok := sources[key]; ok && record.Value != nil {
			sum += *record.Value
		}
	}
	return sum
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
