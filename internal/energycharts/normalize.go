package energycharts

import (
	"encoding/json"
	"fmt"
)

const defaultColor = "#000000"

// rawSeries mirrors one object of the wire format. Name and Data stay raw so
// that a missing field can be told apart from an empty one, and because the
// upstream API is not consistent about the shape of "name".
type rawSeries struct {
	Name        json.RawMessage `json:"name"`
	Color       string          `json:"color"`
	Data        json.RawMessage `json:"data"`
	XAxisValues []int64         `json:"xAxisValues"`
	Visible     *bool           `json:"visible"`
}

// ParseResponse normalizes a raw API payload into an ApiSnapshot.
//
// The payload is a JSON array of series objects. The first object carries
// the xAxisValues timestamp axis shared by every series. Objects without a
// "name" or "data" field are metadata the upstream mixes in and are skipped.
// A payload whose top level is not an array, or a "data" field that is not
// an array of nullable numbers, fails the parse.
func ParseResponse(body []byte) (ApiSnapshot, error) {
	var items []rawSeries
	if err := json.Unmarshal(body, &items); err != nil {
		return ApiSnapshot{}, fmt.Errorf("response is not a series array: %w", err)
	}
	if len(items) == 0 {
		return ApiSnapshot{}, nil
	}

	timestamps := items[0].XAxisValues

	series := make([]DataSeries, 0, len(items))
	for i, item := range items {
		if item.Name == nil || item.Data == nil {
			continue
		}

		var data []*float64
		if err := json.Unmarshal(item.Data, &data); err != nil {
			return ApiSnapshot{}, fmt.Errorf("series %d: data is not a value array: %w", i, err)
		}

		color := item.Color
		if color == "" {
			color = defaultColor
		}
		visible := true
		if item.Visible != nil {
			visible = *item.Visible
		}

		series = append(series, DataSeries{
			Name:       normalizeName(item.Name),
			Color:      color,
			Data:       data,
			Timestamps: timestamps,
			Visible:    visible,
		})
	}

	return ApiSnapshot{Series: series}, nil
}

// normalizeName resolves the inconsistent "name" field. The API returns it
// either as a language map or as a one-element array containing that map.
// Any other shape collapses to an empty map so downstream code falls back to
// the default display strings instead of failing.
func normalizeName(raw json.RawMessage) map[string]string {
	var name map[string]string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}

	var names []map[string]string
	if err := json.Unmarshal(raw, &names); err == nil && len(names) > 0 {
		return names[0]
	}

	return map[string]string{}
}
