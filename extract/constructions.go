package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stadtlab/envcrawl/dedup"
)

// geoFeature mirrors one feature of the construction GeoJSON feed.
// Property values occasionally arrive as numbers, so scalars decode
// through RawMessage.
type geoFeature struct {
	Properties struct {
		ID       json.RawMessage `json:"id"`
		Tstore   json.RawMessage `json:"tstore"`
		Subtype  string          `json:"subtype"`
		Severity string          `json:"severity"`
		Validity struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"validity"`
		Direction string `json:"direction"`
	} `json:"properties"`
	Geometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
		Geometries  json.RawMessage `json:"geometries"`
	} `json:"geometry"`
}

type geoDoc struct {
	Features []geoFeature `json:"features"`
}

// Constructions fetches the construction feed and flattens every feature
// into the fixed ten-column row shape.
func (c *Client) Constructions(ctx context.Context, url string) ([]dedup.Construction, int, error) {
	var doc geoDoc
	status, err := c.getJSON(ctx, url, &doc)
	if err != nil {
		return nil, status, err
	}

	result := make([]dedup.Construction, 0, len(doc.Features))
	for i, f := range doc.Features {
		row := dedup.Construction{
			ID:          rawString(f.Properties.ID),
			Tstore:      rawString(f.Properties.Tstore),
			Subtype:     f.Properties.Subtype,
			Severity:    f.Properties.Severity,
			ValidFrom:   f.Properties.Validity.From,
			ValidTo:     f.Properties.Validity.To,
			Direction:   f.Properties.Direction,
			GeoType:     f.Geometry.Type,
			Coordinates: f.Geometry.Coordinates,
			Geometries:  f.Geometry.Geometries,
		}
		if row.ID == "" {
			return nil, status, fmt.Errorf("feature %d: missing id", i)
		}
		result = append(result, row)
	}
	return result, status, nil
}

// rawString renders a raw JSON scalar as its string value; non-string
// scalars keep their literal text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
