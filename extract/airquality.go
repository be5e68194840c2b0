package extract

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stadtlab/envcrawl/store"
)

// Reading is one hourly measurement returned by the air quality API.
// Component carries the interval suffix ("PM10_1h"); Core is the bare
// component name used for the completeness check.
type Reading struct {
	Station   string  `json:"station"`
	Component string  `json:"component"`
	Core      string  `json:"core"`
	Datetime  string  `json:"datetime"`
	Value     float64 `json:"value"`
}

// apiStation mirrors the station document of the upstream API.
// Coordinates arrive as strings.
type apiStation struct {
	Code             string   `json:"code"`
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Lat              string   `json:"lat"`
	Lng              string   `json:"lng"`
	ActiveComponents []string `json:"activeComponents"`
}

// Stations fetches the station list with metadata and active components.
func (c *Client) Stations(ctx context.Context, url string) ([]store.Station, int, error) {
	var docs []apiStation
	status, err := c.getJSON(ctx, url, &docs)
	if err != nil {
		return nil, status, err
	}

	result := make([]store.Station, 0, len(docs))
	for _, d := range docs {
		st := store.Station{
			Code:       d.Code,
			Name:       d.Name,
			Address:    d.Address,
			Components: d.ActiveComponents,
		}
		// Coordinate strings may be absent for decommissioned stations.
		st.Latitude, _ = strconv.ParseFloat(d.Lat, 64)
		st.Longitude, _ = strconv.ParseFloat(d.Lng, 64)
		result = append(result, st)
	}
	return result, status, nil
}

// StationReadings fetches one day of hourly readings for a station.
// urlTemplate takes the station code and the date twice (period start
// and end), e.g. ".../stations/%s/data?period=1h&start=%s&end=%s".
func (c *Client) StationReadings(ctx context.Context, urlTemplate, stationCode, date string) ([]Reading, int, error) {
	url := fmt.Sprintf(urlTemplate, stationCode, date, date)
	var readings []Reading
	status, err := c.getJSON(ctx, url, &readings)
	if err != nil {
		return nil, status, err
	}
	return readings, status, nil
}

// CheckCompleteness counts the measured components that delivered fewer
// than 24 hourly values. A day is only stored when every component is
// complete; the caller abandons the period otherwise.
func CheckCompleteness(readings []Reading) int {
	byCore := make(map[string]int)
	for _, r := range readings {
		byCore[r.Core]++
	}
	incomplete := 0
	for _, n := range byCore {
		if n < 24 {
			incomplete++
		}
	}
	return incomplete
}
