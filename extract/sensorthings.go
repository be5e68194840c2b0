package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stadtlab/envcrawl/store"
)

// hourlyVehicleCountDesc selects the one datastream per sensor that
// carries the hourly vehicle count for the measuring cross-section.
const hourlyVehicleCountDesc = "Anzahl KFZ pro Stunde für TEU: MQ - Messquerschnitt"

type thingDoc struct {
	SelfLink            string `json:"@iot.selfLink"`
	IotID               int64  `json:"@iot.id"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	HistoricalLocations string `json:"HistoricalLocations@iot.navigationLink"`
	Locations           string `json:"Locations@iot.navigationLink"`
	Datastreams         string `json:"Datastreams@iot.navigationLink"`
}

type locationsDoc struct {
	Value []struct {
		Location struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"location"`
	} `json:"value"`
}

type datastreamsDoc struct {
	Value []struct {
		Description  string `json:"description"`
		Observations string `json:"Observations@iot.navigationLink"`
	} `json:"value"`
}

type observationsDoc struct {
	Value []struct {
		PhenomenonTime string  `json:"phenomenonTime"`
		Result         float64 `json:"result"`
	} `json:"value"`
}

// Sensors walks the SensorThings API for every configured sensor ID:
// the Thing itself, its location and its datastreams. urlTemplate takes
// the numeric sensor ID. The walk is an initialization precondition, so
// the first failing sensor aborts it.
func (c *Client) Sensors(ctx context.Context, urlTemplate string, ids []int) ([]store.Sensor, error) {
	result := make([]store.Sensor, 0, len(ids))
	for _, id := range ids {
		var thing thingDoc
		if _, err := c.getJSON(ctx, fmt.Sprintf(urlTemplate, id), &thing); err != nil {
			return nil, fmt.Errorf("sensor %d: %w", id, err)
		}

		var locations locationsDoc
		if _, err := c.getJSON(ctx, thing.Locations, &locations); err != nil {
			return nil, fmt.Errorf("sensor %d locations: %w", id, err)
		}
		if len(locations.Value) == 0 || len(locations.Value[0].Location.Coordinates) < 2 {
			return nil, fmt.Errorf("sensor %d: no location coordinates", id)
		}
		// GeoJSON order: longitude first, latitude second.
		coords := locations.Value[0].Location.Coordinates

		var datastreams datastreamsDoc
		if _, err := c.getJSON(ctx, thing.Datastreams, &datastreams); err != nil {
			return nil, fmt.Errorf("sensor %d datastreams: %w", id, err)
		}
		observationURL := ""
		for _, ds := range datastreams.Value {
			if ds.Description == hourlyVehicleCountDesc {
				observationURL = ds.Observations
				break
			}
		}
		if observationURL == "" {
			return nil, fmt.Errorf("sensor %d: no hourly vehicle count datastream", id)
		}

		result = append(result, store.Sensor{
			Name: thing.Name,
			Info: store.SensorInfo{
				SelfLink:            thing.SelfLink,
				IotID:               thing.IotID,
				Description:         thing.Description,
				HistoricalLocations: thing.HistoricalLocations,
				Locations:           thing.Locations,
				Datastreams:         thing.Datastreams,
				Latitude:            coords[1],
				Longitude:           coords[0],
				ObservationURL:      observationURL,
			},
		})
	}
	return result, nil
}

// Observations fetches the observations for one sensor and window and
// returns the newest one as a series point: the window end as a unix
// timestamp and the vehicle count. ok is false when the sensor reported
// no data for the window.
func (c *Client) Observations(ctx context.Context, url string) (store.SeriesPoint, bool, int, error) {
	var doc observationsDoc
	status, err := c.getJSON(ctx, url, &doc)
	if err != nil {
		return store.SeriesPoint{}, false, status, err
	}
	if len(doc.Value) == 0 {
		return store.SeriesPoint{}, false, status, nil
	}

	obs := doc.Value[0]
	// phenomenonTime is an interval; the window end stamps the point.
	stamp := obs.PhenomenonTime
	if i := strings.LastIndex(stamp, "/"); i >= 0 {
		stamp = stamp[i+1:]
	}
	stamp = strings.TrimSuffix(stamp, "Z")
	t, err := time.Parse("2006-01-02T15:04:05", stamp)
	if err != nil {
		return store.SeriesPoint{}, false, status, fmt.Errorf("parse phenomenonTime %q: %w", obs.PhenomenonTime, err)
	}
	return store.SeriesPoint{TS: float64(t.UTC().Unix()), Value: obs.Result}, true, status, nil
}
