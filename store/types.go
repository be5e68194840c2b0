package store

// Station is an air quality measuring station. Components lists the
// measured components whose hourly series get a container, e.g. "PM10_1h".
type Station struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Components []string `json:"components"`
}

// SensorInfo carries the SensorThings attributes of a traffic sensor.
// The navigation links keep the upstream entity reachable without
// re-walking the Things collection.
type SensorInfo struct {
	SelfLink            string  `json:"@iot.selfLink"`
	IotID               int64   `json:"@iot.id"`
	Description         string  `json:"description"`
	HistoricalLocations string  `json:"HistoricalLocations@iot.navigationLink"`
	Locations           string  `json:"Locations@iot.navigationLink"`
	Datastreams         string  `json:"Datastreams@iot.navigationLink"`
	Latitude            float64 `json:"location_latitude"`
	Longitude           float64 `json:"location_longitude"`
	ObservationURL      string  `json:"observation_url"`
}

// Sensor is a traffic sensor with its attribute blob.
type Sensor struct {
	Name string     `json:"name"`
	Info SensorInfo `json:"info"`
}

// SeriesPoint is one row of an hourly series. TS is a unix timestamp
// in seconds, fractional seconds allowed.
type SeriesPoint struct {
	TS    float64 `json:"ts"`
	Value float64 `json:"value"`
}

// WeatherRow is one scraped weather observation. TS is the unix
// timestamp of the period the observation was crawled for, matching
// the numeric timestamps of the hourly series.
type WeatherRow struct {
	TS            float64 `json:"ts"`
	Temperature   float64 `json:"temperature"`
	Precipitation float64 `json:"precipitation"`
	WindSpeed     float64 `json:"wind_speed"`
}

// CarRegistrationRow holds the yearly stock of registered cars by fuel type.
type CarRegistrationRow struct {
	Year     int `json:"year"`
	Gasoline int `json:"gasoline"`
	Diesel   int `json:"diesel"`
	LPGCNG   int `json:"lpg_cng"`
	Hybrid   int `json:"hybrid"`
	BEV      int `json:"bev"`
	Other    int `json:"other"`
}

// NewCarRegistrationRow holds one month of new registrations by fuel type.
type NewCarRegistrationRow struct {
	Year     int `json:"year"`
	Month    int `json:"month"`
	Gasoline int `json:"gasoline"`
	Diesel   int `json:"diesel"`
	LPGCNG   int `json:"lpg_cng"`
	BEV      int `json:"bev"`
	Hybrid   int `json:"hybrid"`
	Other    int `json:"other"`
}

// Dataset is one registered container.
type Dataset struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Subject   string `json:"subject"`
	CreatedAt int64  `json:"created_at"`
}

// RunRecord is one recorded run outcome.
type RunRecord struct {
	ID         string `json:"id"`
	Subject    string `json:"subject"`
	Period     string `json:"period"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
}

// AirQualityPath returns the container path for a station component series.
func AirQualityPath(stationCode, component string) string {
	return "air_quality/" + stationCode + "/" + component
}

// TrafficPath returns the container path for a sensor series.
func TrafficPath(sensorName string) string {
	return "traffic/" + sensorName
}
