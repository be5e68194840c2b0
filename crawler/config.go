// Package crawler runs one pipeline pass over all subjects: it derives
// each subject's target period, checks the crawl log, fetches and
// validates the open ones and writes the results to the store.
package crawler

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the crawler configuration.
type Config struct {
	StorePath string `yaml:"store_path"`
	// LogDir holds the per-subject crawl logs.
	LogDir string `yaml:"log_dir"`
	// DataDir holds downloaded files and the construction snapshot.
	DataDir string `yaml:"data_dir"`

	Fetch   FetchConfig   `yaml:"fetch"`
	URLs    URLConfig     `yaml:"urls"`
	Traffic TrafficConfig `yaml:"traffic"`
	API     APIConfig     `yaml:"api"`
}

// APIConfig configures the read-only data API server. BasicUser and
// BasicPasswordHash (bcrypt) enable HTTP Basic Auth when both are set.
type APIConfig struct {
	Addr              string `yaml:"addr"`
	BasicUser         string `yaml:"basic_user"`
	BasicPasswordHash string `yaml:"basic_password_hash"`
}

// FetchConfig controls the outbound HTTP client.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

// URLConfig carries the per-subject upstream endpoints.
type URLConfig struct {
	// AirQualityStations lists the stations with metadata.
	AirQualityStations string `yaml:"air_quality_stations"`
	// AirQualityData takes the station code and the period twice.
	AirQualityData string `yaml:"air_quality_data"`
	// TrafficSensors takes the numeric sensor ID.
	TrafficSensors string `yaml:"traffic_sensors"`
	// TrafficData is the filter suffix appended to a sensor's
	// observation URL, followed by the time window.
	TrafficData string `yaml:"traffic_data"`

	WeatherData         string `yaml:"weather_data"`
	Constructions       string `yaml:"constructions"`
	CarRegistrations    string `yaml:"car_registrations"`
	NewCarRegistrations string `yaml:"new_car_registrations"`
}

// TrafficConfig lists the SensorThings entities to register when the
// store gets initialized.
type TrafficConfig struct {
	SensorIDs []int `yaml:"sensor_ids"`
}

func (c *Config) defaults() {
	if c.StorePath == "" {
		c.StorePath = "data/envdata.db"
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "envcrawl/1.0"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}
