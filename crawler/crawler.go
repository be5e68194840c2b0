package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/stadtlab/envcrawl/crawllog"
	"github.com/stadtlab/envcrawl/dedup"
	"github.com/stadtlab/envcrawl/extract"
	"github.com/stadtlab/envcrawl/horosafe"
	"github.com/stadtlab/envcrawl/store"
	"github.com/stadtlab/envcrawl/subject"
)

// ErrPrecondition is returned when the seed crawl for a fresh store
// fails. Nothing can run without the station and sensor registry, so
// the whole invocation aborts.
var ErrPrecondition = errors.New("crawler: store initialization precondition failed")

// errDataQuality marks a run abandoned because the fetched data was
// incomplete. The period stays OPEN and nothing is written.
var errDataQuality = errors.New("crawler: incomplete data")

// errDatasetMissing marks a write against a container the seed crawl
// never registered.
var errDatasetMissing = errors.New("crawler: dataset not found")

// errNotPublished marks a workbook whose publication for the target
// period is not out yet. The period stays OPEN until it appears.
var errNotPublished = errors.New("crawler: workbook not published for target period")

// Crawler coordinates one pipeline pass.
type Crawler struct {
	cfg    *Config
	store  *store.Store
	client *extract.Client
	log    *slog.Logger
	now    func() time.Time
}

// New creates a Crawler. log scopes all slog output of the run.
func New(cfg *Config, log *slog.Logger) *Crawler {
	cfg.defaults()
	return &Crawler{
		cfg:   cfg,
		store: store.New(cfg.StorePath),
		client: extract.NewClient(extract.Config{
			Timeout:   cfg.Fetch.Timeout,
			MaxBytes:  cfg.Fetch.MaxBytes,
			UserAgent: cfg.Fetch.UserAgent,
		}),
		log: log,
		now: time.Now,
	}
}

// Run executes one pass: initialize the store if it does not exist yet,
// then process every data subject in fixed order. Subjects run strictly
// sequentially; one failing subject does not stop the others. A crash
// or failure leaves the subject OPEN for the next invocation.
func (c *Crawler) Run(ctx context.Context) error {
	now := c.now()

	general, err := crawllog.Open(c.cfg.LogDir, subject.General, now, c.log)
	if err != nil {
		return fmt.Errorf("open general log: %w", err)
	}
	defer general.Close()

	if err := c.ensureStore(ctx, general); err != nil {
		general.Error(fmt.Sprintf("Subject store: %v", err))
		return errors.Join(ErrPrecondition, err)
	}

	for _, subj := range subject.DataSubjects() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.runSubject(ctx, subj, now, general)
	}
	return nil
}

// ensureStore initializes the store file on first run: the station and
// sensor seed crawl is a hard precondition.
func (c *Crawler) ensureStore(ctx context.Context, general *crawllog.Logger) error {
	if _, err := c.store.Datasets(ctx); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrStoreMissing) {
		return err
	}

	general.Info("Subject store: Process started for creating file")

	stations, status, err := c.client.Stations(ctx, c.cfg.URLs.AirQualityStations)
	if err != nil {
		return fmt.Errorf("extract air quality stations (status %d): %w", status, err)
	}
	general.Info(fmt.Sprintf("Subject store: Successfully extracted %d air quality stations", len(stations)))

	sensors, err := c.client.Sensors(ctx, c.cfg.URLs.TrafficSensors, c.cfg.Traffic.SensorIDs)
	if err != nil {
		return fmt.Errorf("extract traffic sensors: %w", err)
	}
	general.Info(fmt.Sprintf("Subject store: Successfully extracted %d traffic sensors", len(sensors)))

	if err := c.store.Initialize(ctx, stations, sensors); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	general.Info("Subject store: Process COMPLETED for creating file")
	return nil
}

// runSubject checks the subject's period and executes its routine when
// the period is still OPEN. Outcomes land in the audit table; failures
// are logged, never propagated.
func (c *Crawler) runSubject(ctx context.Context, subj subject.Subject, now time.Time, general *crawllog.Logger) {
	target := subject.TargetPeriod(subj, now)

	logger, err := crawllog.Open(c.cfg.LogDir, subj, now, c.log)
	if err != nil {
		general.Error(fmt.Sprintf("Subject %s: cannot open log: %v", subj, err))
		return
	}
	defer logger.Close()

	state, err := crawllog.Check(subj, logger.Path(), target)
	if err != nil {
		general.Error(fmt.Sprintf("Subject %s: status check failed: %v", subj, err))
		return
	}
	if state == crawllog.StateCompleted {
		c.recordRun(ctx, subj, target, store.RunSkipped, "already completed", now)
		return
	}

	general.Info(fmt.Sprintf("Subject %s: Process started for %s", subj, target))
	logger.Info(fmt.Sprintf("Starting crawling for %s", target))

	switch subj {
	case subject.AirQuality:
		err = c.runAirQuality(ctx, target, logger)
	case subject.Traffic:
		err = c.runTraffic(ctx, target, logger)
	case subject.Weather:
		err = c.runWeather(ctx, target, logger)
	case subject.Constructions:
		err = c.runConstructions(ctx, target, logger)
	case subject.CarRegistrations:
		err = c.runCarRegistrations(ctx, target, logger)
	case subject.NewCarRegistrations:
		err = c.runNewCarRegistrations(ctx, target, logger)
	}

	if err != nil {
		logger.Error(fmt.Sprintf("ERROR crawling for %s: %v", target, err))
		general.Error(fmt.Sprintf("Subject %s: Process ended with ERROR --> see log file", subj))
		c.recordRun(ctx, subj, target, store.RunFailed, err.Error(), now)
		return
	}

	if err := logger.Completed(target); err != nil {
		general.Error(fmt.Sprintf("Subject %s: cannot mark completion: %v", subj, err))
		return
	}
	general.Info(fmt.Sprintf("Subject %s: Process COMPLETED for %s", subj, target))
	c.recordRun(ctx, subj, target, store.RunCompleted, "", now)
}

func (c *Crawler) recordRun(ctx context.Context, subj subject.Subject, target, status, detail string, started time.Time) {
	_, err := c.store.RecordRun(ctx, store.RunRecord{
		Subject:    string(subj),
		Period:     target,
		Status:     status,
		Detail:     detail,
		StartedAt:  started.Unix(),
		FinishedAt: c.now().Unix(),
	})
	if err != nil {
		c.log.Warn("record run", "subject", subj, "error", err)
	}
}

// runAirQuality crawls one full day of hourly readings for every
// station. Per-station fetch failures skip the station; incomplete data
// abandons the whole period so no partial day is ever stored.
func (c *Crawler) runAirQuality(ctx context.Context, target string, logger *crawllog.Logger) error {
	stations, err := c.store.Stations(ctx)
	if err != nil {
		return fmt.Errorf("read stations: %w", err)
	}
	if len(stations) == 0 {
		return fmt.Errorf("no stations registered")
	}

	// Validation happens entirely before the first append: a period is
	// either stored whole or abandoned with the store untouched.
	type validated struct {
		station   string
		component string
		point     store.SeriesPoint
	}
	var collected []validated
	for _, st := range stations {
		logger.Info(fmt.Sprintf("%s: Crawling data for %s", st.Code, target))

		readings, status, err := c.client.StationReadings(ctx, c.cfg.URLs.AirQualityData, st.Code, target)
		if err != nil {
			logger.Error(fmt.Sprintf("%s: ERROR crawling data (status %d): %v", st.Code, status, err))
			continue
		}
		if n := extract.CheckCompleteness(readings); n > 0 {
			logger.Error(fmt.Sprintf("%s: Data incomplete - %d components missing values", st.Code, n))
			return errDataQuality
		}
		for _, r := range readings {
			ts, err := parseReadingTime(r.Datetime)
			if err != nil {
				logger.Error(fmt.Sprintf("%s/%s: bad datetime %q", r.Station, r.Component, r.Datetime))
				return errDataQuality
			}
			collected = append(collected, validated{
				station:   r.Station,
				component: r.Component,
				point:     store.SeriesPoint{TS: ts, Value: r.Value},
			})
		}
		logger.Info(fmt.Sprintf("%s: Data complete", st.Code))
	}

	logger.Info("Saving collected data")
	for _, v := range collected {
		ok, err := c.store.AppendAirQuality(ctx, v.station, v.component,
			[]store.SeriesPoint{v.point})
		if err != nil {
			return fmt.Errorf("append %s/%s: %w", v.station, v.component, err)
		}
		if !ok {
			logger.Error(fmt.Sprintf("%s: Dataset not found for %s", v.station, v.component))
		}
	}
	logger.Info("Successfully saved data")
	return nil
}

// parseReadingTime converts an API datetime to a unix timestamp.
func parseReadingTime(s string) (float64, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return float64(t.Unix()), nil
		}
	}
	return 0, fmt.Errorf("unparseable datetime %q", s)
}

// runTraffic crawls the latest hourly count for every sensor. Failing
// sensors are skipped; the period completes with whatever arrived.
func (c *Crawler) runTraffic(ctx context.Context, target string, logger *crawllog.Logger) error {
	sensors, err := c.store.Sensors(ctx)
	if err != nil {
		return fmt.Errorf("read sensors: %w", err)
	}
	if len(sensors) == 0 {
		return fmt.Errorf("no sensors registered")
	}

	for _, sensor := range sensors {
		url := sensor.Info.ObservationURL + c.cfg.URLs.TrafficData + target
		logger.Info(fmt.Sprintf("%s: Crawling data with url %s", sensor.Name, url))

		pt, ok, status, err := c.client.Observations(ctx, url)
		if err != nil {
			logger.Error(fmt.Sprintf("%s: ERROR crawling data (status %d): %v", sensor.Name, status, err))
			continue
		}
		if !ok {
			logger.Error(fmt.Sprintf("%s: No data found", sensor.Name))
			continue
		}

		stored, err := c.store.AppendTraffic(ctx, sensor.Name, []store.SeriesPoint{pt})
		if err != nil {
			return fmt.Errorf("append %s: %w", sensor.Name, err)
		}
		if !stored {
			logger.Error(fmt.Sprintf("%s: Dataset not found", sensor.Name))
		}
	}
	logger.Info("Successfully saved data")
	return nil
}

func (c *Crawler) runWeather(ctx context.Context, target string, logger *crawllog.Logger) error {
	logger.Info(fmt.Sprintf("Crawling data with url %s", c.cfg.URLs.WeatherData))

	row, status, err := c.client.WeatherReport(ctx, c.cfg.URLs.WeatherData)
	if err != nil {
		return fmt.Errorf("crawl weather (status %d): %w", status, err)
	}
	// The row is stamped with the period it completes, as a unix
	// timestamp like every other series.
	stamp, err := time.Parse("2006-01-02_15:04", target)
	if err != nil {
		return fmt.Errorf("bad period %q: %w", target, err)
	}
	row.TS = float64(stamp.Unix())

	logger.Info("Start saving data")
	ok, err := c.store.AppendWeather(ctx, row)
	if err != nil {
		return fmt.Errorf("append weather: %w", err)
	}
	if !ok {
		return errDatasetMissing
	}
	logger.Info("Successfully saved data")
	return nil
}

// runConstructions fetches the current snapshot, diffs it against the
// cached previous one and upserts only the new or changed rows. The
// snapshot cache is updated only after a fully successful pass.
func (c *Crawler) runConstructions(ctx context.Context, target string, logger *crawllog.Logger) error {
	cachePath, err := horosafe.SafePath(c.cfg.DataDir, "constructions_prev.json")
	if err != nil {
		return fmt.Errorf("snapshot path: %w", err)
	}
	cache := &dedup.SnapshotCache{Path: cachePath}

	logger.Info("Reading previous data")
	prev, err := cache.Load()
	if err != nil {
		return fmt.Errorf("load previous snapshot: %w", err)
	}
	if prev == nil {
		logger.Info("No previous data available")
	} else {
		logger.Info("Successfully loaded previous data")
	}

	logger.Info(fmt.Sprintf("Downloading data with url %s", c.cfg.URLs.Constructions))
	rows, status, err := c.client.Constructions(ctx, c.cfg.URLs.Constructions)
	if err != nil {
		return fmt.Errorf("crawl constructions (status %d): %w", status, err)
	}

	logger.Info("Preprocessing data")
	candidates := dedup.Candidates(rows, prev)

	if len(candidates) > 0 {
		logger.Info("Saving data")
		existed, err := c.store.UpsertConstructions(ctx, candidates)
		if err != nil {
			return fmt.Errorf("upsert constructions: %w", err)
		}
		if !existed {
			return errDatasetMissing
		}
		logger.Info(fmt.Sprintf("Successfully saved (%d new or updated) rows", len(candidates)))
	} else {
		logger.Info("No new data to add")
	}

	if err := cache.Save(rows); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (c *Crawler) runCarRegistrations(ctx context.Context, target string, logger *crawllog.Logger) error {
	path, err := horosafe.SafePath(c.cfg.DataDir, "fz1_"+target+".xlsx")
	if err != nil {
		return fmt.Errorf("workbook path: %w", err)
	}
	if err := c.downloadWorkbook(ctx, c.cfg.URLs.CarRegistrations, "fz1_"+target, path, logger); err != nil {
		return err
	}

	year, err := strconv.Atoi(target)
	if err != nil {
		return fmt.Errorf("bad period %q: %w", target, err)
	}
	row, err := extract.ReadCarRegistrations(path, year)
	if err != nil {
		return fmt.Errorf("read workbook: %w", err)
	}

	logger.Info("Start saving data")
	ok, err := c.store.AppendCarRegistrations(ctx, row)
	if err != nil {
		return fmt.Errorf("append car registrations: %w", err)
	}
	if !ok {
		return errDatasetMissing
	}
	logger.Info("Successfully saved data")
	return nil
}

func (c *Crawler) runNewCarRegistrations(ctx context.Context, target string, logger *crawllog.Logger) error {
	path, err := horosafe.SafePath(c.cfg.DataDir, "fz8_"+target+".xlsx")
	if err != nil {
		return fmt.Errorf("workbook path: %w", err)
	}
	if err := c.downloadWorkbook(ctx, c.cfg.URLs.NewCarRegistrations, "fz8_"+target, path, logger); err != nil {
		return err
	}

	if len(target) != 6 {
		return fmt.Errorf("bad period %q", target)
	}
	year, err := strconv.Atoi(target[:4])
	if err != nil {
		return fmt.Errorf("bad period %q: %w", target, err)
	}
	month, err := strconv.Atoi(target[4:])
	if err != nil {
		return fmt.Errorf("bad period %q: %w", target, err)
	}

	row, err := extract.ReadNewCarRegistrations(path, year, month)
	if err != nil {
		return fmt.Errorf("read workbook: %w", err)
	}

	logger.Info("Start saving data")
	ok, err := c.store.AppendNewCarRegistrations(ctx, row)
	if err != nil {
		return fmt.Errorf("append new car registrations: %w", err)
	}
	if !ok {
		return errDatasetMissing
	}
	logger.Info("Successfully saved data")
	return nil
}

// downloadWorkbook locates the workbook link on the publication page,
// verifies it belongs to the target period and downloads it. A link for
// an older period means the publication is not out yet.
func (c *Crawler) downloadWorkbook(ctx context.Context, pageURL, marker, path string, logger *crawllog.Logger) error {
	logger.Info("Determining url and path for download url and filename")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fileURL, status, err := c.client.FileURL(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("locate workbook (status %d): %w", status, err)
	}
	if !strings.Contains(fileURL, marker) {
		logger.Info("File not available yet")
		return errNotPublished
	}

	logger.Info("Downloading data")
	n, status, err := c.client.Download(ctx, fileURL, path)
	if err != nil {
		return fmt.Errorf("download workbook (status %d): %w", status, err)
	}
	logger.Info(fmt.Sprintf("Successfully downloaded data (%d bytes)", n))
	return nil
}
