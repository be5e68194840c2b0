// Package api serves the collected datasets as a read-only JSON API.
// It never writes: the crawler owns the store file, the API only reads
// it, so both can run against the same path.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/stadtlab/envcrawl/shield"
	"github.com/stadtlab/envcrawl/store"
	"github.com/stadtlab/envcrawl/subject"
)

// Config holds the API surface settings. BasicUser and BasicPasswordHash
// (a bcrypt hash) enable HTTP Basic Auth on the data endpoints when both
// are set; /healthz stays open either way.
type Config struct {
	BasicUser         string `yaml:"basic_user"`
	BasicPasswordHash string `yaml:"basic_password_hash"`
}

// Server exposes one store over HTTP.
type Server struct {
	store *store.Store
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Server reading from st.
func New(st *store.Store, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: st, cfg: cfg, log: log, now: time.Now}
}

// Handler builds the route tree with the default middleware stack.
func (s *Server) Handler() http.Handler {
	return s.handler(shield.DefaultRateLimiter())
}

func (s *Server) handler(rl *shield.RateLimiter) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(rl) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if s.cfg.BasicUser != "" && s.cfg.BasicPasswordHash != "" {
			r.Use(s.requireBasicAuth)
		}

		r.Get("/subjects", func(w http.ResponseWriter, r *http.Request) {
			now := s.now()
			type subjectInfo struct {
				Subject string `json:"subject"`
				Period  string `json:"current_period"`
			}
			var list []subjectInfo
			for _, subj := range subject.DataSubjects() {
				list = append(list, subjectInfo{
					Subject: string(subj),
					Period:  subject.TargetPeriod(subj, now),
				})
			}
			writeJSON(w, 200, list)
		})

		r.Get("/stations", func(w http.ResponseWriter, r *http.Request) {
			stations, err := s.store.Stations(r.Context())
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			writeJSON(w, 200, stations)
		})

		r.Get("/stations/{code}/components/{component}", func(w http.ResponseWriter, r *http.Request) {
			code := chi.URLParam(r, "code")
			component := chi.URLParam(r, "component")
			points, ok, err := s.store.AirQualitySeries(r.Context(), code, component)
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			if !ok {
				writeJSON(w, 404, map[string]string{"error": "unknown station or component"})
				return
			}
			writeJSON(w, 200, points)
		})

		r.Get("/sensors", func(w http.ResponseWriter, r *http.Request) {
			sensors, err := s.store.Sensors(r.Context())
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			writeJSON(w, 200, sensors)
		})

		r.Get("/sensors/{name}/series", func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")
			points, ok, err := s.store.TrafficSeries(r.Context(), name)
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			if !ok {
				writeJSON(w, 404, map[string]string{"error": "unknown sensor"})
				return
			}
			writeJSON(w, 200, points)
		})

		r.Get("/weather", func(w http.ResponseWriter, r *http.Request) {
			rows, err := s.store.Weather(r.Context())
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			writeJSON(w, 200, rows)
		})

		r.Get("/constructions", func(w http.ResponseWriter, r *http.Request) {
			rows, err := s.store.Constructions(r.Context())
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			writeJSON(w, 200, rows)
		})

		r.Get("/registrations/cars", func(w http.ResponseWriter, r *http.Request) {
			rows, err := s.store.CarRegistrations(r.Context())
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			writeJSON(w, 200, rows)
		})

		r.Get("/registrations/new-cars", func(w http.ResponseWriter, r *http.Request) {
			rows, err := s.store.NewCarRegistrations(r.Context())
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			writeJSON(w, 200, rows)
		})

		r.Get("/datasets", func(w http.ResponseWriter, r *http.Request) {
			datasets, err := s.store.Datasets(r.Context())
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			writeJSON(w, 200, datasets)
		})

		r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
			limit := queryInt(r, "limit", 50)
			runs, err := s.store.Runs(r.Context(), limit)
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			writeJSON(w, 200, runs)
		})
	})

	return r
}

// requireBasicAuth checks the Basic credentials against the configured
// user and bcrypt hash.
func (s *Server) requireBasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.BasicUser)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(s.cfg.BasicPasswordHash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="envcrawl"`)
			writeJSON(w, 401, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// storeError maps store failures: a missing store file is 503 (the
// crawler has not created it yet), everything else is 500.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	shield.GetLogger(r.Context()).Error("store read", "error", err)
	if errors.Is(err, store.ErrStoreMissing) {
		writeJSON(w, 503, map[string]string{"error": "store not initialized yet"})
		return
	}
	writeError(w, 500, err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
