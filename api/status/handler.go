// Package status serves the simulation state over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/predictivemovement/core/dispatch/logging"
	"github.com/kilianp07/predictivemovement/core/metrics/eco"
	corestatus "github.com/kilianp07/predictivemovement/core/status"
	"github.com/kilianp07/predictivemovement/infra/logger"
	"github.com/kilianp07/predictivemovement/infra/report"
	"github.com/kilianp07/predictivemovement/pkg/export"
)

// Config of the status API. An empty Addr disables the server.
type Config struct {
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on every request.
	Token string `json:"token"`
}

func filter(r *http.Request) corestatus.Filter {
	q := r.URL.Query()
	return corestatus.Filter{
		Fleet:  q.Get("fleet"),
		Kommun: q.Get("kommun"),
		Status: q.Get("status"),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewVehiclesHandler exposes vehicle snapshots via GET /api/vehicles.
func NewVehiclesHandler(store *corestatus.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, store.Vehicles(filter(r)))
	})
}

// NewBookingsHandler exposes booking snapshots via GET /api/bookings.
// format=csv downloads them as a spreadsheet instead.
func NewBookingsHandler(store *corestatus.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bookings := store.Bookings(filter(r))
		if r.URL.Query().Get("format") != "csv" {
			writeJSON(w, bookings)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="bookings.csv"`)
		if err := export.WriteCSV(w, bookings); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

type kpi struct {
	Date           string  `json:"date"`
	DistanceKm     float64 `json:"distance_km"`
	CO2Kg          float64 `json:"co2_kg"`
	Deliveries     int     `json:"deliveries"`
	CO2PerDelivery float64 `json:"co2_per_delivery"`
	CO2PerKm       float64 `json:"co2_per_km"`
}

func period(r *http.Request) (time.Time, time.Time) {
	start, _ := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	end, _ := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if end.IsZero() {
		end = time.Now()
	}
	return start, end
}

// NewKPIHandler exposes daily emission KPIs via GET /api/fleets/{fleet}/kpis.
func NewKPIHandler(store eco.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/fleets/")
		fleet, rest, ok := strings.Cut(path, "/")
		if !ok || rest != "kpis" || fleet == "" {
			http.NotFound(w, r)
			return
		}
		start, end := period(r)
		recs, err := store.Query(fleet, start, end)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]kpi, len(recs))
		for i, rec := range recs {
			out[i] = kpi{
				Date:           rec.Date.Format("2006-01-02"),
				DistanceKm:     rec.DistanceKm,
				CO2Kg:          rec.CO2Kg,
				Deliveries:     rec.Deliveries,
				CO2PerDelivery: rec.CO2PerDelivery(),
				CO2PerKm:       rec.CO2PerKm(),
			}
		}
		writeJSON(w, out)
	})
}

// NewReportHandler renders the emission report of the given fleets via
// GET /api/report?fleet=a&fleet=b.
func NewReportHandler(store eco.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, end := period(r)
		var all []eco.Record
		for _, fleet := range r.URL.Query()["fleet"] {
			recs, err := store.Query(fleet, start, end)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			all = append(all, recs...)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := report.Emissions(w, all); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// NewDecisionsHandler exposes the solver decision log via
// GET /api/decisions?vehicle=&kind=&start=&end=.
func NewDecisionsHandler(store logging.LogStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := logging.LogQuery{VehicleID: q.Get("vehicle"), Kind: q.Get("kind")}
		query.Start, _ = time.Parse(time.RFC3339, q.Get("start"))
		query.End, _ = time.Parse(time.RFC3339, q.Get("end"))
		recs, err := store.Query(r.Context(), query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []logging.LogRecord{}
		}
		writeJSON(w, recs)
	})
}

// requireGet rejects other methods and, when token is set, requests without
// the matching bearer token.
func requireGet(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewMux routes the status API. KPI and decision routes are only mounted
// when their store is given.
func NewMux(cfg Config, store *corestatus.Store, kpis eco.Store, decisions logging.LogStore) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/vehicles", requireGet(cfg.Token, NewVehiclesHandler(store)))
	mux.Handle("/api/bookings", requireGet(cfg.Token, NewBookingsHandler(store)))
	if kpis != nil {
		mux.Handle("/api/fleets/", requireGet(cfg.Token, NewKPIHandler(kpis)))
		mux.Handle("/api/report", requireGet(cfg.Token, NewReportHandler(kpis)))
	}
	if decisions != nil {
		mux.Handle("/api/decisions", requireGet(cfg.Token, NewDecisionsHandler(decisions)))
	}
	return mux
}

// Serve runs the status API until ctx is canceled.
func Serve(ctx context.Context, cfg Config, store *corestatus.Store, kpis eco.Store, decisions logging.LogStore, log logger.Logger) error {
	log = logger.OrNop(log)
	srv := &http.Server{Addr: cfg.Addr, Handler: NewMux(cfg, store, kpis, decisions), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("status api shutdown: %v", err)
		}
		cancel()
	}()
	log.Infof("serving status api on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
