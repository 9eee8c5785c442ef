// Package api exposes the read-only HTTP surface: a health endpoint for
// monitoring and a small JSON API consumed by the Telegram Mini App.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dstmrk/octotracker/internal/model"
	"github.com/dstmrk/octotracker/internal/store"
)

// snapshotStaleAfter marks the health check degraded when the newest stored
// offers are older than this.
const snapshotStaleAfter = 48 * time.Hour

// maxHistoryDays caps the history window at ten years.
const maxHistoryDays = 3650

// Server serves the Mini App API backed by the bot's stores.
type Server struct {
	profiles store.ProfileStore
	history  store.RateHistoryStore
	botToken string
	now      func() time.Time
}

func NewServer(profiles store.ProfileStore, history store.RateHistoryStore, botToken string) *Server {
	return &Server{
		profiles: profiles,
		history:  history,
		botToken: botToken,
		now:      time.Now,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/rates/current", s.withAuth(s.handleCurrentRates))
		r.Get("/rates/history", s.withAuth(s.handleRateHistory))
		r.Get("/user/rates", s.withAuth(s.handleUserRates))
	})

	return r
}

// corsMiddleware allows the Mini App, served from its own origin, to call
// the API with the init-data header.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "X-Telegram-Init-Data, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID int64)

// withAuth validates the Telegram WebApp init-data header before invoking
// the handler.
func (s *Server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initData := r.Header.Get("X-Telegram-Init-Data")
		if initData == "" {
			writeError(w, http.StatusUnauthorized, "Missing X-Telegram-Init-Data header")
			return
		}
		userID, err := ValidateInitData(initData, s.botToken, s.now())
		if err != nil {
			log.Printf("[WARN] webapp auth rejected: %v", err)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r, userID)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[WARN] encode API response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

// rateJSON is one offer cell as served to the Mini App.
type rateJSON struct {
	EnergyRate           string `json:"energia"`
	CommercializationFee string `json:"commercializzazione"`
	OfferCode            string `json:"codice_offerta,omitempty"`
}

func (s *Server) handleCurrentRates(w http.ResponseWriter, r *http.Request, userID int64) {
	snapshot, err := s.history.Current()
	if err != nil {
		log.Printf("[ERROR] load current rates: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if snapshot.IsEmpty() {
		writeError(w, http.StatusNotFound, "No rates found")
		return
	}

	services := make(map[string]map[string]map[string]rateJSON)
	for _, row := range snapshot.Rows() {
		kinds, ok := services[string(row.Service)]
		if !ok {
			kinds = make(map[string]map[string]rateJSON)
			services[string(row.Service)] = kinds
		}
		bands, ok := kinds[string(row.Kind)]
		if !ok {
			bands = make(map[string]rateJSON)
			kinds[string(row.Kind)] = bands
		}
		bands[string(row.Band)] = rateJSON{
			EnergyRate:           row.EnergyRate.String(),
			CommercializationFee: row.CommercializationFee.String(),
			OfferCode:            row.OfferCode,
		}
	}

	writeData(w, map[string]any{
		"date":    snapshot.SourceDate,
		"servizi": services,
	})
}

func (s *Server) handleRateHistory(w http.ResponseWriter, r *http.Request, userID int64) {
	svc := model.Service(r.URL.Query().Get("servizio"))
	kind := model.Kind(r.URL.Query().Get("tipo"))
	band := model.Band(r.URL.Query().Get("fascia"))

	if svc != model.ServiceElectricity && svc != model.ServiceGas {
		writeError(w, http.StatusBadRequest, "Invalid or missing parameter: servizio")
		return
	}
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid or missing parameter: tipo")
		return
	}
	if !band.ValidFor(svc) {
		writeError(w, http.StatusBadRequest, "Invalid or missing parameter: fascia")
		return
	}

	days := 365
	if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil {
		if v >= 1 {
			days = v
		}
		if days > maxHistoryDays {
			days = maxHistoryDays
		}
	}

	entries, err := s.history.History(svc, kind, band, days)
	if err != nil {
		log.Printf("[ERROR] load rate history: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	points := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		points = append(points, map[string]any{
			"date":                e.Date,
			"energia":             e.Row.EnergyRate.String(),
			"commercializzazione": e.Row.CommercializationFee.String(),
		})
	}

	writeData(w, map[string]any{
		"servizio": svc,
		"tipo":     kind,
		"fascia":   band,
		"points":   points,
	})
}

func (s *Server) handleUserRates(w http.ResponseWriter, r *http.Request, userID int64) {
	profile, err := s.profiles.Get(userID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("[ERROR] load profile for %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeData(w, map[string]any{
		"luce": profile.Electricity,
		"gas":  profile.Gas,
	})
}

// healthCheck is one subsystem's state in the health report.
type healthCheck struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]healthCheck)
	status := "healthy"

	if count, err := s.profiles.Count(); err != nil {
		checks["database"] = healthCheck{Status: "error", Detail: err.Error()}
		status = "unhealthy"
	} else {
		checks["database"] = healthCheck{Status: "ok", Detail: strconv.Itoa(count) + " users"}
	}

	latest, err := s.history.LatestDate()
	switch {
	case err != nil:
		checks["rates"] = healthCheck{Status: "error", Detail: err.Error()}
		status = "unhealthy"
	case latest == "":
		checks["rates"] = healthCheck{Status: "warning", Detail: "no rates ingested yet"}
		if status == "healthy" {
			status = "degraded"
		}
	default:
		day, parseErr := time.Parse("2006-01-02", latest)
		if parseErr == nil && s.now().Sub(day) > snapshotStaleAfter {
			checks["rates"] = healthCheck{Status: "warning", Detail: "rates outdated (" + latest + ")"}
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["rates"] = healthCheck{Status: "ok", Detail: latest}
		}
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}
