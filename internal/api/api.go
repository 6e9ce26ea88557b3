package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/db"
	"github.com/thatsimonsguy/psu-controller/internal/model"
	"github.com/thatsimonsguy/psu-controller/internal/psu"
	"github.com/thatsimonsguy/psu-controller/internal/temperature"
)

const defaultEventLimit = 50

// Controller is the part of the power controller the API drives. Calls from here
// never run on the control loop, so power and reset requests are only queued.
type Controller interface {
	Status() psu.Status
	ChangePowerState(ctx context.Context, up bool)
	Reset(ctx context.Context) bool
}

type TemperatureSource interface {
	GetAllReadings() map[string]temperature.Reading
}

type Server struct {
	db    *sql.DB
	ctrl  Controller
	temps TemperatureSource
}

type PowerRequest struct {
	Up *bool `json:"up"`
}

type AcceptedResponse struct {
	Queued  string `json:"queued"`
	Pending int    `json:"pending"`
}

type TemperatureResponse struct {
	Sensor      string  `json:"sensor"`
	Temperature float64 `json:"temperature"`
	Valid       bool    `json:"valid"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(database *sql.DB, ctrl Controller, temps TemperatureSource) *Server {
	return &Server{
		db:    database,
		ctrl:  ctrl,
		temps: temps,
	}
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")

	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/power", s.handlePower)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/profiles/", s.handleProfile)
	mux.HandleFunc("/api/temperatures", s.handleTemperatures)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req PowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.Up == nil {
		s.writeError(w, http.StatusBadRequest, `Missing "up" field`)
		return
	}

	s.ctrl.ChangePowerState(r.Context(), *req.Up)

	queued := "power_down"
	if *req.Up {
		queued = "power_up"
	}
	log.Info().Bool("up", *req.Up).Msg("Power state change queued via API")
	s.writeJSON(w, http.StatusAccepted, AcceptedResponse{Queued: queued, Pending: s.ctrl.Status().QueuedCommands})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.ctrl.Reset(r.Context())

	log.Info().Msg("Reset queued via API")
	s.writeJSON(w, http.StatusAccepted, AcceptedResponse{Queued: "reset", Pending: s.ctrl.Status().QueuedCommands})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	events, err := db.GetRecentEvents(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get events")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/profiles/")
	slot, err := strconv.Atoi(path)
	if err != nil || slot < 0 || slot >= model.NumProfileLocations {
		s.writeError(w, http.StatusNotFound, "Invalid profile slot")
		return
	}

	p, err := db.GetProfile(s.db, slot)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Profile not found")
		} else {
			log.Error().Err(err).Int("slot", slot).Msg("Failed to get profile")
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleTemperatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	response := []TemperatureResponse{}
	if s.temps != nil {
		for name, reading := range s.temps.GetAllReadings() {
			response = append(response, TemperatureResponse{
				Sensor:      name,
				Temperature: reading.Temperature,
				Valid:       reading.Valid,
			})
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
