package relay

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
)

// Server exposes a Hub over HTTP.
type Server struct {
	hub    *Hub
	router *mux.Router
}

// NewServer creates the relay's HTTP handler.
func NewServer(hub *Hub) *Server {
	s := &Server{
		hub:    hub,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/ws", s.hub)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/polls/{id}", s.handleGetPoll).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"participants": s.hub.Count(),
	})
}

type pollResponse struct {
	ID         string         `json:"id"`
	Options    []string       `json:"options"`
	MaxChoices int            `json:"maxChoices"`
	Votes      map[string]int `json:"votes"`
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	poll, err := s.hub.polls.Get(r.Context(), id)
	if errors.Is(err, ErrPollNotInitialized) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	options := poll.Options
	if options == nil {
		options = []string{}
	}
	respondJSON(w, http.StatusOK, pollResponse{
		ID:         poll.ID,
		Options:    options,
		MaxChoices: poll.MaxChoices,
		Votes:      nonNil(poll.Votes),
	})
}
