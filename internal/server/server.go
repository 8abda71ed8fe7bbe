// Package server exposes the turn pipeline over HTTP: a single
// multipart turn endpoint plus a health probe, with permissive CORS
// for browser clients.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/empath/internal/config"
	"github.com/normanking/empath/internal/pipeline"
	"github.com/normanking/empath/internal/turn"
)

// maxUploadSize bounds the multipart form held in memory per request.
const maxUploadSize = 64 * 1024 * 1024

// DefaultConversationID names the conversation used when the client
// does not send one.
const DefaultConversationID = "default"

// TurnResponse is the success envelope. Audio is base64 so the whole
// envelope stays JSON.
type TurnResponse struct {
	Response     string `json:"response"`
	AudioPayload string `json:"audioPayload,omitempty"`
	AudioMime    string `json:"audioMime,omitempty"`
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the health probe body.
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// Server is the HTTP front for the turn pipeline.
type Server struct {
	cfg        *config.Config
	pipe       *pipeline.Pipeline
	httpServer *http.Server
	startTime  time.Time
}

// New builds the server and its routes.
func New(cfg *config.Config, pipe *pipeline.Pipeline) *Server {
	s := &Server{
		cfg:       cfg,
		pipe:      pipe,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/turn", s.turnHandler)
	mux.HandleFunc("/healthz", s.healthHandler)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      withCORS(withRequestID(mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Handler exposes the full middleware chain, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// turnHandler accepts one conversational turn as a multipart form with
// an optional textPrompt field and an optional file attachment. At
// least one must be present.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}

	text := r.FormValue("textPrompt")
	conversationID := r.FormValue("conversationId")
	if conversationID == "" {
		conversationID = DefaultConversationID
	}

	var media []byte
	var contentType string
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		media, err = io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read uploaded file", err.Error())
			return
		}
		contentType = header.Header.Get("Content-Type")
	case errors.Is(err, http.ErrMissingFile):
		// Text-only turn.
	default:
		writeError(w, http.StatusBadRequest, "invalid file attachment", err.Error())
		return
	}

	outcome, err := s.pipe.Run(r.Context(), conversationID, text, media, contentType)
	if err != nil {
		if errors.Is(err, turn.ErrMissingInput) {
			writeError(w, http.StatusBadRequest, "provide a textPrompt or a file", "")
			return
		}
		// Backend details stay in the logs, not the client response.
		writeError(w, http.StatusInternalServerError, "failed to process turn", "")
		return
	}

	resp := TurnResponse{Response: outcome.Reply}
	if len(outcome.Audio) > 0 {
		resp.AudioPayload = base64.StdEncoding.EncodeToString(outcome.Audio)
		resp.AudioMime = outcome.AudioMime
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// withCORS attaches permissive CORS headers to every response and
// short-circuits preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestID tags each request with a uuid for log correlation.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		next.ServeHTTP(w, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}
