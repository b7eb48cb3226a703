// Package httpapi implements the HTTP control plane of spec §6:
// POST /sessions, DELETE /sessions/{id}, GET /sessions/{id}/feedback,
// guarded by an X-API-Key check and a per-IP rate limit.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/livekit/protocol/auth"

	"github.com/gramyfied/eloquence-orchestrator/pkg/audio"
	"github.com/gramyfied/eloquence-orchestrator/pkg/feedback"
	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// SessionCreateRequest is the POST /sessions body.
type SessionCreateRequest struct {
	UserID         string `json:"user_id"`
	Language       string `json:"language"`
	ScenarioID     string `json:"scenario_id,omitempty"`
	Goal           string `json:"goal,omitempty"`
	AgentProfileID string `json:"agent_profile_id,omitempty"`
	IsMultiAgent   bool   `json:"is_multi_agent,omitempty"`
}

// SessionCreateResponse is the POST /sessions response.
type SessionCreateResponse struct {
	SessionID string `json:"session_id"`
	RoomName  string `json:"room_name"`
	Token     string `json:"token"`
	URL       string `json:"url"`
}

// AgentResolver turns an agent_profile_id (possibly empty) into an
// AgentProfile, e.g. by looking up a configured roster.
type AgentResolver func(agentProfileID string) orchestrator.AgentProfile

// ScenarioResolver turns a scenario_id (possibly empty) into a
// ScenarioAdvancer, e.g. by loading and caching a scenario template from
// disk. A nil return (or a nil ScenarioResolver) starts the session with
// no scenario, per StartSession's contract.
type ScenarioResolver func(scenarioID string) orchestrator.ScenarioAdvancer

// Server wires the mux.Router for the control plane.
type Server struct {
	router *mux.Router

	service         *orchestrator.Service
	sink            *feedback.Sink
	resolveAgent    AgentResolver
	resolveScenario ScenarioResolver
	limiter         *RateLimiter
	apiKey          string
	livekitURL      string
	livekitAPIKey   string
	livekitSecret   string
	sessionCfg      orchestrator.Config
	audioStore      *audio.SegmentStore

	pipelinesMu sync.Mutex
	pipelines   map[string]*orchestrator.Pipeline
}

// Config bundles Server's construction-time dependencies.
type Config struct {
	Service         *orchestrator.Service
	Sink            *feedback.Sink
	ResolveAgent    AgentResolver
	ResolveScenario ScenarioResolver
	APIKey          string
	MaxReqPerMin    int
	LivekitURL      string
	LivekitAPIKey   string
	LivekitSecret   string
	SessionConfig   orchestrator.Config
	// AudioStore, when non-nil, persists each finalized learner turn to disk
	// (spec §6). A nil store disables recording entirely.
	AudioStore *audio.SegmentStore
}

// NewServer builds a Server with routes and middleware wired.
func NewServer(cfg Config) *Server {
	s := &Server{
		service:         cfg.Service,
		sink:            cfg.Sink,
		resolveAgent:    cfg.ResolveAgent,
		resolveScenario: cfg.ResolveScenario,
		limiter:         NewRateLimiter(cfg.MaxReqPerMin),
		apiKey:          cfg.APIKey,
		livekitURL:      cfg.LivekitURL,
		livekitAPIKey:   cfg.LivekitAPIKey,
		livekitSecret:   cfg.LivekitSecret,
		sessionCfg:      cfg.SessionConfig,
		audioStore:      cfg.AudioStore,
		pipelines:       make(map[string]*orchestrator.Pipeline),
	}
	s.router = mux.NewRouter()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.Use(s.authMiddleware)

	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/feedback", s.handleGetFeedback).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/stream", s.handleStream).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}
	if req.UserID == "" || req.Language == "" {
		writeError(w, http.StatusBadRequest, "validation", "user_id and language are required")
		return
	}

	var agent orchestrator.AgentProfile
	if s.resolveAgent != nil {
		agent = s.resolveAgent(req.AgentProfileID)
	}

	var scenarioEngine orchestrator.ScenarioAdvancer
	if req.ScenarioID != "" && s.resolveScenario != nil {
		scenarioEngine = s.resolveScenario(req.ScenarioID)
	}

	p := s.service.StartSession(context.Background(), req.UserID, orchestrator.Language(req.Language), agent, s.sessionCfg, scenarioEngine)
	sessionID := p.SessionID()
	roomName := "room-" + sessionID

	token, err := s.mintToken(sessionID, req.UserID, roomName)
	if err != nil {
		p.Close()
		writeError(w, http.StatusInternalServerError, "internal", "failed to mint session token")
		return
	}

	s.pipelinesMu.Lock()
	s.pipelines[sessionID] = p
	s.pipelinesMu.Unlock()

	writeJSON(w, http.StatusOK, SessionCreateResponse{
		SessionID: sessionID,
		RoomName:  roomName,
		Token:     token,
		URL:       s.livekitURL,
	})
}

// mintToken mints a LiveKit-shaped JWT purely as a connection credential
// for the Transport Adapter; no LiveKit SFU needs to be present for the
// orchestrator itself to function.
func (s *Server) mintToken(sessionID, identity, roomName string) (string, error) {
	at := auth.NewAccessToken(s.livekitAPIKey, s.livekitSecret)
	grant := &auth.VideoGrant{RoomJoin: true, Room: roomName}
	at.AddGrant(grant).SetIdentity(identity).SetValidFor(time.Hour)
	return at.ToJWT()
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.service.EndSession(id)
	notFound := errors.Is(err, orchestrator.ErrSessionNotFound)
	if err != nil && !notFound {
		writeError(w, http.StatusInternalServerError, "internal", "failed to end session")
		return
	}
	// Close whatever Pipeline we still hold a reference for: EndSession only
	// tears down the Session, so a session deleted before its websocket
	// /stream ever connects would otherwise never reach Ended or flush its
	// Feedback Sink handoff.
	if p := s.takePipeline(id); p != nil {
		p.Close()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "not_found": notFound})
}

// takePipeline removes and returns the Pipeline registered for id, or nil
// if none is (or is no longer) registered.
func (s *Server) takePipeline(id string) *orchestrator.Pipeline {
	s.pipelinesMu.Lock()
	defer s.pipelinesMu.Unlock()
	p := s.pipelines[id]
	delete(s.pipelines, id)
	return p
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.sink == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "artifacts": []feedback.Artifact{}})
		return
	}
	artifacts, err := s.sink.ListArtifacts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to list feedback")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "artifacts": artifacts})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
