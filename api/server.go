// Package api exposes the orchestrator's caller-facing operations over a
// small HTTP JSON surface. Every endpoint maps 1:1 to a controller
// operation; responses use a uniform {success, message, error, data}
// envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/enginelab/test-orchestrator/runner"
	"github.com/enginelab/test-orchestrator/types"
)

// DefaultWaitTimeout bounds "wait for completion" requests that do not
// specify their own timeout.
const DefaultWaitTimeout = 600 * time.Second

// Server serves the orchestrator API.
type Server struct {
	controller *runner.Controller
	log        log.Logger
	server     *http.Server
}

// NewServer creates an API server around a controller.
func NewServer(controller *runner.Controller, logger log.Logger) *Server {
	if logger == nil {
		logger = log.New()
	}
	return &Server{controller: controller, log: logger}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tests", s.handleListTests)
		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/status", s.handleGetStatus)
		r.Get("/runs/result", s.handleGetResult)
		r.Post("/runs/cancel", s.handleCancelRun)
		r.Post("/runs/rerun-failed", s.handleRerunFailed)
	})
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(r)
}

// Start runs the server until it is shut down.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// envelope is the uniform response wrapper.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// startRunRequest is the body for start and rerun endpoints.
type startRunRequest struct {
	Mode              string   `json:"mode"`
	TestNames         []string `json:"testNames"`
	GroupNames        []string `json:"groupNames"`
	CategoryNames     []string `json:"categoryNames"`
	AssemblyNames     []string `json:"assemblyNames"`
	RunID             string   `json:"runId"`
	WaitForCompletion *bool    `json:"waitForCompletion"`
	TimeoutSeconds    int      `json:"timeoutSeconds"`
}

type startRunData struct {
	RunID         string           `json:"runId"`
	StartedNewRun bool             `json:"startedNewRun"`
	Status        *types.RunStatus `json:"status,omitempty"`
	Result        *types.RunResult `json:"result,omitempty"`
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	var modes []types.Mode
	if mode, ok := types.ParseMode(r.URL.Query().Get("mode")); ok {
		modes = append(modes, mode)
	}
	entries, err := s.controller.ListTests(r.Context(), modes...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []types.CatalogEntry{}
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: entries})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid request body: " + err.Error()})
		return
	}
	mode := types.ModeEditMode
	if req.Mode != "" {
		parsed, ok := types.ParseMode(req.Mode)
		if !ok {
			s.writeJSON(w, http.StatusBadRequest, envelope{Error: fmt.Sprintf("invalid mode %q", req.Mode)})
			return
		}
		mode = parsed
	}
	runReq := types.NewRunRequest(mode, req.TestNames, req.GroupNames, req.CategoryNames, req.AssemblyNames)

	handle, err := s.controller.StartRun(r.Context(), runReq)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.finishRunResponse(w, r, handle, &req)
}

func (s *Server) handleRerunFailed(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid request body: " + err.Error()})
		return
	}
	handle, err := s.controller.RerunFailed(r.Context(), req.RunID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.finishRunResponse(w, r, handle, &req)
}

// finishRunResponse implements the wait-vs-poll contract shared by start and
// rerun: wait (the default) blocks up to the timeout and returns the final
// result; a timed-out wait returns the latest snapshot as a non-terminal,
// caller-visible outcome.
func (s *Server) finishRunResponse(w http.ResponseWriter, r *http.Request, handle *runner.RunHandle, req *startRunRequest) {
	wait := true
	if req.WaitForCompletion != nil {
		wait = *req.WaitForCompletion
	}
	data := startRunData{RunID: handle.RunID, StartedNewRun: handle.StartedNewRun}

	if !wait {
		if status, err := s.controller.GetStatus(handle.RunID); err == nil {
			data.Status = &status
		}
		s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "test run started", Data: data})
		return
	}

	timeout := DefaultWaitTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	result, err := s.controller.Wait(r.Context(), handle, timeout)
	if err != nil {
		var waitErr *runner.WaitTimeoutError
		if errors.As(err, &waitErr) {
			data.Status = &waitErr.Snapshot
			s.writeJSON(w, http.StatusOK, envelope{Error: err.Error(), Message: err.Error(), Data: data})
			return
		}
		s.writeError(w, err)
		return
	}
	data.Result = result
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: result.SummaryMessage(), Data: data})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.controller.GetStatus(r.URL.Query().Get("runId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: status})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.controller.GetResult(r.URL.Query().Get("runId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: result.SummaryMessage(), Data: result})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid request body: " + err.Error()})
		return
	}
	status, err := s.controller.CancelRun(r.Context(), req.RunID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "cancellation requested", Data: status})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case runner.IsNotFound(err), runner.IsNoResult(err):
		code = http.StatusNotFound
	case runner.IsAlreadyFinished(err), runner.IsNoFailures(err):
		code = http.StatusConflict
	case errors.Is(err, runner.ErrEngineBusy):
		code = http.StatusConflict
	case runner.IsEngineRejected(err):
		code = http.StatusBadGateway
	}
	s.writeJSON(w, code, envelope{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}
