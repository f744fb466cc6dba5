package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/orchestrator"
)

// RunAgentRequest is the body of POST /api/run-agent.
type RunAgentRequest struct {
	RepoURL     string `json:"repo_url"`
	TeamName    string `json:"team_name"`
	LeaderName  string `json:"leader_name"`
	FixerKey    string `json:"fixer_key"`
	OpenAIKey   string `json:"openai_key"` // accepted alias of fixer_key
	GitHubToken string `json:"github_token"`
	RetryLimit  *int   `json:"retry_limit"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// MessageResponse acknowledges reset and cancel.
type MessageResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func detail(c echo.Context, code int, msg string) error {
	return c.JSON(code, ErrorResponse{Detail: msg})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "healfactory",
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRunAgent(c echo.Context) error {
	var req RunAgentRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	key := req.FixerKey
	if key == "" {
		key = req.OpenAIKey
	}

	ack, err := s.ctrl.Trigger(orchestrator.TriggerRequest{
		RepoURL:     strings.TrimSpace(req.RepoURL),
		TeamName:    req.TeamName,
		LeaderName:  req.LeaderName,
		FixerKey:    key,
		GitHubToken: req.GitHubToken,
		RetryLimit:  req.RetryLimit,
	})
	var invalid *orchestrator.InvalidRequestError
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		return detail(c, http.StatusConflict, err.Error())
	case errors.As(err, &invalid):
		return detail(c, http.StatusBadRequest, invalid.Error())
	case err != nil:
		s.logger.Error("trigger failed", zap.Error(err))
		return detail(c, http.StatusInternalServerError, "could not start pipeline")
	}
	return c.JSON(http.StatusAccepted, ack)
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleResults(c echo.Context) error {
	rec, err := s.ctrl.Result()
	if errors.Is(err, orchestrator.ErrNoResult) {
		return detail(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		s.logger.Error("read result failed", zap.Error(err))
		return detail(c, http.StatusInternalServerError, "could not read results")
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleTimeline(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Timeline())
}

func (s *Server) handleReset(c echo.Context) error {
	st := s.ctrl.Reset()
	return c.JSON(http.StatusOK, MessageResponse{Message: st.Message, Status: st.Status})
}

func (s *Server) handleCancel(c echo.Context) error {
	if err := s.ctrl.Cancel(); err != nil {
		if errors.Is(err, orchestrator.ErrNotRunning) {
			return detail(c, http.StatusConflict, err.Error())
		}
		return detail(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, MessageResponse{Message: "Cancellation requested", Status: s.ctrl.Status().Status})
}
