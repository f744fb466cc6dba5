package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/analytics"
	"github.com/lucasnoah/healfactory/internal/db"
)

// AnalyticsResponse is the body of GET /api/analytics.
type AnalyticsResponse struct {
	Since      string                    `json:"since"`
	Overall    analytics.LanguageStats   `json:"overall"`
	Languages  []analytics.LanguageStats `json:"languages"`
	BugTypes   []analytics.BugTypeCount  `json:"bug_types"`
	Throughput []analytics.Throughput    `json:"throughput"`
}

func (s *Server) handleRuns(c echo.Context) error {
	if s.history == nil {
		return detail(c, http.StatusNotFound, "run history is not configured")
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return detail(c, http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = n
	}
	runs, err := s.history.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		return detail(c, http.StatusInternalServerError, "could not list runs")
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleRun(c echo.Context) error {
	if s.history == nil {
		return detail(c, http.StatusNotFound, "run history is not configured")
	}
	rec, err := s.history.GetRun(c.Request().Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		return detail(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		s.logger.Error("get run failed", zap.Error(err))
		return detail(c, http.StatusInternalServerError, "could not read run")
	}
	return c.JSON(http.StatusOK, rec)
}

// handleAnalytics aggregates runs started within ?days= (default 30).
func (s *Server) handleAnalytics(c echo.Context) error {
	if s.analytics == nil {
		return detail(c, http.StatusNotFound, "run history is not configured")
	}
	days := 30
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return detail(c, http.StatusBadRequest, "days must be a positive integer")
		}
		days = n
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	ctx := c.Request().Context()

	langs, err := analytics.QueryLanguageStats(ctx, s.analytics, since)
	if err != nil {
		return s.analyticsError(c, err)
	}
	bugs, err := analytics.QueryBugTypes(ctx, s.analytics, since)
	if err != nil {
		return s.analyticsError(c, err)
	}
	weekly, err := analytics.QueryThroughput(ctx, s.analytics, since)
	if err != nil {
		return s.analyticsError(c, err)
	}
	return c.JSON(http.StatusOK, AnalyticsResponse{
		Since:      since.Format(time.RFC3339),
		Overall:    analytics.Overview(langs),
		Languages:  langs,
		BugTypes:   bugs,
		Throughput: weekly,
	})
}

func (s *Server) analyticsError(c echo.Context, err error) error {
	s.logger.Error("analytics query failed", zap.Error(err))
	return detail(c, http.StatusInternalServerError, "could not compute analytics")
}
