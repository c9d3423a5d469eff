package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"cycle-tracker/internal/cycle"
	"cycle-tracker/internal/dailylog"
	"cycle-tracker/internal/share"
	"cycle-tracker/internal/tracker"
)

// PredictRequest is the request body for POST /api/v1/predict.
type PredictRequest struct {
	Logs []cycle.LogInput `json:"logs"`
}

// PredictResponse is the response body for POST /api/v1/predict.
type PredictResponse struct {
	Prediction cycle.CyclePrediction `json:"prediction"`
	Analysis   cycle.Analysis        `json:"analysis"`
	Today      civil.Date            `json:"today"`
	Skipped    int                   `json:"skipped"`
}

// PredictionResponse is the response body for stored-history predictions.
type PredictionResponse struct {
	tracker.Result
	CurrentPhase cycle.Phase `json:"current_phase,omitempty"`
	Narrative    string      `json:"narrative,omitempty"`
}

// LogRequest is the request body for PUT /api/v1/users/:user/logs/:date.
type LogRequest struct {
	Flow        string   `json:"flow"`
	Symptoms    []string `json:"symptoms"`
	Moods       []string `json:"moods"`
	Notes       string   `json:"notes"`
	Temperature *float64 `json:"temperature"`
}

// LogsResponse is the response body for GET /api/v1/users/:user/logs.
type LogsResponse struct {
	Logs  []cycle.DailyLog `json:"logs"`
	Count int              `json:"count"`
}

// ShareResponse is the response body for POST /api/v1/users/:user/shares.
type ShareResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handlePredict predicts from the logs in the request without storing them.
func (s *Server) handlePredict(c echo.Context) error {
	var req PredictRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid predict request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	logs, skipped := cycle.ParseLogs(req.Logs)
	result := s.tracker.PredictSnapshot(logs)

	return c.JSON(http.StatusOK, PredictResponse{
		Prediction: result.Prediction,
		Analysis:   result.Analysis,
		Today:      result.Today,
		Skipped:    skipped,
	})
}

func (s *Server) handleListLogs(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("user")

	var (
		logs []cycle.DailyLog
		err  error
	)
	from, to := c.QueryParam("from"), c.QueryParam("to")
	if from != "" || to != "" {
		fromDate, toDate, perr := parseRange(from, to, s.tracker.Today())
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, perr.Error())
		}
		logs, err = s.tracker.LogsBetween(ctx, userID, fromDate, toDate)
	} else {
		logs, err = s.tracker.Logs(ctx, userID)
	}
	if err != nil {
		return s.mapError(err)
	}

	if logs == nil {
		logs = []cycle.DailyLog{}
	}
	return c.JSON(http.StatusOK, LogsResponse{Logs: logs, Count: len(logs)})
}

func (s *Server) handlePutLog(c echo.Context) error {
	day, err := cycle.ParseDate(c.Param("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var req LogRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	flow, err := cycle.ParseFlow(req.Flow)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	log := cycle.DailyLog{
		Date:        day,
		Flow:        flow,
		Symptoms:    req.Symptoms,
		Moods:       req.Moods,
		Notes:       req.Notes,
		Temperature: req.Temperature,
	}
	ctx := c.Request().Context()
	if err := s.tracker.RecordDay(ctx, c.Param("user"), log); err != nil {
		return s.mapError(err)
	}
	stored, err := s.tracker.Day(ctx, c.Param("user"), day)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, stored)
}

func (s *Server) handleGetLog(c echo.Context) error {
	day, err := cycle.ParseDate(c.Param("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	log, err := s.tracker.Day(c.Request().Context(), c.Param("user"), day)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, log)
}

func (s *Server) handleDeleteLog(c echo.Context) error {
	day, err := cycle.ParseDate(c.Param("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.tracker.RemoveDay(c.Request().Context(), c.Param("user"), day); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUserPrediction(c echo.Context) error {
	return s.respondPrediction(c, c.Param("user"))
}

func (s *Server) handleCreateShare(c echo.Context) error {
	userID := c.Param("user")
	if err := tracker.ValidateUser(userID); err != nil {
		return s.mapError(err)
	}
	token, claims, err := s.shares.Issue(userID)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusCreated, ShareResponse{
		Token:     token,
		URL:       s.config.PublicURL + "/api/v1/shared/" + token,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt,
	})
}

func (s *Server) handleSharedPrediction(c echo.Context) error {
	claims, err := s.shares.Verify(c.Request().Context(), c.Param("token"))
	if err != nil {
		return s.mapError(err)
	}
	return s.respondPrediction(c, claims.UserID)
}

func (s *Server) handleRevokeShare(c echo.Context) error {
	ctx := c.Request().Context()
	claims, err := s.shares.Verify(ctx, c.Param("token"))
	if err != nil {
		return s.mapError(err)
	}
	if err := s.shares.Revoke(ctx, claims); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// respondPrediction recomputes the prediction for userID. ?narrate=true adds
// a narrative.
func (s *Server) respondPrediction(c echo.Context, userID string) error {
	ctx := c.Request().Context()
	result, err := s.tracker.Predict(ctx, userID)
	if err != nil {
		return s.mapError(err)
	}

	resp := PredictionResponse{Result: result}
	if phase, ok := result.CurrentPhase(); ok {
		resp.CurrentPhase = phase
	}
	if narrate, _ := strconv.ParseBool(c.QueryParam("narrate")); narrate {
		resp.Narrative = s.narrator.Describe(ctx, result.Prediction, result.Today).Text
	}
	return c.JSON(http.StatusOK, resp)
}

// parseRange reads from/to query values. Without from the range covers all
// history; without to it ends today.
func parseRange(from, to string, today civil.Date) (civil.Date, civil.Date, error) {
	fromDate := civil.Date{Year: 1970, Month: time.January, Day: 1}
	toDate := today

	var err error
	if from != "" {
		if fromDate, err = cycle.ParseDate(from); err != nil {
			return civil.Date{}, civil.Date{}, err
		}
	}
	if to != "" {
		if toDate, err = cycle.ParseDate(to); err != nil {
			return civil.Date{}, civil.Date{}, err
		}
	}
	return fromDate, toDate, nil
}

func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, tracker.ErrInvalidUser), errors.Is(err, tracker.ErrInvalidLog):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, dailylog.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, share.ErrInvalidToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired share link")
	}
	s.logger.Error("request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
