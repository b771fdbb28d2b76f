package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/service"
	"github.com/abhisek/assessgen/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgGenerateFailed = "Failed to generate assessment"
	msgUpdateFailed   = "Failed to update answers"
	msgNotFound       = "Assessment not found"
	msgScoreFailed    = "Failed to score answers"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`

	// Stack is the handler goroutine's stack when the failure was
	// reported. It names the route handler, not where the error was
	// created. Omitted in release mode.
	Stack string `json:"stack,omitempty"`
}

// GenerateResponse is the body of a successful generation.
type GenerateResponse struct {
	Assessment []assessment.Question `json:"assessment"`
	ID         string                `json:"id"`
}

// SubmitRequest is the body of an answer submission. A missing
// learningOutcomes keeps the stored outcomes.
type SubmitRequest struct {
	ID               string          `json:"id"`
	Answers          json.RawMessage `json:"answers"`
	LearningOutcomes []string        `json:"learningOutcomes"`
}

// ScoreRequest is the body of a dry-run grading.
type ScoreRequest struct {
	Answers json.RawMessage `json:"answers"`
}

// DataResponse wraps a successful record response.
type DataResponse struct {
	Success bool          `json:"success"`
	Data    *store.Record `json:"data"`
}

// fail aborts with the error envelope, attaching the handler stack
// outside release mode.
func (s *Server) fail(c *gin.Context, status int, msg string, details string) {
	resp := ErrorResponse{Error: msg, Details: details}
	if s.debug {
		resp.Stack = string(debug.Stack())
	}
	c.AbortWithStatusJSON(status, resp)
}

func (s *Server) health(c *gin.Context) {
	components := gin.H{}
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			s.log.Warn("store ping failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "components": gin.H{"store": "down"}})
			return
		}
		components["store"] = "up"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "components": components})
}

func (s *Server) generate(c *gin.Context) {
	var req assessment.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, msgGenerateFailed, err.Error())
		return
	}

	out, err := s.svc.Generate(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, assessment.ErrInvalidAssessmentType) || errors.Is(err, assessment.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		s.fail(c, status, msgGenerateFailed, err.Error())
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{Assessment: out.Assessment.Questions, ID: out.ID})
}

func (s *Server) submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, msgUpdateFailed, err.Error())
		return
	}
	if req.ID == "" {
		s.fail(c, http.StatusBadRequest, msgUpdateFailed, "id is required")
		return
	}
	answers, ok := s.parseAnswers(c, req.Answers, msgUpdateFailed)
	if !ok {
		return
	}

	rec, err := s.svc.SubmitAnswers(c.Request.Context(), req.ID, answers, req.LearningOutcomes)
	if err != nil {
		status, details := http.StatusInternalServerError, err.Error()
		var se *service.StoreError
		if errors.As(err, &se) {
			details = se.Err.Error()
		}
		switch {
		case errors.Is(err, assessment.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, store.ErrAlreadySubmitted):
			status = http.StatusConflict
		}
		s.fail(c, status, msgUpdateFailed, details)
		return
	}

	c.JSON(http.StatusOK, DataResponse{Success: true, Data: rec})
}

func (s *Server) show(c *gin.Context) {
	rec, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, assessment.ErrNotFound) {
			s.fail(c, http.StatusNotFound, msgNotFound, err.Error())
			return
		}
		s.fail(c, http.StatusInternalServerError, "Failed to load assessment", err.Error())
		return
	}
	c.JSON(http.StatusOK, DataResponse{Success: true, Data: rec})
}

func (s *Server) score(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, msgScoreFailed, err.Error())
		return
	}
	answers, ok := s.parseAnswers(c, req.Answers, msgScoreFailed)
	if !ok {
		return
	}

	res, err := s.svc.Grade(c.Request.Context(), c.Param("id"), answers)
	if err != nil {
		if errors.Is(err, assessment.ErrNotFound) {
			s.fail(c, http.StatusNotFound, msgNotFound, err.Error())
			return
		}
		s.fail(c, http.StatusInternalServerError, msgScoreFailed, err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) parseAnswers(c *gin.Context, raw json.RawMessage, msg string) (assessment.AnswerSet, bool) {
	if len(raw) == 0 {
		s.fail(c, http.StatusBadRequest, msg, assessment.ErrAnswersNotArray.Error())
		return nil, false
	}
	answers, err := assessment.ParseAnswers(raw)
	if err != nil {
		s.fail(c, http.StatusBadRequest, msg, err.Error())
		return nil, false
	}
	return answers, true
}
