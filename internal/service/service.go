package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/metrics"
	"github.com/abhisek/assessgen/internal/store"
	"go.uber.org/zap"
)

// Generator produces an assessment for a request.
type Generator interface {
	Generate(ctx context.Context, req assessment.Request) (*assessment.Assessment, error)
}

// StoreError is a persistence failure. Kind is
// assessment.ErrPersistenceWriteFailed or ErrPersistenceUpdateFailed and
// Err is the store's own error.
type StoreError struct {
	Kind error
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Generated is the result of Service.Generate. ID is empty when the
// record could not be saved.
type Generated struct {
	ID         string
	Assessment *assessment.Assessment
}

// Service runs the request lifecycle: generate, persist, and later
// attach and grade answers.
type Service struct {
	gen     Generator
	repo    store.AssessmentRepo
	scorer  *assessment.Scorer
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New creates a Service. m may be nil.
func New(gen Generator, repo store.AssessmentRepo, m *metrics.Metrics, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		gen:     gen,
		repo:    repo,
		scorer:  assessment.NewScorer(log.Named("score")),
		metrics: m,
		log:     log,
	}
}

// Generate produces and saves an assessment. When saving fails the
// generated assessment is still returned alongside a *StoreError.
func (s *Service) Generate(ctx context.Context, req assessment.Request) (*Generated, error) {
	s.log.Info("received request",
		zap.String("country", req.Country),
		zap.String("board", req.Board),
		zap.String("class_level", req.ClassLevel),
		zap.String("subject", req.Subject),
		zap.String("topic", req.Topic),
		zap.String("type", string(req.AssessmentType)),
		zap.String("difficulty", req.Difficulty),
		zap.Int("question_count", req.QuestionCount),
		zap.Strings("learning_outcomes", req.LearningOutcomes))

	start := time.Now()
	a, err := s.gen.Generate(ctx, req)
	if err != nil {
		s.observeGenerated(req.AssessmentType, generateOutcome(err))
		s.log.Error("error generating assessment", zap.Error(err))
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	}

	id, err := s.repo.Create(ctx, store.NewAssessment{Request: req, Questions: a.Questions})
	if err != nil {
		s.observeGenerated(req.AssessmentType, "persist_failed")
		s.log.Error("failed to save assessment", zap.Error(err))
		return &Generated{Assessment: a}, &StoreError{Kind: assessment.ErrPersistenceWriteFailed, Err: err}
	}

	s.observeGenerated(req.AssessmentType, "ok")
	s.log.Info("assessment saved", zap.String("id", id), zap.Int("questions", a.Len()))
	return &Generated{ID: id, Assessment: a}, nil
}

func generateOutcome(err error) string {
	switch {
	case errors.Is(err, assessment.ErrInvalidAssessmentType), errors.Is(err, assessment.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, assessment.ErrNoStructuredPayload),
		errors.Is(err, assessment.ErrMalformedPayload),
		errors.Is(err, assessment.ErrUnexpectedShape):
		return "extraction_failed"
	}
	return "generation_failed"
}

func (s *Service) observeGenerated(t assessment.Type, outcome string) {
	if s.metrics == nil {
		return
	}
	label := string(t)
	if _, err := assessment.ParseType(label); err != nil {
		label = "invalid"
	}
	s.metrics.Generated.WithLabelValues(label, outcome).Inc()
}

// SubmitAnswers attaches answers to a saved assessment and grades them.
// The answer set is padded or truncated to the number of questions. A nil
// learningOutcomes keeps the stored outcomes. Failures are *StoreError
// with Kind assessment.ErrPersistenceUpdateFailed.
func (s *Service) SubmitAnswers(ctx context.Context, id string, answers assessment.AnswerSet, learningOutcomes []string) (*store.Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.updateFailed(id, err)
	}

	normalized := answers.Normalize(len(rec.Questions))
	rec, err = s.repo.UpdateAnswers(ctx, id, normalized, learningOutcomes)
	if err != nil {
		return nil, s.updateFailed(id, err)
	}

	res := s.scorer.Grade(rec.AssessmentType, rec.Questions, rec.Answers)
	rec.Result = &res
	s.observeSubmitted("ok")
	s.log.Info("answers saved",
		zap.String("id", id),
		zap.Int("answered", rec.Answers.AnsweredCount()),
		zap.Int("score", res.Correct),
		zap.Int("total", res.Total))
	return rec, nil
}

func (s *Service) updateFailed(id string, err error) error {
	outcome := "failed"
	if errors.Is(err, assessment.ErrNotFound) {
		outcome = "not_found"
	}
	s.observeSubmitted(outcome)
	s.log.Error("error updating answers", zap.String("id", id), zap.Error(err))
	return &StoreError{Kind: assessment.ErrPersistenceUpdateFailed, Err: err}
}

func (s *Service) observeSubmitted(outcome string) {
	if s.metrics != nil {
		s.metrics.Submitted.WithLabelValues(outcome).Inc()
	}
}

// Get returns a saved assessment, graded when answers are attached.
func (s *Service) Get(ctx context.Context, id string) (*store.Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Submitted() {
		res := s.scorer.Grade(rec.AssessmentType, rec.Questions, rec.Answers)
		rec.Result = &res
	}
	return rec, nil
}

// Grade scores answers against a saved assessment without storing them.
func (s *Service) Grade(ctx context.Context, id string, answers assessment.AnswerSet) (*assessment.Result, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res := s.scorer.Grade(rec.AssessmentType, rec.Questions, answers)
	return &res, nil
}
