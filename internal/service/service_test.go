package service

import (
	"context"
	"errors"
	"testing"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/llm"
	"github.com/abhisek/assessgen/internal/metrics"
	"github.com/abhisek/assessgen/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoMCQs = `Here you go: [` +
	`{"question":"2+2?","options":["3","4","5","6"],"correctAnswer":1},` +
	`{"question":"3+3?","options":["6","7","8","9"],"correctAnswer":0}` +
	`] Enjoy.`

func mcqRequest(count int) assessment.Request {
	return assessment.Request{
		Country:          "India",
		Board:            "ICSE",
		ClassLevel:       "Class 2",
		Subject:          "Mathematics",
		Topic:            "Addition",
		AssessmentType:   assessment.TypeMCQ,
		Difficulty:       "easy",
		QuestionCount:    count,
		LearningOutcomes: []string{"Add single digits"},
	}
}

func newTestService(t *testing.T, repo store.AssessmentRepo, responses ...llm.MockResponse) (*Service, *llm.MockProvider, *metrics.Metrics) {
	t.Helper()
	mock := llm.NewMockProvider(responses...)
	m := metrics.New()
	gen := assessment.NewGenerator(mock, assessment.DefaultConfig(), nil)
	return New(gen, repo, m, nil), mock, m
}

// failingRepo rejects writes and updates with a fixed error.
type failingRepo struct {
	store.AssessmentRepo
	err error
}

func (f failingRepo) Create(context.Context, store.NewAssessment) (string, error) {
	return "", f.err
}

func (f failingRepo) UpdateAnswers(context.Context, string, assessment.AnswerSet, []string) (*store.Record, error) {
	return nil, f.err
}

func TestGenerate_PersistsShortAssessment(t *testing.T) {
	repo := store.NewMemoryStore()
	svc, mock, m := newTestService(t, repo, llm.MockText(twoMCQs))

	got, err := svc.Generate(context.Background(), mcqRequest(3))
	require.NoError(t, err)
	require.NotEmpty(t, got.ID)
	assert.Equal(t, 2, got.Assessment.Len())
	assert.Equal(t, 1, mock.CallCount())

	rec, err := repo.Get(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Len(t, rec.Questions, 2)
	assert.Equal(t, 3, rec.QuestionCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generated.WithLabelValues("mcq", "ok")))
}

func TestGenerate_PersistenceFailureStillReturnsAssessment(t *testing.T) {
	repo := failingRepo{AssessmentRepo: store.NewMemoryStore(), err: errors.New("connection refused")}
	svc, _, m := newTestService(t, repo, llm.MockText(twoMCQs))

	got, err := svc.Generate(context.Background(), mcqRequest(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, assessment.ErrPersistenceWriteFailed)
	assert.Equal(t, "failed to save assessment: connection refused", err.Error())

	require.NotNil(t, got)
	assert.Empty(t, got.ID)
	assert.Equal(t, 2, got.Assessment.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generated.WithLabelValues("mcq", "persist_failed")))
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name      string
		req       assessment.Request
		responses []llm.MockResponse
		want      error
		outcome   [2]string
		calls     int
	}{
		{
			name:    "invalid type",
			req:     func() assessment.Request { r := mcqRequest(2); r.AssessmentType = "essay"; return r }(),
			want:    assessment.ErrInvalidAssessmentType,
			outcome: [2]string{"invalid", "invalid_request"},
		},
		{
			name:      "no payload",
			req:       mcqRequest(2),
			responses: []llm.MockResponse{llm.MockText("Sorry, I can't.")},
			want:      assessment.ErrNoStructuredPayload,
			outcome:   [2]string{"mcq", "extraction_failed"},
			calls:     1,
		},
		{
			name:      "provider down",
			req:       mcqRequest(2),
			responses: []llm.MockResponse{{Err: &llm.ErrProviderUnavailable{}}},
			outcome:   [2]string{"mcq", "generation_failed"},
			calls:     1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := store.NewMemoryStore()
			svc, mock, m := newTestService(t, repo, tt.responses...)

			got, err := svc.Generate(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, got)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, tt.calls, mock.CallCount())
			assert.Equal(t, 0, repo.Len(), "nothing is persisted on failure")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Generated.WithLabelValues(tt.outcome[0], tt.outcome[1])))
		})
	}
}

func TestSubmitAnswers_GradesAndNormalizes(t *testing.T) {
	repo := store.NewMemoryStore()
	svc, _, m := newTestService(t, repo, llm.MockText(twoMCQs))
	ctx := context.Background()

	got, err := svc.Generate(ctx, mcqRequest(2))
	require.NoError(t, err)

	rec, err := svc.SubmitAnswers(ctx, got.ID, assessment.AnswerSet{assessment.Answer(1)}, []string{"Add numbers"})
	require.NoError(t, err)
	assert.Len(t, rec.Answers, 2, "answer set is aligned to the questions")
	assert.False(t, rec.Answers[1].Answered())
	assert.Equal(t, []string{"Add numbers"}, rec.LearningOutcomes)
	require.NotNil(t, rec.Result)
	assert.Equal(t, 1, rec.Result.Correct)
	assert.Equal(t, 2, rec.Result.Total)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submitted.WithLabelValues("ok")))

	fetched, err := svc.Get(ctx, got.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.Result)
	assert.Equal(t, 1, fetched.Result.Correct)
}

func TestSubmitAnswers_Failures(t *testing.T) {
	ctx := context.Background()

	svc, _, m := newTestService(t, store.NewMemoryStore())
	_, err := svc.SubmitAnswers(ctx, "missing", assessment.AnswerSet{}, nil)
	assert.ErrorIs(t, err, assessment.ErrPersistenceUpdateFailed)
	assert.ErrorIs(t, err, assessment.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submitted.WithLabelValues("not_found")))

	mem := store.NewMemoryStore()
	id, err := mem.Create(ctx, store.NewAssessment{Request: mcqRequest(1), Questions: []assessment.Question{
		assessment.NewMCQ(assessment.MCQ{Question: "Q", Options: []string{"a", "b", "c", "d"}}),
	}})
	require.NoError(t, err)

	svc, _, _ = newTestService(t, failingRepo{AssessmentRepo: mem, err: errors.New("permission denied for table assessments")})
	_, err = svc.SubmitAnswers(ctx, id, assessment.AnswerSet{assessment.Answer(0)}, nil)
	var se *StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "permission denied for table assessments", se.Err.Error())
}

func TestGrade_DoesNotPersist(t *testing.T) {
	repo := store.NewMemoryStore()
	svc, _, _ := newTestService(t, repo, llm.MockText(twoMCQs))
	ctx := context.Background()

	got, err := svc.Generate(ctx, mcqRequest(2))
	require.NoError(t, err)

	res, err := svc.Grade(ctx, got.ID, assessment.AnswerSet{assessment.Answer(1), assessment.Answer(0)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, []bool{true, true}, res.PerQuestion)

	rec, err := repo.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.False(t, rec.Submitted())
}
