package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/llm"
	"github.com/abhisek/assessgen/internal/metrics"
	"github.com/abhisek/assessgen/internal/service"
	"github.com/abhisek/assessgen/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoMCQs = `[` +
	`{"question":"2+2?","options":["3","4","5","6"],"correctAnswer":1},` +
	`{"question":"3+3?","options":["6","7","8","9"],"correctAnswer":0}` +
	`]`

const generateBody = `{
	"country": "India",
	"board": "CBSE",
	"classLevel": "Class 3",
	"subject": "Mathematics",
	"topic": "Addition",
	"assessmentType": "mcq",
	"difficulty": "easy",
	"questionCount": 2,
	"learningOutcomes": ["Add two digit numbers"]
}`

type fixture struct {
	handler http.Handler
	repo    *store.MemoryStore
	mock    *llm.MockProvider
}

func newFixture(t *testing.T, mode string, repo store.AssessmentRepo, responses ...llm.MockResponse) fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	if repo == nil {
		repo = mem
	}
	mock := llm.NewMockProvider(responses...)
	m := metrics.New()
	gen := assessment.NewGenerator(mock, assessment.DefaultConfig(), nil)
	svc := service.New(gen, repo, m, nil)
	srv := New(svc, Options{Mode: mode, Metrics: m, Store: mem})
	return fixture{handler: srv.Handler(), repo: mem, mock: mock}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// generate creates an assessment through the API and returns its id.
func generate(t *testing.T, f fixture) string {
	t.Helper()
	w := do(t, f.handler, http.MethodPost, "/api/generate-assessment", generateBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[GenerateResponse](t, w).ID
}

func TestGenerate_Success(t *testing.T) {
	f := newFixture(t, "test", nil, llm.MockText("Sure!\n"+twoMCQs))

	w := do(t, f.handler, http.MethodPost, "/api/generate-assessment", generateBody)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Assessment []map[string]any `json:"assessment"`
		ID         string           `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ID)
	require.Len(t, body.Assessment, 2)
	assert.Equal(t, "2+2?", body.Assessment[0]["question"])
	assert.Equal(t, float64(1), body.Assessment[0]["correctAnswer"])
	assert.Equal(t, 1, f.repo.Len())
	assert.Contains(t, f.mock.LastPrompt(), `"Addition"`)
}

func TestGenerate_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"country":`},
		{"count as string", strings.Replace(generateBody, `"questionCount": 2`, `"questionCount": "two"`, 1)},
		{"unknown type", strings.Replace(generateBody, `"mcq"`, `"essay"`, 1)},
		{"missing topic", strings.Replace(generateBody, `"topic": "Addition",`, ``, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "test", nil)
			w := do(t, f.handler, http.MethodPost, "/api/generate-assessment", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, "Failed to generate assessment", resp.Error)
			assert.NotEmpty(t, resp.Details)
			assert.Equal(t, 0, f.mock.CallCount(), "no generation call for a bad request")
		})
	}
}

func TestGenerate_ExtractionFailure(t *testing.T) {
	f := newFixture(t, "test", nil, llm.MockText("I cannot help with that."))

	w := do(t, f.handler, http.MethodPost, "/api/generate-assessment", generateBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "Failed to generate assessment", resp.Error)
	assert.Equal(t, "no valid JSON found in the response", resp.Details)
	assert.Contains(t, resp.Stack, "(*Server).generate", "stack names the handler that reported the failure")
	assert.Equal(t, 0, f.repo.Len())
}

type rejectingRepo struct {
	store.AssessmentRepo
}

func (rejectingRepo) Create(context.Context, store.NewAssessment) (string, error) {
	return "", errors.New("relation \"assessments\" does not exist")
}

func TestGenerate_PersistenceFailureIsReported(t *testing.T) {
	f := newFixture(t, "release", rejectingRepo{AssessmentRepo: store.NewMemoryStore()}, llm.MockText(twoMCQs))

	w := do(t, f.handler, http.MethodPost, "/api/generate-assessment", generateBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "Failed to generate assessment", resp.Error)
	assert.Equal(t, `failed to save assessment: relation "assessments" does not exist`, resp.Details)
	assert.Empty(t, resp.Stack, "release mode hides stacks")
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t, "test", nil, llm.MockText(twoMCQs))
	id := generate(t, f)

	body := `{"id":"` + id + `","answers":[1,null],"learningOutcomes":["Carry over"]}`
	w := do(t, f.handler, http.MethodPut, "/api/generate-assessment", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ID               string   `json:"id"`
			Answers          []any    `json:"answers"`
			LearningOutcomes []string `json:"learning_outcomes"`
			Result           struct {
				Score   int    `json:"score"`
				Total   int    `json:"total"`
				Results []bool `json:"results"`
			} `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, id, resp.Data.ID)
	assert.Equal(t, []any{float64(1), nil}, resp.Data.Answers)
	assert.Equal(t, []string{"Carry over"}, resp.Data.LearningOutcomes)
	assert.Equal(t, 1, resp.Data.Result.Score)
	assert.Equal(t, 2, resp.Data.Result.Total)
	assert.Equal(t, []bool{true, false}, resp.Data.Result.Results)
}

func TestSubmit_Failures(t *testing.T) {
	f := newFixture(t, "test", nil, llm.MockText(twoMCQs))
	id := generate(t, f)

	tests := []struct {
		name    string
		body    string
		status  int
		details string
	}{
		{"missing id", `{"answers":[0]}`, http.StatusBadRequest, "id is required"},
		{"answers not array", `{"id":"` + id + `","answers":{"0":1}}`, http.StatusBadRequest, "answers must be an array"},
		{"answers missing", `{"id":"` + id + `"}`, http.StatusBadRequest, "answers must be an array"},
		{"unknown id", `{"id":"nope","answers":[0]}`, http.StatusNotFound, "assessment not found: nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, f.handler, http.MethodPut, "/api/generate-assessment", tt.body)
			assert.Equal(t, tt.status, w.Code)
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, "Failed to update answers", resp.Error)
			assert.Equal(t, tt.details, resp.Details)
		})
	}

	t.Run("second submission", func(t *testing.T) {
		body := `{"id":"` + id + `","answers":[1,0]}`
		require.Equal(t, http.StatusOK, do(t, f.handler, http.MethodPut, "/api/generate-assessment", body).Code)
		w := do(t, f.handler, http.MethodPut, "/api/generate-assessment", body)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "answers already submitted", decode[ErrorResponse](t, w).Details)
	})
}

func TestShowAndScore(t *testing.T) {
	f := newFixture(t, "test", nil, llm.MockText(twoMCQs))
	id := generate(t, f)

	w := do(t, f.handler, http.MethodPost, "/api/assessments/"+id+"/score", `{"answers":[1,0]}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[assessment.Result](t, w)
	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, 2, res.Total)

	w = do(t, f.handler, http.MethodGet, "/api/assessments/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var shown map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &shown))
	data := shown["data"].(map[string]any)
	assert.Equal(t, "mcq", data["assessment_type"])
	assert.Nil(t, data["answers"], "scoring does not persist answers")
	assert.NotContains(t, data, "result")

	w = do(t, f.handler, http.MethodGet, "/api/assessments/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, f.handler, http.MethodPost, "/api/assessments/missing/score", `{"answers":[]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, "test", nil, llm.MockText(twoMCQs))
	generate(t, f)

	w := do(t, f.handler, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","components":{"store":"up"}}`, w.Body.String())

	w = do(t, f.handler, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `assessgen_assessments_generated_total{outcome="ok",type="mcq"} 1`)
	assert.Contains(t, body, `http_requests_total{endpoint="/api/generate-assessment",method="POST",status="200"} 1`)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, "test", nil)

	w := do(t, f.handler, http.MethodGet, "/healthz", "")
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
