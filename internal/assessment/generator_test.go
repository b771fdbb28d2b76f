package assessment

import (
	"context"
	"errors"
	"testing"

	"github.com/abhisek/assessgen/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoMCQs = "Sure! Here are your questions:\n```json\n[" +
	`{"question":"Capital of Italy?","options":["Rome","Milan","Turin","Naples"],"correctAnswer":0},` +
	`{"question":"Capital of Spain?","options":["Seville","Madrid","Valencia","Bilbao"],"correctAnswer":1}` +
	"]\n```\nGood luck!"

func TestGenerate_SingleCallWithFixedKnobs(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockText(twoMCQs))
	gen := NewGenerator(mock, DefaultConfig(), nil)

	a, err := gen.Generate(context.Background(), testRequest(TypeMCQ))
	require.NoError(t, err)
	assert.Equal(t, TypeMCQ, a.Type)
	assert.Equal(t, 2, a.Len())

	require.Equal(t, 1, mock.CallCount())
	call := mock.Calls[0]
	assert.Equal(t, 0.7, call.Temperature)
	assert.Equal(t, 2000, call.MaxTokens)
	assert.Nil(t, call.Schema)

	want, _ := BuildPrompt(testRequest(TypeMCQ))
	assert.Equal(t, want, mock.LastPrompt())
}

func TestGenerate_FewerQuestionsThanRequestedIsAccepted(t *testing.T) {
	req := testRequest(TypeMCQ)
	req.QuestionCount = 3

	gen := NewGenerator(llm.NewMockProvider(llm.MockText(twoMCQs)), DefaultConfig(), nil)
	a, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Len())
}

func TestGenerate_InvalidTypeMakesNoCall(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockText(twoMCQs))
	gen := NewGenerator(mock, DefaultConfig(), nil)

	_, err := gen.Generate(context.Background(), testRequest("essay"))
	assert.ErrorIs(t, err, ErrInvalidAssessmentType)
	assert.Equal(t, 0, mock.CallCount())
}

func TestGenerate_ProviderErrorIsNotRetried(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("503")}},
		llm.MockText(twoMCQs),
	)
	gen := NewGenerator(mock, DefaultConfig(), nil)

	_, err := gen.Generate(context.Background(), testRequest(TypeMCQ))
	var unavail *llm.ErrProviderUnavailable
	assert.True(t, errors.As(err, &unavail))
	assert.Equal(t, 1, mock.CallCount())
}

func TestGenerate_ExtractionFailures(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"prose only", "I cannot help with that.", ErrNoStructuredPayload},
		{"broken json", `[{"question": "Q",]`, ErrMalformedPayload},
		{"wrong variant", `[{"question":"Q","correctAnswer":true}]`, ErrUnexpectedShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(llm.NewMockProvider(llm.MockText(tt.text)), DefaultConfig(), nil)
			_, err := gen.Generate(context.Background(), testRequest(TypeMCQ))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGenerate_TruncatedOutputReportsMaxTokens(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content:    []byte(`[{"question":"Capital of Italy?","options":["Rome","Mil`),
		StopReason: llm.StopMaxTokens,
	})
	gen := NewGenerator(mock, DefaultConfig(), nil)

	_, err := gen.Generate(context.Background(), testRequest(TypeMCQ))
	assert.ErrorIs(t, err, ErrNoStructuredPayload)
	var trunc *llm.ErrMaxTokensExceeded
	assert.True(t, errors.As(err, &trunc))
}

func TestGenerate_RefusalIsReported(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content:    []byte("I can't help with that."),
		StopReason: llm.StopRefused,
	})
	gen := NewGenerator(mock, DefaultConfig(), nil)

	_, err := gen.Generate(context.Background(), testRequest(TypeTrueFalse))
	assert.ErrorIs(t, err, ErrNoStructuredPayload)
	var refused *llm.ErrRefused
	require.True(t, errors.As(err, &refused))
	assert.Contains(t, refused.Error(), "I can't help with that.")
}

func TestGenerate_StructuredMode(t *testing.T) {
	body := `{"questions":[{"question":"The Thames flows through London.","correctAnswer":true}]}`
	mock := llm.NewMockProvider(llm.MockText(body))

	cfg := DefaultConfig()
	cfg.Structured = true
	gen := NewGenerator(mock, cfg, nil)

	a, err := gen.Generate(context.Background(), testRequest(TypeTrueFalse))
	require.NoError(t, err)
	require.Equal(t, 1, a.Len())
	assert.True(t, a.Questions[0].TrueFalse.CorrectAnswer)

	require.NotNil(t, mock.Calls[0].Schema)
	assert.Equal(t, "truefalse-assessment", mock.Calls[0].Schema.Name)
}
