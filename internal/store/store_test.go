package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	// A private file keeps parallel tests from sharing an in-memory cache.
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every Backend that runs without external services.
// Set ASSESSGEN_TEST_POSTGRES_DSN to include Postgres.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	out := map[string]Backend{
		"sqlite": openTestSQLite(t),
		"memory": NewMemoryStore(),
	}
	if dsn := os.Getenv("ASSESSGEN_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := OpenPostgres(context.Background(), dsn)
		require.NoError(t, err)
		t.Cleanup(func() { pg.Close() })
		out["postgres"] = pg
	}
	return out
}

func sampleAssessment() NewAssessment {
	return NewAssessment{
		Request: assessment.Request{
			Country:          "India",
			Board:            "CBSE",
			ClassLevel:       "Class 6",
			Subject:          "Science",
			Topic:            "Plants",
			AssessmentType:   assessment.TypeTrueFalse,
			Difficulty:       "easy",
			QuestionCount:    3,
			LearningOutcomes: []string{"Describe photosynthesis"},
		},
		Questions: []assessment.Question{
			assessment.NewTrueFalse(assessment.TrueFalse{Question: "Plants need sunlight.", CorrectAnswer: true}),
			assessment.NewTrueFalse(assessment.TrueFalse{Question: "Roots make food.", CorrectAnswer: false}),
		},
	}
}

func TestPragmasApplied(t *testing.T) {
	db := openTestSQLite(t).DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestCreateGetUpdate(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := sampleAssessment()

			id, err := b.Create(ctx, in)
			require.NoError(t, err)
			require.NotEmpty(t, id)

			rec, err := b.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, id, rec.ID)
			assert.Equal(t, "Class 6", rec.ClassLevel)
			assert.Equal(t, assessment.TypeTrueFalse, rec.AssessmentType)
			assert.Equal(t, 3, rec.QuestionCount)
			assert.Equal(t, in.Questions, rec.Questions)
			assert.Equal(t, []string{"Describe photosynthesis"}, rec.LearningOutcomes)
			assert.False(t, rec.Submitted())
			assert.Nil(t, rec.UpdatedAt)
			assert.False(t, rec.CreatedAt.IsZero())

			answers := assessment.AnswerSet{assessment.Answer(true), assessment.Unanswered()}
			updated, err := b.UpdateAnswers(ctx, id, answers, nil)
			require.NoError(t, err)
			assert.True(t, updated.Submitted())
			require.Len(t, updated.Answers, 2)
			v, ok := updated.Answers[0].Bool()
			assert.True(t, ok && v)
			assert.False(t, updated.Answers[1].Answered())
			assert.Equal(t, []string{"Describe photosynthesis"}, updated.LearningOutcomes, "nil outcomes keep the stored ones")
			assert.NotNil(t, updated.UpdatedAt)
		})
	}
}

func TestUpdateAnswers_OverwritesOutcomes(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := b.Create(ctx, sampleAssessment())
			require.NoError(t, err)

			rec, err := b.UpdateAnswers(ctx, id, assessment.AnswerSet{}, []string{"Name plant parts"})
			require.NoError(t, err)
			assert.Equal(t, []string{"Name plant parts"}, rec.LearningOutcomes)
			assert.True(t, rec.Submitted(), "an empty answer set still counts as submitted")
		})
	}
}

func TestUpdateAnswers_AtMostOnce(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := b.Create(ctx, sampleAssessment())
			require.NoError(t, err)

			_, err = b.UpdateAnswers(ctx, id, assessment.AnswerSet{assessment.Answer(false)}, nil)
			require.NoError(t, err)

			_, err = b.UpdateAnswers(ctx, id, assessment.AnswerSet{assessment.Answer(true)}, nil)
			assert.ErrorIs(t, err, ErrAlreadySubmitted)

			rec, err := b.Get(ctx, id)
			require.NoError(t, err)
			v, _ := rec.Answers[0].Bool()
			assert.False(t, v, "first submission is kept")
		})
	}
}

func TestNotFound(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			missing := "00000000-0000-0000-0000-000000000000"

			_, err := b.Get(ctx, missing)
			assert.True(t, errors.Is(err, assessment.ErrNotFound), "got %v", err)

			_, err = b.UpdateAnswers(ctx, missing, assessment.AnswerSet{}, nil)
			assert.True(t, errors.Is(err, assessment.ErrNotFound), "got %v", err)
		})
	}
}

func TestCallLog(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			calls := []llm.CallRecord{
				{Provider: "openai", Model: "gpt-4o", Purpose: llm.PurposeAssessment, InputTokens: 100, OutputTokens: 400, LatencyMs: 900, Success: true, StopReason: "end", RequestBody: "[user]\nprompt", ResponseBody: "[]"},
				{Provider: "openai", Model: "gpt-4o", Purpose: llm.PurposeAssessment, InputTokens: 120, OutputTokens: 0, LatencyMs: 100, Success: false, ErrorMessage: "rate limited"},
				{Provider: "anthropic", Model: "claude-sonnet-4-20250514", Purpose: "other", InputTokens: 10, OutputTokens: 20, LatencyMs: 50, Success: true},
			}
			var _ llm.CallRecorder = b
			for _, c := range calls {
				require.NoError(t, b.RecordCall(ctx, c))
			}

			all, err := b.ListCalls(ctx, QueryOpts{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "anthropic", all[0].Provider, "newest first")

			filtered, err := b.ListCalls(ctx, QueryOpts{Purpose: llm.PurposeAssessment, Limit: 1})
			require.NoError(t, err)
			require.Len(t, filtered, 1)
			assert.False(t, filtered[0].Success)
			assert.Equal(t, "rate limited", filtered[0].ErrorMessage)

			first, err := b.GetCall(ctx, all[2].ID)
			require.NoError(t, err)
			require.NotNil(t, first)
			assert.Equal(t, "[user]\nprompt", first.RequestBody)
			assert.Equal(t, "end", first.StopReason)
			assert.True(t, first.Success)

			none, err := b.GetCall(ctx, 9999)
			require.NoError(t, err)
			assert.Nil(t, none)

			byPurpose, err := b.UsageByPurpose(ctx)
			require.NoError(t, err)
			require.Len(t, byPurpose, 2)
			assert.Equal(t, PurposeUsage{Purpose: llm.PurposeAssessment, Calls: 2, InputTokens: 220, OutputTokens: 400, AvgLatencyMs: 500}, byPurpose[0])

			byModel, err := b.UsageByModel(ctx)
			require.NoError(t, err)
			require.Len(t, byModel, 2)
			assert.Equal(t, "claude-sonnet-4-20250514", byModel[0].Model)
			assert.Equal(t, 2, byModel[1].Calls)
		})
	}
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, Config{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, b)

	path := filepath.Join(t.TempDir(), "nested", "dir", "a.db")
	b, err = Open(ctx, Config{Driver: "sqlite", DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)

	_, err = Open(ctx, Config{Driver: "postgres"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: "mongo"})
	assert.EqualError(t, err, fmt.Sprintf("unknown store driver: %q", "mongo"))
}

func TestDefaultDBPath(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("ASSESSGEN_DB", filepath.Join(dir, "env", "x.db"))
	p, err := DefaultDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "env", "x.db"), p)

	t.Setenv("ASSESSGEN_DB", "")
	t.Setenv("XDG_DATA_HOME", dir)
	p, err = DefaultDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "assessgen", "assessgen.db"), p)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	id, err := m.Create(ctx, sampleAssessment())
	require.NoError(t, err)

	rec, err := m.Get(ctx, id)
	require.NoError(t, err)
	rec.LearningOutcomes[0] = "mutated"

	again, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Describe photosynthesis", again.LearningOutcomes[0])
	assert.Equal(t, 1, m.Len())
}
