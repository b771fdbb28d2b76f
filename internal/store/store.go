package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/llm"
)

// ErrAlreadySubmitted is returned when answers are attached to a record
// that already has them. A record is created once and updated at most once.
var ErrAlreadySubmitted = errors.New("answers already submitted")

// Record is one persisted assessment. Answers is nil until submitted.
type Record struct {
	ID               string                `json:"id"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        *time.Time            `json:"updated_at,omitempty"`
	Country          string                `json:"country"`
	Board            string                `json:"board"`
	ClassLevel       string                `json:"class_level"`
	Subject          string                `json:"subject"`
	Topic            string                `json:"topic"`
	AssessmentType   assessment.Type       `json:"assessment_type"`
	Difficulty       string                `json:"difficulty"`
	QuestionCount    int                   `json:"question_count"`
	Questions        []assessment.Question `json:"questions"`
	LearningOutcomes []string              `json:"learning_outcomes"`
	Answers          assessment.AnswerSet  `json:"answers"`

	// Result is computed by the caller when answers are present; it is
	// not stored.
	Result *assessment.Result `json:"result,omitempty"`
}

// Assessment returns the record's questions as an Assessment.
func (r *Record) Assessment() *assessment.Assessment {
	return &assessment.Assessment{Type: r.AssessmentType, Questions: r.Questions}
}

// Submitted reports whether answers have been attached.
func (r *Record) Submitted() bool {
	return r.Answers != nil
}

// NewAssessment is the input to Create: the request plus its validated
// questions.
type NewAssessment struct {
	Request   assessment.Request
	Questions []assessment.Question
}

func newRecord(id string, now time.Time, in NewAssessment) *Record {
	req := in.Request
	return &Record{
		ID:               id,
		CreatedAt:        now,
		Country:          req.Country,
		Board:            req.Board,
		ClassLevel:       req.ClassLevel,
		Subject:          req.Subject,
		Topic:            req.Topic,
		AssessmentType:   req.AssessmentType,
		Difficulty:       req.Difficulty,
		QuestionCount:    req.QuestionCount,
		Questions:        in.Questions,
		LearningOutcomes: req.LearningOutcomes,
	}
}

// AssessmentRepo persists assessments.
type AssessmentRepo interface {
	// Create writes a new record and returns its generated identifier.
	Create(ctx context.Context, in NewAssessment) (string, error)

	// UpdateAnswers attaches answers to a record. A nil learningOutcomes
	// keeps the stored outcomes. Returns assessment.ErrNotFound for an
	// unknown id and ErrAlreadySubmitted on a second update.
	UpdateAnswers(ctx context.Context, id string, answers assessment.AnswerSet, learningOutcomes []string) (*Record, error)

	// Get returns a record, or assessment.ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
}

// QueryOpts filters generation call listings.
type QueryOpts struct {
	Limit   int    // max results (0 = unlimited)
	Purpose string // exact match; empty matches all
}

// CallEvent is a recorded generation call.
type CallEvent struct {
	ID        int64
	Timestamp time.Time
	llm.CallRecord
}

// PurposeUsage aggregates generation calls by purpose.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage aggregates generation calls by model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// CallLog stores and queries generation calls. It satisfies
// llm.CallRecorder.
type CallLog interface {
	llm.CallRecorder
	ListCalls(ctx context.Context, opts QueryOpts) ([]CallEvent, error)

	// GetCall returns nil, nil when no call has the id.
	GetCall(ctx context.Context, id int64) (*CallEvent, error)
	UsageByPurpose(ctx context.Context) ([]PurposeUsage, error)
	UsageByModel(ctx context.Context) ([]ModelUsage, error)
}

// Backend is a complete store: assessments plus the call log.
type Backend interface {
	AssessmentRepo
	CallLog
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a Backend.
type Config struct {
	// Driver is "sqlite", "postgres" or "memory".
	Driver string `mapstructure:"driver"`

	// DSN is the SQLite file path or the Postgres connection string.
	// Empty for sqlite means DefaultDBPath.
	DSN string `mapstructure:"dsn"`
}

// Open constructs the configured backend. The caller owns the returned
// handle and must Close it.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			p, err := DefaultDBPath()
			if err != nil {
				return nil, fmt.Errorf("resolve database path: %w", err)
			}
			dsn = p
		} else if err := EnsureDir(dsn); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		return OpenSQLite(dsn)
	case "postgres":
		if cfg.DSN == "" {
			return nil, errors.New("store.dsn is required for the postgres driver")
		}
		return OpenPostgres(ctx, cfg.DSN)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
}

// DefaultDBPath resolves the SQLite file path in priority order:
// 1. ASSESSGEN_DB environment variable
// 2. $XDG_DATA_HOME/assessgen/assessgen.db
// 3. ~/.local/share/assessgen/assessgen.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("ASSESSGEN_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "assessgen", "assessgen.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
// In-memory SQLite DSNs are left alone.
func EnsureDir(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
