package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/llm"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the hosted Backend. Questions, outcomes and answers
// are JSONB columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Backend = (*PostgresStore)(nil)

// OpenPostgres connects to dsn, verifies the connection and runs
// migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS assessments (
		id                UUID PRIMARY KEY,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ,
		country           TEXT NOT NULL,
		board             TEXT NOT NULL,
		class_level       TEXT NOT NULL,
		subject           TEXT NOT NULL,
		topic             TEXT NOT NULL,
		assessment_type   TEXT NOT NULL,
		difficulty        TEXT NOT NULL,
		question_count    INTEGER NOT NULL,
		questions         JSONB NOT NULL,
		learning_outcomes JSONB NOT NULL,
		answers           JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS llm_calls (
		id            BIGSERIAL PRIMARY KEY,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		provider      TEXT NOT NULL,
		model         TEXT NOT NULL,
		purpose       TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms    BIGINT NOT NULL DEFAULT 0,
		success       BOOLEAN NOT NULL,
		stop_reason   TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		request_body  TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS llm_calls_purpose ON llm_calls (purpose)`,
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, in NewAssessment) (string, error) {
	questions, err := encodeQuestions(in.Questions)
	if err != nil {
		return "", err
	}
	outcomes, err := encodeStrings(in.Request.LearningOutcomes)
	if err != nil {
		return "", err
	}

	req := in.Request
	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO assessments (id, country, board, class_level, subject, topic, assessment_type,
			difficulty, question_count, questions, learning_outcomes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id::text`,
		uuid.NewString(), req.Country, req.Board, req.ClassLevel, req.Subject, req.Topic,
		string(req.AssessmentType), req.Difficulty, req.QuestionCount, questions, outcomes,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert assessment: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) UpdateAnswers(ctx context.Context, id string, answers assessment.AnswerSet, learningOutcomes []string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", assessment.ErrNotFound, id)
	}
	encoded, err := encodeAnswers(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	var outcomes []byte
	if learningOutcomes != nil {
		if outcomes, err = encodeStrings(learningOutcomes); err != nil {
			return nil, fmt.Errorf("encode learning outcomes: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE assessments
		SET answers = $1, learning_outcomes = COALESCE($2::jsonb, learning_outcomes), updated_at = now()
		WHERE id = $3 AND answers IS NULL`,
		encoded, outcomes, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update answers: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadySubmitted
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", assessment.ErrNotFound, id)
	}

	var (
		rec                          Record
		typ                          string
		questions, outcomes, answers []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, created_at, updated_at, country, board, class_level, subject, topic,
			assessment_type, difficulty, question_count, questions, learning_outcomes, answers
		FROM assessments WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt, &rec.Country, &rec.Board, &rec.ClassLevel,
		&rec.Subject, &rec.Topic, &typ, &rec.Difficulty, &rec.QuestionCount, &questions, &outcomes, &answers)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", assessment.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query assessment: %w", err)
	}

	rec.AssessmentType = assessment.Type(typ)
	if err := decodeColumns(&rec, questions, outcomes, answers); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) RecordCall(ctx context.Context, c llm.CallRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO llm_calls (provider, model, purpose, input_tokens, output_tokens, latency_ms, success,
			stop_reason, error_message, request_body, response_body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.Provider, c.Model, c.Purpose, c.InputTokens, c.OutputTokens, c.LatencyMs, c.Success,
		c.StopReason, c.ErrorMessage, c.RequestBody, c.ResponseBody,
	)
	if err != nil {
		return fmt.Errorf("save generation call: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCalls(ctx context.Context, opts QueryOpts) ([]CallEvent, error) {
	query := `SELECT ` + callColumns + ` FROM llm_calls`
	var args []any
	if opts.Purpose != "" {
		args = append(args, opts.Purpose)
		query += fmt.Sprintf(` WHERE purpose = $%d`, len(args))
	}
	query += ` ORDER BY id DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query generation calls: %w", err)
	}
	defer rows.Close()

	var out []CallEvent
	for rows.Next() {
		e, err := scanPostgresCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generation calls: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetCall(ctx context.Context, id int64) (*CallEvent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+callColumns+` FROM llm_calls WHERE id = $1`, id)
	e, err := scanPostgresCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func scanPostgresCall(row pgx.Row) (*CallEvent, error) {
	var (
		e  CallEvent
		ts time.Time
	)
	err := row.Scan(&e.ID, &ts, &e.Provider, &e.Model, &e.Purpose, &e.InputTokens, &e.OutputTokens,
		&e.LatencyMs, &e.Success, &e.StopReason, &e.ErrorMessage, &e.RequestBody, &e.ResponseBody)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan generation call: %w", err)
	}
	e.Timestamp = ts
	return &e, nil
}

func (s *PostgresStore) UsageByPurpose(ctx context.Context) ([]PurposeUsage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT purpose, COUNT(*)::int, COALESCE(SUM(input_tokens), 0)::int,
			COALESCE(SUM(output_tokens), 0)::int, COALESCE(AVG(latency_ms), 0)::bigint
		FROM llm_calls GROUP BY purpose ORDER BY purpose`)
	if err != nil {
		return nil, fmt.Errorf("query usage by purpose: %w", err)
	}
	defer rows.Close()

	var out []PurposeUsage
	for rows.Next() {
		var u PurposeUsage
		if err := rows.Scan(&u.Purpose, &u.Calls, &u.InputTokens, &u.OutputTokens, &u.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UsageByModel(ctx context.Context) ([]ModelUsage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT model, COUNT(*)::int, COALESCE(SUM(input_tokens), 0)::int, COALESCE(SUM(output_tokens), 0)::int
		FROM llm_calls GROUP BY model ORDER BY model`)
	if err != nil {
		return nil, fmt.Errorf("query usage by model: %w", err)
	}
	defer rows.Close()

	var out []ModelUsage
	for rows.Next() {
		var u ModelUsage
		if err := rows.Scan(&u.Model, &u.Calls, &u.InputTokens, &u.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
