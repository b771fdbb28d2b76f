package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/llm"
	"github.com/google/uuid"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// SQLiteStore is the default local Backend.
type SQLiteStore struct {
	db *sql.DB
}

var _ Backend = (*SQLiteStore)(nil)

// OpenSQLite opens the SQLite database at dsn, applies pragmas and runs
// migrations.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS assessments (
		id                TEXT PRIMARY KEY,
		created_at        TEXT NOT NULL,
		updated_at        TEXT,
		country           TEXT NOT NULL,
		board             TEXT NOT NULL,
		class_level       TEXT NOT NULL,
		subject           TEXT NOT NULL,
		topic             TEXT NOT NULL,
		assessment_type   TEXT NOT NULL,
		difficulty        TEXT NOT NULL,
		question_count    INTEGER NOT NULL,
		questions         TEXT NOT NULL,
		learning_outcomes TEXT NOT NULL,
		answers           TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS llm_calls (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at    TEXT NOT NULL,
		provider      TEXT NOT NULL,
		model         TEXT NOT NULL,
		purpose       TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms    INTEGER NOT NULL DEFAULT 0,
		success       INTEGER NOT NULL,
		stop_reason   TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		request_body  TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS llm_calls_purpose ON llm_calls (purpose)`,
}

func migrateSQLite(db *sql.DB) error {
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const sqliteTime = time.RFC3339Nano

func (s *SQLiteStore) Create(ctx context.Context, in NewAssessment) (string, error) {
	questions, err := encodeQuestions(in.Questions)
	if err != nil {
		return "", err
	}
	outcomes, err := encodeStrings(in.Request.LearningOutcomes)
	if err != nil {
		return "", err
	}

	rec := newRecord(uuid.NewString(), time.Now().UTC(), in)
	_, err = s.db.ExecContext(ctx, `INSERT INTO assessments
		(id, created_at, country, board, class_level, subject, topic, assessment_type, difficulty,
		 question_count, questions, learning_outcomes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.Format(sqliteTime), rec.Country, rec.Board, rec.ClassLevel, rec.Subject,
		rec.Topic, string(rec.AssessmentType), rec.Difficulty, rec.QuestionCount,
		string(questions), string(outcomes),
	)
	if err != nil {
		return "", fmt.Errorf("insert assessment: %w", err)
	}
	return rec.ID, nil
}

func (s *SQLiteStore) UpdateAnswers(ctx context.Context, id string, answers assessment.AnswerSet, learningOutcomes []string) (*Record, error) {
	encoded, err := encodeAnswers(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	var outcomes any
	if learningOutcomes != nil {
		b, err := encodeStrings(learningOutcomes)
		if err != nil {
			return nil, fmt.Errorf("encode learning outcomes: %w", err)
		}
		outcomes = string(b)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE assessments
		SET answers = ?, learning_outcomes = COALESCE(?, learning_outcomes), updated_at = ?
		WHERE id = ? AND answers IS NULL`,
		string(encoded), outcomes, time.Now().UTC().Format(sqliteTime), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update answers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update answers: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadySubmitted
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	var (
		rec                      Record
		createdAt                string
		updatedAt, answers       sql.NullString
		typ, questions, outcomes string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, created_at, updated_at, country, board, class_level,
		subject, topic, assessment_type, difficulty, question_count, questions, learning_outcomes, answers
		FROM assessments WHERE id = ?`, id,
	).Scan(&rec.ID, &createdAt, &updatedAt, &rec.Country, &rec.Board, &rec.ClassLevel,
		&rec.Subject, &rec.Topic, &typ, &rec.Difficulty, &rec.QuestionCount, &questions, &outcomes, &answers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", assessment.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query assessment: %w", err)
	}

	rec.AssessmentType = assessment.Type(typ)
	if rec.CreatedAt, err = time.Parse(sqliteTime, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if updatedAt.Valid {
		t, err := time.Parse(sqliteTime, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		rec.UpdatedAt = &t
	}

	var answerBytes []byte
	if answers.Valid {
		answerBytes = []byte(answers.String)
	}
	if err := decodeColumns(&rec, []byte(questions), []byte(outcomes), answerBytes); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) RecordCall(ctx context.Context, c llm.CallRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO llm_calls
		(created_at, provider, model, purpose, input_tokens, output_tokens, latency_ms, success,
		 stop_reason, error_message, request_body, response_body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(sqliteTime), c.Provider, c.Model, c.Purpose, c.InputTokens, c.OutputTokens,
		c.LatencyMs, c.Success, c.StopReason, c.ErrorMessage, c.RequestBody, c.ResponseBody,
	)
	if err != nil {
		return fmt.Errorf("save generation call: %w", err)
	}
	return nil
}

const callColumns = `id, created_at, provider, model, purpose, input_tokens, output_tokens, latency_ms,
	success, stop_reason, error_message, request_body, response_body`

func (s *SQLiteStore) ListCalls(ctx context.Context, opts QueryOpts) ([]CallEvent, error) {
	query := `SELECT ` + callColumns + ` FROM llm_calls`
	var args []any
	if opts.Purpose != "" {
		query += ` WHERE purpose = ?`
		args = append(args, opts.Purpose)
	}
	query += ` ORDER BY id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query generation calls: %w", err)
	}
	defer rows.Close()

	var out []CallEvent
	for rows.Next() {
		e, err := scanSQLiteCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetCall(ctx context.Context, id int64) (*CallEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM llm_calls WHERE id = ?`, id)
	e, err := scanSQLiteCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCall(row rowScanner) (*CallEvent, error) {
	var (
		e  CallEvent
		ts string
	)
	err := row.Scan(&e.ID, &ts, &e.Provider, &e.Model, &e.Purpose, &e.InputTokens, &e.OutputTokens,
		&e.LatencyMs, &e.Success, &e.StopReason, &e.ErrorMessage, &e.RequestBody, &e.ResponseBody)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan generation call: %w", err)
	}
	if e.Timestamp, err = time.Parse(sqliteTime, ts); err != nil {
		return nil, fmt.Errorf("parse call timestamp: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) UsageByPurpose(ctx context.Context) ([]PurposeUsage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT purpose, COUNT(*), COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0), CAST(COALESCE(AVG(latency_ms), 0) AS INTEGER)
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

func (s *SQLiteStore) UsageByModel(ctx context.Context) ([]ModelUsage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT model, COUNT(*), COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0)
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
