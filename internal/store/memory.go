package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/llm"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Backend for tests and throwaway servers.
// Records are deep-copied in and out.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	calls   []CallEvent
	now     func() time.Time
}

var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Create(_ context.Context, in NewAssessment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := newRecord(uuid.NewString(), m.now(), in)
	m.records[rec.ID] = cloneRecord(rec)
	return rec.ID, nil
}

func (m *MemoryStore) UpdateAnswers(_ context.Context, id string, answers assessment.AnswerSet, learningOutcomes []string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", assessment.ErrNotFound, id)
	}
	if rec.Submitted() {
		return nil, ErrAlreadySubmitted
	}

	if answers == nil {
		answers = assessment.AnswerSet{}
	}
	rec.Answers = append(assessment.AnswerSet(nil), answers...)
	if learningOutcomes != nil {
		rec.LearningOutcomes = append([]string(nil), learningOutcomes...)
	}
	now := m.now()
	rec.UpdatedAt = &now
	return cloneRecord(rec), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", assessment.ErrNotFound, id)
	}
	return cloneRecord(rec), nil
}

// Len returns the number of stored assessments.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryStore) RecordCall(_ context.Context, rec llm.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, CallEvent{
		ID:         int64(len(m.calls) + 1),
		Timestamp:  m.now(),
		CallRecord: rec,
	})
	return nil
}

func (m *MemoryStore) ListCalls(_ context.Context, opts QueryOpts) ([]CallEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []CallEvent
	for i := len(m.calls) - 1; i >= 0; i-- {
		e := m.calls[i]
		if opts.Purpose != "" && e.Purpose != opts.Purpose {
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) GetCall(_ context.Context, id int64) (*CallEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 1 || id > int64(len(m.calls)) {
		return nil, nil
	}
	e := m.calls[id-1]
	return &e, nil
}

func (m *MemoryStore) UsageByPurpose(_ context.Context) ([]PurposeUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byPurpose := map[string]*PurposeUsage{}
	latency := map[string]int64{}
	for _, e := range m.calls {
		u, ok := byPurpose[e.Purpose]
		if !ok {
			u = &PurposeUsage{Purpose: e.Purpose}
			byPurpose[e.Purpose] = u
		}
		u.Calls++
		u.InputTokens += e.InputTokens
		u.OutputTokens += e.OutputTokens
		latency[e.Purpose] += e.LatencyMs
	}

	out := make([]PurposeUsage, 0, len(byPurpose))
	for p, u := range byPurpose {
		u.AvgLatencyMs = latency[p] / int64(u.Calls)
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Purpose < out[j].Purpose })
	return out, nil
}

func (m *MemoryStore) UsageByModel(_ context.Context) ([]ModelUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byModel := map[string]*ModelUsage{}
	for _, e := range m.calls {
		u, ok := byModel[e.Model]
		if !ok {
			u = &ModelUsage{Model: e.Model}
			byModel[e.Model] = u
		}
		u.Calls++
		u.InputTokens += e.InputTokens
		u.OutputTokens += e.OutputTokens
	}

	out := make([]ModelUsage, 0, len(byModel))
	for _, u := range byModel {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}

func cloneRecord(r *Record) *Record {
	c := *r
	c.Questions = append([]assessment.Question(nil), r.Questions...)
	c.LearningOutcomes = append([]string(nil), r.LearningOutcomes...)
	if r.Answers != nil {
		c.Answers = append(assessment.AnswerSet{}, r.Answers...)
	}
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}
