package assessment

import (
	"strings"

	"go.uber.org/zap"
)

// Result is a graded answer set.
type Result struct {
	Correct int `json:"score"`
	Total   int `json:"total"`

	// PerQuestion is aligned to the questions. Questions past the end of
	// the answer set are false.
	PerQuestion []bool `json:"results"`
}

// Scorer grades answer sets. It never fails: inconsistent input only
// contributes zero and is logged as an anomaly.
type Scorer struct {
	log *zap.Logger
}

// NewScorer creates a Scorer that reports anomalies to log.
func NewScorer(log *zap.Logger) *Scorer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{log: log}
}

var defaultScorer = NewScorer(nil)

// Score counts correct answers with a no-op anomaly logger.
func Score(t Type, questions []Question, answers AnswerSet) int {
	return defaultScorer.Score(t, questions, answers)
}

// Score walks the answers index-aligned with the questions and counts
// the correct ones. Trailing questions without an answer are not scored.
//
// mcq and truefalse compare strictly: a number must equal the index, a
// boolean must equal the key. fillintheblank compares lower-cased text
// without trimming whitespace, so "PARIS " does not match "Paris".
func (s *Scorer) Score(t Type, questions []Question, answers AnswerSet) int {
	return s.Grade(t, questions, answers).Correct
}

// Grade scores answers and reports per-question correctness.
func (s *Scorer) Grade(t Type, questions []Question, answers AnswerSet) Result {
	res := Result{
		Total:       len(questions),
		PerQuestion: make([]bool, len(questions)),
	}
	for i, answer := range answers {
		if i >= len(questions) {
			s.log.Warn("answer has no corresponding question",
				zap.Int("index", i), zap.Int("questions", len(questions)))
			continue
		}
		if s.correct(t, i, questions[i], answer) {
			res.PerQuestion[i] = true
			res.Correct++
		}
	}
	return res
}

func (s *Scorer) correct(t Type, i int, q Question, answer AnswerSlot) bool {
	switch t {
	case TypeMCQ:
		if q.MCQ == nil {
			s.anomaly(t, i, "question has no correct answer")
			return false
		}
		idx, ok := answer.Index()
		if !ok {
			return false
		}
		if idx < 0 || idx >= len(q.MCQ.Options) {
			s.anomaly(t, i, "answer index outside the options")
		}
		return idx == q.MCQ.CorrectAnswer

	case TypeTrueFalse:
		if q.TrueFalse == nil {
			s.anomaly(t, i, "question has no correct answer")
			return false
		}
		b, ok := answer.Bool()
		return ok && b == q.TrueFalse.CorrectAnswer

	case TypeFillInBlank:
		if q.FillInBlank == nil || q.FillInBlank.Answer == "" {
			s.anomaly(t, i, "question has no answer")
			return false
		}
		text, ok := answer.Text()
		return ok && strings.ToLower(text) == strings.ToLower(q.FillInBlank.Answer)
	}

	s.anomaly(t, i, "unknown assessment type")
	return false
}

func (s *Scorer) anomaly(t Type, i int, msg string) {
	s.log.Debug(msg, zap.String("type", string(t)), zap.Int("index", i))
}
