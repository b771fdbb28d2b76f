package store

import (
	"encoding/json"
	"fmt"

	"github.com/abhisek/assessgen/internal/assessment"
)

// Column codecs shared by the SQL backends. Questions, outcomes and
// answers are stored as JSON documents.

func encodeQuestions(qs []assessment.Question) ([]byte, error) {
	if qs == nil {
		qs = []assessment.Question{}
	}
	b, err := json.Marshal(qs)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	return b, nil
}

func encodeStrings(ss []string) ([]byte, error) {
	if ss == nil {
		ss = []string{}
	}
	return json.Marshal(ss)
}

// encodeAnswers stores a nil set as an empty array; NULL is reserved
// for records that were never submitted.
func encodeAnswers(a assessment.AnswerSet) ([]byte, error) {
	if a == nil {
		a = assessment.AnswerSet{}
	}
	return json.Marshal(a)
}

func decodeColumns(rec *Record, questions, outcomes, answers []byte) error {
	qs, err := assessment.DecodeQuestions(questions, rec.AssessmentType)
	if err != nil {
		return fmt.Errorf("decode questions: %w", err)
	}
	rec.Questions = qs

	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &rec.LearningOutcomes); err != nil {
			return fmt.Errorf("decode learning outcomes: %w", err)
		}
	}
	if len(answers) > 0 {
		set, err := assessment.ParseAnswers(answers)
		if err != nil {
			return fmt.Errorf("decode answers: %w", err)
		}
		if set == nil {
			set = assessment.AnswerSet{}
		}
		rec.Answers = set
	}
	return nil
}
