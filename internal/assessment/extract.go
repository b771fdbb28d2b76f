package assessment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/abhisek/assessgen/internal/llm"
)

// ExtractPayload locates the structured payload in free-form generator
// output: the region from the first '[' to the last ']'. Prose or code
// fences around the array are discarded.
func ExtractPayload(raw string) ([]json.RawMessage, error) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end < start {
		return nil, ErrNoStructuredPayload
	}
	region := raw[start : end+1]

	var v any
	if err := json.Unmarshal([]byte(region), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, ok := v.([]any); !ok {
		return nil, fmt.Errorf("%w: expected an array of questions", ErrUnexpectedShape)
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(region), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return items, nil
}

// Extract parses generator output into questions of type t. Every element
// is checked against the type's schema and upgraded into its variant; one
// bad element fails the whole extraction with ErrUnexpectedShape. The
// number of questions is not checked against the requested count.
func Extract(raw string, t Type) ([]Question, error) {
	if _, err := ParseType(string(t)); err != nil {
		return nil, err
	}
	items, err := ExtractPayload(raw)
	if err != nil {
		return nil, err
	}
	// An empty array is a failed generation here, not an empty assessment.
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no questions in payload", ErrUnexpectedShape)
	}
	return decodeItems(items, t)
}

// DecodeQuestions upgrades a stored JSON question array into variants.
func DecodeQuestions(data []byte, t Type) ([]Question, error) {
	if _, err := ParseType(string(t)); err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	return decodeItems(items, t)
}

func decodeItems(items []json.RawMessage, t Type) ([]Question, error) {
	schema, err := ItemSchema(t)
	if err != nil {
		return nil, err
	}
	questions := make([]Question, 0, len(items))
	for i, item := range items {
		q, err := upgrade(item, t, schema)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// upgrade turns one raw element into the variant for t.
func upgrade(item json.RawMessage, t Type, schema *llm.Schema) (Question, error) {
	var v any
	if err := json.Unmarshal(item, &v); err != nil {
		return Question{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := llm.ValidateValue(schema, v); err != nil {
		return Question{}, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}

	dec := json.NewDecoder(bytes.NewReader(item))
	switch t {
	case TypeMCQ:
		// correctAnswer may arrive as 2.0; the schema has already checked
		// it is integral and in range.
		var q struct {
			Question      string   `json:"question"`
			Options       []string `json:"options"`
			CorrectAnswer float64  `json:"correctAnswer"`
		}
		if err := dec.Decode(&q); err != nil {
			return Question{}, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		if q.CorrectAnswer != math.Trunc(q.CorrectAnswer) {
			return Question{}, fmt.Errorf("%w: correctAnswer %v is not an index", ErrUnexpectedShape, q.CorrectAnswer)
		}
		return NewMCQ(MCQ{Question: q.Question, Options: q.Options, CorrectAnswer: int(q.CorrectAnswer)}), nil

	case TypeTrueFalse:
		var q TrueFalse
		if err := dec.Decode(&q); err != nil {
			return Question{}, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		return NewTrueFalse(q), nil

	case TypeFillInBlank:
		var q FillInBlank
		if err := dec.Decode(&q); err != nil {
			return Question{}, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		if !strings.Contains(q.Question, BlankMarker) {
			return Question{}, fmt.Errorf("%w: question has no %s blank", ErrUnexpectedShape, BlankMarker)
		}
		if !containsOption(q.Options, q.Answer) {
			return Question{}, fmt.Errorf("%w: answer %q is not among the options", ErrUnexpectedShape, q.Answer)
		}
		return NewFillInBlank(q), nil
	}
	return Question{}, fmt.Errorf("%w: %q", ErrInvalidAssessmentType, t)
}

func containsOption(options []string, answer string) bool {
	for _, o := range options {
		if strings.EqualFold(o, answer) {
			return true
		}
	}
	return false
}
