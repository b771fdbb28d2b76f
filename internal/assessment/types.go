package assessment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Type is the assessment style. Every question in an assessment has the
// shape of its Type.
type Type string

const (
	TypeMCQ         Type = "mcq"
	TypeTrueFalse   Type = "truefalse"
	TypeFillInBlank Type = "fillintheblank"
)

// Types lists the supported assessment types.
var Types = []Type{TypeMCQ, TypeTrueFalse, TypeFillInBlank}

// ParseType converts a caller-supplied string into a Type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeMCQ, TypeTrueFalse, TypeFillInBlank:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAssessmentType, s)
}

// Request holds the curriculum context for one assessment. It is the
// immutable input to the generation pipeline.
type Request struct {
	Country          string   `json:"country"`
	Board            string   `json:"board"`
	ClassLevel       string   `json:"classLevel"`
	Subject          string   `json:"subject"`
	Topic            string   `json:"topic"`
	AssessmentType   Type     `json:"assessmentType"`
	Difficulty       string   `json:"difficulty"`
	QuestionCount    int      `json:"questionCount"`
	LearningOutcomes []string `json:"learningOutcomes"`
}

// Validate checks that every field is present. An unknown assessment
// type is reported as ErrInvalidAssessmentType, everything else as
// ErrInvalidRequest.
func (r Request) Validate() error {
	if _, err := ParseType(string(r.AssessmentType)); err != nil {
		return err
	}

	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"country", r.Country},
		{"board", r.Board},
		{"classLevel", r.ClassLevel},
		{"subject", r.Subject},
		{"topic", r.Topic},
		{"difficulty", r.Difficulty},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if r.QuestionCount <= 0 {
		return fmt.Errorf("%w: questionCount must be positive, got %d", ErrInvalidRequest, r.QuestionCount)
	}
	if len(r.LearningOutcomes) == 0 {
		return fmt.Errorf("%w: learningOutcomes must not be empty", ErrInvalidRequest)
	}
	return nil
}

// MCQ is a multiple-choice question with exactly four options.
type MCQ struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// TrueFalse is a statement the learner marks true or false.
type TrueFalse struct {
	Question      string `json:"question"`
	CorrectAnswer bool   `json:"correctAnswer"`
}

// FillInBlank is a question with a "___" blank. Answer is one of the
// four Options.
type FillInBlank struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Options  []string `json:"options"`
}

// Question is a tagged variant: Kind names which one of the variant
// pointers is set.
type Question struct {
	Kind        Type
	MCQ         *MCQ
	TrueFalse   *TrueFalse
	FillInBlank *FillInBlank
}

// NewMCQ, NewTrueFalse and NewFillInBlank build single-variant questions.
func NewMCQ(q MCQ) Question                 { return Question{Kind: TypeMCQ, MCQ: &q} }
func NewTrueFalse(q TrueFalse) Question     { return Question{Kind: TypeTrueFalse, TrueFalse: &q} }
func NewFillInBlank(q FillInBlank) Question { return Question{Kind: TypeFillInBlank, FillInBlank: &q} }

// Text returns the question prompt, or "" for an empty variant.
func (q Question) Text() string {
	switch {
	case q.MCQ != nil:
		return q.MCQ.Question
	case q.TrueFalse != nil:
		return q.TrueFalse.Question
	case q.FillInBlank != nil:
		return q.FillInBlank.Question
	}
	return ""
}

// Options returns the answer choices, or nil for true/false questions.
func (q Question) Options() []string {
	switch {
	case q.MCQ != nil:
		return q.MCQ.Options
	case q.FillInBlank != nil:
		return q.FillInBlank.Options
	}
	return nil
}

// MarshalJSON emits the flat object shape the generator produces.
func (q Question) MarshalJSON() ([]byte, error) {
	switch q.Kind {
	case TypeMCQ:
		if q.MCQ != nil {
			return json.Marshal(q.MCQ)
		}
	case TypeTrueFalse:
		if q.TrueFalse != nil {
			return json.Marshal(q.TrueFalse)
		}
	case TypeFillInBlank:
		if q.FillInBlank != nil {
			return json.Marshal(q.FillInBlank)
		}
	}
	return nil, fmt.Errorf("question has no %q variant", q.Kind)
}

// Assessment is an ordered list of questions of a single Type.
type Assessment struct {
	Type      Type       `json:"assessmentType"`
	Questions []Question `json:"questions"`
}

// Len returns the number of questions.
func (a *Assessment) Len() int { return len(a.Questions) }

// AnswerSlot holds one learner response as raw JSON. The zero value and
// JSON null both mean unanswered.
type AnswerSlot struct {
	raw json.RawMessage
}

// Unanswered returns an empty slot.
func Unanswered() AnswerSlot { return AnswerSlot{} }

// Answer wraps a response value (an option index, a bool or a string).
func Answer(v any) AnswerSlot {
	b, err := json.Marshal(v)
	if err != nil {
		return AnswerSlot{}
	}
	return AnswerSlot{raw: b}
}

// Answered reports whether the slot holds a non-null response.
func (s AnswerSlot) Answered() bool {
	return len(s.raw) > 0 && string(s.raw) != "null"
}

// Index returns the response as an option index. Only JSON numbers with
// an integral value qualify; "2" as a string does not.
func (s AnswerSlot) Index() (int, bool) {
	if !s.Answered() {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(s.raw, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// Bool returns the response as a JSON boolean.
func (s AnswerSlot) Bool() (bool, bool) {
	if !s.Answered() {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(s.raw, &b); err != nil {
		return false, false
	}
	return b, true
}

// Text returns the response as a JSON string.
func (s AnswerSlot) Text() (string, bool) {
	if !s.Answered() {
		return "", false
	}
	var str string
	if err := json.Unmarshal(s.raw, &str); err != nil {
		return "", false
	}
	return str, true
}

func (s AnswerSlot) MarshalJSON() ([]byte, error) {
	if !s.Answered() {
		return []byte("null"), nil
	}
	return s.raw, nil
}

func (s *AnswerSlot) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		s.raw = nil
		return nil
	}
	s.raw = append(s.raw[:0], data...)
	return nil
}

func (s AnswerSlot) String() string {
	if !s.Answered() {
		return "null"
	}
	return string(s.raw)
}

// AnswerSet is index-aligned to an Assessment's questions. Unanswered
// slots are explicit.
type AnswerSet []AnswerSlot

// NewAnswerSet returns n unanswered slots.
func NewAnswerSet(n int) AnswerSet {
	if n < 0 {
		n = 0
	}
	return make(AnswerSet, n)
}

// Set records a response at index i.
func (a AnswerSet) Set(i int, slot AnswerSlot) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("answer index %d out of range [0,%d)", i, len(a))
	}
	a[i] = slot
	return nil
}

// Normalize returns a copy with exactly n slots, padding with unanswered
// slots or dropping trailing ones.
func (a AnswerSet) Normalize(n int) AnswerSet {
	out := NewAnswerSet(n)
	copy(out, a)
	return out
}

// AnsweredCount returns the number of non-null slots.
func (a AnswerSet) AnsweredCount() int {
	n := 0
	for _, s := range a {
		if s.Answered() {
			n++
		}
	}
	return n
}

// ErrAnswersNotArray is returned when a submitted answer payload is not
// a JSON array.
var ErrAnswersNotArray = errors.New("answers must be an array")

// ParseAnswers decodes a JSON array of responses.
func ParseAnswers(data []byte) (AnswerSet, error) {
	var set AnswerSet
	if err := json.Unmarshal(data, &set); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrAnswersNotArray
		}
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if set == nil && strings.TrimSpace(string(data)) == "null" {
		return nil, ErrAnswersNotArray
	}
	return set, nil
}
