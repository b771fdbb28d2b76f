package assessment

import (
	"fmt"

	"github.com/abhisek/assessgen/internal/llm"
)

// BlankMarker is how fill-in-the-blank questions mark the blank.
const BlankMarker = "___"

// OptionCount is the number of options on mcq and fill-in-the-blank questions.
const OptionCount = 4

// A contract pairs the instruction block appended to the prompt with the
// JSON schema every extracted question must satisfy. Changing the wording
// of one without the other breaks extraction.
type contract struct {
	instructions string
	item         map[string]any
	strictItem   map[string]any
}

var contracts = map[Type]contract{
	TypeMCQ: {
		instructions: "Create multiple-choice questions. For each question, provide 4 options (A, B, C, D) with one correct answer. " +
			"Format the output as a JSON array of objects, where each object has 'question', 'options' (an array of 4 strings), " +
			"and 'correctAnswer' (index of the correct option) fields.",
		item: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string", "minLength": 1},
				"options":  optionsSchema(),
				"correctAnswer": map[string]any{
					"type":    "integer",
					"minimum": 0,
					"maximum": OptionCount - 1,
				},
			},
			"required": []any{"question", "options", "correctAnswer"},
		},
		strictItem: strictObject(map[string]any{
			"question":      map[string]any{"type": "string"},
			"options":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"correctAnswer": map[string]any{"type": "integer", "description": "Index of the correct option, 0-3"},
		}),
	},
	TypeTrueFalse: {
		instructions: "Create true/false questions. Format the output as a JSON array of objects, " +
			"where each object has 'question' and 'correctAnswer' (boolean) fields.",
		item: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question":      map[string]any{"type": "string", "minLength": 1},
				"correctAnswer": map[string]any{"type": "boolean"},
			},
			"required": []any{"question", "correctAnswer"},
		},
		strictItem: strictObject(map[string]any{
			"question":      map[string]any{"type": "string"},
			"correctAnswer": map[string]any{"type": "boolean"},
		}),
	},
	TypeFillInBlank: {
		instructions: "Create fill-in-the-blank questions. Format the output as a JSON array of objects, " +
			"where each object has 'question' (with a blank represented by '___'), 'answer' (the correct word or phrase to fill the blank), " +
			"and 'options' (an array of 4 strings including the correct answer) fields.",
		item: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string", "minLength": 1},
				"answer":   map[string]any{"type": "string", "minLength": 1},
				"options":  optionsSchema(),
			},
			"required": []any{"question", "answer", "options"},
		},
		strictItem: strictObject(map[string]any{
			"question": map[string]any{"type": "string", "description": "Question text with the blank written as ___"},
			"answer":   map[string]any{"type": "string"},
			"options":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}),
	},
}

func optionsSchema() map[string]any {
	return map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "string"},
		"minItems": OptionCount,
		"maxItems": OptionCount,
	}
}

// strictObject builds an object schema accepted by strict structured
// output modes: every property required, no additional properties, no
// numeric or length bounds.
func strictObject(props map[string]any) map[string]any {
	required := make([]any, 0, len(props))
	for _, name := range []string{"question", "options", "answer", "correctAnswer"} {
		if _, ok := props[name]; ok {
			required = append(required, name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// Instructions returns the type-specific block appended to the prompt.
func Instructions(t Type) (string, error) {
	c, ok := contracts[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAssessmentType, t)
	}
	return c.instructions, nil
}

// ItemSchema returns the schema one extracted question of type t must
// satisfy.
func ItemSchema(t Type) (*llm.Schema, error) {
	c, ok := contracts[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAssessmentType, t)
	}
	return &llm.Schema{
		Name:        string(t) + "-question",
		Description: fmt.Sprintf("A single %s assessment question", t),
		Definition:  c.item,
	}, nil
}

// StructuredSchema wraps the strict item schema as {"questions": [...]}
// for backends that support schema-constrained output.
func StructuredSchema(t Type) (*llm.Schema, error) {
	c, ok := contracts[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAssessmentType, t)
	}
	return &llm.Schema{
		Name:        string(t) + "-assessment",
		Description: fmt.Sprintf("A list of %s assessment questions", t),
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"questions": map[string]any{
					"type":  "array",
					"items": c.strictItem,
				},
			},
			"required":             []any{"questions"},
			"additionalProperties": false,
		},
	}, nil
}
