package assessment

import (
	"fmt"
	"strings"
)

// BuildPrompt turns a request into the generation prompt: a preamble with
// the curriculum context, the numbered learning outcomes, and the
// instruction block for the assessment type. It is pure and fails only
// for an unknown assessment type.
func BuildPrompt(req Request) (string, error) {
	instructions, err := Instructions(req.AssessmentType)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Generate a %s difficulty %s assessment for %s students in %s following the %s curriculum, "+
		"on the topic of \"%s\" with %d questions. The assessment should address the following learning outcomes:\n",
		req.Difficulty, req.Subject, req.ClassLevel, req.Country, req.Board, req.Topic, req.QuestionCount)
	b.WriteString(numberedList(req.LearningOutcomes))
	b.WriteString("\n\n")
	b.WriteString(instructions)

	return b.String(), nil
}

// numberedList renders items as "1. a\n2. b" preserving order.
func numberedList(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return strings.Join(lines, "\n")
}
