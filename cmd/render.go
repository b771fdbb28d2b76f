package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/service"
)

// newStoreService builds a Service for commands that never generate.
func newStoreService(e *env) *service.Service {
	return service.New(nil, e.store, nil, e.log.Named("service"))
}

// printQuestions lists questions with lettered options. With key set the
// correct answer is marked.
func printQuestions(w io.Writer, questions []assessment.Question, key bool) {
	for i, q := range questions {
		if i == 0 {
			fmt.Fprintf(w, "%s\n%s\n", kindLabel(q.Kind), strings.Repeat("─", 60))
		}
		fmt.Fprintf(w, "%d. %s\n", i+1, q.Text())
		switch {
		case q.MCQ != nil:
			for j, opt := range q.MCQ.Options {
				fmt.Fprintf(w, "   %c) %s%s\n", 'A'+j, opt, mark(key && j == q.MCQ.CorrectAnswer))
			}
		case q.TrueFalse != nil:
			fmt.Fprintf(w, "   True%s / False%s\n", mark(key && q.TrueFalse.CorrectAnswer), mark(key && !q.TrueFalse.CorrectAnswer))
		case q.FillInBlank != nil:
			for j, opt := range q.FillInBlank.Options {
				fmt.Fprintf(w, "   %c) %s%s\n", 'A'+j, opt, mark(key && strings.EqualFold(opt, q.FillInBlank.Answer)))
			}
		}
		fmt.Fprintln(w)
	}
}

func mark(ok bool) string {
	if ok {
		return " ✓"
	}
	return ""
}

// printResult shows each question with the learner's response and
// whether it was correct, followed by the total.
func printResult(w io.Writer, questions []assessment.Question, answers assessment.AnswerSet, res assessment.Result) {
	for i, q := range questions {
		given := "(unanswered)"
		if i < len(answers) && answers[i].Answered() {
			given = describeAnswer(q, answers[i])
		}
		status := "✗"
		if i < len(res.PerQuestion) && res.PerQuestion[i] {
			status = "✓"
		}
		fmt.Fprintf(w, "%s %d. %s\n     answer: %s\n", status, i+1, q.Text(), given)
	}
	fmt.Fprintf(w, "\nScore: %d/%d\n", res.Correct, res.Total)
}

// describeAnswer renders an answer as the option it selects where
// possible.
func describeAnswer(q assessment.Question, a assessment.AnswerSlot) string {
	if q.MCQ != nil {
		if idx, ok := a.Index(); ok && idx >= 0 && idx < len(q.MCQ.Options) {
			return fmt.Sprintf("%c) %s", 'A'+idx, q.MCQ.Options[idx])
		}
	}
	return a.String()
}

// typeChoices lists the accepted --type values for help text.
func typeChoices() string {
	names := make([]string, len(assessment.Types))
	for i, t := range assessment.Types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
