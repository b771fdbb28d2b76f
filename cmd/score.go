package cmd

import (
	"fmt"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score <id> <answers>",
	Short: "Score answers against a stored assessment",
	Long: fmt.Sprintf(`Score a JSON array of answers against a stored assessment.

Answers are option indexes for %s, true/false for %s and the
chosen text for %s; null leaves a question unanswered.
With --submit the answers are stored on the assessment (once).`,
		assessment.TypeMCQ, assessment.TypeTrueFalse, assessment.TypeFillInBlank),
	Example: `  assessgen score 0b6f... '[1, null, 3]'
  assessgen score 0b6f... '["paris", "blue"]' --submit`,
	Args: cobra.ExactArgs(2),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().Bool("submit", false, "Store the answers on the assessment")
	scoreCmd.Flags().StringArray("outcome", nil, "Replace the stored learning outcomes (with --submit)")
}

func runScore(cmd *cobra.Command, args []string) error {
	id := args[0]
	answers, err := assessment.ParseAnswers([]byte(args[1]))
	if err != nil {
		return err
	}
	submit, _ := cmd.Flags().GetBool("submit")
	// Unset means keep the stored outcomes.
	var outcomes []string
	if cmd.Flags().Changed("outcome") {
		outcomes, _ = cmd.Flags().GetStringArray("outcome")
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	svc := newStoreService(e)
	w := cmd.OutOrStdout()

	if submit {
		rec, err := svc.SubmitAnswers(ctx, id, answers, outcomes)
		if err != nil {
			return err
		}
		printResult(w, rec.Questions, rec.Answers, *rec.Result)
		fmt.Fprintln(w, "Answers saved.")
		return nil
	}

	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	res, err := svc.Grade(ctx, id, answers)
	if err != nil {
		return err
	}
	printResult(w, rec.Questions, answers, *res)
	return nil
}
