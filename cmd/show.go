package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stored assessment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		key, _ := cmd.Flags().GetBool("key")

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		rec, err := newStoreService(e).Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}

		fmt.Fprintf(w, "ID:         %s\n", rec.ID)
		fmt.Fprintf(w, "Created:    %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Curriculum: %s / %s / %s\n", rec.Country, rec.Board, rec.ClassLevel)
		fmt.Fprintf(w, "Subject:    %s (%s)\n", rec.Subject, rec.Topic)
		fmt.Fprintf(w, "Type:       %s, %s, %d of %d questions\n",
			rec.AssessmentType, rec.Difficulty, len(rec.Questions), rec.QuestionCount)
		if len(rec.LearningOutcomes) > 0 {
			fmt.Fprintf(w, "Outcomes:   %s\n", strings.Join(rec.LearningOutcomes, "; "))
		}
		fmt.Fprintln(w)

		if rec.Result == nil {
			printQuestions(w, rec.Questions, key)
			return nil
		}
		printResult(w, rec.Questions, rec.Answers, *rec.Result)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "Print the record as JSON")
	showCmd.Flags().Bool("key", false, "Mark the correct answers")
}

// kindLabel is the heading used for a question type.
func kindLabel(t assessment.Type) string {
	switch t {
	case assessment.TypeMCQ:
		return "Multiple choice"
	case assessment.TypeTrueFalse:
		return "True or false"
	case assessment.TypeFillInBlank:
		return "Fill in the blank"
	}
	return string(t)
}
