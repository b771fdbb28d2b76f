package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate and store one assessment",
	Long: `Generate an assessment for a curriculum context and store it.

The assessment is printed even when it could not be stored.`,
	Example: `  assessgen generate --country India --board CBSE --class "Class 5" \
    --subject Science --topic Plants --type mcq --count 5 \
    --outcome "Identify parts of a plant"`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.String("country", "", "Country of the curriculum")
	f.String("board", "", "Curriculum board")
	f.String("class", "", "Class or grade level")
	f.String("subject", "", "Subject")
	f.String("topic", "", "Topic")
	f.String("type", string(assessment.TypeMCQ), "Assessment type: "+typeChoices())
	f.String("difficulty", "medium", "Difficulty")
	f.Int("count", 5, "Number of questions to request")
	f.StringArray("outcome", nil, "Learning outcome (repeatable)")
	f.Bool("json", false, "Print the result as JSON")

	for _, name := range []string{"country", "board", "class", "subject", "topic", "outcome"} {
		_ = generateCmd.MarkFlagRequired(name)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	typ, _ := f.GetString("type")
	req := assessment.Request{AssessmentType: assessment.Type(typ)}
	req.Country, _ = f.GetString("country")
	req.Board, _ = f.GetString("board")
	req.ClassLevel, _ = f.GetString("class")
	req.Subject, _ = f.GetString("subject")
	req.Topic, _ = f.GetString("topic")
	req.Difficulty, _ = f.GetString("difficulty")
	req.QuestionCount, _ = f.GetInt("count")
	req.LearningOutcomes, _ = f.GetStringArray("outcome")
	asJSON, _ := f.GetBool("json")

	if err := req.Validate(); err != nil {
		return err
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	svc, err := e.service(ctx, nil)
	if err != nil {
		return err
	}

	out, err := svc.Generate(ctx, req)
	if out == nil {
		return err
	}

	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(map[string]any{"assessment": out.Assessment.Questions, "id": out.ID}); encErr != nil {
			return errors.Join(err, encErr)
		}
		return err
	}

	if out.ID != "" {
		fmt.Fprintf(w, "Assessment %s (%d questions)\n\n", out.ID, out.Assessment.Len())
	} else {
		fmt.Fprintf(w, "Unsaved assessment (%d questions)\n\n", out.Assessment.Len())
	}
	printQuestions(w, out.Assessment.Questions, true)
	return err
}
