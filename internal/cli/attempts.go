package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tla-bot/tla-go/internal/models"
)

var (
	attemptsLimit  int
	attemptsEvents bool
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts [job-id]",
	Short: "List recorded application attempts",
	Long: `List application attempts with their terminal outcomes, or show one
attempt's full event log.

Examples:
  tla attempts
  tla attempts --limit 100
  tla attempts 4021830312 --events`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAttempts,
}

func init() {
	attemptsCmd.Flags().IntVarP(&attemptsLimit, "limit", "n", 50, "max results")
	attemptsCmd.Flags().BoolVar(&attemptsEvents, "events", false, "show the attempt's run events")
}

func runAttempts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(args) == 1 {
		return showAttempt(cmd, args[0])
	}

	attempts, err := dbClient.ListAttempts(ctx, attemptsLimit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Println("No attempts recorded.")
		return nil
	}
	for _, a := range attempts {
		fmt.Println(formatAttempt(a))
	}
	return nil
}

func showAttempt(cmd *cobra.Command, jobID string) error {
	ctx := cmd.Context()

	attempt, err := dbClient.GetAttempt(ctx, jobID)
	if err != nil {
		return err
	}
	if attempt == nil {
		return fmt.Errorf("no attempt recorded for job %s", jobID)
	}
	fmt.Println(formatAttempt(*attempt))

	answers, err := dbClient.ListAnswers(ctx, jobID)
	if err != nil {
		return err
	}
	for _, a := range answers {
		value := a.Value
		if a.Blank {
			value = "(left blank)"
		}
		fmt.Printf("  %-50s %-20s %s\n", truncate(a.QuestionText, 50), truncate(value, 20), a.Source)
	}

	if attemptsEvents {
		events, err := dbClient.ListEvents(ctx, jobID)
		if err != nil {
			return err
		}
		for _, ev := range events {
			fmt.Printf("  %s  step=%d  %-10s %s\n",
				ev.At.Format("15:04:05"), ev.Step, ev.Kind, ev.Detail)
		}
	}
	return nil
}

func formatAttempt(a models.ApplicationAttempt) string {
	line := fmt.Sprintf("%-14s %-11s step=%d  %s",
		a.JobID, a.Status, a.StepCursor, a.StartedAt.Format("2006-01-02 15:04"))
	if a.FailureReason != nil {
		line += fmt.Sprintf("  reason=%s", *a.FailureReason)
	}
	if a.ConfirmationNumber != nil {
		line += fmt.Sprintf("  confirmation=%s", *a.ConfirmationNumber)
	}
	if a.NeedsReview {
		line += "  NEEDS REVIEW"
	}
	return line
}
