package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tla-bot/tla-go/internal/models"
)

var (
	knowledgeLimit      int
	knowledgeKind       string
	knowledgeConfidence float64
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Inspect and edit the answer knowledge store",
	Long: `Manage the knowledge store that answers screening questions.

Subcommands:
  list    List stored answers by usage
  add     Store or overwrite an answer
  delete  Remove an answer
  search  Fuzzy-search stored answers

Examples:
  tla knowledge list
  tla knowledge add "Do you require visa sponsorship?" "No"
  tla knowledge add "Years of Go experience" "7" --kind numeric
  tla knowledge delete "do you require visa sponsorship"
  tla knowledge search "sponsorship"`,
}

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored answers by usage",
	RunE:  runKnowledgeList,
}

var knowledgeAddCmd = &cobra.Command{
	Use:   "add <question> <answer>",
	Short: "Store or overwrite an answer",
	Args:  cobra.ExactArgs(2),
	RunE:  runKnowledgeAdd,
}

var knowledgeDeleteCmd = &cobra.Command{
	Use:   "delete <question>",
	Short: "Remove an answer",
	Args:  cobra.ExactArgs(1),
	RunE:  runKnowledgeDelete,
}

var knowledgeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy-search stored answers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKnowledgeSearch,
}

func init() {
	knowledgeListCmd.Flags().IntVarP(&knowledgeLimit, "limit", "n", 50, "max results")
	knowledgeSearchCmd.Flags().IntVarP(&knowledgeLimit, "limit", "n", 10, "max results")
	knowledgeAddCmd.Flags().StringVarP(&knowledgeKind, "kind", "k", "free_text", "input kind (free_text, numeric, boolean, single_choice, multi_choice)")
	knowledgeAddCmd.Flags().Float64VarP(&knowledgeConfidence, "confidence", "c", 1.0, "confidence of the answer")

	knowledgeCmd.AddCommand(knowledgeListCmd)
	knowledgeCmd.AddCommand(knowledgeAddCmd)
	knowledgeCmd.AddCommand(knowledgeDeleteCmd)
	knowledgeCmd.AddCommand(knowledgeSearchCmd)
}

func runKnowledgeList(cmd *cobra.Command, args []string) error {
	entries, err := dbClient.ListKnowledge(cmd.Context(), knowledgeLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No stored answers.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%-50s %-20s conf=%.2f asked=%d\n",
			truncate(e.QuestionText, 50), truncate(e.Value, 20), e.Confidence, e.TimesAsked)
	}
	return nil
}

func runKnowledgeAdd(cmd *cobra.Command, args []string) error {
	question, answer := args[0], args[1]

	// Manual entries go through the store so they get embedded like
	// learned ones.
	store, _, err := getStore(false)
	if err != nil {
		return err
	}
	entry := models.KnowledgeEntry{
		NormalizedText: models.NormalizeQuestion(question),
		QuestionText:   question,
		Value:          answer,
		Kind:           models.InputKind(knowledgeKind),
		Confidence:     knowledgeConfidence,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := store.Publish(cmd.Context(), entry); err != nil {
		return err
	}
	fmt.Printf("Stored: %q -> %q\n", question, answer)
	return nil
}

func runKnowledgeDelete(cmd *cobra.Command, args []string) error {
	key := models.NormalizeQuestion(args[0])
	if err := dbClient.DeleteKnowledge(cmd.Context(), key); err != nil {
		return err
	}
	fmt.Printf("Deleted %q\n", key)
	return nil
}

func runKnowledgeSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	matches, err := dbClient.SearchKnowledge(cmd.Context(), query, nil, knowledgeLimit)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, m := range matches {
		fmt.Printf("%.3f  %-50s %s\n", m.Score, truncate(m.QuestionText, 50), m.Value)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
