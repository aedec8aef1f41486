package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show attempt outcome totals",
	RunE:  runStats,
}

var resetCmd = &cobra.Command{
	Use:    "reset",
	Short:  "Delete all recorded data",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmed, _ := cmd.Flags().GetBool("yes")
		if !confirmed {
			return fmt.Errorf("refusing to wipe data without --yes")
		}
		if err := dbClient.WipeData(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("All data deleted.")
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("yes", false, "confirm deletion")
}

func runStats(cmd *cobra.Command, args []string) error {
	counts, err := dbClient.CountAttemptsByStatus(cmd.Context())
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Println("No attempts recorded.")
		return nil
	}

	var total int
	for _, c := range counts {
		fmt.Printf("%-12s %d\n", c.Status, c.Count)
		total += c.Count
	}
	fmt.Printf("%-12s %d\n", "total", total)
	return nil
}
