package commands

import (
	"fmt"

	"moltingpot/internal/models"
	"moltingpot/internal/services"

	"github.com/spf13/cobra"
)

var ContributionCmd = &cobra.Command{
	Use:   "contribution",
	Short: "Manage contributions",
}

var contributionStatusCmd = &cobra.Command{
	Use:   "status <id> <pending|merged|closed>",
	Short: "Set a contribution's status",
	Long: `Apply a status transition to a contribution. Moving to merged awards
the merge bonus once; transitions out of merged or closed are rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: runContributionStatus,
}

func init() {
	ContributionCmd.AddCommand(contributionStatusCmd)
}

func runContributionStatus(cmd *cobra.Command, args []string) error {
	status, err := models.ParseContributionStatus(args[1])
	if err != nil {
		return err
	}

	db, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	contributions := services.NewContributionService(db, services.NewGitHubClient(cfg))
	contribution, err := contributions.UpdateStatus(cmd.Context(), args[0], status)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Contribution %s is now %s\n", contribution.ID, contribution.Status.APIValue())
	return nil
}
