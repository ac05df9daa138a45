package main

import (
	"fmt"
	"os"

	"moltingpot/internal/commands"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
var Version = "0.0.0-dev"

var rootCmd = &cobra.Command{
	Use:   "moltctl",
	Short: "Molting Pot operator tool",
	Long: `moltctl performs operator tasks against a Molting Pot database.

Commands:
  migrate                                   Create or upgrade the schema
  admin-token --subject <name> --ttl 24h    Issue an admin JWT
  contribution status <id> <status>         Set a contribution's status
  stats [-o json|yaml]                      Print the dashboard

Configuration is read from the environment (DATABASE_URL, ADMIN_JWT_SECRET, ...)
and from a .env file in the working directory.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.AddCommand(commands.MigrateCmd)
	rootCmd.AddCommand(commands.AdminTokenCmd)
	rootCmd.AddCommand(commands.ContributionCmd)
	rootCmd.AddCommand(commands.StatsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
