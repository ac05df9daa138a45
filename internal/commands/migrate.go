package commands

import (
	"fmt"

	"moltingpot/internal/database"

	"github.com/spf13/cobra"
)

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ Schema ready (%s)\n", db.Dialect)
	for _, table := range database.Tables() {
		fmt.Fprintf(out, "  • %s\n", table)
	}
	return nil
}
