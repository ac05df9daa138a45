package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"moltingpot/internal/services"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var statsOutput string

var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the platform dashboard",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	StatsCmd.Flags().StringVarP(&statsOutput, "output", "o", "json", "Output format: json or yaml")
}

func runStats(cmd *cobra.Command, args []string) error {
	if statsOutput != "json" && statsOutput != "yaml" {
		return fmt.Errorf("unsupported output format %q", statsOutput)
	}

	db, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	agents := services.NewAgentService(db)
	ledger := services.NewLedgerService(db)
	contributions := services.NewContributionService(db, nil)
	stats, err := services.NewStatsService(db, agents, ledger, contributions).Dashboard(cmd.Context())
	if err != nil {
		return err
	}

	return writeStats(cmd.OutOrStdout(), statsOutput, stats)
}

// writeStats renders v as indented JSON or as YAML with the same keys
func writeStats(w io.Writer, format string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}
