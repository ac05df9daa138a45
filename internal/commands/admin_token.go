package commands

import (
	"fmt"
	"time"

	"moltingpot/internal/config"
	"moltingpot/pkg/auth"

	"github.com/spf13/cobra"
)

var (
	adminSubject string
	adminTTL     time.Duration
)

var AdminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Issue an admin JWT signed with ADMIN_JWT_SECRET",
	Long: `Print a bearer token accepted by the /api/admin routes.

Example:
  moltctl admin-token --subject ops --ttl 2h`,
	Args: cobra.NoArgs,
	RunE: runAdminToken,
}

func init() {
	AdminTokenCmd.Flags().StringVar(&adminSubject, "subject", "operator", "Subject recorded in the token")
	AdminTokenCmd.Flags().DurationVar(&adminTTL, "ttl", 24*time.Hour, "Token lifetime")
}

func runAdminToken(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is not set")
	}

	authority, err := auth.NewAdminJWTAuth(cfg.AdminJWTSecret, adminTTL)
	if err != nil {
		return err
	}
	token, err := authority.Issue(adminSubject, adminTTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
