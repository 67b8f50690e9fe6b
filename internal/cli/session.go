package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/repository"
)

func SessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect query sessions",
		Long:  "Inspect checkpointed query sessions",
	}

	cmd.AddCommand(SessionShowCmd())

	return cmd
}

func SessionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a checkpointed session",
		Long:  "Print the full checkpointed state of a query session, including its reasoning trace",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionShow,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant ID owning the session (required)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	sessionID := args[0]
	tenantID, _ := cmd.Flags().GetString("tenant")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	sessionRepo := repository.NewSessionRepository(pool)
	session, err := sessionRepo.GetForTenant(ctx, tenantID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	jsonBytes, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))

	return nil
}
