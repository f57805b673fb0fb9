package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/shiftbook/internal/catalog"
	"github.com/MikeSquared-Agency/shiftbook/internal/qa"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a schedule question for one agent",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		agentID, _ := cmd.Flags().GetString("agent")
		asJSON, _ := cmd.Flags().GetBool("json")

		cat, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		today := schedule.DateOf(time.Now().In(cfg.Location()))
		resp, err := qa.NewExecutor(db, cat, cfg.QANextLimit, slog.Default()).Answer(ctx, agentID, strings.Join(args, " "), today)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		fmt.Println(resp.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().String("agent", "", "agent whose calendar is queried")
	askCmd.Flags().Bool("json", false, "print the typed answer as JSON")
	_ = askCmd.MarkFlagRequired("agent")
}
