package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/requestlog"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newRequestsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Show recent completions and spend for today and this month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := requestlog.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			spend, err := store.Spend(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Started", "Account", "Provider", "Model", "Tokens", "Tool calls", "Cost $", "Status"})
			table.SetAutoWrapText(false)
			table.SetBorder(false)
			for _, e := range entries {
				status := "ok"
				if e.Error != "" {
					status = summarizeError(e.Error, 40)
				}
				table.Append([]string{
					humanize.Time(e.StartedAt),
					e.AccountID,
					string(e.Provider),
					e.Model,
					humanize.Comma(int64(e.Usage.TotalTokens)),
					fmt.Sprintf("%d", e.ToolCallCounter),
					fmt.Sprintf("%.4f", e.CostUSD),
					status,
				})
			}
			table.Render()

			_, err = fmt.Fprintf(out, "\nToday: $%.4f\nThis month: $%.4f\n", spend.TodayUSD, spend.MonthUSD)
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of requests to show")
	return cmd
}

func summarizeError(msg string, maxLen int) string {
	runes := []rune(msg)
	if len(runes) <= maxLen {
		return msg
	}
	return string(runes[:maxLen]) + "..."
}
