package cli

import (
	"fmt"

	"github.com/neoclaw-ai/completions/internal/catalog"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known models with their provider and price per million tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds := provider.Kinds()
			if only != "" {
				kind, err := provider.ParseKind(only)
				if err != nil {
					return err
				}
				kinds = []provider.Kind{kind}
			}

			providers := catalog.Default()
			toolCatalog := catalog.DefaultTools()

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Provider", "Model", "Input $/M", "Output $/M", "Tools"})
			table.SetAutoWrapText(false)
			table.SetBorder(false)
			for _, kind := range kinds {
				toolCount := len(toolCatalog.Names(kind))
				for _, model := range providers.Models(kind) {
					price, _ := providers.Price(kind, model)
					table.Append([]string{
						string(kind),
						model,
						fmt.Sprintf("%.3f", price.InputPerMillion),
						fmt.Sprintf("%.3f", price.OutputPerMillion),
						fmt.Sprintf("%d", toolCount),
					})
				}
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&only, "provider", "", "Only list models of this provider")
	return cmd
}
