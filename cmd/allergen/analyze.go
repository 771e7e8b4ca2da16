package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/tbourn/allergen-intel-backend/internal/services"
)

func analyzeCommand() *cobra.Command {
	var product bool

	cmd := &cobra.Command{
		Use:   "analyze NAME...",
		Short: "Analyze chemicals (or a product with --product) and print JSON",
		Long: `Runs the same tiered lookup as the API without starting a server.
One name prints an ingredient analysis, several names a batch analysis.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var out any
			switch {
			case product:
				if len(args) != 1 {
					return errors.New("--product takes exactly one product name")
				}
				out, err = a.svc.AnalyzeProduct(cmd.Context(), args[0])
			case len(args) == 1:
				out, err = a.svc.Analyze(cmd.Context(), args[0])
			default:
				out, err = a.svc.AnalyzeBatch(cmd.Context(), args)
			}
			if errors.Is(err, services.ErrChemicalNotFound) {
				return errors.New("chemical data not found")
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVarP(&product, "product", "p", false, "treat the argument as a product name")
	return cmd
}
