// Command allergen serves the allergen intelligence API and runs one-off
// analyses from the command line.
//
// @title           Allergen Intel API
// @version         1.0
// @description     Side effects, oxidation products and risk levels for cosmetic and fragrance chemicals.
// @BasePath        /api/v1
// @schemes         http https
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "allergen",
		Short:         "Allergen intelligence service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(serveCommand(), analyzeCommand())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
