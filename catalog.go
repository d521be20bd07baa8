package main

import (
	"PromptBot/model"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the option groups the wizard offers",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := model.LoadCatalog(appConfig.Catalog.Path)
		if err != nil {
			return fmt.Errorf("error loading catalog: %w", err)
		}
		printCatalog(cmd.OutOrStdout(), catalog)
		return nil
	},
}

func printCatalog(w io.Writer, catalog *model.Catalog) {
	for g := 0; g < catalog.Len(); g++ {
		fmt.Fprintf(w, "Step %d:\n", g+1)
		for o, label := range catalog.Group(g) {
			fmt.Fprintf(w, "  [%d] %s\n", o, label)
		}
	}
}
