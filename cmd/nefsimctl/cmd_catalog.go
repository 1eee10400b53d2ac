package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nefsim/internal/nef"
	"nefsim/internal/scenario"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List registered scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			type item struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			var items []item
			for _, name := range scenario.List() {
				description, err := scenario.Describe(name)
				if err != nil {
					return err
				}
				items = append(items, item{Name: name, Description: description})
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			for _, it := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", it.Name, it.Description)
			}
			return nil
		},
	}
}

func newFunctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List registered decoding functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := nef.ListFunctions()
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), names)
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
