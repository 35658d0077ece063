package main

import (
	"encoding/json"

	"datacatalog/pkg/dictization"
	"datacatalog/pkg/store"

	"github.com/spf13/cobra"
)

func (a *app) countsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Print the number of active datasets per group as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(sess *store.Session) error {
				counts, err := dictization.GetGroupDatasetCounts(cmd.Context(), sess)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(counts)
			})
		},
	}
}
