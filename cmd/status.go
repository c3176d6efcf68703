package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/vdl/internal/manager"
	"github.com/tanq16/vdl/internal/output"
	"github.com/tanq16/vdl/internal/types"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [ID]",
		Short: "Show stored downloads and their progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(func(ctx context.Context, m *manager.Manager) error {
				records, err := m.List(ctx)
				if err != nil {
					return err
				}
				if len(args) == 1 {
					var match []types.Record
					for _, rec := range records {
						if rec.Task.ID == args[0] {
							match = append(match, rec)
						}
					}
					if len(match) == 0 {
						return fmt.Errorf("%w: %s", manager.ErrNotFound, args[0])
					}
					records = match
				}
				if len(records) == 0 {
					output.PrintInfo("No downloads recorded")
					return nil
				}
				fmt.Println(output.StatusTable(records))
				return nil
			})
		},
	}
}
