package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/vdl/internal/output"
	"github.com/tanq16/vdl/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove every working directory under the temp root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := utils.CleanTemp(cfg.TempDir)
			if err != nil {
				return fmt.Errorf("error cleaning up temporary files: %w", err)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary download(s) from %s", n, cfg.TempDir))
			return nil
		},
	}
}
