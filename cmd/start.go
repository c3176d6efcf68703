package cmd

import (
	"fmt"
	u "net/url"

	"github.com/spf13/cobra"
	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
)

func newStartCmd() *cobra.Command {
	var outputName, taskID string
	cmd := &cobra.Command{
		Use:   "start [URL] [--output NAME]",
		Short: "Download an http(s) or s3 URL, picking up earlier progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := u.Parse(args[0]); err != nil {
				return fmt.Errorf("invalid URL format: %v", err)
			}
			task := types.Task{
				ID:          taskID,
				URL:         args[0],
				FileName:    outputName,
				ThreadCount: cfg.Threads,
				Headers:     utils.ParseHeaderArgs(headers),
			}
			return runTasks([]types.Task{task}, 1)
		},
	}
	cmd.Flags().StringVarP(&outputName, "output", "o", "", "Output file name (inferred from the URL if not provided)")
	cmd.Flags().StringVar(&taskID, "id", "", "Task ID (derived from the URL if not provided)")
	return cmd
}
