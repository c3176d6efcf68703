package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/vdl/internal/scheduler"
	"github.com/tanq16/vdl/internal/utils"
)

func newBatchCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [--workers N]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := scheduler.LoadBatch(args[0])
			if err != nil {
				return err
			}
			extra := utils.ParseHeaderArgs(headers)
			for i := range tasks {
				if tasks[i].ThreadCount <= 0 {
					tasks[i].ThreadCount = cfg.Threads
				}
				if len(extra) == 0 {
					continue
				}
				merged := make(map[string]string, len(extra)+len(tasks[i].Headers))
				for k, v := range extra {
					merged[k] = v
				}
				for k, v := range tasks[i].Headers {
					merged[k] = v
				}
				tasks[i].Headers = merged
			}
			return runTasks(tasks, workers)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Number of downloads to run in parallel")
	return cmd
}
