package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/tanq16/vdl/internal/manager"
	"github.com/tanq16/vdl/internal/output"
	"github.com/tanq16/vdl/internal/scheduler"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [ID]",
		Short: "Resume a paused, failed or interrupted download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			a, err := newApp(context.Background(), true)
			if err != nil {
				return err
			}
			defer a.close()
			var startErr error
			err = a.foreground(func(ctx context.Context) []scheduler.Result {
				if startErr = a.manager.Resume(ctx, id); startErr != nil {
					return nil
				}
				res, _ := a.manager.Wait(id)
				return []scheduler.Result{{Result: res, Err: res.Err}}
			})
			if startErr != nil {
				return startErr
			}
			return err
		},
	}
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [ID]",
		Short: "Pause a running download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(func(ctx context.Context, m *manager.Manager) error {
				if err := m.Pause(ctx, args[0]); err != nil {
					return err
				}
				output.PrintSuccess("Pause requested for " + args[0])
				return nil
			})
		},
	}
}

func newCancelCmd() *cobra.Command {
	var removeFile bool
	cmd := &cobra.Command{
		Use:   "cancel [ID] [--remove-file]",
		Short: "Cancel a download and discard its partial data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(func(ctx context.Context, m *manager.Manager) error {
				if err := m.Cancel(ctx, args[0], removeFile); err != nil {
					return err
				}
				output.PrintSuccess("Canceled " + args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&removeFile, "remove-file", false, "Also delete the finished file")
	return cmd
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save [ID]",
		Short: "Stop a download and keep the bytes fetched so far as the final file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(func(ctx context.Context, m *manager.Manager) error {
				if err := m.StopAndSave(ctx, args[0]); err != nil {
					return err
				}
				output.PrintSuccess("Stop-and-save requested for " + args[0])
				return nil
			})
		},
	}
}
