package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/splitget/internal/output"
	"github.com/tanq16/splitget/internal/scheduler"
	"github.com/tanq16/splitget/internal/utils"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [URL]",
		Short: "Probe a URL and show how it would be split and resumed",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			plan, states, err := scheduler.Status(context.Background(), buildOptions(args[0], runConfig))
			if err != nil {
				output.PrintError(fmt.Sprintf("Planning failed: %v", err))
				os.Exit(1)
			}
			output.PrintHeader(plan.Target.FileName)
			output.PrintDetail("source", plan.Target.FinalURL)
			output.PrintDetail("size", fmt.Sprintf("%s (%d bytes)", utils.FormatBytes(uint64(plan.Target.ContentLength)), plan.Target.ContentLength))
			output.PrintDetail("segments", fmt.Sprintf("%d of %d bytes", plan.Segments, plan.SegmentSize))
			output.PrintDetail("output", plan.OutputPath())
			fmt.Fprintln(output.Out)
			for _, state := range states {
				var status string
				switch {
				case state.Complete():
					status = output.FSuccess("complete")
				case state.Existing > 0:
					status = output.FWarning(fmt.Sprintf("resume at %d of %d", state.Existing, state.Planned))
				default:
					status = output.FPending("fresh")
				}
				fmt.Fprintf(output.Out, "  %s %s %s\n", output.FInfo(fmt.Sprintf("segment %d", state.Index)), output.FDebug(state.Range.Header()), status)
			}
		},
	}
}
