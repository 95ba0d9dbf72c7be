package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tanq16/splitget/internal/output"
	"github.com/tanq16/splitget/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean FILE",
		Short: "Remove the partial files an interrupted download of FILE left behind",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cleanDir, fileName := runConfig.Dir, filepath.Base(args[0])
			if parent := filepath.Dir(args[0]); parent != "." {
				cleanDir = parent
			}
			removed, err := utils.CleanPartials(cleanDir, fileName)
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up partial files: %v", err))
				os.Exit(1)
			}
			for _, path := range removed {
				fmt.Fprintf(output.Out, "  %s %s\n", output.FDebug("removed"), path)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d partial files", len(removed)))
		},
	}
}
