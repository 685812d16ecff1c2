package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mrz1836/legion/internal/tui"
)

// AddVersionCommand adds the version command to the root command.
func AddVersionCommand(root *cobra.Command, info BuildInfo) {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := tui.NewOutput(os.Stdout, cmd.Flag("output").Value.String())
			if cmd.Flag("output").Value.String() == OutputJSON {
				return out.JSON(map[string]string{
					"version":    info.Version,
					"commit":     info.Commit,
					"build_date": info.Date,
					"go_version": runtime.Version(),
					"platform":   runtime.GOOS + "/" + runtime.GOARCH,
				})
			}
			fmt.Fprintln(os.Stdout, "legion "+formatVersion(info))
			fmt.Fprintf(os.Stdout, "  %s, %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			if path, err := LogFilePath(); err == nil {
				fmt.Fprintln(os.Stdout, "  logs: "+path)
			}
			return nil
		},
	}
	root.AddCommand(cmd)
}
