package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove downloaded images, scripts and failure reports",
	RunE:  runClean,
}

var lastErrorCmd = &cobra.Command{
	Use:   "last-error",
	Short: "Show the report of the last failed fetch or burn",
	RunE:  runLastError,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(lastErrorCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.ws.Clean(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleaned %s\n", a.ws.Root())
	return nil
}

func runLastError(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	report, err := a.ws.ReadDiagnostic()
	if err != nil {
		return err
	}
	if report == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No failure recorded.")
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), report)
	return nil
}
