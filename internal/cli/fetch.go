package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and verify the latest OS image",
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}

	printer := newProgressPrinter(cmd.ErrOrStderr())
	src, path, err := a.fetch(ctx, printer.report)
	printer.done()
	if err != nil {
		a.recordFailure(err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n%s\n", src, humanize.Bytes(uint64(src.CompressedSize)), path)
	return nil
}
