package cli

import (
	"github.com/spf13/cobra"

	"sdburn/internal/platform"
)

var disksAll bool

var disksCmd = &cobra.Command{
	Use:   "disks",
	Short: "List the removable disks that can be burned",
	RunE:  runDisks,
}

func init() {
	rootCmd.AddCommand(disksCmd)
	disksCmd.Flags().BoolVar(&disksAll, "all", false, "List every disk, including ineligible ones")
}

func runDisks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.platform()
	if err != nil {
		return err
	}

	var disks []platform.Disk
	if disksAll {
		disks, err = p.ListDisks(ctx)
	} else {
		o, oerr := a.orchestrator(p)
		if oerr != nil {
			return oerr
		}
		disks, err = o.ListDisks(ctx)
	}
	if err != nil {
		return err
	}
	printDisks(cmd.OutOrStdout(), disks)
	return nil
}
