package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	burnDisk  string
	burnImage string
	burnYes   bool
)

var burnCmd = &cobra.Command{
	Use:   "burn",
	Short: "Write an OS image to a removable disk",
	Long: `Prepares the disk, writes the image and ejects the disk.
Without --image the latest image is downloaded first.`,
	RunE: runBurn,
}

func init() {
	rootCmd.AddCommand(burnCmd)
	burnCmd.Flags().StringVar(&burnDisk, "disk", "", "Disk ID as shown by 'sdburn disks'")
	burnCmd.Flags().StringVar(&burnImage, "image", "", "Local image to burn instead of downloading")
	burnCmd.Flags().BoolVarP(&burnYes, "yes", "y", false, "Do not ask for confirmation")
	burnCmd.Flags().Int("retries", 1, "Number of full attempts before giving up")
	burnCmd.MarkFlagRequired("disk")

	viper.BindPFlag("retries", burnCmd.Flags().Lookup("retries"))
}

func runBurn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.platform()
	if err != nil {
		return err
	}
	if err := p.CheckPrivileges(); err != nil {
		return err
	}
	o, err := a.orchestrator(p)
	if err != nil {
		return err
	}

	disk, err := o.FindDisk(ctx, burnDisk)
	if err != nil {
		a.recordFailure(err)
		return err
	}
	if !burnYes {
		ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), disk)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("aborted")
		}
	}

	printer := newProgressPrinter(cmd.ErrOrStderr())
	defer printer.done()

	imagePath := burnImage
	if imagePath == "" {
		if _, imagePath, err = a.fetch(ctx, printer.report); err != nil {
			a.recordFailure(err)
			return err
		}
	} else if ok, _ := afero.Exists(a.ws.Fs(), imagePath); !ok {
		return fmt.Errorf("image %s does not exist", imagePath)
	}

	a.log.WithFields(logrus.Fields{"disk": disk.ID, "image": imagePath, "platform": p.Name()}).Info("burning")
	if _, err := o.BurnWithRetry(ctx, disk, imagePath, a.cfg.Retries, printer.report); err != nil {
		a.recordFailure(err)
		return err
	}
	printer.done()
	fmt.Fprintf(cmd.OutOrStdout(), "%s is ready, you can remove it.\n", disk)
	return nil
}
