// Package cli is the sdburn command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sdburn/internal/failure"
)

var rootCmd = &cobra.Command{
	Use:   "sdburn",
	Short: "Burn the latest OS image to an SD card",
	Long: `Downloads the latest OS image, verifies it, and writes it to a removable
disk, reporting progress and an estimated time remaining while it burns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line and returns the process exit code. SIGINT and
// SIGTERM cancel the running operation.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		return 1
	}
	return 0
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("work-dir", "", "Scratch directory for images and failure reports (default ~/.sdburn/work)")
	flags.String("tools-dir", "", "Directory holding bundled helper binaries")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text or json)")
	flags.String("image-source", "github", "Where to look for images (github or manifest)")
	flags.String("github-owner", "", "GitHub owner publishing the images")
	flags.String("github-repo", "", "GitHub repository publishing the images")
	flags.String("asset-pattern", "", "Regular expression selecting the release asset")
	flags.String("manifest-url", "", "URL of the latest.json manifest")
	flags.Uint64("min-disk-size", 0, "Smallest eligible disk in bytes")
	flags.Uint64("max-disk-size", 0, "Largest eligible disk in bytes")

	for _, name := range []string{
		"work-dir", "tools-dir", "log-level", "log-format",
		"image-source", "github-owner", "github-repo", "asset-pattern", "manifest-url",
		"min-disk-size", "max-disk-size",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

// printError shows the user facing title and description for categorized
// failures and the raw error otherwise.
func printError(w io.Writer, err error) {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, "Cancelled.")
		return
	}
	cat, ok := failure.CategoryOf(err)
	if !ok {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	msg := cat.Message()
	fmt.Fprintf(w, "%s\n%s\n\n(%v)\n", msg.Title, msg.Description, err)
}
