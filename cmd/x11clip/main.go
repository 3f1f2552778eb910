// x11clip: read and own X11 selections from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/x11clip/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "x11clip",
		Short: "Read and own X11 selections",
		Long: `x11clip talks to the X server directly to read and publish the PRIMARY
and CLIPBOARD selections, including large transfers that other clients
receive incrementally.

  echo hello | x11clip copy        own CLIPBOARD until another client takes it
  x11clip paste                    print CLIPBOARD as UTF8_STRING
  x11clip targets -s primary       list the representations PRIMARY offers
  x11clip watch                    print every new CLIPBOARD value

Config file search order (first found wins):
  /etc/x11clip/x11clip.toml
  $HOME/.config/x11clip/x11clip.toml
  path supplied via --config

All flags can be set via X11CLIP_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newCopyCmd(),
		newPasteCmd(),
		newTargetsCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "x11clip %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(formatStr, levelStr string) {
	logging.Setup(logging.ParseFormat(formatStr), logging.ParseLevel(levelStr))
}
