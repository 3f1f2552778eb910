package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/x11clip/internal/clipboard"
	"go.klb.dev/x11clip/internal/xconn"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print each new value of a selection",
		Long: `Waits for the selection to change owner and prints its new value,
followed by a newline, every time it differs from the previous one.
Runs until interrupted.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runWatch(cmd, v) },
	}

	cmd.Flags().StringP("target", "t", "text", "target to request: text|string or any atom name")
	addSelectionFlags(cmd)

	return cmd
}

func runWatch(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	cb, err := openClipboard(v)
	if err != nil {
		return err
	}
	defer cb.Close()

	selection, err := resolveSelection(cb.Getter, v.GetString("selection"))
	if err != nil {
		return err
	}
	target, err := resolveTarget(cb.Getter, v.GetString("target"))
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watch(sigCtx, cb, selection, target, cmd.OutOrStdout())
}

// watch writes every distinct value of selection to out until ctx ends.
// LoadWait cannot be cancelled, so ending ctx closes cb.
func watch(ctx context.Context, cb *clipboard.Clipboard, selection, target xconn.Atom, out io.Writer) error {
	stop := context.AfterFunc(ctx, func() { _ = cb.Close() })
	defer stop()

	var last []byte
	for {
		data, err := cb.LoadWait(selection, target, cb.Getter.Atoms.Property)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if last != nil && bytes.Equal(data, last) {
			continue
		}
		last = data
		slog.Debug("selection changed", "bytes", len(data))
		if _, err := fmt.Fprintf(out, "%s\n", data); err != nil {
			return err
		}
	}
}
