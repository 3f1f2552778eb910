package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/x11clip/internal/clipboard"
	"go.klb.dev/x11clip/internal/xconn"
)

// ownershipPoll is how often copy checks whether it still owns the selection.
const ownershipPoll = 250 * time.Millisecond

func newCopyCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Own a selection with the contents of stdin",
		Long: `Reads stdin and serves it as the selection's value until another client
takes the selection over or the process is interrupted. X11 selections
live in the owning process, so copy stays in the foreground.

With the default text target the data is offered as UTF8_STRING, STRING
and text/plain;charset=utf-8. Use --target to publish another type:

  x11clip copy --target image/png < screenshot.png`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runCopy(cmd, v) },
	}

	cmd.Flags().StringP("target", "t", "text", "target to publish: text|string or any atom name")
	addSelectionFlags(cmd)

	return cmd
}

func runCopy(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	cb, err := openClipboard(v)
	if err != nil {
		return err
	}
	defer cb.Close()

	ctx := cb.Setter
	selection, err := resolveSelection(ctx, v.GetString("selection"))
	if err != nil {
		return err
	}
	target, err := resolveTarget(ctx, v.GetString("target"))
	if err != nil {
		return err
	}
	batch, err := offersFor(ctx, target, data)
	if err != nil {
		return err
	}
	if err := cb.StoreBatch(selection, batch); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	slog.Info("serving selection",
		"selection", v.GetString("selection"),
		"targets", len(batch),
		"bytes", len(data),
	)

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serveUntilLost(sigCtx, cb, selection, ownershipPoll)
}

// serveUntilLost blocks while cb still owns selection. It returns nil when
// ctx ends or another client takes the selection, and the worker's error if
// the connection fails.
func serveUntilLost(ctx context.Context, cb *clipboard.Clipboard, selection xconn.Atom, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("interrupted, releasing selection")
			return nil
		case <-ticker.C:
		}
		if err := cb.Err(); err != nil {
			return fmt.Errorf("selection owner: %w", err)
		}
		owns, err := cb.Owns(selection)
		if err != nil {
			return err
		}
		if !owns {
			slog.Info("selection taken over by another client")
			return nil
		}
	}
}
