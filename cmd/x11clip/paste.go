package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPasteCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "paste",
		Short: "Print a selection to stdout",
		Long: `Converts the selection to --target and writes the bytes to stdout.

If the owner does not offer the target, or nobody owns the selection,
nothing is printed (exit 0). To retrieve an image:

  x11clip paste --target image/png > screenshot.png`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runPaste(cmd, v) },
	}

	cmd.Flags().StringP("target", "t", "text", "target to request: text|string or any atom name")
	addTimeoutFlag(cmd)
	addSelectionFlags(cmd)

	return cmd
}

func runPaste(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	cb, err := openClipboard(v)
	if err != nil {
		return err
	}
	defer cb.Close()

	ctx := cb.Getter
	selection, err := resolveSelection(ctx, v.GetString("selection"))
	if err != nil {
		return err
	}
	target, err := resolveTarget(ctx, v.GetString("target"))
	if err != nil {
		return err
	}

	data, err := cb.Load(selection, target, ctx.Atoms.Property, v.GetDuration("timeout"))
	if err != nil {
		return fmt.Errorf("paste: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
