package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/x11clip/internal/clipboard"
	"go.klb.dev/x11clip/internal/xconn"
)

func newTargetsCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "targets",
		Short:   "List the targets a selection's owner offers",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runTargets(cmd, v) },
	}

	addTimeoutFlag(cmd)
	addSelectionFlags(cmd)

	return cmd
}

func runTargets(cmd *cobra.Command, v *viper.Viper) error {
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
	names, err := listTargets(cb, selection, v.GetDuration("timeout"))
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

// listTargets asks the owner of selection for TARGETS and names each atom.
func listTargets(cb *clipboard.Clipboard, selection xconn.Atom, timeout time.Duration) ([]string, error) {
	ctx := cb.Getter
	raw, err := cb.Load(selection, ctx.Atoms.Targets, ctx.Atoms.Property, timeout)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	atoms := xconn.DecodeAtoms(raw)
	names := make([]string, 0, len(atoms))
	for _, atom := range atoms {
		name, err := ctx.AtomName(atom)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
