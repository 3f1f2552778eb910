package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/x11clip/internal/clipboard"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and X11CLIP_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → X11CLIP_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("x11clip")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/x11clip/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "x11clip"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("X11CLIP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "info", "log level: debug|info|warn|error")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addSelectionFlags adds the flags every selection command shares.
func addSelectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("display", "", "X display to connect to (default: $DISPLAY)")
	f.StringP("selection", "s", "clipboard", "selection: clipboard|primary|secondary or any atom name")
	f.String("property", clipboard.DefaultProperty, "staging property used for transfers")
	addConfigFlag(cmd)
	addLoggingFlags(cmd)
}

// addTimeoutFlag adds --timeout for commands that wait on another client.
func addTimeoutFlag(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", 2*time.Second, "give up if the owner has not answered (0 waits forever)")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	resolveLogging(v.GetString("log-format"), v.GetString("log-level"))
}
