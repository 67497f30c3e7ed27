package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configFile string
	deviceName string
	verbose    bool
	batchMode  bool

	env *app
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "panos-ike",
	Short: "Manage IKE crypto profiles on PAN-OS firewalls",
	Long: `Declaratively manage IKE phase 1 crypto profiles on Palo Alto Networks
firewalls through the PAN-OS XML API.

A profile is created when missing, updated when its settings differ and
deleted when declared absent. The candidate configuration is committed
only when something changed.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), configFile, verbose, batchMode)
		if err != nil {
			return err
		}
		env = a
		return nil
	},
}

// Execute runs the CLI and returns the command error, if any
func Execute() error {
	ctx := context.Background()
	err := rootCmd.ExecuteContext(ctx)
	if env == nil {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return err
	}
	if err != nil {
		env.log.Error().Err(err).Msg("command failed")
		if env.audit != nil {
			env.audit.LogError("cli", err, nil)
		}
	}
	env.close(ctx)
	return err
}

func init() {
	// stdout carries results only
	rootCmd.SetOut(os.Stderr)
	rootCmd.SetErr(os.Stderr)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ~/.panos-ike/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&deviceName, "device", "", "stored device to use (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&batchMode, "batch", false, "never prompt")
}

// SetVersion sets the version for the CLI
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
