package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/netops-tools/panos-ike/internal/ike"
	"github.com/netops-tools/panos-ike/internal/reconcile"
)

var (
	testFlags   connFlags
	testDetails bool
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test the connection to a firewall",
	Long: `Verify that a firewall can be reached and authenticated against.

This command checks that:
- The connection settings are valid and any keeper:// references resolve
- Authentication succeeds and the target is a firewall, not Panorama
- IKE crypto profiles can be read

Examples:
  panos-ike test --device edge-fw
  panos-ike test --address 192.0.2.1 --api-key LUFRPT... --details`,
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
	testFlags.register(testCmd.Flags())
	testCmd.Flags().BoolVar(&testDetails, "details", false, "list the profiles found")
}

func runTest(cmd *cobra.Command, args []string) error {
	params := ike.DefaultParams()
	testFlags.apply(cmd.Flags(), &params)
	return env.testConnection(cmd.Context(), env.out, params, deviceName, testDetails)
}

func (a *app) testConnection(ctx context.Context, w io.Writer, params ike.Params, device string, details bool) error {
	fmt.Fprint(w, "1. Resolving connection... ")
	conn, err := a.connection(params, device)
	if err != nil {
		fmt.Fprintln(w, "✗")
		return err
	}
	fmt.Fprintf(w, "✓ (%s)\n", conn)

	fmt.Fprint(w, "2. Connecting... ")
	client := a.client()
	err = client.Connect(ctx, conn)
	if a.audit != nil {
		a.audit.LogConnect(conn.Address, conn.Username, err == nil, map[string]interface{}{"test": true})
	}
	if err != nil {
		fmt.Fprintln(w, "✗")
		return &reconcile.ConnectionError{Address: conn.Address, Err: err}
	}
	info := client.SystemInfo()
	fmt.Fprintf(w, "✓ (%s %s, PAN-OS %s)\n", info.Hostname, info.Model, info.SWVersion)

	fmt.Fprint(w, "3. Reading IKE crypto profiles... ")
	profiles, err := client.ListProfiles(ctx)
	if err != nil {
		fmt.Fprintln(w, "✗")
		return &reconcile.DeviceError{Op: "list profiles", Err: err}
	}
	fmt.Fprintf(w, "✓ (found %d)\n", len(profiles))

	fmt.Fprintln(w, "\n✓ Connection successful!")
	if details && len(profiles) > 0 {
		fmt.Fprintln(w)
		return writeProfiles(w, profiles)
	}
	return nil
}
