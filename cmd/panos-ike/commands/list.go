package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/netops-tools/panos-ike/internal/ike"
	"github.com/netops-tools/panos-ike/internal/reconcile"
)

var (
	listFlags connFlags
	listJSON  bool
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the IKE crypto profiles configured on a firewall",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listFlags.register(listCmd.Flags())
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON instead of a table")
}

func runList(cmd *cobra.Command, args []string) error {
	params := ike.DefaultParams()
	listFlags.apply(cmd.Flags(), &params)

	profiles, err := env.listProfiles(cmd.Context(), params, deviceName)
	if err != nil {
		return err
	}
	if listJSON {
		return json.NewEncoder(env.out).Encode(profiles)
	}
	return writeProfiles(env.out, profiles)
}

// connection resolves the connection part of params without requiring a profile name
func (a *app) connection(params ike.Params, device string) (ike.Connection, error) {
	if err := a.withDevice(&params, device); err != nil {
		return ike.Connection{}, err
	}
	if params.Username == "" {
		params.Username = ike.DefaultUsername
	}
	// Any valid name will do; only the connection is used
	params.Name = "connection-check"
	req, err := params.Validate()
	if err != nil {
		return ike.Connection{}, err
	}
	conn := req.Conn
	if err := a.resolve(&conn); err != nil {
		return ike.Connection{}, err
	}
	return conn, nil
}

func (a *app) listProfiles(ctx context.Context, params ike.Params, device string) ([]ike.Profile, error) {
	conn, err := a.connection(params, device)
	if err != nil {
		return nil, err
	}

	client := a.client()
	err = client.Connect(ctx, conn)
	if a.audit != nil {
		a.audit.LogConnect(conn.Address, conn.Username, err == nil, nil)
	}
	if err != nil {
		return nil, &reconcile.ConnectionError{Address: conn.Address, Err: err}
	}

	profiles, err := client.ListProfiles(ctx)
	if err != nil {
		return nil, &reconcile.DeviceError{Op: "list profiles", Err: err}
	}
	return profiles, nil
}

func writeProfiles(w io.Writer, profiles []ike.Profile) error {
	if len(profiles) == 0 {
		_, err := fmt.Fprintln(w, "No IKE crypto profiles configured.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDH-GROUP\tAUTHENTICATION\tENCRYPTION\tLIFETIME")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, members(p.DHGroups), members(p.Authentication), members(p.Encryption), p.Lifetime)
	}
	return tw.Flush()
}

func members[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}
