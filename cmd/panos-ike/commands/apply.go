package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/netops-tools/panos-ike/internal/ike"
	"github.com/netops-tools/panos-ike/internal/manifest"
	"github.com/netops-tools/panos-ike/internal/reconcile"
)

var (
	applyFlags profileFlags
	applyCheck bool
	planFlags  profileFlags
)

// profileOnlyFlags may not be combined with --file
var profileOnlyFlags = []string{
	"name", "state", "dh-group", "authentication", "encryption",
	"lifetime-seconds", "lifetime-minutes", "lifetime-hours", "lifetime-days",
}

// applyCmd represents the apply command
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Ensure an IKE crypto profile is present or absent",
	Long: `Create, update or delete an IKE crypto profile so that the firewall
matches the declared settings, then commit if anything changed.

Examples:
  # Ensure a profile exists with the default proposals
  panos-ike apply --address 192.0.2.1 --password secret --name ike-default

  # Strong proposals on a stored device, credentials from Keeper
  panos-ike apply --device edge-fw --name ike-strong \
    --dh-group group19,group14 --authentication sha256 \
    --encryption aes-256-cbc --lifetime-hours 4

  # Remove a profile without committing
  panos-ike apply --device edge-fw --name legacy --state absent --commit=false

  # Apply every profile of a manifest with a single commit
  panos-ike apply --device edge-fw --file profiles.toml`,
	RunE: runApply,
}

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what apply would change without touching the device",
	Long: `Read the firewall's IKE crypto profiles and report the action apply would
take for each declared profile. Nothing is modified or committed.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(planCmd)

	applyFlags.register(applyCmd.Flags(), true)
	applyCmd.Flags().BoolVar(&applyCheck, "check", false, "check mode: report changes without applying them")

	planFlags.register(planCmd.Flags(), false)
}

func runApply(cmd *cobra.Command, args []string) error {
	if err := checkFileFlags(cmd, applyFlags.file); err != nil {
		return writeOutcome(env.out, nil, err)
	}
	params := applyFlags.params(cmd.Flags())

	report, err := env.apply(cmd.Context(), params, deviceName, applyFlags.file, applyCheck)
	return writeOutcome(env.out, report, err)
}

func runPlan(cmd *cobra.Command, args []string) error {
	if err := checkFileFlags(cmd, planFlags.file); err != nil {
		return err
	}
	params := planFlags.params(cmd.Flags())

	report, err := env.apply(cmd.Context(), params, deviceName, planFlags.file, true)
	if err != nil {
		return err
	}
	return writePlan(env.out, report)
}

func checkFileFlags(cmd *cobra.Command, file string) error {
	if file == "" {
		return nil
	}
	for _, name := range profileOnlyFlags {
		if cmd.Flags().Changed(name) {
			return &ike.ConfigError{Field: name, Reason: "cannot be combined with --file"}
		}
	}
	return nil
}

// apply reconciles the declared profiles. With a manifest path the profiles come
// from the file and share one connection and one commit.
func (a *app) apply(ctx context.Context, params ike.Params, device, manifestPath string, dryRun bool) (*reconcile.Report, error) {
	var m *manifest.Manifest
	if manifestPath != "" {
		var err error
		if m, err = manifest.Load(manifestPath); err != nil {
			var cfgErr *ike.ConfigError
			if errors.As(err, &cfgErr) {
				return nil, err
			}
			return nil, &ike.ConfigError{Field: "file", Reason: err.Error()}
		}
		if device == "" {
			device = m.Device.Name
		}
		if params.Address == "" {
			params.Address = m.Device.Address
		}
		if params.Username == "" {
			params.Username = m.Device.Username
		}
		if params.Password == "" && params.APIKey == "" {
			params.Password, params.APIKey = m.Device.Password, m.Device.APIKey
		}
	}

	if err := a.withDevice(&params, device); err != nil {
		return nil, err
	}

	var (
		conn   ike.Connection
		items  []reconcile.Desired
		commit bool
	)
	if m == nil {
		req, err := params.Validate()
		if err != nil {
			return nil, err
		}
		conn, commit = req.Conn, req.Commit
		items = []reconcile.Desired{{Profile: req.Profile, State: req.State}}
	} else {
		reqs, err := m.Requests(params)
		if err != nil {
			return nil, err
		}
		conn, commit = reqs[0].Conn, m.Commit && params.Commit
		for _, req := range reqs {
			items = append(items, reconcile.Desired{Profile: req.Profile, State: req.State})
		}
	}

	if err := a.resolve(&conn); err != nil {
		return nil, err
	}

	return a.reconciler(a.client()).Run(ctx, conn, items, reconcile.RunOptions{
		Commit: commit,
		DryRun: dryRun,
	})
}

// outcome is the single JSON line apply prints
type outcome struct {
	Changed   bool               `json:"changed"`
	Committed bool               `json:"committed,omitempty"`
	Failed    bool               `json:"failed,omitempty"`
	Message   string             `json:"msg"`
	Results   []reconcile.Result `json:"results,omitempty"`
}

// writeOutcome prints the result of apply and passes err through
func writeOutcome(w io.Writer, report *reconcile.Report, err error) error {
	var o outcome
	if report != nil {
		o = outcome{
			Changed:   report.Changed,
			Committed: report.Committed,
			Message:   report.Message,
			Results:   report.Results,
		}
	}
	if err != nil {
		o.Failed = true
		o.Message = err.Error()
	}
	if encErr := json.NewEncoder(w).Encode(o); encErr != nil && err == nil {
		return fmt.Errorf("failed to write result: %w", encErr)
	}
	return err
}

func writePlan(w io.Writer, report *reconcile.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tSTATE\tACTION")
	fmt.Fprintln(tw, "-------\t-----\t------")
	for _, res := range report.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Name, res.State, res.Action)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", report.Message)
	return err
}
