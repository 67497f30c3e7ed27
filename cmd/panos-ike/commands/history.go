package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/netops-tools/panos-ike/internal/audit"
	"github.com/netops-tools/panos-ike/internal/validation"
)

// historyDetailWidth keeps long error messages from wrapping the table
const historyDetailWidth = 80

var (
	historySince   time.Duration
	historyTypes   []string
	historyProfile []string
	historyLimit   int
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent changes from the local audit log",
	Long: `Query the local audit log for connections, profile changes and commits.

Examples:
  panos-ike history --since 24h
  panos-ike history --device edge-fw --type PROFILE_DELETE,COMMIT_FAILED`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "only events newer than this (e.g. 24h)")
	historyCmd.Flags().StringSliceVar(&historyTypes, "type", nil, "event types to include")
	historyCmd.Flags().StringSliceVar(&historyProfile, "profile", nil, "IKE crypto profile names to include")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of events, most recent kept")
}

func runHistory(cmd *cobra.Command, args []string) error {
	query := audit.Query{
		Profiles: historyProfile,
		Limit:    historyLimit,
	}
	if historySince > 0 {
		query.StartTime = time.Now().Add(-historySince)
	}
	for _, t := range historyTypes {
		query.EventTypes = append(query.EventTypes, audit.EventType(strings.ToUpper(t)))
	}
	if deviceName != "" {
		device, err := env.deviceAddress(deviceName)
		if err != nil {
			return err
		}
		// Device events use the name, connection events the address
		query.Devices = []string{deviceName, device}
	}
	return env.history(env.out, query)
}

func (a *app) deviceAddress(name string) (string, error) {
	store, err := a.devices()
	if err != nil {
		return "", err
	}
	device, err := store.Get(name)
	if err != nil {
		return "", fmt.Errorf("device '%s' not found", name)
	}
	return device.Address, nil
}

func (a *app) history(w io.Writer, query audit.Query) error {
	if a.audit == nil {
		return errors.New("audit log is disabled")
	}

	// The open logger keeps writing; search the file it owns
	events, err := audit.SearchFile(a.audit.Path(), query)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(w, "No audit events recorded.")
			return nil
		}
		return err
	}

	var shown []*audit.AuditEvent
	for _, e := range events {
		if e.Type == audit.EventStartup || e.Type == audit.EventShutdown {
			continue
		}
		shown = append(shown, e)
	}
	if len(shown) == 0 {
		fmt.Fprintln(w, "No matching audit events.")
		return nil
	}

	v := validation.NewValidator()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tDEVICE\tPROFILE\tRESULT\tDETAIL")
	for _, e := range shown {
		detail := e.Error
		if detail == "" {
			if s, ok := e.Details["settings"].(string); ok {
				detail = s
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.RFC3339), e.Type, e.Device, e.Profile, e.Result,
			v.TruncateString(detail, historyDetailWidth))
	}
	return tw.Flush()
}
