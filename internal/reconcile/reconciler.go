// Package reconcile makes the IKE crypto profiles on a device match a declared state.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/netops-tools/panos-ike/internal/audit"
	"github.com/netops-tools/panos-ike/internal/ike"
	"github.com/netops-tools/panos-ike/internal/metrics"
	"github.com/netops-tools/panos-ike/internal/tracing"
)

// SuccessMessage is reported for every successful run that may mutate.
// Dry runs report how many profiles would change instead.
const SuccessMessage = "IKE Crypto profile config successful."

// DeviceClient is the device collaborator driven by the Reconciler.
// FindByName returns nil and no error when the profile does not exist.
type DeviceClient interface {
	Connect(ctx context.Context, conn ike.Connection) error
	ListProfiles(ctx context.Context) ([]ike.Profile, error)
	FindByName(ctx context.Context, name string) (*ike.Profile, error)
	Create(ctx context.Context, profile ike.Profile) error
	Apply(ctx context.Context, profile ike.Profile) error
	Delete(ctx context.Context, profile ike.Profile) error
	CommitSync(ctx context.Context) error
}

// Action is the mutation chosen for one profile
type Action string

const (
	ActionNone   Action = "none"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Desired pairs a profile with its desired state
type Desired struct {
	Profile ike.Profile
	State   ike.State
}

// Result describes the outcome for one profile
type Result struct {
	Name      string    `json:"name"`
	State     ike.State `json:"state"`
	Action    Action    `json:"action"`
	Changed   bool      `json:"changed"`
	Committed bool      `json:"committed"`
	Message   string    `json:"msg"`
}

// Report describes the outcome of a run over one or more profiles
type Report struct {
	Results   []Result `json:"results"`
	Changed   bool     `json:"changed"`
	Committed bool     `json:"committed"`
	Message   string   `json:"msg"`
}

// RunOptions controls commit and check-mode behaviour of a run
type RunOptions struct {
	Commit bool
	// DryRun computes the actions without mutating or committing
	DryRun bool
}

// Options configures a Reconciler. Zero values disable the corresponding concern.
type Options struct {
	Logger  *zerolog.Logger
	Audit   *audit.Logger
	Metrics *metrics.Recorder
	Tracer  trace.Tracer
}

// Reconciler applies desired IKE crypto profiles through a DeviceClient
type Reconciler struct {
	client  DeviceClient
	log     zerolog.Logger
	audit   *audit.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
}

// New creates a Reconciler for the given client
func New(client DeviceClient, opts Options) *Reconciler {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Tracer()
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Reconciler{
		client:  client,
		log:     logger,
		audit:   opts.Audit,
		metrics: opts.Metrics,
		tracer:  tracer,
	}
}

// Reconcile ensures a single profile matches req and commits if requested and changed
func (r *Reconciler) Reconcile(ctx context.Context, req *ike.Request) (*Result, error) {
	return r.single(ctx, req, RunOptions{Commit: req.Commit})
}

// Plan reports what Reconcile would do without mutating the device
func (r *Reconciler) Plan(ctx context.Context, req *ike.Request) (*Result, error) {
	return r.single(ctx, req, RunOptions{DryRun: true})
}

func (r *Reconciler) single(ctx context.Context, req *ike.Request, opts RunOptions) (*Result, error) {
	report, err := r.Run(ctx, req.Conn, []Desired{{Profile: req.Profile, State: req.State}}, opts)
	if err != nil {
		return nil, err
	}
	res := report.Results[0]
	res.Committed = report.Committed
	res.Message = report.Message
	return &res, nil
}

// Run connects once, reconciles every item in order and commits once if anything changed.
// The first error aborts the run; the partial report is returned alongside it.
func (r *Reconciler) Run(ctx context.Context, conn ike.Connection, items []Desired, opts RunOptions) (*Report, error) {
	report := &Report{Results: make([]Result, 0, len(items))}

	for _, item := range items {
		if !item.State.Valid() {
			return report, &UnsupportedStateError{State: item.State}
		}
	}

	ctx, span := r.tracer.Start(ctx, "reconcile.run", trace.WithAttributes(
		attribute.String("device.address", conn.Address),
		attribute.Int("profiles", len(items)),
		attribute.Bool("dry_run", opts.DryRun),
	))
	defer span.End()

	if err := r.connect(ctx, conn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect")
		return report, err
	}

	for _, item := range items {
		res, err := r.reconcileOne(ctx, conn, item, opts.DryRun)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reconcile")
			return report, err
		}
		report.Results = append(report.Results, *res)
		report.Changed = report.Changed || res.Changed
	}

	if opts.DryRun {
		report.Message = checkModeMessage(report)
		return report, nil
	}

	if report.Changed && opts.Commit {
		if err := r.commit(ctx, conn); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit")
			return report, err
		}
		report.Committed = true
		for i := range report.Results {
			report.Results[i].Committed = report.Results[i].Changed
		}
	}

	report.Message = SuccessMessage
	return report, nil
}

func (r *Reconciler) connect(ctx context.Context, conn ike.Connection) error {
	ctx, span := r.tracer.Start(ctx, "reconcile.connect")
	defer span.End()

	err := r.client.Connect(ctx, conn)
	if r.audit != nil {
		r.audit.LogConnect(conn.Address, conn.Username, err == nil, nil)
	}
	if err != nil {
		r.log.Error().Err(err).Str("address", conn.Address).Msg("connect failed")
		return &ConnectionError{Address: conn.Address, Err: err}
	}
	r.log.Debug().Str("address", conn.Address).Str("username", conn.Username).Msg("connected")
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, conn ike.Connection, item Desired, dryRun bool) (*Result, error) {
	name := item.Profile.Name
	ctx, span := r.tracer.Start(ctx, "reconcile.profile", trace.WithAttributes(
		attribute.String("profile.name", name),
		attribute.String("profile.state", string(item.State)),
	))
	defer span.End()

	start := time.Now()
	logger := r.log.With().Str("profile", name).Str("state", string(item.State)).Logger()

	existing, err := r.lookup(ctx, item, logger)
	if err != nil {
		r.observe(item, ActionNone, "error", start)
		return nil, err
	}

	action := Diff(existing, item.Profile, item.State)
	span.SetAttributes(attribute.String("profile.action", string(action)))

	res := &Result{
		Name:    name,
		State:   item.State,
		Action:  action,
		Changed: action != ActionNone,
	}

	if dryRun || action == ActionNone {
		logger.Info().Str("action", string(action)).Bool("check_mode", dryRun).Msg("profile evaluated")
		result := "ok"
		if dryRun {
			result = "planned"
		}
		r.observe(item, action, result, start)
		return res, nil
	}

	if err := r.mutate(ctx, action, item.Profile, existing); err != nil {
		r.observe(item, action, "error", start)
		if r.audit != nil {
			r.audit.LogProfileChange(auditEvent(action), conn.Address, name, false, map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, err
	}

	if r.audit != nil {
		r.audit.LogProfileChange(auditEvent(action), conn.Address, name, true, map[string]interface{}{
			"settings": item.Profile.Summary(),
		})
	}
	logger.Info().Str("action", string(action)).Str("settings", item.Profile.Summary()).Msg("profile changed")
	r.observe(item, action, "ok", start)
	return res, nil
}

// lookup fetches the live profile matching the desired name, or nil.
// Present scans the full list; absent queries by name.
func (r *Reconciler) lookup(ctx context.Context, item Desired, logger zerolog.Logger) (*ike.Profile, error) {
	name := item.Profile.Name

	if item.State == ike.StateAbsent {
		existing, err := r.client.FindByName(ctx, name)
		if err != nil {
			return nil, &DeviceError{Op: "find profile", Profile: name, Err: err}
		}
		return existing, nil
	}

	profiles, err := r.client.ListProfiles(ctx)
	if err != nil {
		return nil, &DeviceError{Op: "list profiles", Err: err}
	}

	existing, duplicates := firstMatch(profiles, name)
	if duplicates > 0 {
		logger.Warn().Int("duplicates", duplicates).Msg("device returned several profiles with the same name, using the first")
	}
	return existing, nil
}

func (r *Reconciler) mutate(ctx context.Context, action Action, desired ike.Profile, existing *ike.Profile) error {
	ctx, span := r.tracer.Start(ctx, "reconcile."+string(action))
	defer span.End()

	var err error
	switch action {
	case ActionCreate:
		err = r.client.Create(ctx, desired)
	case ActionUpdate:
		err = r.client.Apply(ctx, desired)
	case ActionDelete:
		err = r.client.Delete(ctx, *existing)
	default:
		return fmt.Errorf("unexpected action %q", action)
	}

	if err != nil {
		span.RecordError(err)
		return &DeviceError{Op: string(action) + " profile", Profile: desired.Name, Err: err}
	}
	return nil
}

func (r *Reconciler) commit(ctx context.Context, conn ike.Connection) error {
	ctx, span := r.tracer.Start(ctx, "reconcile.commit")
	defer span.End()

	start := time.Now()
	r.log.Info().Str("address", conn.Address).Msg("committing")

	err := r.client.CommitSync(ctx)
	if r.metrics != nil {
		r.metrics.ObserveCommit(err == nil, time.Since(start))
	}
	if r.audit != nil {
		r.audit.LogCommit(conn.Address, err == nil, nil)
	}
	if err != nil {
		span.RecordError(err)
		r.log.Error().Err(err).Msg("commit failed")
		return &CommitError{Err: err}
	}

	r.log.Info().Dur("took", time.Since(start)).Msg("commit finished")
	return nil
}

func (r *Reconciler) observe(item Desired, action Action, result string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveReconcile(string(item.State), string(action), result, time.Since(start))
}

// Diff decides the action needed to move existing to the desired state.
// existing is nil when the device has no profile of that name.
func Diff(existing *ike.Profile, desired ike.Profile, state ike.State) Action {
	switch state {
	case ike.StatePresent:
		if existing == nil {
			return ActionCreate
		}
		if !desired.Equal(*existing) {
			return ActionUpdate
		}
	case ike.StateAbsent:
		if existing != nil {
			return ActionDelete
		}
	}
	return ActionNone
}

// firstMatch returns the first profile named name and how many later entries share that name
func firstMatch(profiles []ike.Profile, name string) (*ike.Profile, int) {
	var match *ike.Profile
	duplicates := 0
	for i := range profiles {
		if profiles[i].Name != name {
			continue
		}
		if match == nil {
			p := profiles[i]
			match = &p
			continue
		}
		duplicates++
	}
	return match, duplicates
}

func auditEvent(action Action) audit.EventType {
	switch action {
	case ActionCreate:
		return audit.EventProfileCreate
	case ActionUpdate:
		return audit.EventProfileUpdate
	default:
		return audit.EventProfileDelete
	}
}

func checkModeMessage(report *Report) string {
	changes := 0
	for _, res := range report.Results {
		if res.Changed {
			changes++
		}
	}
	if changes == 0 {
		return "check mode: no changes required"
	}
	return fmt.Sprintf("check mode: %d profile(s) would change", changes)
}
