package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/roach88/shiftsync/internal/delta"
	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/store"
)

// Workflow names.
const (
	WorkflowTeam     = "TeamSync"
	WorkflowEntity   = "EntitySync"
	WorkflowWeek     = "WeekSync"
	WorkflowClear    = "ClearSchedule"
	WorkflowDeferred = "DeferredAction"
)

// Activity names. Week pipeline steps are registered once per entity type
// as "{step}.{EntityType}".
const (
	activityLoadPlan        = "LoadTeamPlan"
	activityEnsureSchedule  = "EnsureSchedule"
	activityGetSchedule     = "GetSchedule"
	activityShareSchedule   = "ShareSchedule"
	activityRecordExecution = "RecordExecution"
	activityReleaseLease    = "ReleaseLease"
	activityClearChunk      = "ClearScheduleChunk"
	activityClearGroups     = "ClearGroups"
	activityClearSnapshots  = "ClearSnapshots"
	activityDispatch        = "DispatchAction"

	stepFetch   = "FetchWeek"
	stepLoad    = "LoadSnapshot"
	stepEnrich  = "Enrich"
	stepApply   = "Apply"
	stepPersist = "PersistSnapshot"
)

func stepName(step string, et model.EntityType) string {
	return step + "." + string(et)
}

// Recorder receives sync measurements. internal/metrics implements it
// with Prometheus collectors.
type Recorder interface {
	ItemsApplied(et model.EntityType, outcome delta.Outcome, n int)
	WeekSynced(et model.EntityType, elapsed time.Duration)
	GroupCacheLookup(hit bool)
	CycleFailed(workflow string)
}

type nopRecorder struct{}

func (nopRecorder) ItemsApplied(model.EntityType, delta.Outcome, int) {}
func (nopRecorder) WeekSynced(model.EntityType, time.Duration)       {}
func (nopRecorder) GroupCacheLookup(bool)                             {}
func (nopRecorder) CycleFailed(string)                                {}

// Orchestrator owns the sync workflows and their activities.
type Orchestrator struct {
	store    *store.Store
	source   Source
	dest     Destination
	secrets  Secrets
	settings Settings
	rec      Recorder
	log      *slog.Logger

	users  *expirable.LRU[string, string]
	groups *groupResolver
	host   *engine.Host
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithSecrets replaces the store as credential provider.
func WithSecrets(s Secrets) Option {
	return func(o *Orchestrator) { o.secrets = s }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.rec = r }
}

// WithLogger sets the logger used by activities.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New creates an orchestrator. Call Register before using the host.
func New(s *store.Store, src Source, dst Destination, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    s,
		source:   src,
		dest:     dst,
		secrets:  s,
		settings: DefaultSettings(),
		rec:      nopRecorder{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	size := max(o.settings.GroupCacheSize, 1)
	o.users = expirable.NewLRU[string, string](size, nil, o.settings.GroupCacheTTL)
	o.groups = newGroupResolver(dst, o.rec, o.log, o.settings)
	return o
}

// Settings returns the effective settings.
func (o *Orchestrator) Settings() Settings {
	return o.settings
}

// Host returns the host passed to Register.
func (o *Orchestrator) Host() *engine.Host {
	return o.host
}

// Register registers every workflow and activity with h.
func (o *Orchestrator) Register(h *engine.Host) {
	o.host = h

	engine.RegisterWorkflow(h, WorkflowTeam, o.teamSync)
	engine.RegisterWorkflow(h, WorkflowEntity, o.entitySync)
	engine.RegisterWorkflow(h, WorkflowWeek, o.weekSync)
	engine.RegisterWorkflow(h, WorkflowClear, o.clearSchedule)
	engine.RegisterWorkflow(h, WorkflowDeferred, o.deferredAction)

	engine.RegisterActivity(h, activityLoadPlan, o.loadPlan)
	engine.RegisterActivity(h, activityEnsureSchedule, o.ensureSchedule)
	engine.RegisterActivity(h, activityGetSchedule, o.getSchedule)
	engine.RegisterActivity(h, activityShareSchedule, o.shareSchedule)
	engine.RegisterActivity(h, activityRecordExecution, o.recordExecution)
	engine.RegisterActivity(h, activityReleaseLease, o.releaseLease)
	engine.RegisterActivity(h, activityClearChunk, o.clearChunk)
	engine.RegisterActivity(h, activityClearGroups, o.clearGroups)
	engine.RegisterActivity(h, activityClearSnapshots, o.clearSnapshots)
	engine.RegisterActivity(h, activityDispatch, o.dispatch)

	registerKind(o, h, shiftsKind)
	registerKind(o, h, openShiftsKind)
	registerKind(o, h, timeOffKind)
	registerKind(o, h, availabilityKind)
}

// credentials returns the team's WFM credentials.
func (o *Orchestrator) credentials(ctx context.Context, teamID string) (model.Credentials, error) {
	creds, err := o.secrets.GetCredentials(ctx, teamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrNotFound) {
			return model.Credentials{}, fmt.Errorf("no credentials for team %s: %w", teamID, ErrNotFound)
		}
		return model.Credentials{}, fmt.Errorf("load credentials for team %s: %w", teamID, err)
	}
	return creds, nil
}
