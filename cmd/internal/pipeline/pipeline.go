// Package pipeline promotes a revision through the environments in order.
//
// A run moves through Source, Synthesize, DeployStage(test), ManualApproval and
// DeployStage(prod). The approval gate is the only state that waits on an
// external signal; it has no timeout and ends only with an approval or with
// cancellation of the waiting context. A failed stage fails the run and leaves
// every resource it created in place.
package pipeline

import (
	"context"
	"time"

	"github.com/basewarphq/bwpromote/cmd/internal/logging"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Store persists runs. Update must fail with promoerr.ErrRunConflict when the
// stored version differs from run.Version, and bumps the version on success.
type Store interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	Update(ctx context.Context, run *Run) error
}

// Locker serializes stages per environment across processes.
type Locker interface {
	Acquire(ctx context.Context, env, token, label string) error
	Release(ctx context.Context, env, token string) error
}

type ApprovalRequest struct {
	RunID           string            `json:"runId"`
	Action          string            `json:"action"`
	Environment     string            `json:"environment"`
	NextEnvironment string            `json:"nextEnvironment"`
	Revision        string            `json:"revision"`
	Outputs         map[string]string `json:"outputs,omitempty"`
}

// Notifier announces that a run is waiting at the approval gate.
type Notifier interface {
	ApprovalRequested(ctx context.Context, req ApprovalRequest) error
}

// Workspace resolves the source revision and synthesizes the app.
type Workspace interface {
	Revision(ctx context.Context) (string, error)
	Synthesize(ctx context.Context, revision string) error
}

type Options struct {
	// Detach returns at the approval gate instead of waiting.
	Detach bool
}

type Runner struct {
	cfg       *promocfg.Config
	store     Store
	locker    Locker
	notifier  Notifier
	workspace Workspace
	services  ServicesFunc
	logger    *zap.Logger
	tracer    trace.Tracer

	now   func() time.Time
	newID func() string
}

type Deps struct {
	Config    *promocfg.Config
	Store     Store
	Locker    Locker
	Notifier  Notifier
	Workspace Workspace
	Services  ServicesFunc
	Logger    *zap.Logger
	Tracer    trace.Tracer
	// Now and NewID default to the wall clock and ULIDs.
	Now   func() time.Time
	NewID func() string
}

func NewRunner(d Deps) *Runner {
	r := &Runner{
		cfg:       d.Config,
		store:     d.Store,
		locker:    d.Locker,
		notifier:  d.Notifier,
		workspace: d.Workspace,
		services:  d.Services,
		logger:    d.Logger.Named("pipeline"),
		tracer:    d.Tracer,
		now:       d.Now,
		newID:     d.NewID,
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if r.newID == nil {
		r.newID = randomID
	}
	return r
}

// Plan is the environment order of every run.
func (r *Runner) Plan() []string {
	return lo.Map(r.cfg.Ordered(), func(e promocfg.Environment, _ int) string { return e.Name })
}

// Start creates a run and drives it until it finishes, fails or, with
// Detach, reaches the approval gate.
func (r *Runner) Start(ctx context.Context, opts Options) (*Run, error) {
	run := NewRun(r.newID(), r.now())
	if err := r.store.Create(ctx, run); err != nil {
		return nil, errors.Wrap(err, "creating run")
	}
	r.logger.Info("run started", zap.String("runId", run.ID), zap.Strings("plan", r.Plan()))
	return r.drive(ctx, run, opts)
}

// Resume continues a run waiting at the approval gate.
func (r *Runner) Resume(ctx context.Context, id string, opts Options) (*Run, error) {
	run, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusAwaitingApproval {
		return run, errors.Mark(
			errors.Newf("run %s is %s at %s", run.ID, run.Status, run.Position),
			promoerr.ErrNotAwaitingApproval)
	}
	return r.drive(ctx, run, opts)
}

// Approve records the approval signal for a run waiting at the gate. The
// waiting runner, in this or another process, picks it up on its next poll.
func (r *Runner) Approve(ctx context.Context, id, by, comment string) (*Run, error) {
	run, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusAwaitingApproval || run.Position.Phase != PhaseManualApproval {
		return run, errors.Mark(
			errors.Newf("run %s is %s at %s", run.ID, run.Status, run.Position),
			promoerr.ErrNotAwaitingApproval)
	}
	env := run.Position.Environment
	if run.Approved(env) {
		return run, nil
	}
	run.Approvals = append(run.Approvals, Approval{
		Environment: env,
		Action:      r.cfg.ApprovalAction,
		By:          by,
		Comment:     comment,
		At:          r.now(),
	})
	run.UpdatedAt = r.now()
	if err := r.store.Update(ctx, run); err != nil {
		return nil, errors.Wrapf(err, "recording approval for run %s", id)
	}
	r.logger.Info("approval recorded",
		zap.String("runId", id),
		zap.String("action", r.cfg.ApprovalAction),
		zap.String("by", by))
	return run, nil
}

func (r *Runner) Status(ctx context.Context, id string) (*Run, error) {
	return r.store.Get(ctx, id)
}

func (r *Runner) drive(ctx context.Context, run *Run, opts Options) (*Run, error) {
	plan := r.Plan()
	for {
		var err error
		switch run.Position.Phase {
		case "":
			err = r.source(ctx, run, plan)
		case PhaseSource:
			err = r.synthesize(ctx, run, plan)
		case PhaseSynthesize:
			err = r.deploy(ctx, run, plan, plan[0])
		case PhaseDeployStage:
			env := run.Position.Environment
			if env == plan[len(plan)-1] {
				run.Status = StatusSucceeded
				run.UpdatedAt = r.now()
				if err := r.store.Update(ctx, run); err != nil {
					return run, err
				}
				r.logger.Info("run succeeded", zap.String("runId", run.ID))
				return run, nil
			}
			err = r.requestApproval(ctx, run, plan, env)
			if err == nil && opts.Detach {
				return run, nil
			}
		case PhaseManualApproval:
			run, err = r.awaitApproval(ctx, run)
			if err != nil {
				return run, err
			}
			idx := lo.IndexOf(plan, run.Position.Environment)
			err = r.deploy(ctx, run, plan, plan[idx+1])
		default:
			err = errors.Newf("run %s is at unknown position %s", run.ID, run.Position)
		}
		if err != nil {
			return run, err
		}
	}
}

func (r *Runner) source(ctx context.Context, run *Run, plan []string) error {
	ctx, span := r.tracer.Start(ctx, "pipeline.Source")
	defer span.End()

	if err := r.enter(ctx, run, plan, Position{Phase: PhaseSource}); err != nil {
		return err
	}
	rev, err := r.workspace.Revision(ctx)
	if err != nil {
		return r.failRun(ctx, span, run, errors.Wrap(err, "resolving source revision"))
	}
	run.Revision = rev
	span.SetAttributes(attribute.String("revision", rev))
	r.logger.Info("source resolved", zap.String("runId", run.ID), zap.String("revision", rev))
	return nil
}

func (r *Runner) synthesize(ctx context.Context, run *Run, plan []string) error {
	ctx, span := r.tracer.Start(ctx, "pipeline.Synthesize")
	defer span.End()

	if err := r.enter(ctx, run, plan, Position{Phase: PhaseSynthesize}); err != nil {
		return err
	}
	if err := r.workspace.Synthesize(ctx, run.Revision); err != nil {
		return r.failRun(ctx, span, run, errors.Wrap(err, "synthesizing"))
	}
	return nil
}

func (r *Runner) deploy(ctx context.Context, run *Run, plan []string, envName string) error {
	ctx, span := r.tracer.Start(ctx, "pipeline.DeployStage",
		trace.WithAttributes(attribute.String("environment", envName)))
	defer span.End()

	if err := r.enter(ctx, run, plan, Position{Phase: PhaseDeployStage, Environment: envName}); err != nil {
		return err
	}
	env, err := r.cfg.Environment(envName)
	if err != nil {
		return r.failRun(ctx, span, run, err)
	}

	record := &StageRecord{
		Name:        "DeployStage(" + envName + ")",
		Environment: env.Name,
		Account:     env.Account,
		Region:      env.Region,
		Status:      StageRunning,
		StartedAt:   r.now(),
	}
	run.Stages = append(run.Stages, record)
	if err := r.store.Update(ctx, run); err != nil {
		record.Status = StageFailed
		record.Error = err.Error()
		record.FinishedAt = r.now()
		return r.failRun(ctx, span, run, errors.Wrapf(err, "recording start of %s", record.Name))
	}

	log := logging.FromContext(ctx, r.logger).With(zap.String("runId", run.ID), zap.String("environment", env.Name))
	log.Info("stage started", zap.String("account", env.Account), zap.String("region", env.Region))

	stageErr := r.runStage(ctx, run, env, record, log)
	record.FinishedAt = r.now()
	if stageErr != nil {
		record.Status = StageFailed
		record.Error = stageErr.Error()
		failure := &promoerr.StageFailure{
			Stage:       record.Name,
			Environment: env.Name,
			Step:        record.FailedStep,
			Cause:       stageErr,
		}
		log.Error("stage failed", zap.String("step", record.FailedStep), zap.Error(stageErr))
		return r.failRun(ctx, span, run, failure)
	}

	record.Status = StageSucceeded
	run.UpdatedAt = r.now()
	if err := r.store.Update(ctx, run); err != nil {
		return err
	}
	log.Info("stage succeeded", zap.Any("outputs", record.Outputs))
	return nil
}

func (r *Runner) runStage(
	ctx context.Context, run *Run, env promocfg.Environment, record *StageRecord, log *zap.Logger,
) error {
	token := r.newID()
	if err := r.locker.Acquire(ctx, env.Name, token, run.ID); err != nil {
		record.FailedStep = "acquire-lock"
		return err
	}
	defer func() {
		// The stage context may be cancelled; release with a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := r.locker.Release(releaseCtx, env.Name, token); err != nil {
			log.Warn("releasing environment lock", zap.Error(err))
		}
	}()

	svc, err := r.services(env)
	if err != nil {
		record.FailedStep = "configure"
		return err
	}
	st := &stage{
		env:               env,
		certificateRegion: r.cfg.CertificateRegion,
		svc:               svc,
		logger:            log,
	}
	graph, err := st.graph()
	if err != nil {
		record.FailedStep = StepBuildGraph
		return err
	}
	record.Planned = graph.Steps()
	log.Debug("stage planned", zap.Strings("steps", record.Planned))

	res, err := graph.Execute(ctx)
	record.Completed = res.Completed
	record.FailedStep = res.Failed
	if err != nil {
		return err
	}
	record.Outputs = st.outputs
	return nil
}

func (r *Runner) requestApproval(ctx context.Context, run *Run, plan []string, env string) error {
	ctx, span := r.tracer.Start(ctx, "pipeline.ManualApproval",
		trace.WithAttributes(attribute.String("environment", env)))
	defer span.End()

	if err := r.enter(ctx, run, plan, Position{Phase: PhaseManualApproval, Environment: env}); err != nil {
		return err
	}
	run.Status = StatusAwaitingApproval
	if err := r.store.Update(ctx, run); err != nil {
		return err
	}

	req := ApprovalRequest{
		RunID:           run.ID,
		Action:          r.cfg.ApprovalAction,
		Environment:     env,
		NextEnvironment: plan[lo.IndexOf(plan, env)+1],
		Revision:        run.Revision,
	}
	if st := run.Stage(env); st != nil {
		req.Outputs = st.Outputs
	}
	if err := r.notifier.ApprovalRequested(ctx, req); err != nil {
		// The gate works without the notification; the operator can still approve.
		r.logger.Warn("approval notification failed", zap.String("runId", run.ID), zap.Error(err))
	}
	r.logger.Info("awaiting approval",
		zap.String("runId", run.ID),
		zap.String("action", r.cfg.ApprovalAction),
		zap.String("next", req.NextEnvironment))
	return nil
}

// awaitApproval blocks until the run at the gate is approved. It polls the
// store because the approval may come from another process.
func (r *Runner) awaitApproval(ctx context.Context, run *Run) (*Run, error) {
	env := run.Position.Environment
	if !run.Approved(env) {
		ticker := time.NewTicker(r.cfg.ApprovalPoll.Duration)
		defer ticker.Stop()
		for !run.Approved(env) {
			select {
			case <-ctx.Done():
				return run, errors.Wrapf(ctx.Err(), "waiting for approval of run %s", run.ID)
			case <-ticker.C:
			}
			latest, err := r.store.Get(ctx, run.ID)
			if err != nil {
				return run, err
			}
			if latest.Position != run.Position {
				return latest, errors.Mark(
					errors.Newf("run %s moved to %s while waiting", run.ID, latest.Position),
					promoerr.ErrRunConflict)
			}
			run = latest
		}
	}

	run.Status = StatusRunning
	run.UpdatedAt = r.now()
	if err := r.store.Update(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

func (r *Runner) enter(ctx context.Context, run *Run, plan []string, next Position) error {
	if err := run.Advance(plan, next, r.now()); err != nil {
		return err
	}
	if err := r.store.Update(ctx, run); err != nil {
		return err
	}
	r.logger.Debug("entered state", zap.String("runId", run.ID), zap.Stringer("position", next))
	return nil
}

// failRun marks the run failed and returns cause. Nothing is rolled back.
func (r *Runner) failRun(ctx context.Context, span trace.Span, run *Run, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	run.fail(cause, r.now())
	if err := r.store.Update(context.WithoutCancel(ctx), run); err != nil {
		return errors.CombineErrors(cause, errors.Wrap(err, "recording failure"))
	}
	return cause
}

// randomID returns a ULID, so run ids sort by creation time.
func randomID() string {
	return ulid.Make().String()
}
