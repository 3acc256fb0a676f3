package pipeline

import (
	"fmt"
	"slices"
	"time"

	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Phase is a pipeline state without its target environment.
type Phase string

const (
	PhaseSource         Phase = "Source"
	PhaseSynthesize     Phase = "Synthesize"
	PhaseDeployStage    Phase = "DeployStage"
	PhaseManualApproval Phase = "ManualApproval"
)

// transitions lists the phases each phase may move to. The environment order
// is checked separately by Run.Advance.
var transitions = map[Phase][]Phase{
	"":                  {PhaseSource},
	PhaseSource:         {PhaseSynthesize},
	PhaseSynthesize:     {PhaseDeployStage},
	PhaseDeployStage:    {PhaseManualApproval},
	PhaseManualApproval: {PhaseDeployStage},
}

// Position is a state of the pipeline, e.g. DeployStage(test).
type Position struct {
	Phase       Phase  `json:"phase"`
	Environment string `json:"environment,omitempty"`
}

func (p Position) String() string {
	if p.Environment == "" {
		return string(p.Phase)
	}
	return fmt.Sprintf("%s(%s)", p.Phase, p.Environment)
}

// Status is the lifecycle of a run as a whole.
type Status string

const (
	StatusRunning          Status = "Running"
	StatusAwaitingApproval Status = "AwaitingApproval"
	StatusSucceeded        Status = "Succeeded"
	StatusFailed           Status = "Failed"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

type StageStatus string

const (
	StageRunning   StageStatus = "Running"
	StageSucceeded StageStatus = "Succeeded"
	StageFailed    StageStatus = "Failed"
)

// StageRecord is what a deploy stage did, kept on the run for inspection.
type StageRecord struct {
	Name        string            `json:"name"`
	Environment string            `json:"environment"`
	Account     string            `json:"account"`
	Region      string            `json:"region"`
	Status      StageStatus       `json:"status"`
	Planned     []string          `json:"planned,omitempty"`
	Completed   []string          `json:"completed,omitempty"`
	FailedStep  string            `json:"failedStep,omitempty"`
	Error       string            `json:"error,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	StartedAt   time.Time         `json:"startedAt"`
	FinishedAt  time.Time         `json:"finishedAt,omitzero"`
}

// Approval releases the gate after the named environment's stage.
type Approval struct {
	Environment string    `json:"environment"`
	Action      string    `json:"action"`
	By          string    `json:"by"`
	Comment     string    `json:"comment,omitempty"`
	At          time.Time `json:"at"`
}

// Run is one promotion from source to prod. It never outlives the promotion.
type Run struct {
	ID        string         `json:"id"`
	Revision  string         `json:"revision,omitempty"`
	Status    Status         `json:"status"`
	Position  Position       `json:"position"`
	History   []Position     `json:"history,omitempty"`
	Stages    []*StageRecord `json:"stages,omitempty"`
	Approvals []Approval     `json:"approvals,omitempty"`
	Error     string         `json:"error,omitempty"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func NewRun(id string, now time.Time) *Run {
	return &Run{
		ID:        id,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the run to next. It enforces the transition table, the
// environment order in plan and the approval gate in front of every deploy
// stage after the first.
func (r *Run) Advance(plan []string, next Position, now time.Time) error {
	if r.Status.Terminal() {
		return r.invalid(next, "run is %s", r.Status)
	}
	if !slices.Contains(transitions[r.Position.Phase], next.Phase) {
		return r.invalid(next, "not allowed from %s", r.Position.Phase)
	}

	switch next.Phase {
	case PhaseDeployStage:
		idx := slices.Index(plan, next.Environment)
		if idx < 0 {
			return r.invalid(next, "environment %q is not in the plan", next.Environment)
		}
		if idx != r.stagesSucceeded() {
			return r.invalid(next, "expected DeployStage(%s)", plan[min(r.stagesSucceeded(), len(plan)-1)])
		}
		if idx > 0 {
			prev := plan[idx-1]
			if r.Position != (Position{Phase: PhaseManualApproval, Environment: prev}) || !r.Approved(prev) {
				return r.invalid(next, "requires an approved ManualApproval after DeployStage(%s)", prev)
			}
		}
	case PhaseManualApproval:
		stage := r.Stage(r.Position.Environment)
		if stage == nil || stage.Status != StageSucceeded {
			return r.invalid(next, "DeployStage(%s) has not succeeded", r.Position.Environment)
		}
		if next.Environment != r.Position.Environment {
			return r.invalid(next, "approval must follow DeployStage(%s)", r.Position.Environment)
		}
		if r.stagesSucceeded() >= len(plan) {
			return r.invalid(next, "no stage left to approve")
		}
	}

	if r.Position.Phase != "" {
		r.History = append(r.History, r.Position)
	}
	r.Position = next
	r.UpdatedAt = now
	return nil
}

// Visited reports whether the run has been at p, including now.
func (r *Run) Visited(p Position) bool {
	return r.Position == p || slices.Contains(r.History, p)
}

// Approved reports whether the gate after env's stage has been released.
func (r *Run) Approved(env string) bool {
	return slices.ContainsFunc(r.Approvals, func(a Approval) bool { return a.Environment == env })
}

func (r *Run) Stage(env string) *StageRecord {
	s, _ := lo.Find(r.Stages, func(s *StageRecord) bool { return s.Environment == env })
	return s
}

func (r *Run) stagesSucceeded() int {
	return lo.CountBy(r.Stages, func(s *StageRecord) bool { return s.Status == StageSucceeded })
}

func (r *Run) fail(err error, now time.Time) {
	r.Status = StatusFailed
	r.Error = err.Error()
	r.UpdatedAt = now
}

func (r *Run) invalid(next Position, format string, args ...any) error {
	return errors.Mark(
		errors.Newf("run %s cannot enter %s from %s: %s", r.ID, next, r.Position, fmt.Sprintf(format, args...)),
		promoerr.ErrInvalidTransition)
}
