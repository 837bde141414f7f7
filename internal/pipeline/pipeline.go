// Package pipeline sequences the two nexup stages, provision then configure,
// as an explicit state machine. Stages run either in disposable docker
// containers sharing only a workspace volume, or in-process for environments
// without a docker daemon; the state machine is the same either way.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexup/nexup/internal/log"
	"github.com/nexup/nexup/internal/registry"
)

// State is one node of the pipeline state machine.
type State string

const (
	StatePending         State = "PENDING"
	StateProvisioning    State = "PROVISIONING"
	StateProvisioned     State = "PROVISIONED"
	StateProvisionFailed State = "PROVISION_FAILED"
	StateConfiguring     State = "CONFIGURING"
	StateDone            State = "DONE"
	StateConfigureFailed State = "CONFIGURE_FAILED"
)

// transitions encodes the only legal state changes. Failed states are
// terminal; there is no automatic stage retry.
var transitions = map[State][]State{
	StatePending:      {StateProvisioning},
	StateProvisioning: {StateProvisioned, StateProvisionFailed},
	StateProvisioned:  {StateConfiguring},
	StateConfiguring:  {StateDone, StateConfigureFailed},
}

var ErrBadTransition = fmt.Errorf("illegal pipeline state transition")

// StageFunc executes one stage. Implementations are either in-process calls
// or container runs; the pipeline does not care which.
type StageFunc func(ctx context.Context) error

// Pipeline runs the provision and configure stages for one deployment and
// resolves the resulting host from the registry.
type Pipeline struct {
	RunID      string
	Deployment string

	provision StageFunc
	configure StageFunc
	registry  registry.Registry

	state   State
	history []State
}

// Result is the pipeline's output: the deployment's host, ready for use.
type Result struct {
	RunID      string
	Address    string
	Generation uint64
}

func New(deployment string, reg registry.Registry, provision, configure StageFunc) *Pipeline {
	return &Pipeline{
		RunID:      uuid.NewString(),
		Deployment: deployment,
		provision:  provision,
		configure:  configure,
		registry:   reg,
		state:      StatePending,
		history:    []State{StatePending},
	}
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State { return p.state }

// History returns every state the pipeline has passed through, in order.
func (p *Pipeline) History() []State { return p.history }

func (p *Pipeline) to(next State) error {
	for _, allowed := range transitions[p.state] {
		if allowed == next {
			p.state = next
			p.history = append(p.history, next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrBadTransition, p.state, next)
}

// Run drives the state machine to a terminal state. The first failing stage
// halts the pipeline; its error is returned untouched so callers can inspect
// the underlying cause.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	ctx = log.With(ctx, "run", p.RunID, "deployment", p.Deployment)

	if err := p.to(StateProvisioning); err != nil {
		return nil, err
	}
	log.Info(ctx, "stage starting", "stage", "provision")
	if err := p.provision(ctx); err != nil {
		_ = p.to(StateProvisionFailed)
		log.Error(ctx, "stage failed", "stage", "provision", "error", err)
		return nil, err
	}
	if err := p.to(StateProvisioned); err != nil {
		return nil, err
	}

	if err := p.to(StateConfiguring); err != nil {
		return nil, err
	}
	log.Info(ctx, "stage starting", "stage", "configure")
	if err := p.configure(ctx); err != nil {
		_ = p.to(StateConfigureFailed)
		log.Error(ctx, "stage failed", "stage", "configure", "error", err)
		return nil, err
	}
	if err := p.to(StateDone); err != nil {
		return nil, err
	}

	entry, err := p.registry.Resolve(ctx, p.Deployment)
	if err != nil {
		return nil, fmt.Errorf("pipeline finished but the host record is missing: %w", err)
	}
	log.Info(ctx, "pipeline done", "address", entry.Record.Address, "generation", entry.Generation)
	return &Result{
		RunID:      p.RunID,
		Address:    entry.Record.Address,
		Generation: entry.Generation,
	}, nil
}
