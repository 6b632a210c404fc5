// Package agent implements the runfleet polling loop: register once,
// then fetch pending actions, execute them in order and report the
// captured output back, on a fixed cadence, forever. Nothing the
// controller sends and no transport failure can terminate the loop; the
// agent only ever logs and continues.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/runfleet/runfleet/pkg/protocol"
)

// DefaultPollInterval is the cadence between cycle starts.
const DefaultPollInterval = 30 * time.Second

// Controller is the subset of the controller protocol the loop drives.
type Controller interface {
	Register(ctx context.Context, profile Profile) (string, error)
	GetActions(ctx context.Context, clientID string) ([]protocol.Action, error)
	ReportResults(ctx context.Context, clientID string, results []protocol.ActionResult) error
}

// Runner executes a single action. Implementations never return an
// error; failures live inside the result output.
type Runner interface {
	Execute(ctx context.Context, action protocol.Action) protocol.ActionResult
}

// IdentityStore persists the controller-assigned client id across
// restarts.
type IdentityStore interface {
	Load() string
	Save(id string) error
}

var _ Controller = (*Client)(nil)

type Config struct {
	Logger     *slog.Logger
	Controller Controller
	Store      IdentityStore
	Runner     Runner
	Profile    Profile

	// PollInterval is the fixed interval between cycle starts. No
	// backoff, no jitter.
	PollInterval time.Duration
}

// Agent drives the fetch → execute → report cycle. A single goroutine
// owns all state; clientID is written at most once per process lifetime
// and read-only afterwards.
type Agent struct {
	logger     *slog.Logger
	controller Controller
	store      IdentityStore
	runner     Runner
	profile    Profile

	clientID string

	services.Service
}

func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	a := &Agent{
		logger:     logger,
		controller: cfg.Controller,
		store:      cfg.Store,
		runner:     cfg.Runner,
		profile:    cfg.Profile,
	}
	a.Service = services.NewTimerService(interval, a.starting, a.iteration, nil)
	return a
}

func (a *Agent) starting(ctx context.Context) error {
	if id := a.store.Load(); id != "" {
		a.clientID = id
		a.logger.With("client_id", id).Info("already registered")
	}
	// first cycle runs at startup; the timer covers every one after
	a.Cycle(ctx)
	return nil
}

// iteration never returns an error: a failed cycle is logged and the
// timer simply fires again.
func (a *Agent) iteration(ctx context.Context) error {
	a.Cycle(ctx)
	return nil
}

// Cycle runs one fetch → execute → report pass. The first cycle of an
// unregistered agent performs exactly one registration call before any
// fetch; on registration failure the agent stays idle until the next
// tick.
func (a *Agent) Cycle(ctx context.Context) {
	if !a.register(ctx) {
		return
	}

	actions, err := a.controller.GetActions(ctx, a.clientID)
	if err != nil {
		a.logger.With("err", err).Error("failed to get actions")
		return
	}
	if len(actions) == 0 {
		return
	}
	a.logger.With("count", len(actions)).Info("received actions from controller")

	results := make([]protocol.ActionResult, 0, len(actions))
	for _, action := range actions {
		results = append(results, a.runner.Execute(ctx, action))
	}

	a.logger.With("count", len(results)).Info("reporting results to controller")
	if err := a.controller.ReportResults(ctx, a.clientID, results); err != nil {
		// not retried within this cycle; the controller re-issues
		// whatever it still considers pending
		a.logger.With("err", err).Error("failed to report results")
	}
}

// register is idempotent: once an identity is held, no further network
// call is made for the lifetime of the process.
func (a *Agent) register(ctx context.Context) bool {
	if a.clientID != "" {
		return true
	}

	a.logger.With("name", a.profile.Name).With("os", a.profile.OS).Info("registering with controller")
	id, err := a.controller.Register(ctx, a.profile)
	if err != nil {
		a.logger.With("err", err).Error("failed to register")
		return false
	}

	a.clientID = id
	if err := a.store.Save(id); err != nil {
		// registration still holds in memory for the rest of the process
		a.logger.With("err", err).Warn("failed to persist identity")
	}
	a.logger.With("client_id", id).Info("registered with controller")
	return true
}
