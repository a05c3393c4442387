// Package orchestrator shuts the game server down after it has been empty for
// a while and serialises manual stops and starts against that decision.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"mcserver-backend/config"
	"mcserver-backend/internal/gateway"
	"mcserver-backend/internal/metrics"
	"mcserver-backend/internal/notification"
)

var (
	// ErrShutdownInProgress is returned when a shutdown sequence already owns
	// the server.
	ErrShutdownInProgress = errors.New("shutdown already in progress")
	// ErrAlreadyRunning is returned by Start when the VM reports RUNNING.
	ErrAlreadyRunning = errors.New("vm is already running")
	// ErrStartInProgress is returned while a Start call owns the server.
	ErrStartInProgress = errors.New("start already in progress")
)

// Gateway is the subset of the remote control gateway the orchestrator drives.
type Gateway interface {
	VMStatus(ctx context.Context) (gateway.VMStatus, error)
	PlayerCount(ctx context.Context) (int, bool)
	StopGameServer(ctx context.Context) error
	StopVM(ctx context.Context) error
	StartVM(ctx context.Context) error
}

// Sample is one occupancy observation.
type Sample struct {
	Status      gateway.VMStatus
	PlayerCount int
	CountKnown  bool
}

// IdleState tracks the current idle episode. ShutdownTriggered implies
// EmptySince is set.
type IdleState struct {
	EmptySince        *time.Time
	ShutdownTriggered bool
}

// Orchestrator owns the idle episode state.
type Orchestrator struct {
	gw       Gateway
	notifier notification.Notifier
	cfg      config.OrchestratorConfig
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	state    IdleState
	starting bool
}

// New creates an Orchestrator. A nil notifier discards events.
func New(gw Gateway, notifier notification.Notifier, cfg config.OrchestratorConfig, clock clockwork.Clock, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if notifier == nil {
		notifier = notification.Discard
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Second
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = 60 * time.Second
	}
	return &Orchestrator{
		gw:       gw,
		notifier: notifier,
		cfg:      cfg,
		clock:    clock,
		logger:   logger.With(zap.String("component", "orchestrator")),
		metrics:  m,
	}
}

// State returns a copy of the idle episode state.
func (o *Orchestrator) State() IdleState {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.state
	if s.EmptySince != nil {
		t := *s.EmptySince
		s.EmptySince = &t
	}
	return s
}

// Run ticks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	if o.cfg.Disabled {
		o.logger.Info("idle detection is disabled, not starting")
		return
	}
	o.logger.Info("starting idle detection",
		zap.Duration("tick", o.cfg.TickInterval),
		zap.Duration("threshold", o.cfg.IdleThreshold))

	ticker := o.clock.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("idle detection shutting down")
			return
		case <-ticker.Chan():
			o.safeTick(ctx)
		}
	}
}

func (o *Orchestrator) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("tick panicked", zap.Any("panic", r), zap.Stack("stack"))
			o.metrics.Tick("panic")
		}
	}()
	o.Tick(ctx)
}

func (o *Orchestrator) sample(ctx context.Context) Sample {
	status, err := o.gw.VMStatus(ctx)
	if err != nil {
		return Sample{Status: gateway.VMUnknown}
	}
	s := Sample{Status: status}
	if status != gateway.VMRunning {
		return s
	}
	s.PlayerCount, s.CountKnown = o.gw.PlayerCount(ctx)
	return s
}

// Tick samples occupancy once and advances the idle episode. When the server
// has been empty for the idle threshold the shutdown sequence runs inline.
func (o *Orchestrator) Tick(ctx context.Context) {
	s := o.sample(ctx)
	o.metrics.VMStatus(string(s.Status))

	if s.Status != gateway.VMRunning {
		o.metrics.Tick("not_running")
		return
	}
	if !s.CountKnown {
		o.logger.Debug("player count unknown, keeping idle state")
		o.metrics.Tick("count_unknown")
		return
	}

	now := o.clock.Now()
	o.mu.Lock()
	if o.state.ShutdownTriggered {
		o.mu.Unlock()
		o.metrics.Tick("shutdown_in_progress")
		return
	}
	if o.starting {
		o.mu.Unlock()
		o.metrics.Tick("start_in_progress")
		return
	}
	if s.PlayerCount > 0 {
		o.state = IdleState{}
		o.mu.Unlock()
		o.metrics.Occupancy(s.PlayerCount, 0)
		o.metrics.Tick("occupied")
		return
	}
	if o.state.EmptySince == nil {
		o.state.EmptySince = &now
		o.mu.Unlock()
		o.logger.Info("server is empty, starting idle timer")
		o.metrics.Occupancy(0, 0)
		o.metrics.Tick("idle")
		return
	}
	elapsed := now.Sub(*o.state.EmptySince)
	o.metrics.Occupancy(0, elapsed.Seconds())
	if elapsed < o.cfg.IdleThreshold {
		o.mu.Unlock()
		o.metrics.Tick("idle")
		return
	}
	o.state.ShutdownTriggered = true
	o.mu.Unlock()

	o.metrics.Tick("shutdown")
	o.logger.Info("idle threshold reached", zap.Duration("elapsed", elapsed))
	if err := o.shutdown(ctx, false); err != nil {
		o.logger.Error("automatic shutdown failed", zap.Error(err))
	}
}

// TriggerManualStop runs the shutdown sequence regardless of occupancy. It
// returns ErrShutdownInProgress if a sequence is already running.
func (o *Orchestrator) TriggerManualStop(ctx context.Context) error {
	o.mu.Lock()
	if o.state.ShutdownTriggered {
		o.mu.Unlock()
		return ErrShutdownInProgress
	}
	if o.starting {
		o.mu.Unlock()
		return ErrStartInProgress
	}
	if o.state.EmptySince == nil {
		now := o.clock.Now()
		o.state.EmptySince = &now
	}
	o.state.ShutdownTriggered = true
	o.mu.Unlock()

	o.logger.Info("manual stop requested")
	return o.shutdown(ctx, true)
}

// shutdown runs the stop sequence. The caller must have set
// ShutdownTriggered. Each step is fatal to the ones after it. Cancelling ctx
// does not abort a sequence that has begun.
func (o *Orchestrator) shutdown(ctx context.Context, manual bool) (err error) {
	ctx = context.WithoutCancel(ctx)
	trigger := "auto"
	if manual {
		trigger = "manual"
	}
	defer func() {
		o.finish(err == nil)
		o.metrics.Shutdown(trigger, err == nil)
		if err != nil {
			o.notify(ctx, notification.KindShutdownFailed, manual, fmt.Sprintf("Shutdown failed: %v", err))
		}
	}()

	if !manual {
		o.notify(ctx, notification.KindShutdownStarted, manual, idleNotice(o.cfg.IdleThreshold))
	} else if o.cfg.ManualNotice {
		o.notify(ctx, notification.KindShutdownStarted, manual, "Server stop command received from admin. Stopping Minecraft server...")
	}

	if err := o.gw.StopGameServer(ctx); err != nil {
		return fmt.Errorf("stopping game server: %w", err)
	}
	o.notify(ctx, notification.KindGameServerStopped, manual, "Server stopped. Turning off vm now")

	if err := o.gw.StopVM(ctx); err != nil {
		return fmt.Errorf("stopping vm: %w", err)
	}
	o.notify(ctx, notification.KindVMStopped, manual, "Vm has been turned off")
	return nil
}

// finish ends the episode. A failed sequence clears the flag but restarts
// the idle timer, so an automatic retry waits a full threshold.
func (o *Orchestrator) finish(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.state = IdleState{}
		return
	}
	now := o.clock.Now()
	o.state = IdleState{EmptySince: &now}
}

// Start boots the VM and begins a fresh idle episode. Stops and idle ticks
// are refused until it returns.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.state.ShutdownTriggered:
		o.mu.Unlock()
		return ErrShutdownInProgress
	case o.starting:
		o.mu.Unlock()
		return ErrStartInProgress
	}
	o.starting = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.starting = false
		o.mu.Unlock()
	}()

	if status, err := o.gw.VMStatus(ctx); err == nil && status == gateway.VMRunning {
		return ErrAlreadyRunning
	}

	if err := o.gw.StartVM(ctx); err != nil {
		return fmt.Errorf("starting vm: %w", err)
	}

	o.mu.Lock()
	o.state.EmptySince = nil
	o.mu.Unlock()

	o.notify(ctx, notification.KindVMStarted, false, "Vm has started. Get in losers mc server is starting")
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, kind notification.Kind, manual bool, msg string) {
	o.notifier.Notify(ctx, notification.Event{Kind: kind, Message: msg, Manual: manual})
}

func idleNotice(threshold time.Duration) string {
	span := fmt.Sprintf("%d seconds", int(threshold.Seconds()))
	if threshold%time.Minute == 0 {
		span = fmt.Sprintf("%d minutes", int(threshold.Minutes()))
		if threshold == time.Minute {
			span = "1 minute"
		}
	}
	return fmt.Sprintf("Server has been empty for %s. Initiating automatic shutdown.", span)
}
