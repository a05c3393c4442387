// Package gateway is the boundary to the systems the bot drives: the cloud
// VM, the game-server management panel, the game's status protocol and the
// in-game stats endpoint.
//
// Calls that steer the lifecycle (VM start/stop/status, game-server stop)
// fail with *Error. Read-only probes (player count, telemetry) report failure
// as ok == false so that periodic loops can treat it as "unknown".
package gateway

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"mcserver-backend/config"
	"mcserver-backend/internal/model"
)

// GameServer stops the game process.
type GameServer interface {
	StopServer(ctx context.Context) error
}

// PlayerCounter reads the live player count.
type PlayerCounter interface {
	Count(ctx context.Context) (int, error)
}

// TelemetrySource fetches live statistics.
type TelemetrySource interface {
	ServerStats(ctx context.Context) (*ServerStats, error)
	PlayerStats(ctx context.Context, uuid string) (*model.Player, error)
}

// Gateway bundles the external clients behind the failure contracts the
// orchestrator, poller and bot rely on.
type Gateway struct {
	vm        VMController
	game      GameServer
	players   PlayerCounter
	telemetry TelemetrySource
	logger    *zap.Logger
}

// New assembles a Gateway from its parts.
func New(vm VMController, game GameServer, players PlayerCounter, telemetry TelemetrySource, logger *zap.Logger) *Gateway {
	return &Gateway{
		vm:        vm,
		game:      game,
		players:   players,
		telemetry: telemetry,
		logger:    logger.With(zap.String("component", "gateway")),
	}
}

// NewFromConfig wires the production clients.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	vm, err := NewGCEController(ctx, cfg.GCP)
	if err != nil {
		return nil, err
	}
	return New(
		vm,
		NewCraftyClient(cfg.Crafty),
		NewStatusPinger(cfg.Crafty.ServerAddress, time.Duration(cfg.Crafty.StatusTimeoutSecs)*time.Second),
		NewTelemetryClient(cfg.Stats.Endpoint, cfg.Stats.Token, time.Duration(cfg.Stats.TimeoutSeconds)*time.Second),
		logger,
	), nil
}

// VMStatus returns the instance state. On error the caller must not act.
func (g *Gateway) VMStatus(ctx context.Context) (VMStatus, error) {
	status, err := g.vm.Status(ctx)
	if err != nil {
		g.logger.Warn("vm status failed", zap.Error(err))
		return VMUnknown, err
	}
	return status, nil
}

// StartVM starts the instance and waits for the operation to complete.
func (g *Gateway) StartVM(ctx context.Context) error {
	g.logger.Info("starting vm")
	if err := g.vm.Start(ctx); err != nil {
		g.logger.Error("vm start failed", zap.Error(err))
		return err
	}
	g.logger.Info("vm started")
	return nil
}

// StopVM stops the instance and waits for the operation to complete.
func (g *Gateway) StopVM(ctx context.Context) error {
	g.logger.Info("stopping vm")
	if err := g.vm.Stop(ctx); err != nil {
		g.logger.Error("vm stop failed", zap.Error(err))
		return err
	}
	g.logger.Info("vm stopped")
	return nil
}

// StopGameServer stops the game process through the management panel.
func (g *Gateway) StopGameServer(ctx context.Context) error {
	if err := g.game.StopServer(ctx); err != nil {
		g.logger.Error("game server stop failed", zap.Error(err))
		return err
	}
	g.logger.Info("game server stopped")
	return nil
}

// PlayerCount returns the online player count, or ok == false when the
// server could not be queried.
func (g *Gateway) PlayerCount(ctx context.Context) (count int, ok bool) {
	n, err := g.players.Count(ctx)
	if err != nil {
		g.logger.Debug("player count unavailable", zap.Error(err))
		return 0, false
	}
	return n, true
}

// ServerStats returns the live server snapshot, or ok == false.
func (g *Gateway) ServerStats(ctx context.Context) (*ServerStats, bool) {
	stats, err := g.telemetry.ServerStats(ctx)
	if err != nil {
		g.logger.Debug("server stats unavailable", zap.Error(err))
		return nil, false
	}
	return stats, true
}

// PlayerStats returns the live record of one player, or ok == false.
func (g *Gateway) PlayerStats(ctx context.Context, uuid string) (*model.Player, bool) {
	p, err := g.telemetry.PlayerStats(ctx, uuid)
	if err != nil {
		g.logger.Debug("player stats unavailable", zap.String("uuid", uuid), zap.Error(err))
		return nil, false
	}
	return p, true
}

// Close releases the clients that hold connections.
func (g *Gateway) Close() error {
	if c, ok := g.vm.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
