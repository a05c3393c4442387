package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"mcserver-backend/config"
	"mcserver-backend/internal/gateway"
	"mcserver-backend/internal/metrics"
	"mcserver-backend/internal/model"
)

// Telemetry is the read side of the gateway the poller samples.
type Telemetry interface {
	ServerStats(ctx context.Context) (*gateway.ServerStats, bool)
	PlayerStats(ctx context.Context, uuid string) (*model.Player, bool)
}

// Store is the write side of the telemetry store.
type Store interface {
	InsertSnapshot(ctx context.Context, snap model.MetricSnapshot) error
	UpsertPlayer(ctx context.Context, p model.Player) error
}

// Service samples live telemetry on a fixed interval and persists one
// snapshot per tick, online or not.
type Service struct {
	cfg       config.PollerConfig
	store     Store
	telemetry Telemetry
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics

	lastTS int64
}

// NewService creates and initializes a new poller service.
func NewService(cfg config.PollerConfig, store Store, telemetry Telemetry, clock clockwork.Clock, logger *zap.Logger, m *metrics.Metrics) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		telemetry: telemetry,
		clock:     clock,
		logger:    logger.With(zap.String("component", "poller")),
		metrics:   m,
	}
}

// Run polls once immediately and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.Disabled {
		s.logger.Info("poller is disabled, not starting")
		return
	}
	s.logger.Info("starting telemetry poller", zap.Duration("interval", s.cfg.Interval))

	s.poll(ctx)

	timer := s.clock.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("poller shutting down")
			return
		case <-timer.Chan():
			s.poll(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("poll panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	if _, err := s.PollOnce(ctx); err != nil {
		s.logger.Error("poll failed", zap.Error(err))
	}
}

// PollOnce fetches live stats and writes exactly one snapshot. A failed fetch
// is recorded as an offline snapshot. The written snapshot is returned.
func (s *Service) PollOnce(ctx context.Context) (model.MetricSnapshot, error) {
	ts := s.nextTimestamp()

	stats, ok := s.telemetry.ServerStats(ctx)
	snap := model.OfflineSnapshot(ts)
	if ok {
		snap = snapshotFrom(ts, stats)
	}
	s.metrics.Poll(ok)

	if err := s.store.InsertSnapshot(ctx, snap); err != nil {
		return snap, fmt.Errorf("insert snapshot %d: %w", ts, err)
	}
	s.logger.Debug("snapshot written", zap.Int64("ts", ts), zap.Bool("online", snap.Online), zap.Int("players", snap.PlayerCount))

	if ok && !s.cfg.SkipPlayers {
		s.refreshPlayers(ctx, stats.OnlinePlayers)
	}
	return snap, nil
}

// nextTimestamp returns the clock in Unix ms, bumped past the previous tick
// so the primary key never repeats within this instance.
func (s *Service) nextTimestamp() int64 {
	ts := s.clock.Now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

func (s *Service) refreshPlayers(ctx context.Context, online []gateway.OnlinePlayer) {
	for _, op := range online {
		if _, err := uuid.Parse(op.UUID); err != nil {
			s.logger.Warn("skipping player with invalid uuid", zap.String("uuid", op.UUID), zap.String("name", op.Name))
			continue
		}
		p, ok := s.telemetry.PlayerStats(ctx, op.UUID)
		if !ok {
			continue
		}
		if p.LastSeenTS == 0 {
			p.LastSeenTS = s.lastTS
		}
		if err := s.store.UpsertPlayer(ctx, *p); err != nil {
			s.logger.Error("player upsert failed", zap.String("uuid", op.UUID), zap.Error(err))
		}
	}
}

func snapshotFrom(ts int64, st *gateway.ServerStats) model.MetricSnapshot {
	hms := st.TotalRuntimeHMS
	if hms == "" {
		hms = model.OfflineRuntimeHMS
	}
	return model.MetricSnapshot{
		Timestamp:       ts,
		Online:          true,
		PlayerCount:     st.PlayerCount,
		CPULoad:         st.CPULoad,
		RAMUsedMB:       st.RAMUsedMB,
		RAMMaxMB:        st.RAMMaxMB,
		Threads:         st.Threads,
		LoadedChunks:    st.LoadedChunks,
		TotalJoins:      st.TotalJoins,
		TotalDeaths:     st.TotalDeaths,
		UptimeMS:        st.UptimeMS,
		TotalRuntimeMS:  st.TotalRuntimeMS,
		TotalRuntimeHMS: hms,
	}
}
