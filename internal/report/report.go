// Package report answers read-side queries over the telemetry store: the
// latest snapshot, metric series with gap markers, player and duel lookups,
// and rendered charts.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"mcserver-backend/config"
	"mcserver-backend/internal/model"
	"mcserver-backend/internal/store"
)

var (
	// ErrUnknownMetric is returned for a key missing from Metrics.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrNoData is returned by Graph when the window holds no samples.
	ErrNoData = errors.New("no data in range")
)

// Store is the read side of the telemetry store.
type Store interface {
	LatestSnapshot(ctx context.Context) (*model.MetricSnapshot, error)
	SnapshotsSince(ctx context.Context, since int64, onlineOnly bool) ([]model.MetricSnapshot, error)
	PlayerByName(ctx context.Context, name string) (*model.Player, error)
	DuelStats(ctx context.Context, name string) (*model.DuelStats, error)
}

// Point is one series sample. Gap points carry NaN and mark a break the
// renderer must not draw across.
type Point struct {
	At    time.Time
	Value float64
	Gap   bool
}

// MarshalJSON writes gap values as null since JSON has no NaN.
func (p Point) MarshalJSON() ([]byte, error) {
	var v *float64
	if !p.Gap && !math.IsNaN(p.Value) {
		v = &p.Value
	}
	return json.Marshal(struct {
		At    int64    `json:"at"`
		Value *float64 `json:"value"`
		Gap   bool     `json:"gap,omitempty"`
	}{p.At.UnixMilli(), v, p.Gap})
}

// Duel is a duel record with its kit breakdown decoded.
type Duel struct {
	model.DuelStats
	KitBreakdown map[string]model.KitRecord `json:"kit_breakdown"`
}

// Reporter serves read queries.
type Reporter struct {
	store        Store
	cfg          config.GraphConfig
	pollInterval time.Duration
	clock        clockwork.Clock
	players      *cache.Cache
	logger       *zap.Logger
}

// New creates a Reporter. pollInterval is the poller cadence the gap
// threshold is derived from.
func New(st Store, cfg config.GraphConfig, pollInterval time.Duration, clock clockwork.Clock, logger *zap.Logger) *Reporter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.GapMultiplier <= 0 {
		cfg.GapMultiplier = 2.2
	}
	if cfg.DefaultMinutes <= 0 {
		cfg.DefaultMinutes = 60
	}
	if cfg.MaxMinutes <= 0 {
		cfg.MaxMinutes = 7 * 24 * 60
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Reporter{
		store:        st,
		cfg:          cfg,
		pollInterval: pollInterval,
		clock:        clock,
		players:      cache.New(30*time.Second, time.Minute),
		logger:       logger.With(zap.String("component", "report")),
	}
}

// GapThreshold is the largest spacing between samples drawn as continuous.
func (r *Reporter) GapThreshold() time.Duration {
	return time.Duration(r.cfg.GapMultiplier * float64(r.pollInterval))
}

// Minutes clamps a requested window; zero or negative means the default.
func (r *Reporter) Minutes(requested int) int {
	if requested <= 0 {
		return r.cfg.DefaultMinutes
	}
	return min(requested, r.cfg.MaxMinutes)
}

// LatestSnapshot returns the newest snapshot, or ok == false when the store
// is empty.
func (r *Reporter) LatestSnapshot(ctx context.Context) (*model.MetricSnapshot, bool, error) {
	snap, err := r.store.LatestSnapshot(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// Series returns the scaled values of metric at or after since, oldest first,
// with a gap point before every sample that follows its predecessor by more
// than GapThreshold.
func (r *Reporter) Series(ctx context.Context, metric string, since time.Time) ([]Point, error) {
	spec, ok := Metrics[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	rows, err := r.store.SnapshotsSince(ctx, since.UnixMilli(), spec.OnlineOnly)
	if err != nil {
		return nil, fmt.Errorf("loading %s series: %w", metric, err)
	}
	return buildSeries(rows, spec, r.GapThreshold()), nil
}

func buildSeries(rows []model.MetricSnapshot, spec MetricSpec, gap time.Duration) []Point {
	points := make([]Point, 0, len(rows))
	var last time.Time
	for _, row := range rows {
		raw, ok := spec.Value(row)
		if !ok {
			continue
		}
		at := time.UnixMilli(row.Timestamp).UTC()
		if !last.IsZero() && at.Sub(last) > gap {
			points = append(points, Point{At: at, Value: math.NaN(), Gap: true})
		}
		points = append(points, Point{At: at, Value: spec.Apply(raw)})
		last = at
	}
	return points
}

// Window is Series over the trailing minutes.
func (r *Reporter) Window(ctx context.Context, metric string, minutes int) ([]Point, error) {
	since := r.clock.Now().Add(-time.Duration(r.Minutes(minutes)) * time.Minute)
	return r.Series(ctx, metric, since)
}

// PlayerLookup finds a player by case-insensitive name. Results are cached
// briefly. ok == false means no such player.
func (r *Reporter) PlayerLookup(ctx context.Context, name string) (*model.Player, bool, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, false, nil
	}
	if cached, found := r.players.Get(key); found {
		p := cached.(model.Player)
		return &p, true, nil
	}

	p, err := r.store.PlayerByName(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	r.players.SetDefault(key, *p)
	return p, true, nil
}

// Duels returns the duel record for name, or ok == false.
func (r *Reporter) Duels(ctx context.Context, name string) (*Duel, bool, error) {
	d, err := r.store.DuelStats(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := &Duel{DuelStats: *d, KitBreakdown: map[string]model.KitRecord{}}
	if d.Kits != "" {
		if err := json.Unmarshal([]byte(d.Kits), &out.KitBreakdown); err != nil {
			r.logger.Warn("ignoring malformed kit breakdown", zap.String("name", d.Name), zap.Error(err))
		}
	}
	return out, true, nil
}

// Graph renders metric over the trailing minutes to a PNG in the output
// directory and returns its path. The caller owns the file.
func (r *Reporter) Graph(ctx context.Context, metric string, minutes int) (string, error) {
	minutes = r.Minutes(minutes)
	points, err := r.Window(ctx, metric, minutes)
	if err != nil {
		return "", err
	}
	if len(points) == 0 {
		return "", ErrNoData
	}

	png, err := RenderChart(points, Metrics[metric], minutes)
	if err != nil {
		return "", fmt.Errorf("rendering %s chart: %w", metric, err)
	}

	f, err := os.CreateTemp(r.cfg.OutputDir, metric+"_*.png")
	if err != nil {
		return "", fmt.Errorf("creating chart file: %w", err)
	}
	if _, err := f.Write(png); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing chart file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing chart file: %w", err)
	}
	return f.Name(), nil
}
