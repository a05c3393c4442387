package report

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wcharczuk/go-chart/v2"
	"go.uber.org/zap/zaptest"

	"mcserver-backend/config"
	"mcserver-backend/internal/model"
	"mcserver-backend/internal/store"
)

// mockStore is an in-memory Store.
type mockStore struct {
	snapshots        []model.MetricSnapshot
	PlayerByNameFunc func(ctx context.Context, name string) (*model.Player, error)
	DuelStatsFunc    func(ctx context.Context, name string) (*model.DuelStats, error)
}

func (m *mockStore) LatestSnapshot(context.Context) (*model.MetricSnapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, store.ErrNotFound
	}
	s := m.snapshots[len(m.snapshots)-1]
	return &s, nil
}

func (m *mockStore) SnapshotsSince(_ context.Context, since int64, onlineOnly bool) ([]model.MetricSnapshot, error) {
	var out []model.MetricSnapshot
	for _, s := range m.snapshots {
		if s.Timestamp >= since && (!onlineOnly || s.Online) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStore) PlayerByName(ctx context.Context, name string) (*model.Player, error) {
	return m.PlayerByNameFunc(ctx, name)
}

func (m *mockStore) DuelStats(ctx context.Context, name string) (*model.DuelStats, error) {
	return m.DuelStatsFunc(ctx, name)
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func online(at time.Time, players int, cpu float64) model.MetricSnapshot {
	return model.MetricSnapshot{
		Timestamp: at.UnixMilli(), Online: true, PlayerCount: players, CPULoad: cpu,
		RAMUsedMB: 2048, RAMMaxMB: 4096, TotalJoins: 7, TotalRuntimeHMS: "00h 00m 10s",
	}
}

func newTestReporter(t *testing.T, st Store, now time.Time) *Reporter {
	cfg := config.GraphConfig{GapMultiplier: 2.2, OutputDir: t.TempDir()}
	return New(st, cfg, 10*time.Second, clockwork.NewFakeClockAt(now), zaptest.NewLogger(t))
}

func values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func TestSeries_GapMarkers(t *testing.T) {
	st := &mockStore{snapshots: []model.MetricSnapshot{
		online(t0, 1, 0),
		online(t0.Add(10*time.Second), 2, 0),
		online(t0.Add(32*time.Second), 3, 0), // 22s: on the threshold, still continuous
		online(t0.Add(72*time.Second), 4, 0), // 40s: gap
	}}
	r := newTestReporter(t, st, t0.Add(2*time.Minute))
	assert.Equal(t, 22*time.Second, r.GapThreshold())

	points, err := r.Series(context.Background(), "players", t0)
	require.NoError(t, err)
	require.Len(t, points, 5)

	assert.Equal(t, []float64{1, 2, 3}, values(points[:3]))
	assert.True(t, points[3].Gap)
	assert.True(t, math.IsNaN(points[3].Value))
	assert.Equal(t, t0.Add(72*time.Second), points[3].At)
	assert.False(t, points[4].Gap)
	assert.Equal(t, 4.0, points[4].Value)
}

func TestSeries_OnlineFilterAndCounters(t *testing.T) {
	st := &mockStore{snapshots: []model.MetricSnapshot{
		online(t0, 2, 0.5),
		model.OfflineSnapshot(t0.Add(10 * time.Second).UnixMilli()),
		model.OfflineSnapshot(t0.Add(20 * time.Second).UnixMilli()),
		model.OfflineSnapshot(t0.Add(30 * time.Second).UnixMilli()),
		online(t0.Add(40*time.Second), 3, 2.5),
	}}
	r := newTestReporter(t, st, t0.Add(time.Minute))

	cpu, err := r.Series(context.Background(), "cpu", t0)
	require.NoError(t, err)
	require.Len(t, cpu, 3, "offline rows drop out and leave a gap")
	assert.Equal(t, 50.0, cpu[0].Value)
	assert.True(t, cpu[1].Gap)
	assert.Equal(t, 100.0, cpu[2].Value, "cpu is clamped to 100%")

	joins, err := r.Series(context.Background(), "joins", t0)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 0, 0, 0, 7}, values(joins), "global counters read every row")
}

func TestSeries_ScaledAndUndefined(t *testing.T) {
	noMax := online(t0.Add(10*time.Second), 1, 0)
	noMax.RAMMaxMB = 0
	st := &mockStore{snapshots: []model.MetricSnapshot{online(t0, 1, 0), noMax}}
	r := newTestReporter(t, st, t0.Add(time.Minute))

	ram, err := r.Series(context.Background(), "ram", t0)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, values(ram))

	heap, err := r.Series(context.Background(), "heap", t0)
	require.NoError(t, err)
	assert.Equal(t, []float64{50}, values(heap), "heap needs a max to be defined")
}

func TestSeries_UnknownMetric(t *testing.T) {
	r := newTestReporter(t, &mockStore{}, t0)
	_, err := r.Series(context.Background(), "tps", t0)
	assert.ErrorIs(t, err, ErrUnknownMetric)
	_, err = r.Graph(context.Background(), "tps", 10)
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestMetricKeys(t *testing.T) {
	keys := MetricKeys()
	assert.Len(t, keys, len(Metrics))
	assert.Contains(t, keys, "players")
	assert.Contains(t, keys, "heap")
	assert.IsIncreasing(t, keys)
}

func TestLatestSnapshot(t *testing.T) {
	st := &mockStore{}
	r := newTestReporter(t, st, t0)

	_, ok, err := r.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	st.snapshots = append(st.snapshots, online(t0, 5, 0))
	snap, ok, err := r.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, snap.PlayerCount)
}

func TestGraph(t *testing.T) {
	t.Run("no rows in the window", func(t *testing.T) {
		// Data exists, but only before the trailing 30 minutes.
		st := &mockStore{snapshots: []model.MetricSnapshot{online(t0, 1, 0.2)}}
		r := newTestReporter(t, st, t0.Add(45*time.Minute))

		path, err := r.Graph(context.Background(), "cpu", 30)
		assert.ErrorIs(t, err, ErrNoData)
		assert.Empty(t, path)

		entries, err := os.ReadDir(r.cfg.OutputDir)
		require.NoError(t, err)
		assert.Empty(t, entries, "no file is left behind")
	})

	t.Run("renders a png with gaps", func(t *testing.T) {
		st := &mockStore{snapshots: []model.MetricSnapshot{
			online(t0, 1, 0.2),
			online(t0.Add(10*time.Second), 2, 0.3),
			online(t0.Add(5*time.Minute), 2, 0.4),
		}}
		r := newTestReporter(t, st, t0.Add(10*time.Minute))

		path, err := r.Graph(context.Background(), "cpu", 0)
		require.NoError(t, err)
		assert.Equal(t, r.cfg.OutputDir, filepath.Dir(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
	})
}

func TestSegments(t *testing.T) {
	pts := []Point{
		{At: t0, Value: 1},
		{At: t0, Value: math.NaN(), Gap: true},
		{At: t0, Value: 2},
		{At: t0, Value: 3},
	}
	segs := segments(pts)
	require.Len(t, segs, 2)
	assert.Len(t, segs[0], 1)
	assert.Len(t, segs[1], 2)

	_, err := RenderChart(nil, Metrics["cpu"], 60)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRenderChart(t *testing.T) {
	pts := []Point{
		{At: t0, Value: 0.2},
		{At: t0.Add(10 * time.Second), Value: 0.4},
		{At: t0.Add(2 * time.Minute), Value: math.NaN(), Gap: true},
		{At: t0.Add(2 * time.Minute), Value: 0.3},
	}
	data, err := RenderChart(pts, Metrics["cpu"], 60)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	axis := timeAxis(chart.TimeToFloat64(t0), chart.TimeToFloat64(t0.Add(time.Hour)))
	assert.Equal(t, "12:00", axis.ValueFormatter(t0))
	assert.Equal(t, "12:30", axis.ValueFormatter(t0.Add(30*time.Minute)))
}

func TestMinutes(t *testing.T) {
	r := newTestReporter(t, &mockStore{}, t0)
	assert.Equal(t, 60, r.Minutes(0))
	assert.Equal(t, 30, r.Minutes(30))
	assert.Equal(t, 7*24*60, r.Minutes(1_000_000))
}

func TestPlayerLookup_Cached(t *testing.T) {
	calls := 0
	st := &mockStore{
		PlayerByNameFunc: func(_ context.Context, name string) (*model.Player, error) {
			calls++
			if name == "alex" {
				return &model.Player{UUID: "u1", Name: "Alex"}, nil
			}
			return nil, store.ErrNotFound
		},
	}
	r := newTestReporter(t, st, t0)

	p, ok, err := r.PlayerLookup(context.Background(), "Alex")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", p.UUID)

	_, ok, err = r.PlayerLookup(context.Background(), "ALEX")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, calls, "second lookup is served from cache")

	_, ok, err = r.PlayerLookup(context.Background(), "steve")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDuels(t *testing.T) {
	st := &mockStore{
		DuelStatsFunc: func(_ context.Context, name string) (*model.DuelStats, error) {
			if name != "notch" {
				return nil, store.ErrNotFound
			}
			return &model.DuelStats{Name: "notch", DisplayName: "Notch", Wins: 4, Kits: `{"sword":{"wins":3,"losses":1}}`}, nil
		},
	}
	r := newTestReporter(t, st, t0)

	d, ok, err := r.Duels(context.Background(), "notch")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.KitRecord{Wins: 3, Losses: 1}, d.KitBreakdown["sword"])

	_, ok, err = r.Duels(context.Background(), "jeb")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPoint_MarshalJSON(t *testing.T) {
	data, err := json.Marshal([]Point{{At: t0, Value: 1.5}, {At: t0, Value: math.NaN(), Gap: true}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"at":1714564800000,"value":1.5},{"at":1714564800000,"value":null,"gap":true}]`, string(data))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "00h 00m 00s", FormatDuration(0))
	assert.Equal(t, "01h 01m 01s", FormatDuration(3_661_000))
	assert.Equal(t, "27h 46m 40s", FormatDuration(100_000_000))
	assert.Equal(t, "2.00 GB", FormatGB(2<<30))
	assert.Equal(t, "4.00 GB", FormatMB(4096))
}
