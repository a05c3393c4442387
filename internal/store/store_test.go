package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mcserver-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteStore opens a private in-memory database per test.
func newSQLiteStore(t *testing.T) (*gormStore, *gorm.DB) {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	testDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, testDB.AutoMigrate(&model.MetricSnapshot{}, &model.Player{}, &model.DuelStats{}, &model.PushSubscription{}))
	t.Cleanup(func() {
		sqlDB, _ := testDB.DB()
		sqlDB.Close()
	})
	return &gormStore{db: testDB, now: time.Now}, testDB
}

func TestGormStore_InsertSnapshotSQL(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "metric_snapshots" .* ON CONFLICT \("timestamp"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InsertSnapshot(context.Background(), model.OfflineSnapshot(1700000000000))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LatestSnapshotSQL(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "metric_snapshots" ORDER BY "timestamp" DESC LIMIT $1`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"timestamp", "online", "player_count"}).
			AddRow(int64(42), true, 3))

	snap, err := s.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), snap.Timestamp)
	assert.True(t, snap.Online)
	assert.Equal(t, 3, snap.PlayerCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_PlayerByNameSQL(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "players" WHERE LOWER(name) = LOWER($1) ORDER BY last_updated_ts DESC LIMIT $2`)).
		WithArgs("Steve", 1).
		WillReturnRows(sqlmock.NewRows([]string{"uuid", "name"}))

	_, err := s.PlayerByName(context.Background(), "Steve")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SnapshotLifecycle(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.LatestSnapshot(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.InsertSnapshot(ctx, model.MetricSnapshot{Timestamp: 1000, Online: true, PlayerCount: 2, TotalRuntimeHMS: "00h 00m 01s"}))
	require.NoError(t, s.InsertSnapshot(ctx, model.OfflineSnapshot(2000)))
	require.NoError(t, s.InsertSnapshot(ctx, model.MetricSnapshot{Timestamp: 3000, Online: true, PlayerCount: 5, TotalRuntimeHMS: "00h 00m 03s"}))

	// Same timestamp replaces rather than duplicates.
	require.NoError(t, s.InsertSnapshot(ctx, model.MetricSnapshot{Timestamp: 3000, Online: true, PlayerCount: 7, TotalRuntimeHMS: "00h 00m 03s"}))

	latest, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), latest.Timestamp)
	assert.Equal(t, 7, latest.PlayerCount)

	all, err := s.SnapshotsSince(ctx, 0, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1000, 2000, 3000}, []int64{all[0].Timestamp, all[1].Timestamp, all[2].Timestamp})
	assert.False(t, all[1].Online)
	assert.Equal(t, model.OfflineRuntimeHMS, all[1].TotalRuntimeHMS)

	online, err := s.SnapshotsSince(ctx, 1500, true)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, int64(3000), online[0].Timestamp)
}

func TestGormStore_PlayerUpsertAndLookup(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	clock := time.UnixMilli(1_000)
	s.now = func() time.Time { return clock }

	require.NoError(t, s.UpsertPlayer(ctx, model.Player{UUID: "uuid-old", Name: "Alex", TotalJoins: 1}))

	clock = time.UnixMilli(2_000)
	require.NoError(t, s.UpsertPlayer(ctx, model.Player{UUID: "uuid-new", Name: "alex", TotalJoins: 9}))

	p, err := s.PlayerByName(ctx, "ALEX")
	require.NoError(t, err)
	assert.Equal(t, "uuid-new", p.UUID, "most recently updated match wins")
	assert.Equal(t, int64(2_000), p.LastUpdatedTS)

	// Last write wins on every non-key column.
	clock = time.UnixMilli(3_000)
	require.NoError(t, s.UpsertPlayer(ctx, model.Player{UUID: "uuid-old", Name: "Alex", TotalJoins: 4, TotalDeaths: 2}))
	p, err = s.PlayerByName(ctx, "alex")
	require.NoError(t, err)
	assert.Equal(t, "uuid-old", p.UUID)
	assert.Equal(t, int64(4), p.TotalJoins)
	assert.Equal(t, int64(2), p.TotalDeaths)

	_, err = s.PlayerByName(ctx, "Steve")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_DuelStats(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDuelStats(ctx, model.DuelStats{Name: "Notch", Wins: 3, Losses: 1, Rating: 1200, Kits: `{"sword":{"wins":3,"losses":1}}`}))

	d, err := s.DuelStats(ctx, "NOTCH")
	require.NoError(t, err)
	assert.Equal(t, "notch", d.Name)
	assert.Equal(t, "Notch", d.DisplayName)
	assert.Equal(t, 3, d.Wins)

	_, err = s.DuelStats(ctx, "jeb")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_Subscriptions(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSubscription(ctx, model.PushSubscription{Endpoint: "https://a", P256DH: "k", Auth: "a"}))
	require.NoError(t, s.SaveSubscription(ctx, model.PushSubscription{Endpoint: "https://b", P256DH: "k", Auth: "a", Events: "vm_started"}))

	subs, err := s.SubscriptionsFor(ctx, "vm_stopped")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://a", subs[0].Endpoint)

	subs, err = s.SubscriptionsFor(ctx, "vm_started")
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	// Re-saving updates the filter in place.
	require.NoError(t, s.SaveSubscription(ctx, model.PushSubscription{Endpoint: "https://b", P256DH: "k2", Auth: "a", Events: "vm_stopped"}))
	sub, err := s.Subscription(ctx, "https://b")
	require.NoError(t, err)
	assert.Equal(t, "k2", sub.P256DH)
	assert.Equal(t, "vm_stopped", sub.Events)

	require.NoError(t, s.DeleteSubscription(ctx, "https://b"))
	_, err = s.Subscription(ctx, "https://b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccepts(t *testing.T) {
	assert.True(t, Accepts("", "anything"))
	assert.True(t, Accepts("vm_started, vm_stopped", "vm_stopped"))
	assert.False(t, Accepts("vm_started", "vm_stopped"))
}
