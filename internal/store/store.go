package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mcserver-backend/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// Store defines the interface for all database operations.
type Store interface {
	// InsertSnapshot writes a poll row, replacing any row with the same timestamp.
	InsertSnapshot(ctx context.Context, snap model.MetricSnapshot) error
	LatestSnapshot(ctx context.Context) (*model.MetricSnapshot, error)
	// SnapshotsSince returns rows with timestamp >= since (Unix ms) in
	// ascending order. onlineOnly drops rows recorded while offline.
	SnapshotsSince(ctx context.Context, since int64, onlineOnly bool) ([]model.MetricSnapshot, error)

	UpsertPlayer(ctx context.Context, p model.Player) error
	PlayerByName(ctx context.Context, name string) (*model.Player, error)

	UpsertDuelStats(ctx context.Context, d model.DuelStats) error
	DuelStats(ctx context.Context, name string) (*model.DuelStats, error)

	SaveSubscription(ctx context.Context, sub model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	Subscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	SubscriptionsFor(ctx context.Context, kind string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: time.Now}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *gormStore) InsertSnapshot(ctx context.Context, snap model.MetricSnapshot) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "timestamp"}},
		UpdateAll: true,
	}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("insert snapshot %d: %w", snap.Timestamp, err)
	}
	return nil
}

func (s *gormStore) LatestSnapshot(ctx context.Context) (*model.MetricSnapshot, error) {
	var snap model.MetricSnapshot
	if err := s.db.WithContext(ctx).Order(`"timestamp" DESC`).Take(&snap).Error; err != nil {
		return nil, notFound(err)
	}
	return &snap, nil
}

func (s *gormStore) SnapshotsSince(ctx context.Context, since int64, onlineOnly bool) ([]model.MetricSnapshot, error) {
	q := s.db.WithContext(ctx).Where(`"timestamp" >= ?`, since)
	if onlineOnly {
		q = q.Where("online = ?", true)
	}
	var rows []model.MetricSnapshot
	if err := q.Order(`"timestamp" ASC`).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query snapshots since %d: %w", since, err)
	}
	return rows, nil
}

// UpsertPlayer stores p, overwriting every column of an existing row with the
// same UUID. LastUpdatedTS is stamped here.
func (s *gormStore) UpsertPlayer(ctx context.Context, p model.Player) error {
	p.LastUpdatedTS = s.now().UnixMilli()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		UpdateAll: true,
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("upsert player %s: %w", p.UUID, err)
	}
	return nil
}

// PlayerByName matches name case-insensitively and returns the most recently
// updated row when several players have shared the name.
func (s *gormStore) PlayerByName(ctx context.Context, name string) (*model.Player, error) {
	var p model.Player
	err := s.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		Order("last_updated_ts DESC").
		Take(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *gormStore) UpsertDuelStats(ctx context.Context, d model.DuelStats) error {
	if d.DisplayName == "" {
		d.DisplayName = d.Name
	}
	d.Name = strings.ToLower(d.Name)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&d).Error
	if err != nil {
		return fmt.Errorf("upsert duel stats %s: %w", d.Name, err)
	}
	return nil
}

func (s *gormStore) DuelStats(ctx context.Context, name string) (*model.DuelStats, error) {
	var d model.DuelStats
	if err := s.db.WithContext(ctx).Where("name = ?", strings.ToLower(name)).Take(&d).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}
