package store

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"mcserver-backend/internal/model"
)

func (s *gormStore) SaveSubscription(ctx context.Context, sub model.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "events"}),
	}).Create(&sub).Error
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

func (s *gormStore) Subscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Take(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// SubscriptionsFor returns the subscribers whose event filter accepts kind.
func (s *gormStore) SubscriptionsFor(ctx context.Context, kind string) ([]model.PushSubscription, error) {
	var all []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&all).Error; err != nil {
		return nil, err
	}
	matched := all[:0]
	for _, sub := range all {
		if Accepts(sub.Events, kind) {
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

// Accepts reports whether a comma separated event filter includes kind. An
// empty filter accepts everything.
func Accepts(filter, kind string) bool {
	if strings.TrimSpace(filter) == "" {
		return true
	}
	for _, k := range strings.Split(filter, ",") {
		if strings.TrimSpace(k) == kind {
			return true
		}
	}
	return false
}
