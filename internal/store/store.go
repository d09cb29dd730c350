package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"water-dispatch-backend/internal/model"
	"water-dispatch-backend/internal/parse"
)

// Store defines the interface for all database operations.
type Store interface {
	LoadState(ctx context.Context, userID string) (MonitorState, error)
	SaveState(ctx context.Context, state MonitorState) error
	AppendActivity(ctx context.Context, entry model.Activity, limit int) error
	RecentActivity(ctx context.Context, userID string, limit int) ([]model.Activity, error)
	UpsertSubscription(ctx context.Context, sub model.PushSubscription) error
	GetSubscription(ctx context.Context, userID, endpoint string) (model.PushSubscription, error)
	SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, userID, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// LoadState reads the persisted state of a user. It returns ErrNotFound when the
// user has never been mounted. Stored levels outside [0,100] are clamped.
func (s *gormStore) LoadState(ctx context.Context, userID string) (MonitorState, error) {
	var row model.MonitorState
	err := s.db.WithContext(ctx).First(&row, "state_key = ?", StateKey(userID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MonitorState{}, ErrNotFound
	}
	if err != nil {
		return MonitorState{}, fmt.Errorf("failed to load state for user %s: %w", userID, err)
	}

	level, err := parse.ParseLevel(row.Level)
	if err != nil {
		return MonitorState{}, fmt.Errorf("corrupt state for user %s: %w", userID, err)
	}
	return MonitorState{
		UserID:          userID,
		Level:           parse.Clamp(level),
		AutoRequestSent: row.AutoRequestSent,
	}, nil
}

// SaveState upserts the state row keyed by StateKey.
func (s *gormStore) SaveState(ctx context.Context, state MonitorState) error {
	row := model.MonitorState{
		StateKey:        StateKey(state.UserID),
		UserID:          state.UserID,
		Level:           strconv.Itoa(parse.Clamp(state.Level)),
		AutoRequestSent: state.AutoRequestSent,
		UpdatedAt:       time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "auto_request_sent", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save state for user %s: %w", state.UserID, err)
	}
	return nil
}

// AppendActivity stores an entry and trims the user's log to the newest limit entries.
func (s *gormStore) AppendActivity(ctx context.Context, entry model.Activity, limit int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to append activity for user %s: %w", entry.UserID, err)
		}
		if limit <= 0 {
			return nil
		}

		var stale []string
		if err := tx.Model(&model.Activity{}).
			Where("user_id = ?", entry.UserID).
			Order("created_at DESC").
			Offset(limit).
			Pluck("id", &stale).Error; err != nil {
			return fmt.Errorf("failed to list stale activity for user %s: %w", entry.UserID, err)
		}
		if len(stale) == 0 {
			return nil
		}
		if err := tx.Where("id IN ?", stale).Delete(&model.Activity{}).Error; err != nil {
			return fmt.Errorf("failed to trim activity for user %s: %w", entry.UserID, err)
		}
		return nil
	})
}

// RecentActivity returns up to limit entries, newest first.
func (s *gormStore) RecentActivity(ctx context.Context, userID string, limit int) ([]model.Activity, error) {
	var entries []model.Activity
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load activity for user %s: %w", userID, err)
	}
	return entries, nil
}

// UpsertSubscription creates or replaces a push subscription.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(&sub).Error
}

// GetSubscription returns the subscription registered by a user for an endpoint.
func (s *gormStore) GetSubscription(ctx context.Context, userID, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).First(&sub, "endpoint = ? AND user_id = ?", endpoint, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PushSubscription{}, ErrNotFound
	}
	return sub, err
}

// SubscriptionsForUser lists every push endpoint of a user.
func (s *gormStore) SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// DeleteSubscription removes a user's subscription. Deleting a missing row is not an error.
func (s *gormStore) DeleteSubscription(ctx context.Context, userID, endpoint string) error {
	return s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		Delete(&model.PushSubscription{}).Error
}
