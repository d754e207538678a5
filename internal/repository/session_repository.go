package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"recurio/internal/model"
)

// SessionRepository is a key-value store of JSON blobs with optional TTL.
type SessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Get decodes the value stored under key into out. It reports false for
// missing or expired keys; expired keys are removed on read.
func (r *SessionRepository) Get(ctx context.Context, key string, out any) (bool, error) {
	var entry model.SessionEntry
	db := r.db.WithContext(ctx)
	err := db.Where("session_key = ?", key).First(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("get session key %q: %w", key, err)
	}

	if entry.Expired(r.now()) {
		if err := db.Delete(&model.SessionEntry{}, "session_key = ?", key).Error; err != nil {
			return false, fmt.Errorf("drop expired key %q: %w", key, err)
		}
		return false, nil
	}

	if out != nil {
		if err := json.Unmarshal([]byte(entry.Value), out); err != nil {
			return false, fmt.Errorf("decode session key %q: %w", key, err)
		}
	}
	return true, nil
}

// Set stores value as JSON. A ttl of zero keeps the key until deleted.
func (r *SessionRepository) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode session key %q: %w", key, err)
	}
	entry := model.SessionEntry{Key: key, Value: string(raw)}
	if ttl > 0 {
		exp := r.now().Add(ttl)
		entry.ExpiresAt = &exp
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("set session key %q: %w", key, err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Delete(&model.SessionEntry{}, "session_key = ?", key).Error; err != nil {
		return fmt.Errorf("delete session key %q: %w", key, err)
	}
	return nil
}

// Keys lists live keys starting with prefix.
func (r *SessionRepository) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&model.SessionEntry{}).
		Where("session_key LIKE ? ESCAPE '\\' AND (expires_at IS NULL OR expires_at > ?)", escapeLike(prefix)+"%", r.now()).
		Order("session_key ASC").
		Pluck("session_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list session keys: %w", err)
	}
	return keys, nil
}

// PurgeExpired deletes every expired key.
func (r *SessionRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", r.now()).Delete(&model.SessionEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge expired keys: %w", res.Error)
	}
	return res.RowsAffected, nil
}
