package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartToken maps a storefront session to the remote cart it is shopping with.
type CartToken struct {
	SessionID string    `gorm:"column:session_id;type:varchar(64);primaryKey" json:"session_id"`
	Token     string    `gorm:"column:token;type:text;not null" json:"-"`
	ExpiresAt time.Time `gorm:"column:expires_at;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (CartToken) TableName() string { return "cart_token" }

type sqlStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLStore keeps tokens in the cart_token table, creating it if needed.
func NewSQLStore(db *gorm.DB, ttl time.Duration) (TokenStore, error) {
	if db == nil {
		return nil, errors.New("db required")
	}
	if err := db.AutoMigrate(&CartToken{}); err != nil {
		return nil, fmt.Errorf("migrate cart_token: %w", err)
	}
	return &sqlStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *sqlStore) Get(ctx context.Context, sessionID string) (string, error) {
	var row CartToken
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Where("expires_at > ?", s.now()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", err
	}
	return row.Token, nil
}

func (s *sqlStore) Put(ctx context.Context, sessionID, token string) error {
	now := s.now()
	expires := now.Add(100 * 365 * 24 * time.Hour)
	if s.ttl > 0 {
		expires = now.Add(s.ttl)
	}
	row := CartToken{SessionID: sessionID, Token: token, ExpiresAt: expires, CreatedAt: now, UpdatedAt: now}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at", "updated_at"}),
	}).Create(&row).Error
}

func (s *sqlStore) Delete(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&CartToken{}).Error
}
