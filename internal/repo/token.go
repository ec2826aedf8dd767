package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/vharitonov/marketplace/internal/models"
	"github.com/vharitonov/marketplace/internal/tokens"
)

var ErrRefreshInvalid = errors.New("refresh token invalid")

func (r *GormRepo) SaveRefreshToken(ctx context.Context, rawToken string, userID uint, jti string, expiresAt time.Time) error {
	stored := models.RefreshToken{
		Token:     tokens.Sha256Hex(rawToken),
		UserID:    userID,
		JTI:       jti,
		ExpiresAt: expiresAt.Unix(),
	}
	return r.DB.WithContext(ctx).Create(&stored).Error
}

// LookupRefreshToken resolves a raw refresh token to its stored record and
// rejects revoked or expired ones.
func (r *GormRepo) LookupRefreshToken(ctx context.Context, rawToken string) (*models.RefreshToken, error) {
	var stored models.RefreshToken
	if err := r.DB.WithContext(ctx).
		Where("token = ?", tokens.Sha256Hex(rawToken)).
		First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}
	if stored.Revoked || time.Now().Unix() > stored.ExpiresAt {
		return nil, ErrRefreshInvalid
	}
	return &stored, nil
}

func (r *GormRepo) RevokeRefreshToken(ctx context.Context, rawToken string) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ?", tokens.Sha256Hex(rawToken)).
		Update("revoked", true).Error
}
