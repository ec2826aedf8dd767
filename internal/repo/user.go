package repo

import (
	"context"
	"errors"

	"github.com/vharitonov/marketplace/internal/models"
)

var ErrEmailTaken = errors.New("email already registered")

// CreateUser inserts u unless a user with the same email exists.
// FirstOrCreate keeps the existence check and the insert in a single
// statement, so concurrent registrations cannot both pass a pre-check;
// the uniqueIndex on email backs it up at the storage level.
func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	tx := r.DB.WithContext(ctx).Where("email = ?", u.Email).FirstOrCreate(u)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrEmailTaken
	}
	return nil
}

func (r *GormRepo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
