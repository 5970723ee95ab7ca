package repository

import (
	"context"

	"mentorbook/internal/models"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	return translate("create user", "user", r.db.WithContext(ctx).Create(u).Error)
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate("get user", "user", err)
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate("get user by email", "user", err)
	}
	return &u, nil
}

func (r *UserRepository) UpdateFCMToken(ctx context.Context, id uint, token string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("fcm_token", token).Error
}
