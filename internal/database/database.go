package database

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"mentorbook/config"
	"mentorbook/internal/domain"
	"mentorbook/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), GormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// GormConfig is shared by the MySQL connection and the SQLite test databases.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         newGormLogger(log.New(os.Stdout, "\r\n", log.LstdFlags)),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// newGormLogger reports slow queries and real failures. Not-found lookups
// are an expected outcome in the repositories and stay quiet.
func newGormLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.DeveloperProfile{},
		&models.SlotUnavailability{},
		&models.Session{},
		&models.Payment{},
		&models.GatewayEvent{},
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.Notification{},
		&models.AuditLog{},
	)
}

// SeedPlatform makes sure the platform admin account and its wallet exist.
// Safe to run on every start.
func SeedPlatform(ctx context.Context, db *gorm.DB, cfg *config.Config, log *zap.Logger) (*models.Wallet, error) {
	var admin models.User
	err := db.WithContext(ctx).Where("email = ?", cfg.Admin.Email).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		admin = models.User{Name: cfg.Admin.Name, Email: cfg.Admin.Email, Role: domain.RoleAdmin}
		if cfg.Admin.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, err
			}
			admin.PasswordHash = string(hash)
		}
		if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
			return nil, err
		}
		log.Info("seeded platform admin", zap.Uint("user_id", admin.ID), zap.String("email", admin.Email))
	} else if err != nil {
		return nil, err
	}

	var w models.Wallet
	err = db.WithContext(ctx).Where("admin_id IS NOT NULL").Order("id ASC").First(&w).Error
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	adminID := admin.ID
	w = models.Wallet{AdminID: &adminID, Balance: decimal.Zero, Currency: cfg.Payment.Currency}
	if err := db.WithContext(ctx).Create(&w).Error; err != nil {
		return nil, err
	}
	log.Info("created platform wallet", zap.Uint("wallet_id", w.ID))
	return &w, nil
}
