package repository

import (
	"fmt"
	"os"
	"time"

	"github.com/noteduco342/unichat-backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Now is the clock used for server-assigned timestamps. Postgres keeps
// microseconds, so values are truncated before they are handed out.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func InitDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		NowFunc: Now,
		Logger:  logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.Message{},
		&models.ReadCursor{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
