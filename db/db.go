package db

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// RequiredEnv names the secrets the process refuses to start without.
var RequiredEnv = []string{"DB_URL", "SECRET_KEY"}

func NewPSQLStorage() (*gorm.DB, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, relying on process environment")
	}

	for _, key := range RequiredEnv {
		if os.Getenv(key) == "" {
			return nil, fmt.Errorf("required environment variable %s is not set", key)
		}
	}

	connString := os.Getenv("DB_URL")

	db, err := gorm.Open(postgres.Open(connString), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Bounded pool so exhaustion fails fast instead of hanging.
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Minute)

	return db, nil
}
