package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/onvm-app/onvm-server/cmd/api"
	"github.com/onvm-app/onvm-server/cmd/models"
	"github.com/onvm-app/onvm-server/cmd/utils"
	"github.com/onvm-app/onvm-server/db"
	"github.com/onvm-app/onvm-server/service/story"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		case "clear-db":
			runDatabaseClear()
			return
		default:
			logrus.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	startServer()
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		logrus.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		logrus.Info("Database connection closed")
	}()
	logrus.Info("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		logrus.Fatalf("Migration error: %v", err)
	}
	logrus.Info("Migrations completed successfully")
}

// migrationOrder lists every table in dependency order, parents first.
var migrationOrder = []struct {
	model interface{}
	name  string
}{
	{&models.User{}, "User"},
	{&models.PasswordResetToken{}, "PasswordResetToken"},
	{&models.Follow{}, "Follow"},
	{&models.Post{}, "Post"},
	{&models.Comment{}, "Comment"},
	{&models.Reply{}, "Reply"},
	{&models.Like{}, "Like"},
	{&models.Retweet{}, "Retweet"},
	{&models.Story{}, "Story"},
	{&models.Wallet{}, "Wallet"},
	{&models.Transaction{}, "Transaction"},
	{&models.Notification{}, "Notification"},
	{&models.Device{}, "Device"},
	{&models.Conversation{}, "Conversation"},
	{&models.Message{}, "Message"},
	{&models.Community{}, "Community"},
	{&models.CommunityMember{}, "CommunityMember"},
	{&models.CommunityMessage{}, "CommunityMessage"},
}

func performMigrations(DB *gorm.DB) error {
	logrus.Info("Starting database migrations...")
	for _, m := range migrationOrder {
		logrus.Infof("Migrating %s table...", m.name)
		if err := DB.AutoMigrate(m.model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", m.name, err)
		}
	}

	directories := []string{
		utils.MediaPath,
		utils.StoryPath,
		utils.ProfilePath,
	}
	for _, dir := range directories {
		if err := createDirectoryIfNotExist(dir); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
		logrus.Infof("Directory %s created/verified", dir)
	}

	logrus.Info("All migrations and directory setup completed successfully")
	return nil
}

func createDirectoryIfNotExist(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", path, err)
		}
	}
	return nil
}

func startServer() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		logrus.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		logrus.Info("Database connection closed")
	}()
	logrus.Info("Connected to the database")

	sweeper := startSweeps(DB)
	defer sweeper.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB)

	go func() {
		if err := server.Run(); err != nil {
			logrus.Fatalf("Server error: %v", err)
		}
	}()

	<-quit
	logrus.Info("Shutting down server...")
}

// startSweeps schedules the periodic cleanups: expired stories every
// hour, orphaned media files once a day.
func startSweeps(DB *gorm.DB) *cron.Cron {
	c := cron.New()

	c.AddFunc("@hourly", func() {
		removed, err := story.ExpireStories(DB)
		if err != nil {
			logrus.WithError(err).Error("story expiry sweep failed")
			return
		}
		if removed > 0 {
			logrus.WithField("removed", removed).Info("expired stories swept")
		}
	})

	c.AddFunc("@daily", func() {
		for _, dir := range []string{utils.MediaPath, utils.StoryPath, utils.ProfilePath} {
			removed, err := utils.SweepOrphanedMedia(dir, 24*time.Hour, func(url string) bool {
				return mediaInUse(DB, url)
			})
			if err != nil {
				logrus.WithError(err).WithField("dir", dir).Error("orphan media sweep failed")
				continue
			}
			if removed > 0 {
				logrus.WithFields(logrus.Fields{"dir": dir, "removed": removed}).
					Info("orphaned media swept")
			}
		}
	})

	c.Start()
	return c
}

func mediaInUse(DB *gorm.DB, url string) bool {
	lookups := []struct {
		model  interface{}
		column string
	}{
		{&models.Post{}, "media"},
		{&models.Comment{}, "media"},
		{&models.Story{}, "media"},
		{&models.Message{}, "media"},
		{&models.User{}, "profile_picture"},
		{&models.Community{}, "profile_photo"},
	}

	for _, l := range lookups {
		var count int64
		if err := DB.Model(l.model).Where(l.column+" = ?", url).Count(&count).Error; err != nil {
			// assume in use on error, deleting is the risky path
			return true
		}
		if count > 0 {
			return true
		}
	}
	return false
}

func runDatabaseClear() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		logrus.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		logrus.Info("Database connection closed")
	}()

	logrus.Info("Preparing to clear database...")

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)

	if confirmation != "yes" {
		logrus.Info("Database clearing cancelled.")
		return
	}

	var tableNames string
	fmt.Print("Enter table names to clear (comma separated) or leave blank to clear all: ")
	fmt.Scanln(&tableNames)

	var tables []interface{}
	if tableNames != "" {
		for _, name := range strings.Split(tableNames, ",") {
			model, ok := modelByName(strings.TrimSpace(name))
			if !ok {
				logrus.Warnf("Unknown table: %s", name)
				continue
			}
			tables = append(tables, model)
		}
	}

	if err := clearDatabase(DB, tables); err != nil {
		logrus.Fatalf("Error clearing database: %v", err)
	}

	logrus.Info("Database cleared successfully")
}

func modelByName(name string) (interface{}, bool) {
	for _, m := range migrationOrder {
		if m.name == name {
			return m.model, true
		}
	}
	return nil, false
}

func clearDatabase(DB *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		// children first so FK constraints do not block the drop
		for i := len(migrationOrder) - 1; i >= 0; i-- {
			tables = append(tables, migrationOrder[i].model)
		}
	}

	logrus.Info("Dropping tables...")
	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			logrus.Warnf("Warning dropping table %T: %v", table, err)
		} else {
			logrus.Infof("Table %T dropped", table)
		}
	}

	return nil
}
