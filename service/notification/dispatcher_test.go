package notification

import (
	"testing"

	"github.com/onvm-app/onvm-server/cmd/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Notification{}, &models.Device{}))

	users := []models.User{
		{Username: "alice", Email: "alice@x.com", PasswordHash: "x"},
		{Username: "bob", Email: "bob@x.com", PasswordHash: "x"},
	}
	require.NoError(t, db.Create(&users).Error)

	return NewDispatcher(db)
}

func TestNotifyInsertsRow(t *testing.T) {
	d := newTestDispatcher(t)

	require.NoError(t, d.Notify(1, 2, models.NotificationLike, "bob liked your post"))

	notifications, err := d.ListForUser(1)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	require.Equal(t, models.NotificationLike, notifications[0].Kind)
	require.EqualValues(t, 2, notifications[0].SenderID)
	require.False(t, notifications[0].Read)
	require.NotNil(t, notifications[0].Sender)
	require.Equal(t, "bob", notifications[0].Sender.Username)
}

func TestNotifySelfIsNoOp(t *testing.T) {
	d := newTestDispatcher(t)

	require.NoError(t, d.Notify(1, 1, models.NotificationComment, "talking to myself"))

	var count int64
	require.NoError(t, d.db.Model(&models.Notification{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestListForUserNewestFirst(t *testing.T) {
	d := newTestDispatcher(t)

	require.NoError(t, d.Notify(1, 2, models.NotificationFollow, "first"))
	require.NoError(t, d.Notify(1, 2, models.NotificationLike, "second"))
	require.NoError(t, d.Notify(2, 1, models.NotificationLike, "not for user 1"))

	notifications, err := d.ListForUser(1)
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	require.Equal(t, "second", notifications[0].Content)
	require.Equal(t, "first", notifications[1].Content)
}

func TestMarkRead(t *testing.T) {
	d := newTestDispatcher(t)

	require.NoError(t, d.Notify(1, 2, models.NotificationRetweet, "bob retweeted your post"))

	notifications, err := d.ListForUser(1)
	require.NoError(t, err)
	require.Len(t, notifications, 1)

	require.NoError(t, d.MarkRead(notifications[0].ID))

	notifications, err = d.ListForUser(1)
	require.NoError(t, err)
	require.True(t, notifications[0].Read)
}

func TestMarkReadMissingRow(t *testing.T) {
	d := newTestDispatcher(t)
	require.ErrorIs(t, d.MarkRead(999), ErrNotFound)
}
