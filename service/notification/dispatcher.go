package notification

import (
	"errors"
	"fmt"

	"github.com/onvm-app/onvm-server/cmd/models"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("notification not found")

// Dispatcher inserts a notification row whenever an actor's action targets
// another user, and forwards it to the user's registered devices on a
// best-effort basis.
type Dispatcher struct {
	db   *gorm.DB
	push *expo.PushClient
}

func NewDispatcher(db *gorm.DB) *Dispatcher {
	return &Dispatcher{
		db:   db,
		push: expo.NewPushClient(nil),
	}
}

// Notify records the notification. Self-notifications are silently dropped:
// acting on your own content never inserts a row.
func (d *Dispatcher) Notify(targetUserID, senderUserID uint, kind, content string) error {
	if targetUserID == senderUserID {
		return nil
	}

	notification := models.Notification{
		UserID:   targetUserID,
		SenderID: senderUserID,
		Kind:     kind,
		Content:  content,
	}
	if err := d.db.Create(&notification).Error; err != nil {
		return err
	}

	go d.pushToDevices(targetUserID, kind, content)
	return nil
}

// ListForUser returns the user's notifications newest-first, with the
// sender's identity attached.
func (d *Dispatcher) ListForUser(userID uint) ([]models.Notification, error) {
	var notifications []models.Notification
	err := d.db.Preload("Sender").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&notifications).Error
	return notifications, err
}

func (d *Dispatcher) MarkRead(notificationID uint) error {
	res := d.db.Model(&models.Notification{}).
		Where("id = ?", notificationID).
		Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// pushToDevices fans the notification out to the user's registered devices.
// Failures are logged and dropped; the triggering request already succeeded.
func (d *Dispatcher) pushToDevices(userID uint, kind, content string) {
	var devices []models.Device
	if err := d.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("notification: device lookup failed")
		return
	}
	if len(devices) == 0 || d.push == nil {
		return
	}

	var messages []expo.PushMessage
	for _, device := range devices {
		token, err := expo.NewExponentPushToken(device.Token)
		if err != nil {
			continue
		}
		messages = append(messages, expo.PushMessage{
			To:       []expo.ExponentPushToken{token},
			Title:    fmt.Sprintf("New %s", kind),
			Body:     content,
			Sound:    "default",
			Priority: expo.DefaultPriority,
		})
	}

	for _, message := range messages {
		if _, err := d.push.Publish(&message); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("notification: push delivery failed")
		}
	}
}
