package story

import (
	"time"

	"github.com/onvm-app/onvm-server/cmd/models"
	"github.com/onvm-app/onvm-server/cmd/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExpireStories hard-deletes stories past the visibility window and
// removes their media files. Reads already filter by the window, so the
// sweep only reclaims space.
func ExpireStories(db *gorm.DB) (int64, error) {
	cutoff := time.Now().Add(-models.StoryTTLHours * time.Hour)

	var expired []models.Story
	if err := db.Where("created_at <= ?", cutoff).Find(&expired).Error; err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]uint, 0, len(expired))
	for _, s := range expired {
		ids = append(ids, s.ID)
	}

	res := db.Unscoped().Delete(&models.Story{}, ids)
	if res.Error != nil {
		return 0, res.Error
	}

	for _, s := range expired {
		if s.Media == "" {
			continue
		}
		if err := utils.DeleteMedia(s.Media); err != nil {
			logrus.WithError(err).WithField("media", s.Media).Warn("story: media cleanup failed")
		}
	}

	return res.RowsAffected, nil
}
