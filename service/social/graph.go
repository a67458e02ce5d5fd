package social

import (
	"errors"

	"github.com/onvm-app/onvm-server/cmd/models"
	"github.com/onvm-app/onvm-server/cmd/utils"
	"gorm.io/gorm"
)

var (
	ErrSelfFollow       = errors.New("users cannot follow themselves")
	ErrAlreadyFollowing = errors.New("already following this user")
)

// Graph owns the follow edges and the derived follower/following views.
type Graph struct {
	db *gorm.DB
}

func NewGraph(db *gorm.DB) *Graph {
	return &Graph{db: db}
}

// Follow inserts the edge follower -> following. Duplicate edges and
// self-follows are rejected. The unique index backs up the existence check
// so a concurrent duplicate still comes out as ErrAlreadyFollowing.
func (g *Graph) Follow(followerID, followingID uint) error {
	if followerID == followingID {
		return ErrSelfFollow
	}

	var existing models.Follow
	err := g.db.Where("follower_id = ? AND following_id = ?", followerID, followingID).
		First(&existing).Error
	if err == nil {
		return ErrAlreadyFollowing
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	err = g.db.Create(&models.Follow{
		FollowerID:  followerID,
		FollowingID: followingID,
	}).Error
	if utils.IsUniqueViolation(err) {
		return ErrAlreadyFollowing
	}
	return err
}

// Unfollow removes the edge if present. Deleting an absent edge is not an
// error.
func (g *Graph) Unfollow(followerID, followingID uint) error {
	return g.db.
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&models.Follow{}).Error
}

func (g *Graph) IsFollowing(followerID, followingID uint) (bool, error) {
	var count int64
	err := g.db.Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error
	return count > 0, err
}

// Followers lists the users following userID, oldest edge first.
func (g *Graph) Followers(userID uint) ([]models.UserSummary, error) {
	var summaries []models.UserSummary
	err := g.db.Model(&models.Follow{}).
		Select("users.id, users.username, users.profile_picture").
		Joins("JOIN users ON users.id = follows.follower_id").
		Where("follows.following_id = ?", userID).
		Order("follows.created_at ASC, follows.id ASC").
		Scan(&summaries).Error
	return summaries, err
}

// Following lists the users userID follows, oldest edge first.
func (g *Graph) Following(userID uint) ([]models.UserSummary, error) {
	var summaries []models.UserSummary
	err := g.db.Model(&models.Follow{}).
		Select("users.id, users.username, users.profile_picture").
		Joins("JOIN users ON users.id = follows.following_id").
		Where("follows.follower_id = ?", userID).
		Order("follows.created_at ASC, follows.id ASC").
		Scan(&summaries).Error
	return summaries, err
}

func (g *Graph) CountFollowers(userID uint) (int64, error) {
	var count int64
	err := g.db.Model(&models.Follow{}).
		Where("following_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (g *Graph) CountFollowing(userID uint) (int64, error) {
	var count int64
	err := g.db.Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Count(&count).Error
	return count, err
}
