package publication

import (
	"time"

	"github.com/onvm-app/onvm-server/cmd/models"
	"gorm.io/gorm"
)

// FeedPost is the enriched shape served to clients: the post, its author,
// aggregate counts, whether the requesting user liked it, and the full
// comment thread.
type FeedPost struct {
	ID             uint          `json:"id"`
	UserID         uint          `json:"user_id"`
	Content        string        `json:"content"`
	Media          string        `json:"media,omitempty"`
	MediaType      string        `json:"media_type,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Username       string        `json:"username"`
	ProfilePicture string        `json:"profile_picture"`
	LikesCount     int64         `json:"likes_count"`
	RetweetsCount  int64         `json:"retweets_count"`
	LikedByMe      bool          `json:"liked_by_me"`
	Comments       []FeedComment `json:"comments"`
}

type FeedComment struct {
	ID             uint        `json:"id"`
	UserID         uint        `json:"user_id"`
	PostID         uint        `json:"post_id"`
	Content        string      `json:"content"`
	Media          string      `json:"media,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	Username       string      `json:"username"`
	ProfilePicture string      `json:"profile_picture"`
	Replies        []FeedReply `json:"replies"`
}

type FeedReply struct {
	ID             uint      `json:"id"`
	UserID         uint      `json:"user_id"`
	CommentID      uint      `json:"comment_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Username       string    `json:"username"`
	ProfilePicture string    `json:"profile_picture"`
}

// assembleFeed enriches posts with author identity, aggregate counts, the
// viewer's like state and nested comment threads. Counts come from grouped
// queries instead of a denormalized counter column, so they cannot drift.
func assembleFeed(db *gorm.DB, posts []models.Post, viewerID uint) ([]FeedPost, error) {
	if len(posts) == 0 {
		return []FeedPost{}, nil
	}

	postIDs := make([]uint, 0, len(posts))
	for _, post := range posts {
		postIDs = append(postIDs, post.ID)
	}

	likeCounts, err := countByPost(db, &models.Like{}, postIDs)
	if err != nil {
		return nil, err
	}
	retweetCounts, err := countByPost(db, &models.Retweet{}, postIDs)
	if err != nil {
		return nil, err
	}

	likedByViewer := map[uint]bool{}
	if viewerID != 0 {
		var likedIDs []uint
		if err := db.Model(&models.Like{}).
			Where("user_id = ? AND post_id IN ?", viewerID, postIDs).
			Pluck("post_id", &likedIDs).Error; err != nil {
			return nil, err
		}
		for _, id := range likedIDs {
			likedByViewer[id] = true
		}
	}

	feed := make([]FeedPost, 0, len(posts))
	for _, post := range posts {
		item := FeedPost{
			ID:            post.ID,
			UserID:        post.UserID,
			Content:       post.Content,
			Media:         post.Media,
			MediaType:     post.MediaType,
			CreatedAt:     post.CreatedAt,
			LikesCount:    likeCounts[post.ID],
			RetweetsCount: retweetCounts[post.ID],
			LikedByMe:     likedByViewer[post.ID],
			Comments:      make([]FeedComment, 0, len(post.Comments)),
		}
		if post.User != nil {
			item.Username = post.User.Username
			item.ProfilePicture = post.User.ProfilePicture
		}

		for _, comment := range post.Comments {
			feedComment := FeedComment{
				ID:        comment.ID,
				UserID:    comment.UserID,
				PostID:    comment.PostID,
				Content:   comment.Content,
				Media:     comment.Media,
				CreatedAt: comment.CreatedAt,
				Replies:   make([]FeedReply, 0, len(comment.Replies)),
			}
			if comment.User != nil {
				feedComment.Username = comment.User.Username
				feedComment.ProfilePicture = comment.User.ProfilePicture
			}
			for _, reply := range comment.Replies {
				feedReply := FeedReply{
					ID:        reply.ID,
					UserID:    reply.UserID,
					CommentID: reply.CommentID,
					Content:   reply.Content,
					CreatedAt: reply.CreatedAt,
				}
				if reply.User != nil {
					feedReply.Username = reply.User.Username
					feedReply.ProfilePicture = reply.User.ProfilePicture
				}
				feedComment.Replies = append(feedComment.Replies, feedReply)
			}
			item.Comments = append(item.Comments, feedComment)
		}

		feed = append(feed, item)
	}

	return feed, nil
}

func countByPost(db *gorm.DB, model interface{}, postIDs []uint) (map[uint]int64, error) {
	var rows []struct {
		PostID uint
		Total  int64
	}
	err := db.Model(model).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.PostID] = row.Total
	}
	return counts, nil
}

// threadPreloads loads the comment tree oldest-first for display.
func threadPreloads(query *gorm.DB) *gorm.DB {
	return query.
		Preload("User").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.created_at ASC, comments.id ASC")
		}).
		Preload("Comments.User").
		Preload("Comments.Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("replies.created_at ASC, replies.id ASC")
		}).
		Preload("Comments.Replies.User")
}
