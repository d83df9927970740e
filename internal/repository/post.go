// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"

	"statescape/internal/cache"
	"statescape/internal/models"
	"statescape/internal/observability"

	"gorm.io/gorm"
)

// ErrToggleContended is returned when a like toggle loses the race against
// concurrent toggles on every attempt.
var ErrToggleContended = errors.New("like toggle contended, retry")

// toggleAttempts bounds how often a toggle retries before giving up.
const toggleAttempts = 3

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error)
	GetByUserID(ctx context.Context, userID uint, limit, offset int, currentUserID uint) ([]*models.Post, error)
	GetByRegion(ctx context.Context, region string, limit, offset int, currentUserID uint) ([]*models.Post, error)
	List(ctx context.Context, limit, offset int, currentUserID uint) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	ToggleLike(ctx context.Context, userID, postID uint) (bool, error)
	GetLikerIDs(ctx context.Context, postID uint) ([]uint, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db, metrics: observability.NewDatabaseMetrics(db)}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Create(post).Error
	if err == nil {
		cache.Invalidate(ctx, cache.RegionPostsKey(post.Region))
	}
	return err
}

func (r *postRepository) GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error) {
	var post models.Post
	err := r.applyPostDetails(r.db.WithContext(ctx), currentUserID).
		Preload("User").
		First(&post, id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID uint, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.applyPostDetails(r.db.WithContext(ctx), currentUserID).
		Preload("User").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) GetByRegion(ctx context.Context, region string, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.applyPostDetails(r.db.WithContext(ctx), currentUserID).
		Preload("User").
		Where("region = ?", region).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) List(ctx context.Context, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.applyPostDetails(r.db.WithContext(ctx), currentUserID).
		Preload("User").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	return posts, err
}

// applyPostDetails adds subqueries to fetch counts and liked status in a single query.
func (r *postRepository) applyPostDetails(db *gorm.DB, currentUserID uint) *gorm.DB {
	selectQuery := "posts.*, " +
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id AND comments.deleted_at IS NULL) as comments_count, " +
		"(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) as likes_count"

	if currentUserID != 0 {
		return db.Select(selectQuery+", EXISTS(SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.user_id = ?) as liked", currentUserID)
	}

	return db.Select(selectQuery + ", false as liked")
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Save(post).Error; err != nil {
		return err
	}
	cache.InvalidatePost(ctx, post.ID, post.Region)
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Post{}, id).Error; err != nil {
		return err
	}
	cache.Invalidate(ctx, cache.PostKey(id))
	return nil
}

// ToggleLike atomically flips the caller's like on the post and returns the
// resulting state (true = now liked). Both arms are single atomic statements:
// the insert ignores a conflicting existing row and the delete affects zero
// rows if there is nothing to remove, so two racing toggles always land on a
// consistent end state with no lost update. When both arms affect zero rows a
// concurrent toggle won the race; retry a bounded number of times, then
// surface ErrToggleContended.
func (r *postRepository) ToggleLike(ctx context.Context, userID, postID uint) (bool, error) {
	defer r.metrics.TrackQuery("toggle_like", "likes")()
	for attempt := 0; attempt < toggleAttempts; attempt++ {
		res := r.db.WithContext(ctx).Exec(
			`INSERT INTO likes (user_id, post_id, created_at)
			 VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT (user_id, post_id) DO NOTHING`,
			userID, postID,
		)
		if res.Error != nil {
			return false, res.Error
		}
		if res.RowsAffected == 1 {
			cache.Invalidate(ctx, cache.PostKey(postID))
			return true, nil
		}

		// Row already existed: remove it. Hard delete so a future like can
		// re-insert under the unique index.
		res = r.db.WithContext(ctx).Exec(
			`DELETE FROM likes WHERE user_id = ? AND post_id = ?`,
			userID, postID,
		)
		if res.Error != nil {
			return false, res.Error
		}
		if res.RowsAffected == 1 {
			cache.Invalidate(ctx, cache.PostKey(postID))
			return false, nil
		}
		// Zero rows on both arms: a concurrent toggle removed the row between
		// our insert and delete. Loop and try again.
	}
	return false, ErrToggleContended
}

func (r *postRepository) GetLikerIDs(ctx context.Context, postID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
