package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"statescape/internal/models"
	"statescape/internal/observability"
	"statescape/internal/realtime"
	"statescape/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// EventPublisher fans engagement events out to live room subscribers.
// Satisfied by *realtime.Dispatcher; stubbed in tests.
type EventPublisher interface {
	Publish(ctx context.Context, t realtime.Topic, eventType string, payload interface{}) error
}

type PostService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	ledger   repository.NotificationRepository
	events   EventPublisher
	isAdmin  func(ctx context.Context, userID uint) (bool, error)
}

type CreatePostInput struct {
	UserID  uint
	Title   string
	Content string
	Region  string
}

type ListPostsInput struct {
	Limit         int
	Offset        int
	CurrentUserID uint
	Region        string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

func NewPostService(
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	ledger repository.NotificationRepository,
	events EventPublisher,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *PostService {
	return &PostService{
		postRepo: postRepo,
		userRepo: userRepo,
		ledger:   ledger,
		events:   events,
		isAdmin:  isAdmin,
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	const maxTitleLen = 300
	const maxContentLen = 50000 // 50K characters
	const maxRegionLen = 100

	if in.Title == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if len(in.Title) > maxTitleLen {
		return nil, models.NewValidationError("Title too long (max 300 characters)")
	}
	if in.Content == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if len(in.Content) > maxContentLen {
		return nil, models.NewValidationError("Content too long (max 50000 characters)")
	}
	region := strings.TrimSpace(in.Region)
	if region == "" {
		return nil, models.NewValidationError("Region is required")
	}
	if len(region) > maxRegionLen {
		return nil, models.NewValidationError("Region too long (max 100 characters)")
	}

	post := &models.Post{
		Title:   in.Title,
		Content: in.Content,
		Region:  region,
		UserID:  in.UserID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	return s.postRepo.GetByID(ctx, post.ID, in.UserID)
}

func (s *PostService) GetPost(ctx context.Context, id uint, currentUserID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id, currentUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, err
	}
	return post, nil
}

func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	if in.Region != "" {
		return s.postRepo.GetByRegion(ctx, in.Region, in.Limit, in.Offset, in.CurrentUserID)
	}
	return s.postRepo.List(ctx, in.Limit, in.Offset, in.CurrentUserID)
}

func (s *PostService) GetUserPosts(ctx context.Context, userID uint, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	return s.postRepo.GetByUserID(ctx, userID, limit, offset, currentUserID)
}

func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.postRepo.GetByID(ctx, in.PostID, in.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Post", in.PostID)
		}
		return err
	}

	if post.UserID != in.UserID {
		if s.isAdmin == nil {
			return models.NewForbiddenError("You can only delete your own posts")
		}
		admin, err := s.isAdmin(ctx, in.UserID)
		if err != nil {
			return err
		}
		if !admin {
			return models.NewForbiddenError("You can only delete your own posts")
		}
	}

	return s.postRepo.Delete(ctx, in.PostID)
}

// ToggleLike flips the caller's like on a post and returns the authoritative
// state after the flip. Room subscribers receive a like-update event and, on
// a transition to liked, the post owner is notified. Both happen strictly
// after the store commit, so events never outrun durable state.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID uint) (*models.LikeState, error) {
	span, ctx := observability.NewSpan(ctx, "service.ToggleLike")
	defer span.End()
	span.AddAttributes(
		attribute.Int64("post.id", int64(postID)),
		attribute.Int64("user.id", int64(userID)),
	)

	post, err := s.postRepo.GetByID(ctx, postID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		span.SetError(err)
		return nil, err
	}

	liked, err := s.postRepo.ToggleLike(ctx, userID, postID)
	if err != nil {
		span.SetError(err)
		if errors.Is(err, repository.ErrToggleContended) {
			return nil, models.NewUnavailableError(err)
		}
		return nil, err
	}

	likerIDs, err := s.postRepo.GetLikerIDs(ctx, postID)
	if err != nil {
		return nil, err
	}

	state := &models.LikeState{
		PostID:     postID,
		Liked:      liked,
		LikesCount: len(likerIDs),
		LikerIDs:   likerIDs,
	}

	s.publish(ctx, realtime.PostTopic(postID), realtime.EventLikeUpdate, state)

	if liked && post.UserID != userID {
		s.notify(ctx, post.UserID, userID, models.NotificationTypeLike,
			"%s liked your post in %s", post, 0)
	}

	return state, nil
}

// GetLikes returns the current like state of a post as seen by currentUserID,
// which may be zero for anonymous callers.
func (s *PostService) GetLikes(ctx context.Context, postID, currentUserID uint) (*models.LikeState, error) {
	if _, err := s.postRepo.GetByID(ctx, postID, currentUserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		return nil, err
	}

	likerIDs, err := s.postRepo.GetLikerIDs(ctx, postID)
	if err != nil {
		return nil, err
	}
	liked := false
	if currentUserID != 0 {
		for _, id := range likerIDs {
			if id == currentUserID {
				liked = true
				break
			}
		}
	}
	return &models.LikeState{
		PostID:     postID,
		Liked:      liked,
		LikesCount: len(likerIDs),
		LikerIDs:   likerIDs,
	}, nil
}

// publish fans an event out best-effort. Delivery failures are logged by the
// dispatcher and never fail the request that triggered them.
func (s *PostService) publish(ctx context.Context, t realtime.Topic, eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, t, eventType, payload)
}

// notify persists a notification for recipientID and pushes it to their user
// room with the refreshed unread count. format receives the actor's display
// name and the post's region. commentID is zero for non-comment types.
func (s *PostService) notify(ctx context.Context, recipientID, actorID uint, notifType, format string, post *models.Post, commentID uint) {
	if s.ledger == nil {
		return
	}

	actorName := fmt.Sprintf("User %d", actorID)
	if s.userRepo != nil {
		if actor, err := s.userRepo.GetByID(ctx, actorID); err == nil && actor != nil {
			actorName = actor.Username
		}
	}

	n := &models.Notification{
		RecipientID: recipientID,
		Type:        notifType,
		Message:     fmt.Sprintf(format, actorName, post.Region),
		Payload: models.NotificationPayload{
			PostID:    post.ID,
			Region:    post.Region,
			ActorID:   actorID,
			ActorName: actorName,
			CommentID: commentID,
		},
	}
	if err := s.ledger.Create(ctx, n); err != nil {
		return
	}

	unread, _ := s.ledger.UnreadCount(ctx, recipientID)
	s.publish(ctx, realtime.UserTopic(recipientID), realtime.EventNotification, map[string]interface{}{
		"notification": n,
		"unread_count": unread,
	})
}
