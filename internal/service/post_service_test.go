package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"statescape/internal/models"
	"statescape/internal/realtime"
	"statescape/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn      func(context.Context, *models.Post) error
	getByIDFn     func(context.Context, uint, uint) (*models.Post, error)
	getByUserIDFn func(context.Context, uint, int, int, uint) ([]*models.Post, error)
	getByRegionFn func(context.Context, string, int, int, uint) ([]*models.Post, error)
	listFn        func(context.Context, int, int, uint) ([]*models.Post, error)
	updateFn      func(context.Context, *models.Post) error
	deleteFn      func(context.Context, uint) error
	toggleLikeFn  func(context.Context, uint, uint) (bool, error)
	getLikerIDsFn func(context.Context, uint) ([]uint, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id, currentUserID uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id, currentUserID)
}
func (s *postRepoStub) GetByUserID(ctx context.Context, userID uint, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	return s.getByUserIDFn(ctx, userID, limit, offset, currentUserID)
}
func (s *postRepoStub) GetByRegion(ctx context.Context, region string, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	return s.getByRegionFn(ctx, region, limit, offset, currentUserID)
}
func (s *postRepoStub) List(ctx context.Context, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	return s.listFn(ctx, limit, offset, currentUserID)
}
func (s *postRepoStub) Update(ctx context.Context, post *models.Post) error {
	return s.updateFn(ctx, post)
}
func (s *postRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}
func (s *postRepoStub) ToggleLike(ctx context.Context, userID, postID uint) (bool, error) {
	return s.toggleLikeFn(ctx, userID, postID)
}
func (s *postRepoStub) GetLikerIDs(ctx context.Context, postID uint) ([]uint, error) {
	return s.getLikerIDsFn(ctx, postID)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:      func(_ context.Context, _ *models.Post) error { return nil },
		getByIDFn:     func(_ context.Context, _, _ uint) (*models.Post, error) { return &models.Post{}, nil },
		getByUserIDFn: func(_ context.Context, _ uint, _, _ int, _ uint) ([]*models.Post, error) { return nil, nil },
		getByRegionFn: func(_ context.Context, _ string, _, _ int, _ uint) ([]*models.Post, error) { return nil, nil },
		listFn:        func(_ context.Context, _, _ int, _ uint) ([]*models.Post, error) { return nil, nil },
		updateFn:      func(_ context.Context, _ *models.Post) error { return nil },
		deleteFn:      func(_ context.Context, _ uint) error { return nil },
		toggleLikeFn:  func(_ context.Context, _, _ uint) (bool, error) { return true, nil },
		getLikerIDsFn: func(_ context.Context, _ uint) ([]uint, error) { return nil, nil },
	}
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByIDFn func(context.Context, uint) (*models.User, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByUsername(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}
func (s *userRepoStub) Create(_ context.Context, _ *models.User) error  { return nil }
func (s *userRepoStub) Update(_ context.Context, _ *models.User) error  { return nil }
func (s *userRepoStub) Delete(_ context.Context, _ uint) error          { return nil }
func (s *userRepoStub) List(_ context.Context, _, _ int) ([]models.User, error) {
	return nil, nil
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, Username: "stubuser"}, nil
		},
	}
}

// ledgerStub records created notifications in memory.
type ledgerStub struct {
	mu      sync.Mutex
	created []*models.Notification

	getFn         func(context.Context, uint, uint) (*models.Notification, error)
	markReadFn    func(context.Context, uint, uint) (bool, error)
	markAllReadFn func(context.Context, uint) (int64, error)
	deleteFn      func(context.Context, uint, uint) (bool, error)
	listFn        func(context.Context, uint, int, int) ([]*models.Notification, error)
	countFn       func(context.Context, uint) (int64, error)
	unreadFn      func(context.Context, uint) (int64, error)
}

func (s *ledgerStub) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uint(len(s.created) + 1)
	s.created = append(s.created, n)
	return nil
}
func (s *ledgerStub) GetByRecipient(ctx context.Context, recipientID, id uint) (*models.Notification, error) {
	if s.getFn != nil {
		return s.getFn(ctx, recipientID, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.created {
		if c.ID == id && c.RecipientID == recipientID {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
func (s *ledgerStub) ListByRecipient(ctx context.Context, recipientID uint, limit, offset int) ([]*models.Notification, error) {
	if s.listFn != nil {
		return s.listFn(ctx, recipientID, limit, offset)
	}
	return nil, nil
}
func (s *ledgerStub) CountByRecipient(ctx context.Context, recipientID uint) (int64, error) {
	if s.countFn != nil {
		return s.countFn(ctx, recipientID)
	}
	return 0, nil
}
func (s *ledgerStub) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	if s.unreadFn != nil {
		return s.unreadFn(ctx, recipientID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.created {
		if c.RecipientID == recipientID && !c.Read {
			n++
		}
	}
	return n, nil
}
func (s *ledgerStub) MarkRead(ctx context.Context, recipientID, id uint) (bool, error) {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, recipientID, id)
	}
	return true, nil
}
func (s *ledgerStub) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, recipientID)
	}
	return 0, nil
}
func (s *ledgerStub) Delete(ctx context.Context, recipientID, id uint) (bool, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, recipientID, id)
	}
	return true, nil
}

func (s *ledgerStub) all() []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Notification, len(s.created))
	copy(out, s.created)
	return out
}

// publishedEvent is one call captured by eventsStub.
type publishedEvent struct {
	Topic     realtime.Topic
	EventType string
	Payload   interface{}
}

// eventsStub records published events.
type eventsStub struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (s *eventsStub) Publish(_ context.Context, t realtime.Topic, eventType string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, publishedEvent{Topic: t, EventType: eventType, Payload: payload})
	return nil
}

func (s *eventsStub) all() []publishedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]publishedEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *eventsStub) ofType(eventType string) []publishedEvent {
	var out []publishedEvent
	for _, e := range s.all() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, models.ErrCodeValidation, appErr.Code)
}

// assertAppErrorCode asserts that err is an AppError carrying code.
func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

func newPostService(posts *postRepoStub, users *userRepoStub, ledger *ledgerStub, events *eventsStub) *PostService {
	return NewPostService(posts, users, ledger, events, nil)
}

func TestCreatePostValidation(t *testing.T) {
	cases := []struct {
		name string
		in   CreatePostInput
	}{
		{"missing title", CreatePostInput{UserID: 1, Content: "body", Region: "Montana"}},
		{"title too long", CreatePostInput{UserID: 1, Title: strings.Repeat("x", 301), Content: "body", Region: "Montana"}},
		{"missing content", CreatePostInput{UserID: 1, Title: "t", Region: "Montana"}},
		{"content too long", CreatePostInput{UserID: 1, Title: "t", Content: strings.Repeat("x", 50001), Region: "Montana"}},
		{"missing region", CreatePostInput{UserID: 1, Title: "t", Content: "body"}},
		{"blank region", CreatePostInput{UserID: 1, Title: "t", Content: "body", Region: "   "}},
		{"region too long", CreatePostInput{UserID: 1, Title: "t", Content: "body", Region: strings.Repeat("x", 101)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			posts := noopPostRepo()
			posts.createFn = func(_ context.Context, _ *models.Post) error {
				t.Fatal("Create must not be called on invalid input")
				return nil
			}
			svc := newPostService(posts, noopUserRepo(), &ledgerStub{}, &eventsStub{})
			_, err := svc.CreatePost(context.Background(), tc.in)
			assertValidationError(t, err)
		})
	}
}

func TestCreatePostTrimsRegion(t *testing.T) {
	posts := noopPostRepo()
	var created *models.Post
	posts.createFn = func(_ context.Context, p *models.Post) error {
		p.ID = 42
		created = p
		return nil
	}
	posts.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) {
		return &models.Post{ID: id, Region: created.Region}, nil
	}
	svc := newPostService(posts, noopUserRepo(), &ledgerStub{}, &eventsStub{})

	post, err := svc.CreatePost(context.Background(), CreatePostInput{
		UserID: 1, Title: "Glacier at dawn", Content: "worth the drive", Region: "  Montana ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Montana", created.Region)
	assert.Equal(t, uint(42), post.ID)
}

func TestGetPostNotFound(t *testing.T) {
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, _, _ uint) (*models.Post, error) {
		return nil, gorm.ErrRecordNotFound
	}
	svc := newPostService(posts, noopUserRepo(), &ledgerStub{}, &eventsStub{})

	_, err := svc.GetPost(context.Background(), 99, 1)
	assertAppErrorCode(t, err, models.ErrCodeNotFound)
}

func TestToggleLikeMissingPost(t *testing.T) {
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, _, _ uint) (*models.Post, error) {
		return nil, gorm.ErrRecordNotFound
	}
	posts.toggleLikeFn = func(_ context.Context, _, _ uint) (bool, error) {
		t.Fatal("ToggleLike must not touch the store for a missing post")
		return false, nil
	}
	events := &eventsStub{}
	svc := newPostService(posts, noopUserRepo(), &ledgerStub{}, events)

	_, err := svc.ToggleLike(context.Background(), 1, 99)
	assertAppErrorCode(t, err, models.ErrCodeNotFound)
	assert.Empty(t, events.all(), "no event may fire when nothing changed")
}

func TestToggleLikePublishesAndNotifies(t *testing.T) {
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) {
		return &models.Post{ID: id, UserID: 7, Region: "Vermont"}, nil
	}
	posts.toggleLikeFn = func(_ context.Context, _, _ uint) (bool, error) { return true, nil }
	posts.getLikerIDsFn = func(_ context.Context, _ uint) ([]uint, error) { return []uint{1, 3}, nil }

	users := noopUserRepo()
	users.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Username: "mallory"}, nil
	}
	ledger := &ledgerStub{}
	events := &eventsStub{}
	svc := newPostService(posts, users, ledger, events)

	state, err := svc.ToggleLike(context.Background(), 3, 17)
	require.NoError(t, err)
	assert.True(t, state.Liked)
	assert.Equal(t, 2, state.LikesCount)
	assert.Equal(t, []uint{1, 3}, state.LikerIDs)

	likeEvents := events.ofType(realtime.EventLikeUpdate)
	require.Len(t, likeEvents, 1)
	assert.Equal(t, realtime.PostTopic(17), likeEvents[0].Topic)
	assert.Equal(t, state, likeEvents[0].Payload)

	created := ledger.all()
	require.Len(t, created, 1)
	assert.Equal(t, uint(7), created[0].RecipientID)
	assert.Equal(t, models.NotificationTypeLike, created[0].Type)
	assert.Equal(t, "mallory liked your post in Vermont", created[0].Message)
	assert.Equal(t, uint(17), created[0].Payload.PostID)
	assert.Equal(t, uint(3), created[0].Payload.ActorID)

	notifEvents := events.ofType(realtime.EventNotification)
	require.Len(t, notifEvents, 1)
	assert.Equal(t, realtime.UserTopic(7), notifEvents[0].Topic)
}

func TestToggleLikeSelfLikeSkipsNotification(t *testing.T) {
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) {
		return &models.Post{ID: id, UserID: 3, Region: "Vermont"}, nil
	}
	posts.toggleLikeFn = func(_ context.Context, _, _ uint) (bool, error) { return true, nil }
	posts.getLikerIDsFn = func(_ context.Context, _ uint) ([]uint, error) { return []uint{3}, nil }

	ledger := &ledgerStub{}
	events := &eventsStub{}
	svc := newPostService(posts, noopUserRepo(), ledger, events)

	state, err := svc.ToggleLike(context.Background(), 3, 17)
	require.NoError(t, err)
	assert.True(t, state.Liked)

	assert.Empty(t, ledger.all(), "liking your own post must not notify yourself")
	assert.Len(t, events.ofType(realtime.EventLikeUpdate), 1, "room event still fires")
	assert.Empty(t, events.ofType(realtime.EventNotification))
}

func TestToggleLikeUnlikeSkipsNotification(t *testing.T) {
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) {
		return &models.Post{ID: id, UserID: 7, Region: "Vermont"}, nil
	}
	posts.toggleLikeFn = func(_ context.Context, _, _ uint) (bool, error) { return false, nil }
	posts.getLikerIDsFn = func(_ context.Context, _ uint) ([]uint, error) { return nil, nil }

	ledger := &ledgerStub{}
	events := &eventsStub{}
	svc := newPostService(posts, noopUserRepo(), ledger, events)

	state, err := svc.ToggleLike(context.Background(), 3, 17)
	require.NoError(t, err)
	assert.False(t, state.Liked)
	assert.Zero(t, state.LikesCount)

	assert.Empty(t, ledger.all(), "removing a like never notifies")
	assert.Len(t, events.ofType(realtime.EventLikeUpdate), 1)
}

func TestToggleLikeContendedIsTransient(t *testing.T) {
	posts := noopPostRepo()
	posts.toggleLikeFn = func(_ context.Context, _, _ uint) (bool, error) {
		return false, repository.ErrToggleContended
	}
	events := &eventsStub{}
	svc := newPostService(posts, noopUserRepo(), &ledgerStub{}, events)

	_, err := svc.ToggleLike(context.Background(), 1, 17)
	assertAppErrorCode(t, err, models.ErrCodeUnavailable)
	assert.Empty(t, events.all())
}

// concurrentLikeRepo implements the toggle contract on an in-memory set so
// the service can be hammered from many goroutines.
type concurrentLikeRepo struct {
	postRepoStub
	mu     sync.Mutex
	likers map[uint]struct{}
}

func newConcurrentLikeRepo(owner uint) *concurrentLikeRepo {
	r := &concurrentLikeRepo{likers: make(map[uint]struct{})}
	r.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) {
		return &models.Post{ID: id, UserID: owner, Region: "Alaska"}, nil
	}
	return r
}

func (r *concurrentLikeRepo) ToggleLike(_ context.Context, userID, _ uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.likers[userID]; ok {
		delete(r.likers, userID)
		return false, nil
	}
	r.likers[userID] = struct{}{}
	return true, nil
}

func (r *concurrentLikeRepo) GetLikerIDs(_ context.Context, _ uint) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint, 0, len(r.likers))
	for id := range r.likers {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestToggleLikeConcurrentUsers(t *testing.T) {
	const users = 24
	repo := newConcurrentLikeRepo(999)
	ledger := &ledgerStub{}
	events := &eventsStub{}
	svc := NewPostService(repo, noopUserRepo(), ledger, events, nil)

	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := 1; i <= users; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			state, err := svc.ToggleLike(context.Background(), userID, 17)
			if err == nil && !state.Liked {
				err = errors.New("first toggle must land on liked")
			}
			errs <- err
		}(uint(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := repo.GetLikerIDs(context.Background(), 17)
	require.NoError(t, err)
	assert.Len(t, final, users, "N distinct toggles produce N likes")
	assert.Len(t, events.ofType(realtime.EventLikeUpdate), users)
	assert.Len(t, ledger.all(), users, "every like on someone else's post notifies the owner once")
}

func TestGetLikesAnonymousViewer(t *testing.T) {
	posts := noopPostRepo()
	posts.getLikerIDsFn = func(_ context.Context, _ uint) ([]uint, error) { return []uint{4, 5}, nil }
	svc := newPostService(posts, noopUserRepo(), &ledgerStub{}, &eventsStub{})

	state, err := svc.GetLikes(context.Background(), 17, 0)
	require.NoError(t, err)
	assert.False(t, state.Liked)
	assert.Equal(t, 2, state.LikesCount)

	state, err = svc.GetLikes(context.Background(), 17, 5)
	require.NoError(t, err)
	assert.True(t, state.Liked)
}

func TestDeletePostOwnership(t *testing.T) {
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) {
		return &models.Post{ID: id, UserID: 1}, nil
	}
	deleted := false
	posts.deleteFn = func(_ context.Context, _ uint) error {
		deleted = true
		return nil
	}
	svc := newPostService(posts, noopUserRepo(), &ledgerStub{}, &eventsStub{})

	err := svc.DeletePost(context.Background(), DeletePostInput{UserID: 2, PostID: 17})
	assertAppErrorCode(t, err, models.ErrCodeForbidden)
	assert.False(t, deleted)

	require.NoError(t, svc.DeletePost(context.Background(), DeletePostInput{UserID: 1, PostID: 17}))
	assert.True(t, deleted)
}

func TestDeletePostAdminOverride(t *testing.T) {
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) {
		return &models.Post{ID: id, UserID: 1}, nil
	}
	isAdmin := func(_ context.Context, userID uint) (bool, error) { return userID == 9, nil }
	svc := NewPostService(posts, noopUserRepo(), &ledgerStub{}, &eventsStub{}, isAdmin)

	require.NoError(t, svc.DeletePost(context.Background(), DeletePostInput{UserID: 9, PostID: 17}))

	err := svc.DeletePost(context.Background(), DeletePostInput{UserID: 2, PostID: 17})
	assertAppErrorCode(t, err, models.ErrCodeForbidden)
}
