// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"statescape/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool
}

// regions posts are spread across. Mirrors the browsing surface of the app.
var regions = []string{
	"Alabama", "Alaska", "Arizona", "Arkansas", "California", "Colorado",
	"Connecticut", "Delaware", "Florida", "Georgia", "Hawaii", "Idaho",
	"Illinois", "Indiana", "Iowa", "Kansas", "Kentucky", "Louisiana",
	"Maine", "Maryland", "Massachusetts", "Michigan", "Minnesota",
	"Mississippi", "Missouri", "Montana", "Nebraska", "Nevada",
	"New Hampshire", "New Jersey", "New Mexico", "New York",
	"North Carolina", "North Dakota", "Ohio", "Oklahoma", "Oregon",
	"Pennsylvania", "Rhode Island", "South Carolina", "South Dakota",
	"Tennessee", "Texas", "Utah", "Vermont", "Virginia", "Washington",
	"West Virginia", "Wisconsin", "Wyoming",
}

// Seed populates the database with demo users, region posts, likes, comments
// and the notifications those engagements produce.
func Seed(db *gorm.DB, opts Options) error {
	gofakeit.Seed(time.Now().UnixNano())
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	log.Printf("Seeding %d users and %d posts...", opts.NumUsers, opts.NumPosts)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			log.Printf("warning: could not clear all existing data: %v", err)
		}
	}

	users, err := createUsers(db, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("created %d users", len(users))

	posts, err := createPosts(db, r, users, opts.NumPosts)
	if err != nil {
		return fmt.Errorf("failed to create posts: %w", err)
	}
	log.Printf("created %d posts", len(posts))

	if err := createEngagement(db, r, users, posts); err != nil {
		return fmt.Errorf("failed to create engagement: %w", err)
	}
	log.Println("seeding complete")

	return nil
}

func clearData(db *gorm.DB) error {
	// children first so foreign keys stay satisfied
	for _, model := range []interface{}{
		&models.Notification{}, &models.Like{}, &models.Comment{},
		&models.Post{}, &models.User{},
	} {
		if err := db.Unscoped().Where("1 = 1").Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func createUsers(db *gorm.DB, n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		user := &models.User{
			Username: fmt.Sprintf("%s%d", gofakeit.Username(), i),
			Email:    fmt.Sprintf("user%d@%s", i, gofakeit.DomainName()),
		}
		if err := db.Create(user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func createPosts(db *gorm.DB, r *rand.Rand, users []*models.User, n int) ([]*models.Post, error) {
	if len(users) == 0 {
		return nil, nil
	}

	posts := make([]*models.Post, 0, n)
	for i := 0; i < n; i++ {
		author := users[r.Intn(len(users))]
		region := regions[r.Intn(len(regions))]
		post := &models.Post{
			Title:   fmt.Sprintf("%s in %s", gofakeit.HipsterSentence(4), region),
			Content: gofakeit.Paragraph(1, 3, 8, "\n"),
			Region:  region,
			UserID:  author.ID,
			// realistic created_at spread over the last 90 days
			CreatedAt: time.Now().Add(-time.Duration(r.Intn(90*24)) * time.Hour),
		}
		if err := db.Create(post).Error; err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// createEngagement sprinkles likes and comments over the seeded posts, and
// records the notification each one would have produced.
func createEngagement(db *gorm.DB, r *rand.Rand, users []*models.User, posts []*models.Post) error {
	var likes, comments int
	for _, post := range posts {
		for _, user := range users {
			if r.Intn(4) != 0 { // ~25% of user/post pairs like
				continue
			}
			like := &models.Like{UserID: user.ID, PostID: post.ID}
			if err := db.Create(like).Error; err != nil {
				return err
			}
			likes++
			if user.ID != post.UserID {
				if err := createNotification(db, post, user, models.NotificationTypeLike,
					fmt.Sprintf("%s liked your post in %s", user.Username, post.Region), 0); err != nil {
					return err
				}
			}
		}

		nComments := r.Intn(4)
		for i := 0; i < nComments; i++ {
			commenter := users[r.Intn(len(users))]
			comment := &models.Comment{
				Content: gofakeit.HipsterSentence(8),
				UserID:  commenter.ID,
				PostID:  post.ID,
			}
			if err := db.Create(comment).Error; err != nil {
				return err
			}
			comments++
			if commenter.ID != post.UserID {
				if err := createNotification(db, post, commenter, models.NotificationTypeComment,
					fmt.Sprintf("%s commented on your post in %s", commenter.Username, post.Region), comment.ID); err != nil {
					return err
				}
			}
		}
	}
	log.Printf("created %d likes and %d comments", likes, comments)
	return nil
}

func createNotification(db *gorm.DB, post *models.Post, actor *models.User, notifType, message string, commentID uint) error {
	return db.Create(&models.Notification{
		RecipientID: post.UserID,
		Type:        notifType,
		Message:     message,
		Payload: models.NotificationPayload{
			PostID:    post.ID,
			Region:    post.Region,
			ActorID:   actor.ID,
			ActorName: actor.Username,
			CommentID: commentID,
		},
	}).Error
}
