package repository

import (
	"context"

	"statescape/internal/models"
	"statescape/internal/observability"

	"gorm.io/gorm"
)

// NotificationRepository defines persistence operations for the notification
// ledger. All per-notification operations are scoped to the recipient, so a
// caller can never observe or mutate another user's entries.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByRecipient(ctx context.Context, recipientID, id uint) (*models.Notification, error)
	ListByRecipient(ctx context.Context, recipientID uint, limit, offset int) ([]*models.Notification, error)
	CountByRecipient(ctx context.Context, recipientID uint) (int64, error)
	UnreadCount(ctx context.Context, recipientID uint) (int64, error)
	MarkRead(ctx context.Context, recipientID, id uint) (bool, error)
	MarkAllRead(ctx context.Context, recipientID uint) (int64, error)
	Delete(ctx context.Context, recipientID, id uint) (bool, error)
}

type notificationRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db, metrics: observability.NewDatabaseMetrics(db)}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	defer r.metrics.TrackQuery("create", "notifications")()
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return err
	}
	observability.NotificationsCreated.WithLabelValues(n.Type).Inc()
	return nil
}

// GetByRecipient fetches one notification scoped to its recipient. Returns
// gorm.ErrRecordNotFound for missing and foreign IDs alike.
func (r *notificationRepository) GetByRecipient(ctx context.Context, recipientID, id uint) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID uint, limit, offset int) ([]*models.Notification, error) {
	defer r.metrics.TrackQuery("list", "notifications")()
	var items []*models.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	return items, err
}

func (r *notificationRepository) CountByRecipient(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ?", recipientID).
		Count(&count).Error
	return count, err
}

// UnreadCount reads straight from the ledger. The count feeds the client's
// badge on every push event, and a cached value can go stale the moment a
// concurrent write lands, so it is never cached.
func (r *notificationRepository) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// MarkRead flips the read flag for the recipient's notification. The update
// only ever sets read to true, so the transition is monotonic: marking an
// already-read entry again affects zero rows but still reports success.
// Returns false when no such notification exists for this recipient.
func (r *notificationRepository) MarkRead(ctx context.Context, recipientID, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("read", true)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish "not yours / missing" from "already read".
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&models.Notification{}).
			Where("id = ? AND recipient_id = ?", id, recipientID).
			Count(&count).Error; err != nil {
			return false, err
		}
		if count == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Delete removes the recipient's notification. Returns false when it does not
// exist for this recipient.
func (r *notificationRepository) Delete(ctx context.Context, recipientID, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}
