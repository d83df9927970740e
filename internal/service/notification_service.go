package service

import (
	"context"

	"statescape/internal/models"
	"statescape/internal/repository"
)

type NotificationService struct {
	ledger repository.NotificationRepository
}

// NotificationPage is one page of a recipient's ledger, newest first.
type NotificationPage struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int64                  `json:"total"`
	UnreadCount   int64                  `json:"unread_count"`
}

func NewNotificationService(ledger repository.NotificationRepository) *NotificationService {
	return &NotificationService{ledger: ledger}
}

func (s *NotificationService) List(ctx context.Context, recipientID uint, limit, offset int) (*NotificationPage, error) {
	notifications, err := s.ledger.ListByRecipient(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.ledger.CountByRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	unread, err := s.ledger.UnreadCount(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	return &NotificationPage{
		Notifications: notifications,
		Total:         total,
		UnreadCount:   unread,
	}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	return s.ledger.UnreadCount(ctx, recipientID)
}

// MarkRead marks one of the caller's notifications read and returns the
// updated record. A notification that does not exist and one owned by
// somebody else are indistinguishable to the caller: both come back NotFound.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, id uint) (*models.Notification, error) {
	ok, err := s.ledger.MarkRead(ctx, recipientID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotFoundError("Notification", id)
	}
	n, err := s.ledger.GetByRecipient(ctx, recipientID, id)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// MarkAllRead marks every unread notification of the caller read and returns
// how many flipped. Notifications created after the sweep stay unread.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	return s.ledger.MarkAllRead(ctx, recipientID)
}

func (s *NotificationService) Delete(ctx context.Context, recipientID, id uint) error {
	ok, err := s.ledger.Delete(ctx, recipientID, id)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewNotFoundError("Notification", id)
	}
	return nil
}
