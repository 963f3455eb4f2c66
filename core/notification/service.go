package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/planner/core"
)

var (
	ErrNotFound = core.NewError(core.KindNotFound, "notification_not_found", "notification not found")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	// Repository persists notifications. Every query is scoped to a recipient so users can only see
	// and modify their own notifications.
	Repository interface {
		// CreateNotifications inserts the notifications, assigning their IDs.
		CreateNotifications(ctx context.Context, ns []Notification) error
		QueryNotifications(ctx context.Context, recipientID string, filter QueryFilter) ([]Notification, error)
		MarkRead(ctx context.Context, recipientID, id string) error
		MarkAllRead(ctx context.Context, recipientID string) (int, error)
		CountUnread(ctx context.Context, recipientID string) (int, error)
		DeleteNotification(ctx context.Context, recipientID, id string) error
	}

	// Cache keeps per-user unread counters. Implementations must tolerate being unavailable.
	Cache interface {
		GetUnreadCount(ctx context.Context, userID string) (int, bool)
		SetUnreadCount(ctx context.Context, userID string, n int)
		Invalidate(ctx context.Context, userIDs ...string)
	}

	// Mirror forwards freshly created notifications to another channel (eg. email).
	Mirror interface {
		Mirror(ctx context.Context, ns []Notification)
	}

	Service struct {
		repo   Repository
		cache  Cache
		mirror Mirror
	}
)

func NewService(repo Repository, cache Cache, mirror Mirror) *Service {
	return &Service{repo: repo, cache: cache, mirror: mirror}
}

func (svc *Service) invalidate(ctx context.Context, userIDs ...string) {
	if svc.cache != nil {
		svc.cache.Invalidate(ctx, userIDs...)
	}
}

// Notify creates one notification per distinct recipient.
// Delivery is at-least-once: retrying after a failure may create duplicates.
func (svc *Service) Notify(ctx context.Context, recipientIDs []string, kind Kind, message, relatedPlanID string) error {
	seen := make(map[string]struct{}, len(recipientIDs))
	now := nowFunc()
	ns := make([]Notification, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ns = append(ns, Notification{
			RecipientID:   id,
			Kind:          kind,
			Message:       message,
			RelatedPlanID: relatedPlanID,
			CreatedAt:     now,
		})
	}
	if len(ns) == 0 {
		return nil
	}

	if err := svc.repo.CreateNotifications(ctx, ns); err != nil {
		return errors.Wrap(err, "creating notifications")
	}

	recipients := make([]string, 0, len(ns))
	for _, n := range ns {
		recipients = append(recipients, n.RecipientID)
	}
	svc.invalidate(ctx, recipients...)

	if svc.mirror != nil {
		svc.mirror.Mirror(ctx, ns)
	}
	return nil
}

func (svc *Service) Query(ctx context.Context, userID string, filter QueryFilter) ([]Notification, error) {
	filter.Clean()
	ns, err := svc.repo.QueryNotifications(ctx, userID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	if ns == nil {
		ns = []Notification{}
	}
	return ns, nil
}

func (svc *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	if svc.cache != nil {
		if n, ok := svc.cache.GetUnreadCount(ctx, userID); ok {
			return n, nil
		}
	}
	n, err := svc.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	if svc.cache != nil {
		svc.cache.SetUnreadCount(ctx, userID, n)
	}
	return n, nil
}

func (svc *Service) MarkRead(ctx context.Context, userID, id string) error {
	if err := svc.repo.MarkRead(ctx, userID, id); err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	svc.invalidate(ctx, userID)
	return nil
}

// MarkAllRead marks every notification of the user as read and returns how many changed.
func (svc *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := svc.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "marking all notifications as read")
	}
	svc.invalidate(ctx, userID)
	return n, nil
}

func (svc *Service) Delete(ctx context.Context, userID, id string) error {
	if err := svc.repo.DeleteNotification(ctx, userID, id); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	svc.invalidate(ctx, userID)
	return nil
}
