package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/planner/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, ns []notification.Notification) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for i := range ns {
		ns[i].ID = uuid.New().String()
		repo.db.notifications[ns[i].ID] = &notificationRow{row: repo.db.next(), Notification: ns[i]}
	}
	return nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, recipientID string, filter notification.QueryFilter) ([]notification.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]*notificationRow, 0)
	for _, n := range repo.db.notifications {
		if n.RecipientID != recipientID || (filter.UnreadOnly && n.Read) {
			continue
		}
		rows = append(rows, n)
	}
	// most recent first
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.Notification)
	}
	return ns, nil
}

// get must be called with the lock held.
func (repo *notificationRepository) get(recipientID, id string) (*notificationRow, error) {
	n, ok := repo.db.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return nil, notification.ErrNotFound
	}
	return n, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, recipientID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n, err := repo.get(recipientID, id)
	if err != nil {
		return err
	}
	n.Read = true
	return nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, recipientID string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var count int
	for _, n := range repo.db.notifications {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, recipientID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var count int
	for _, n := range repo.db.notifications {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) DeleteNotification(_ context.Context, recipientID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, err := repo.get(recipientID, id); err != nil {
		return err
	}
	delete(repo.db.notifications, id)
	return nil
}
