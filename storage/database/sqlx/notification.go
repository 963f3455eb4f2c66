package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/notification"
)

const notificationColumns = "id, recipient_id, kind, message, related_plan_id, read, created_at"

type notificationRow struct {
	ID            string      `db:"id"`
	RecipientID   string      `db:"recipient_id"`
	Kind          string      `db:"kind"`
	Message       string      `db:"message"`
	RelatedPlanID null.String `db:"related_plan_id"`
	Read          bool        `db:"read"`
	CreatedAt     time.Time   `db:"created_at"`
}

func (r notificationRow) toNotification() notification.Notification {
	return notification.Notification{
		ID:            r.ID,
		RecipientID:   r.RecipientID,
		Kind:          notification.Kind(r.Kind),
		Message:       r.Message,
		RelatedPlanID: r.RelatedPlanID.String,
		Read:          r.Read,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	db core.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db core.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

// CreateNotifications inserts all rows in a single transaction.
func (repo *notificationRepository) CreateNotifications(ctx context.Context, ns []notification.Notification) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := `INSERT INTO notifications (` + notificationColumns + `)
		VALUES (:id, :recipient_id, :kind, :message, :related_plan_id, :read, :created_at)`
	for i := range ns {
		ns[i].ID = uuid.New().String()
		row := notificationRow{
			ID:            ns[i].ID,
			RecipientID:   ns[i].RecipientID,
			Kind:          string(ns[i].Kind),
			Message:       ns[i].Message,
			RelatedPlanID: nullID(ns[i].RelatedPlanID),
			Read:          ns[i].Read,
			CreatedAt:     ns[i].CreatedAt.UTC(),
		}
		if _, err = tx.NamedExecContext(ctx, q, row); err != nil {
			return errors.Wrap(err, "inserting notification")
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing notifications")
	}
	return nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, recipientID string, filter notification.QueryFilter) ([]notification.Notification, error) {
	if !validID(recipientID) {
		return []notification.Notification{}, nil
	}
	q := "SELECT " + notificationColumns + " FROM notifications WHERE recipient_id = $1"
	if filter.UnreadOnly {
		q += " AND NOT read"
	}
	q += " ORDER BY created_at DESC, seq DESC LIMIT $2"

	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, q, recipientID, filter.Limit); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.toNotification())
	}
	return ns, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, recipientID, id string) error {
	if !validID(id) || !validID(recipientID) {
		return notification.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, "UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2", id, recipientID)
	if err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	if !validID(recipientID) {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx, "UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND NOT read", recipientID)
	if err != nil {
		return 0, errors.Wrap(err, "marking all notifications as read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "marking all notifications as read")
}

func (repo *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	if !validID(recipientID) {
		return 0, nil
	}
	var n int
	err := repo.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT read", recipientID)
	return n, errors.Wrap(err, "counting unread notifications")
}

func (repo *notificationRepository) DeleteNotification(ctx context.Context, recipientID, id string) error {
	if !validID(id) || !validID(recipientID) {
		return notification.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = $1 AND recipient_id = $2", id, recipientID)
	if err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notification.ErrNotFound
	}
	return nil
}
