package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/planning"
)

const (
	planColumns       = "id, class_id, iso_year, iso_week, status, created_by, created_at, last_modified_at"
	attachmentColumns = "id, plan_id, original_name, storage_ref, mime_type, size, uploaded_by, uploaded_at"
	commentColumns    = "id, plan_id, author_id, author_name, text, created_at"
	planKeyConstraint = "plans_key"
	findOrCreateTries = 3
)

type (
	planRow struct {
		ID             string      `db:"id"`
		ClassID        int64       `db:"class_id"`
		ISOYear        int         `db:"iso_year"`
		ISOWeek        int         `db:"iso_week"`
		Status         string      `db:"status"`
		CreatedBy      null.String `db:"created_by"`
		CreatedAt      time.Time   `db:"created_at"`
		LastModifiedAt time.Time   `db:"last_modified_at"`
	}

	attachmentRow struct {
		ID           string      `db:"id"`
		PlanID       string      `db:"plan_id"`
		OriginalName string      `db:"original_name"`
		StorageRef   string      `db:"storage_ref"`
		MimeType     string      `db:"mime_type"`
		Size         int64       `db:"size"`
		UploadedBy   null.String `db:"uploaded_by"`
		UploadedAt   time.Time   `db:"uploaded_at"`
	}

	commentRow struct {
		ID         string      `db:"id"`
		PlanID     string      `db:"plan_id"`
		AuthorID   null.String `db:"author_id"`
		AuthorName string      `db:"author_name"`
		Text       string      `db:"text"`
		CreatedAt  time.Time   `db:"created_at"`
	}

	summaryRow struct {
		ID              string `db:"id"`
		ISOYear         int    `db:"iso_year"`
		ISOWeek         int    `db:"iso_week"`
		Status          string `db:"status"`
		AttachmentCount int    `db:"attachment_count"`
		CommentCount    int    `db:"comment_count"`
	}
)

func (r planRow) toPlan() planning.Plan {
	return planning.Plan{
		ID:             r.ID,
		ClassID:        r.ClassID,
		ISOYear:        r.ISOYear,
		ISOWeek:        r.ISOWeek,
		Status:         planning.Status(r.Status),
		CreatedBy:      r.CreatedBy.String,
		CreatedAt:      r.CreatedAt.UTC(),
		LastModifiedAt: r.LastModifiedAt.UTC(),
	}
}

func (r attachmentRow) toAttachment() planning.Attachment {
	return planning.Attachment{
		ID:           r.ID,
		PlanID:       r.PlanID,
		OriginalName: r.OriginalName,
		StorageRef:   r.StorageRef,
		MimeType:     r.MimeType,
		Size:         r.Size,
		UploadedBy:   r.UploadedBy.String,
		UploadedAt:   r.UploadedAt.UTC(),
	}
}

func (r commentRow) toComment() planning.Comment {
	return planning.Comment{
		ID:         r.ID,
		PlanID:     r.PlanID,
		AuthorID:   r.AuthorID.String,
		AuthorName: r.AuthorName,
		Text:       r.Text,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func nullID(id string) null.String {
	return null.NewString(id, id != "")
}

type planningRepository struct {
	db core.DB
}

var _ planning.Repository = (*planningRepository)(nil) // interface compliance check

func NewPlanningRepository(db core.DB) *planningRepository {
	return &planningRepository{db: db}
}

// FindOrCreatePlan relies on the (class_id, iso_year, iso_week) unique constraint: concurrent callers
// race on the INSERT and the losers read the winner's row.
func (repo *planningRepository) FindOrCreatePlan(ctx context.Context, p planning.Plan) (planning.Plan, bool, error) {
	insert := `INSERT INTO plans (` + planColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT ` + planKeyConstraint + ` DO NOTHING
		RETURNING ` + planColumns
	selectByKey := "SELECT " + planColumns + " FROM plans WHERE class_id = $1 AND iso_year = $2 AND iso_week = $3"

	for try := 0; try < findOrCreateTries; try++ {
		var row planRow
		err := repo.db.GetContext(ctx, &row, insert,
			uuid.New().String(), p.ClassID, p.ISOYear, p.ISOWeek, string(p.Status), nullID(p.CreatedBy),
			p.CreatedAt.UTC(), p.LastModifiedAt.UTC())
		if err == nil {
			return row.toPlan(), true, nil
		}
		if err != sql.ErrNoRows {
			if isUniqueViolation(err, planKeyConstraint) {
				return planning.Plan{}, false, planning.ErrDuplicatePlanningKey
			}
			return planning.Plan{}, false, errors.Wrap(err, "inserting plan")
		}

		err = repo.db.GetContext(ctx, &row, selectByKey, p.ClassID, p.ISOYear, p.ISOWeek)
		if err == nil {
			return row.toPlan(), false, nil
		}
		if err != sql.ErrNoRows {
			return planning.Plan{}, false, errors.Wrap(err, "selecting plan by key")
		}
		// deleted between the INSERT and the SELECT; try again
	}
	return planning.Plan{}, false, planning.ErrDuplicatePlanningKey
}

func (repo *planningRepository) GetPlan(ctx context.Context, id string) (planning.Plan, error) {
	if !validID(id) {
		return planning.Plan{}, planning.ErrPlanNotFound
	}
	var row planRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+planColumns+" FROM plans WHERE id = $1", id); err != nil {
		return planning.Plan{}, trapNoRowsErr(err, planning.ErrPlanNotFound, "getting plan")
	}
	return row.toPlan(), nil
}

func (repo *planningRepository) QuerySummaries(ctx context.Context, classID int64, weekCodes []int64) ([]planning.Summary, error) {
	q := `SELECT p.id, p.iso_year, p.iso_week, p.status,
			(SELECT COUNT(*) FROM attachments a WHERE a.plan_id = p.id) AS attachment_count,
			(SELECT COUNT(*) FROM comments c WHERE c.plan_id = p.id) AS comment_count
		FROM plans p
		WHERE p.class_id = $1 AND (p.iso_year::bigint * 100 + p.iso_week) = ANY($2)
		ORDER BY p.iso_year, p.iso_week`

	var rows []summaryRow
	if err := repo.db.SelectContext(ctx, &rows, q, classID, pq.Array(weekCodes)); err != nil {
		return nil, errors.Wrap(err, "querying plan summaries")
	}
	sums := make([]planning.Summary, 0, len(rows))
	for _, r := range rows {
		sums = append(sums, planning.Summary{
			PlanID:          r.ID,
			ISOYear:         r.ISOYear,
			ISOWeek:         r.ISOWeek,
			Status:          planning.Status(r.Status),
			AttachmentCount: r.AttachmentCount,
			CommentCount:    r.CommentCount,
		})
	}
	return sums, nil
}

func (repo *planningRepository) exists(ctx context.Context, id string) (bool, error) {
	var found bool
	err := repo.db.GetContext(ctx, &found, "SELECT EXISTS (SELECT 1 FROM plans WHERE id = $1)", id)
	return found, errors.Wrap(err, "checking plan")
}

func (repo *planningRepository) UpdatePlanStatus(ctx context.Context, id string, status planning.Status, at time.Time) (planning.Plan, error) {
	if !validID(id) {
		return planning.Plan{}, planning.ErrPlanNotFound
	}
	q := `UPDATE plans SET status = $1, last_modified_at = $2
		WHERE id = $3 AND status <> $1
		RETURNING ` + planColumns

	var row planRow
	err := repo.db.GetContext(ctx, &row, q, string(status), at.UTC(), id)
	if err == nil {
		return row.toPlan(), nil
	}
	if err != sql.ErrNoRows {
		return planning.Plan{}, errors.Wrap(err, "updating plan status")
	}

	found, err := repo.exists(ctx, id)
	if err != nil {
		return planning.Plan{}, err
	}
	if !found {
		return planning.Plan{}, planning.ErrPlanNotFound
	}
	return planning.Plan{}, planning.ErrNoOpTransition
}

func (repo *planningRepository) TouchPlan(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return planning.ErrPlanNotFound
	}
	res, err := repo.db.ExecContext(ctx, "UPDATE plans SET last_modified_at = $1 WHERE id = $2", at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "touching plan")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return planning.ErrPlanNotFound
	}
	return nil
}

// DeletePlan removes the plan; attachments and comments go with it (ON DELETE CASCADE) and
// notifications lose their related plan (ON DELETE SET NULL).
func (repo *planningRepository) DeletePlan(ctx context.Context, id string) (_ planning.Plan, _ []planning.Attachment, err error) {
	if !validID(id) {
		return planning.Plan{}, nil, planning.ErrPlanNotFound
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return planning.Plan{}, nil, errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var row planRow
	if err = tx.GetContext(ctx, &row, "SELECT "+planColumns+" FROM plans WHERE id = $1 FOR UPDATE", id); err != nil {
		return planning.Plan{}, nil, trapNoRowsErr(err, planning.ErrPlanNotFound, "locking plan")
	}
	atts, err := queryAttachments(ctx, tx, id)
	if err != nil {
		return planning.Plan{}, nil, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM plans WHERE id = $1", id); err != nil {
		return planning.Plan{}, nil, errors.Wrap(err, "deleting plan")
	}
	if err = tx.Commit(); err != nil {
		return planning.Plan{}, nil, errors.Wrap(err, "committing plan deletion")
	}
	return row.toPlan(), atts, nil
}

func (repo *planningRepository) CreateAttachment(ctx context.Context, a planning.Attachment) (planning.Attachment, error) {
	a.ID = uuid.New().String()
	q := `INSERT INTO attachments (` + attachmentColumns + `)
		VALUES (:id, :plan_id, :original_name, :storage_ref, :mime_type, :size, :uploaded_by, :uploaded_at)`
	row := attachmentRow{
		ID:           a.ID,
		PlanID:       a.PlanID,
		OriginalName: a.OriginalName,
		StorageRef:   a.StorageRef,
		MimeType:     a.MimeType,
		Size:         a.Size,
		UploadedBy:   nullID(a.UploadedBy),
		UploadedAt:   a.UploadedAt.UTC(),
	}
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		if isForeignKeyViolation(err) {
			return planning.Attachment{}, planning.ErrPlanNotFound
		}
		return planning.Attachment{}, errors.Wrap(err, "inserting attachment")
	}
	return a, nil
}

func (repo *planningRepository) GetAttachment(ctx context.Context, id string) (planning.Attachment, error) {
	if !validID(id) {
		return planning.Attachment{}, planning.ErrAttachmentNotFound
	}
	var row attachmentRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+attachmentColumns+" FROM attachments WHERE id = $1", id); err != nil {
		return planning.Attachment{}, trapNoRowsErr(err, planning.ErrAttachmentNotFound, "getting attachment")
	}
	return row.toAttachment(), nil
}

func queryAttachments(ctx context.Context, exec core.DBExecutor, planID string) ([]planning.Attachment, error) {
	var rows []attachmentRow
	q := "SELECT " + attachmentColumns + " FROM attachments WHERE plan_id = $1 ORDER BY uploaded_at, seq"
	if err := exec.SelectContext(ctx, &rows, q, planID); err != nil {
		return nil, errors.Wrap(err, "querying attachments")
	}
	atts := make([]planning.Attachment, 0, len(rows))
	for _, r := range rows {
		atts = append(atts, r.toAttachment())
	}
	return atts, nil
}

func (repo *planningRepository) QueryAttachments(ctx context.Context, planID string) ([]planning.Attachment, error) {
	if !validID(planID) {
		return []planning.Attachment{}, nil
	}
	return queryAttachments(ctx, repo.db, planID)
}

func (repo *planningRepository) deleteByID(ctx context.Context, table, id string, notFound error) error {
	if !validID(id) {
		return notFound
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return errors.Wrapf(err, "deleting from %s", table)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}

func (repo *planningRepository) DeleteAttachment(ctx context.Context, id string) error {
	return repo.deleteByID(ctx, "attachments", id, planning.ErrAttachmentNotFound)
}

func (repo *planningRepository) CreateComment(ctx context.Context, c planning.Comment) (planning.Comment, error) {
	c.ID = uuid.New().String()
	q := `INSERT INTO comments (` + commentColumns + `)
		VALUES (:id, :plan_id, :author_id, :author_name, :text, :created_at)`
	row := commentRow{
		ID:         c.ID,
		PlanID:     c.PlanID,
		AuthorID:   nullID(c.AuthorID),
		AuthorName: c.AuthorName,
		Text:       c.Text,
		CreatedAt:  c.CreatedAt.UTC(),
	}
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		if isForeignKeyViolation(err) {
			return planning.Comment{}, planning.ErrPlanNotFound
		}
		return planning.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return c, nil
}

func (repo *planningRepository) GetComment(ctx context.Context, id string) (planning.Comment, error) {
	if !validID(id) {
		return planning.Comment{}, planning.ErrCommentNotFound
	}
	var row commentRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+commentColumns+" FROM comments WHERE id = $1", id); err != nil {
		return planning.Comment{}, trapNoRowsErr(err, planning.ErrCommentNotFound, "getting comment")
	}
	return row.toComment(), nil
}

func (repo *planningRepository) QueryComments(ctx context.Context, planID string) ([]planning.Comment, error) {
	if !validID(planID) {
		return []planning.Comment{}, nil
	}
	var rows []commentRow
	q := "SELECT " + commentColumns + " FROM comments WHERE plan_id = $1 ORDER BY created_at, seq"
	if err := repo.db.SelectContext(ctx, &rows, q, planID); err != nil {
		return nil, errors.Wrap(err, "querying comments")
	}
	cmts := make([]planning.Comment, 0, len(rows))
	for _, r := range rows {
		cmts = append(cmts, r.toComment())
	}
	return cmts, nil
}

func (repo *planningRepository) DeleteComment(ctx context.Context, id string) error {
	return repo.deleteByID(ctx, "comments", id, planning.ErrCommentNotFound)
}
