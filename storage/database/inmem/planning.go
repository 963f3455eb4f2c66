package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/planner/core/planning"
)

type planningRepository struct {
	db *DB
}

var _ planning.Repository = (*planningRepository)(nil) // interface compliance check

func NewPlanningRepository(db *DB) *planningRepository {
	return &planningRepository{db: db}
}

func (repo *planningRepository) FindOrCreatePlan(_ context.Context, p planning.Plan) (planning.Plan, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if id, ok := repo.db.planKeys[p.Key()]; ok {
		return *repo.db.plans[id], false, nil
	}
	p.ID = uuid.New().String()
	repo.db.plans[p.ID] = &p
	repo.db.planKeys[p.Key()] = p.ID
	return p, true, nil
}

func (repo *planningRepository) GetPlan(_ context.Context, id string) (planning.Plan, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.plans[id]; ok {
		return *p, nil
	}
	return planning.Plan{}, planning.ErrPlanNotFound
}

func (repo *planningRepository) QuerySummaries(_ context.Context, classID int64, weekCodes []int64) ([]planning.Summary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	codes := make(map[int64]bool, len(weekCodes))
	for _, c := range weekCodes {
		codes[c] = true
	}
	sums := make([]planning.Summary, 0)
	for _, p := range repo.db.plans {
		if p.ClassID != classID || !codes[planning.WeekCode(p.ISOYear, p.ISOWeek)] {
			continue
		}
		s := planning.Summary{PlanID: p.ID, ISOYear: p.ISOYear, ISOWeek: p.ISOWeek, Status: p.Status}
		for _, a := range repo.db.attachments {
			if a.PlanID == p.ID {
				s.AttachmentCount++
			}
		}
		for _, c := range repo.db.comments {
			if c.PlanID == p.ID {
				s.CommentCount++
			}
		}
		sums = append(sums, s)
	}
	sort.Slice(sums, func(i, j int) bool {
		return planning.WeekCode(sums[i].ISOYear, sums[i].ISOWeek) < planning.WeekCode(sums[j].ISOYear, sums[j].ISOWeek)
	})
	return sums, nil
}

func (repo *planningRepository) UpdatePlanStatus(_ context.Context, id string, status planning.Status, at time.Time) (planning.Plan, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.plans[id]
	if !ok {
		return planning.Plan{}, planning.ErrPlanNotFound
	}
	if p.Status == status {
		return planning.Plan{}, planning.ErrNoOpTransition
	}
	p.Status = status
	p.LastModifiedAt = at
	return *p, nil
}

func (repo *planningRepository) TouchPlan(_ context.Context, id string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.plans[id]
	if !ok {
		return planning.ErrPlanNotFound
	}
	p.LastModifiedAt = at
	return nil
}

func (repo *planningRepository) DeletePlan(_ context.Context, id string) (planning.Plan, []planning.Attachment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.plans[id]
	if !ok {
		return planning.Plan{}, nil, planning.ErrPlanNotFound
	}
	atts := repo.attachments(id)
	for _, a := range atts {
		delete(repo.db.attachments, a.ID)
	}
	for cid, c := range repo.db.comments {
		if c.PlanID == id {
			delete(repo.db.comments, cid)
		}
	}
	for _, n := range repo.db.notifications {
		if n.RelatedPlanID == id {
			n.RelatedPlanID = ""
		}
	}
	delete(repo.db.planKeys, p.Key())
	delete(repo.db.plans, id)
	return *p, atts, nil
}

func (repo *planningRepository) CreateAttachment(_ context.Context, a planning.Attachment) (planning.Attachment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.plans[a.PlanID]; !ok {
		return planning.Attachment{}, planning.ErrPlanNotFound
	}
	a.ID = uuid.New().String()
	repo.db.attachments[a.ID] = &attachmentRow{row: repo.db.next(), Attachment: a}
	return a, nil
}

func (repo *planningRepository) GetAttachment(_ context.Context, id string) (planning.Attachment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.attachments[id]; ok {
		return a.Attachment, nil
	}
	return planning.Attachment{}, planning.ErrAttachmentNotFound
}

// attachments must be called with the lock held.
func (repo *planningRepository) attachments(planID string) []planning.Attachment {
	rows := make([]*attachmentRow, 0)
	for _, a := range repo.db.attachments {
		if a.PlanID == planID {
			rows = append(rows, a)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	atts := make([]planning.Attachment, 0, len(rows))
	for _, r := range rows {
		atts = append(atts, r.Attachment)
	}
	return atts
}

func (repo *planningRepository) QueryAttachments(_ context.Context, planID string) ([]planning.Attachment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.attachments(planID), nil
}

func (repo *planningRepository) DeleteAttachment(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.attachments[id]; !ok {
		return planning.ErrAttachmentNotFound
	}
	delete(repo.db.attachments, id)
	return nil
}

func (repo *planningRepository) CreateComment(_ context.Context, c planning.Comment) (planning.Comment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.plans[c.PlanID]; !ok {
		return planning.Comment{}, planning.ErrPlanNotFound
	}
	c.ID = uuid.New().String()
	repo.db.comments[c.ID] = &commentRow{row: repo.db.next(), Comment: c}
	return c, nil
}

func (repo *planningRepository) GetComment(_ context.Context, id string) (planning.Comment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.comments[id]; ok {
		return c.Comment, nil
	}
	return planning.Comment{}, planning.ErrCommentNotFound
}

func (repo *planningRepository) QueryComments(_ context.Context, planID string) ([]planning.Comment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]*commentRow, 0)
	for _, c := range repo.db.comments {
		if c.PlanID == planID {
			rows = append(rows, c)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].seq < rows[j].seq
	})
	cmts := make([]planning.Comment, 0, len(rows))
	for _, r := range rows {
		cmts = append(cmts, r.Comment)
	}
	return cmts, nil
}

func (repo *planningRepository) DeleteComment(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.comments[id]; !ok {
		return planning.ErrCommentNotFound
	}
	delete(repo.db.comments, id)
	return nil
}
