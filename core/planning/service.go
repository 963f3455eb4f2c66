package planning

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/calendar"
	"github.com/trezcool/planner/core/notification"
	"github.com/trezcool/planner/core/user"
)

var nowFunc = func() time.Time { return time.Now().UTC() } // mockable

type (
	Repository interface {
		// FindOrCreatePlan inserts p unless a plan already exists for its key.
		// It returns the stored plan and whether it was created by this call.
		FindOrCreatePlan(ctx context.Context, p Plan) (Plan, bool, error)
		GetPlan(ctx context.Context, id string) (Plan, error)
		// QuerySummaries returns the class's plans for the given week codes (see WeekCode).
		QuerySummaries(ctx context.Context, classID int64, weekCodes []int64) ([]Summary, error)
		// UpdatePlanStatus sets the status only if it differs from the current one.
		// It fails with ErrPlanNotFound or ErrNoOpTransition.
		UpdatePlanStatus(ctx context.Context, id string, status Status, at time.Time) (Plan, error)
		TouchPlan(ctx context.Context, id string, at time.Time) error
		// DeletePlan deletes the plan with its attachments and comments, returning what was deleted.
		DeletePlan(ctx context.Context, id string) (Plan, []Attachment, error)

		CreateAttachment(ctx context.Context, a Attachment) (Attachment, error)
		GetAttachment(ctx context.Context, id string) (Attachment, error)
		QueryAttachments(ctx context.Context, planID string) ([]Attachment, error)
		DeleteAttachment(ctx context.Context, id string) error

		CreateComment(ctx context.Context, c Comment) (Comment, error)
		GetComment(ctx context.Context, id string) (Comment, error)
		QueryComments(ctx context.Context, planID string) ([]Comment, error)
		DeleteComment(ctx context.Context, id string) error
	}

	// Directory looks up the users to notify about a plan.
	Directory interface {
		QueryClassTeachers(ctx context.Context, classID int64) ([]user.User, error)
		QueryModerators(ctx context.Context) ([]user.User, error)
	}

	Notifier interface {
		Notify(ctx context.Context, recipientIDs []string, kind notification.Kind, message, relatedPlanID string) error
	}

	// Recorder receives planning events for metrics.
	Recorder interface {
		PlanCreated()
		PlanTransitioned(to Status)
		PlanReset()
		NotificationFailed(kind notification.Kind)
	}

	Deps struct {
		Repo     Repository
		Files    core.FileStorage
		Users    Directory
		Notifier Notifier
		Logger   core.Logger
		Metrics  Recorder // optional
		Validate *validator.Validate
	}

	Service struct {
		repo     Repository
		files    core.FileStorage
		users    Directory
		notifier Notifier
		logger   core.Logger
		metrics  Recorder
		validate *validator.Validate
	}
)

type nopRecorder struct{}

func (nopRecorder) PlanCreated()                         {}
func (nopRecorder) PlanTransitioned(Status)              {}
func (nopRecorder) PlanReset()                           {}
func (nopRecorder) NotificationFailed(notification.Kind) {}

func NewService(deps Deps) *Service {
	svc := &Service{
		repo:     deps.Repo,
		files:    deps.Files,
		users:    deps.Users,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		validate: deps.Validate,
	}
	if svc.metrics == nil {
		svc.metrics = nopRecorder{}
	}
	if svc.logger == nil {
		svc.logger = core.NopLogger{}
	}
	return svc
}

// FindOrCreate returns the plan of the class for the ISO week, creating a pending one if none exists.
func (svc *Service) FindOrCreate(ctx context.Context, actor user.User, key Key) (Plan, bool, error) {
	if _, err := calendar.Resolve(key.ISOYear, key.ISOWeek); err != nil {
		return Plan{}, false, err
	}
	if err := svc.validate.Struct(key); err != nil {
		return Plan{}, false, err
	}
	if !actor.CanAccessClass(key.ClassID) {
		return Plan{}, false, ErrUnauthorized
	}

	now := nowFunc()
	plan, created, err := svc.repo.FindOrCreatePlan(ctx, Plan{
		ClassID:        key.ClassID,
		ISOYear:        key.ISOYear,
		ISOWeek:        key.ISOWeek,
		Status:         StatusPending,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		LastModifiedAt: now,
	})
	if err != nil {
		return Plan{}, false, errors.Wrap(err, "finding or creating planning")
	}
	if created {
		svc.metrics.PlanCreated()
	}
	return plan, created, nil
}

// Get is the unscoped store lookup: it does not check the caller's class access.
// Handlers serving users go through GetDetail.
func (svc *Service) Get(ctx context.Context, id string) (Plan, error) {
	return svc.repo.GetPlan(ctx, id)
}

func (svc *Service) getAccessible(ctx context.Context, actor user.User, id string) (Plan, error) {
	plan, err := svc.repo.GetPlan(ctx, id)
	if err != nil {
		return Plan{}, err
	}
	if !actor.CanAccessClass(plan.ClassID) {
		return Plan{}, ErrUnauthorized
	}
	return plan, nil
}

func (svc *Service) detail(ctx context.Context, plan Plan) (Detail, error) {
	atts, err := svc.repo.QueryAttachments(ctx, plan.ID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "querying attachments")
	}
	cmts, err := svc.repo.QueryComments(ctx, plan.ID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "querying comments")
	}
	if atts == nil {
		atts = []Attachment{}
	}
	if cmts == nil {
		cmts = []Comment{}
	}
	return Detail{Plan: plan, Attachments: atts, Comments: cmts}, nil
}

func (svc *Service) reload(ctx context.Context, id string) (Detail, error) {
	plan, err := svc.repo.GetPlan(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return svc.detail(ctx, plan)
}

// GetDetail returns the plan with its attachments and comments.
func (svc *Service) GetDetail(ctx context.Context, actor user.User, id string) (Detail, error) {
	plan, err := svc.getAccessible(ctx, actor, id)
	if err != nil {
		return Detail{}, err
	}
	return svc.detail(ctx, plan)
}

// MonthOverview lists the ISO weeks touching the month; when classID is set, each week carries the
// class's plan summary, if one exists.
func (svc *Service) MonthOverview(ctx context.Context, actor user.User, classID int64, year int, month time.Month) ([]WeekOverview, error) {
	weeks, err := calendar.WeeksForMonth(year, month)
	if err != nil {
		return nil, err
	}
	overview := make([]WeekOverview, len(weeks))
	for i, w := range weeks {
		overview[i] = WeekOverview{WeekInfo: w}
	}
	if classID == 0 {
		return overview, nil
	}
	if !actor.CanAccessClass(classID) {
		return nil, ErrUnauthorized
	}

	codes := make([]int64, len(weeks))
	for i, w := range weeks {
		codes[i] = WeekCode(w.ISOYear, w.ISOWeek)
	}
	sums, err := svc.repo.QuerySummaries(ctx, classID, codes)
	if err != nil {
		return nil, errors.Wrap(err, "querying planning summaries")
	}
	byCode := make(map[int64]Summary, len(sums))
	for _, s := range sums {
		byCode[WeekCode(s.ISOYear, s.ISOWeek)] = s
	}
	for i := range overview {
		if s, ok := byCode[codes[i]]; ok {
			s := s
			overview[i].Planning = &s
		}
	}
	return overview, nil
}

// Delete removes the plan along with its attachments and comments and returns its key.
// A later FindOrCreate on the same key yields a fresh pending plan.
func (svc *Service) Delete(ctx context.Context, actor user.User, id string) (Key, error) {
	if !actor.Role.CanDeletePlan() {
		return Key{}, ErrUnauthorized
	}
	plan, atts, err := svc.repo.DeletePlan(ctx, id)
	if err != nil {
		return Key{}, err
	}
	for _, att := range atts {
		svc.deleteFile(ctx, att)
	}
	svc.metrics.PlanReset()
	svc.logger.Info(fmt.Sprintf("planning %s reset (class %d, %d-W%02d)", plan.ID, plan.ClassID, plan.ISOYear, plan.ISOWeek), actor)
	return plan.Key(), nil
}

// Transition applies a moderation action.
func (svc *Service) Transition(ctx context.Context, actor user.User, id string, action Action) (Detail, error) {
	status, ok := action.Target()
	if !ok {
		return Detail{}, ErrInvalidAction
	}
	if !actor.Role.CanModerate() {
		return Detail{}, ErrUnauthorized
	}

	plan, err := svc.repo.UpdatePlanStatus(ctx, id, status, nowFunc())
	if err != nil {
		return Detail{}, err
	}
	svc.metrics.PlanTransitioned(status)

	kind, verb := notification.KindApproved, "approved"
	if status == StatusRejected {
		kind, verb = notification.KindRejected, "rejected"
	}
	svc.notify(ctx, actor, plan, kind, fmt.Sprintf("%s %s by %s", describe(plan), verb, actor.Name), false)

	return svc.detail(ctx, plan)
}

func (svc *Service) Approve(ctx context.Context, actor user.User, id string) (Detail, error) {
	return svc.Transition(ctx, actor, id, ActionApprove)
}

func (svc *Service) Reject(ctx context.Context, actor user.User, id string) (Detail, error) {
	return svc.Transition(ctx, actor, id, ActionReject)
}

func (svc *Service) AddAttachment(ctx context.Context, actor user.User, planID string, na NewAttachment) (Detail, error) {
	na.Clean()
	if !na.Allowed() {
		return Detail{}, ErrInvalidAttachmentType
	}
	plan, err := svc.getAccessible(ctx, actor, planID)
	if err != nil {
		return Detail{}, err
	}

	ref, err := svc.files.Save(ctx, na.Name, na.Content)
	if err != nil {
		return Detail{}, errors.Wrap(err, "saving attachment file")
	}
	now := nowFunc()
	att, err := svc.repo.CreateAttachment(ctx, Attachment{
		PlanID:       plan.ID,
		OriginalName: na.Name,
		StorageRef:   ref,
		MimeType:     na.MimeType,
		Size:         na.Size,
		UploadedBy:   actor.ID,
		UploadedAt:   now,
	})
	if err != nil {
		svc.deleteFile(ctx, Attachment{StorageRef: ref, OriginalName: na.Name})
		return Detail{}, errors.Wrap(err, "creating attachment")
	}
	svc.touch(ctx, plan.ID, now)

	svc.notify(ctx, actor, plan, notification.KindAttachmentAdded,
		fmt.Sprintf("%s added %q to %s", actor.Name, att.OriginalName, describe(plan)), true)

	return svc.reload(ctx, plan.ID)
}

// OpenAttachment returns the attachment and its content; callers must close the reader.
func (svc *Service) OpenAttachment(ctx context.Context, actor user.User, id string) (Attachment, io.ReadCloser, error) {
	att, err := svc.repo.GetAttachment(ctx, id)
	if err != nil {
		return Attachment{}, nil, err
	}
	if _, err = svc.getAccessible(ctx, actor, att.PlanID); err != nil {
		return Attachment{}, nil, err
	}
	rc, err := svc.files.Open(ctx, att.StorageRef)
	if err != nil {
		if errors.Cause(err) == core.ErrFileNotFound {
			return Attachment{}, nil, ErrAttachmentNotFound
		}
		return Attachment{}, nil, errors.Wrap(err, "opening attachment file")
	}
	return att, rc, nil
}

func (svc *Service) RemoveAttachment(ctx context.Context, actor user.User, id string) (Detail, error) {
	att, err := svc.repo.GetAttachment(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	plan, err := svc.getAccessible(ctx, actor, att.PlanID)
	if err != nil {
		return Detail{}, err
	}
	if err = svc.repo.DeleteAttachment(ctx, att.ID); err != nil {
		return Detail{}, err
	}
	svc.deleteFile(ctx, att)
	svc.touch(ctx, plan.ID, nowFunc())

	svc.notify(ctx, actor, plan, notification.KindAttachmentDeleted,
		fmt.Sprintf("%s removed %q from %s", actor.Name, att.OriginalName, describe(plan)), true)

	return svc.reload(ctx, plan.ID)
}

func (svc *Service) AddComment(ctx context.Context, actor user.User, planID, text string) (Detail, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Detail{}, ErrEmptyComment
	}
	plan, err := svc.getAccessible(ctx, actor, planID)
	if err != nil {
		return Detail{}, err
	}

	now := nowFunc()
	if _, err = svc.repo.CreateComment(ctx, Comment{
		PlanID:     plan.ID,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		Text:       text,
		CreatedAt:  now,
	}); err != nil {
		return Detail{}, errors.Wrap(err, "creating comment")
	}
	svc.touch(ctx, plan.ID, now)

	svc.notify(ctx, actor, plan, notification.KindComment,
		fmt.Sprintf("%s commented on %s", actor.Name, describe(plan)), true)

	return svc.reload(ctx, plan.ID)
}

// RemoveComment deletes a comment; only its author or a moderator may do so.
func (svc *Service) RemoveComment(ctx context.Context, actor user.User, id string) (Detail, error) {
	cmt, err := svc.repo.GetComment(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if cmt.AuthorID != actor.ID && !actor.Role.CanModerate() {
		return Detail{}, ErrUnauthorized
	}
	plan, err := svc.repo.GetPlan(ctx, cmt.PlanID)
	if err != nil {
		return Detail{}, err
	}
	if err = svc.repo.DeleteComment(ctx, cmt.ID); err != nil {
		return Detail{}, err
	}
	svc.touch(ctx, plan.ID, nowFunc())

	svc.notify(ctx, actor, plan, notification.KindCommentDeleted,
		fmt.Sprintf("%s deleted a comment on %s", actor.Name, describe(plan)), true)

	return svc.reload(ctx, plan.ID)
}

func (svc *Service) touch(ctx context.Context, id string, at time.Time) {
	if err := svc.repo.TouchPlan(ctx, id, at); err != nil {
		svc.logger.Warn(fmt.Sprintf("touching planning %s: %v", id, err), err)
	}
}

func (svc *Service) deleteFile(ctx context.Context, att Attachment) {
	if err := svc.files.Delete(ctx, att.StorageRef); err != nil && errors.Cause(err) != core.ErrFileNotFound {
		svc.logger.Warn(fmt.Sprintf("deleting attachment file %q: %v", att.StorageRef, err), err)
	}
}

// stakeholders returns the class teachers and the plan creator (plus every moderator when
// withModerators is set), without the actor.
func (svc *Service) stakeholders(ctx context.Context, actor user.User, plan Plan, withModerators bool) ([]string, error) {
	teachers, err := svc.users.QueryClassTeachers(ctx, plan.ClassID)
	if err != nil {
		return nil, errors.Wrap(err, "querying class teachers")
	}
	users := teachers
	if withModerators {
		mods, err := svc.users.QueryModerators(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "querying moderators")
		}
		users = append(users, mods...)
	}

	seen := map[string]bool{actor.ID: true}
	ids := make([]string, 0, len(users)+1)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, u := range users {
		add(u.ID)
	}
	add(plan.CreatedBy)
	return ids, nil
}

// notify never fails: delivery errors are logged and counted.
func (svc *Service) notify(ctx context.Context, actor user.User, plan Plan, kind notification.Kind, msg string, withModerators bool) {
	ids, err := svc.stakeholders(ctx, actor, plan, withModerators)
	if err == nil {
		err = svc.notifier.Notify(ctx, ids, kind, msg, plan.ID)
	}
	if err != nil {
		err = errors.Wrapf(ErrNotificationDelivery, "%s on planning %s: %v", kind, plan.ID, err)
		svc.logger.Error(err.Error(), err, actor)
		svc.metrics.NotificationFailed(kind)
	}
}

func describe(p Plan) string {
	return fmt.Sprintf("the planning of class %d for week %d-W%02d", p.ClassID, p.ISOYear, p.ISOWeek)
}
