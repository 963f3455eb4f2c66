package planning_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/calendar"
	"github.com/trezcool/planner/core/notification"
	"github.com/trezcool/planner/core/planning"
	"github.com/trezcool/planner/core/user"
	"github.com/trezcool/planner/storage/database/inmem"
	"github.com/trezcool/planner/storage/files"
)

const classID int64 = 7

type fixture struct {
	svc      *planning.Service
	notifSvc *notification.Service
	notifier *countingNotifier

	teacher  user.User // class member
	outsider user.User // teacher of another class
	pedago   user.User
	general  user.User
}

// countingNotifier forwards to the real dispatcher and can be told to fail.
type countingNotifier struct {
	mu    sync.Mutex
	next  planning.Notifier
	fail  bool
	kinds map[notification.Kind]int
}

func (n *countingNotifier) Notify(ctx context.Context, ids []string, kind notification.Kind, msg, planID string) error {
	n.mu.Lock()
	n.kinds[kind]++
	fail := n.fail
	n.mu.Unlock()
	if fail {
		return errors.New("dispatcher down")
	}
	return n.next.Notify(ctx, ids, kind, msg, planID)
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	planning.InitValidators(validate, translator)

	store, err := files.NewDiskStorage(t.TempDir())
	require.NoError(t, err)

	create := func(name string, role user.Role, classIDs ...int64) user.User {
		usr, err := usrRepo.CreateUser(ctx, user.User{
			Name:      name,
			Username:  strings.ToLower(name),
			IsActive:  true,
			Role:      role,
			ClassIDs:  classIDs,
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		return usr
	}

	f := &fixture{
		teacher:  create("Teacher", user.RoleTeacher, classID),
		outsider: create("Outsider", user.RoleTeacher, classID+1),
		pedago:   create("Pedago", user.RolePedagogicalAdmin),
		general:  create("General", user.RoleGeneralAdmin),
	}
	f.notifSvc = notification.NewService(inmemdb.NewNotificationRepository(db), nil, nil)
	f.notifier = &countingNotifier{next: f.notifSvc, kinds: make(map[notification.Kind]int)}
	f.svc = planning.NewService(planning.Deps{
		Repo:     inmemdb.NewPlanningRepository(db),
		Files:    store,
		Users:    user.NewService(usrRepo, validate),
		Notifier: f.notifier,
		Logger:   core.NopLogger{},
		Validate: validate,
	})
	return f
}

func (f *fixture) plan(t *testing.T, isoYear, isoWeek int) planning.Plan {
	t.Helper()
	p, _, err := f.svc.FindOrCreate(context.Background(), f.teacher, planning.Key{ClassID: classID, ISOYear: isoYear, ISOWeek: isoWeek})
	require.NoError(t, err)
	return p
}

func (f *fixture) notifications(t *testing.T, usr user.User) []notification.Notification {
	t.Helper()
	ns, err := f.notifSvc.Query(context.Background(), usr.ID, notification.QueryFilter{})
	require.NoError(t, err)
	return ns
}

func countKind(ns []notification.Notification, kind notification.Kind) int {
	var n int
	for _, x := range ns {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

func pdf(name string) planning.NewAttachment {
	return planning.NewAttachment{Name: name, MimeType: "application/pdf", Size: 8, Content: strings.NewReader("%PDF-1.4")}
}

func TestService_FindOrCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := planning.Key{ClassID: classID, ISOYear: 2025, ISOWeek: 18}

	p1, created, err := f.svc.FindOrCreate(ctx, f.teacher, key)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, planning.StatusPending, p1.Status)
	assert.Equal(t, f.teacher.ID, p1.CreatedBy)
	assert.Equal(t, key, p1.Key())

	p2, created, err := f.svc.FindOrCreate(ctx, f.pedago, key)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p1, p2)

	tests := []struct {
		name    string
		actor   user.User
		key     planning.Key
		wantErr error
	}{
		{"week 53 of a 52 week year", f.teacher, planning.Key{ClassID: classID, ISOYear: 2025, ISOWeek: 53}, calendar.ErrInvalidWeekNumber},
		{"week 0", f.teacher, planning.Key{ClassID: classID, ISOYear: 2025, ISOWeek: 0}, calendar.ErrInvalidWeekNumber},
		{"not a class member", f.outsider, key, planning.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.FindOrCreate(ctx, tt.actor, tt.key)
			assert.Equal(t, tt.wantErr, pkgerrors.Cause(err))
		})
	}

	t.Run("missing class", func(t *testing.T) {
		_, _, err := f.svc.FindOrCreate(ctx, f.general, planning.Key{ISOYear: 2025, ISOWeek: 18})
		assert.Error(t, err)
	})

	t.Run("week 53 of a 53 week year", func(t *testing.T) {
		p, created, err := f.svc.FindOrCreate(ctx, f.teacher, planning.Key{ClassID: classID, ISOYear: 2026, ISOWeek: 53})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 53, p.ISOWeek)
	})
}

func TestService_FindOrCreate_concurrent(t *testing.T) {
	f := setup(t)
	key := planning.Key{ClassID: classID, ISOYear: 2025, ISOWeek: 1}

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[string]bool)
		created int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			p, c, err := f.svc.FindOrCreate(context.Background(), f.teacher, key)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			ids[p.ID] = true
			if c {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
}

func TestService_Transition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.plan(t, 2025, 18)

	_, err := f.svc.Approve(ctx, f.teacher, p.ID)
	assert.Equal(t, planning.ErrUnauthorized, err)

	d, err := f.svc.Approve(ctx, f.pedago, p.ID)
	require.NoError(t, err)
	assert.Equal(t, planning.StatusApproved, d.Status)
	assert.False(t, d.LastModifiedAt.Before(p.LastModifiedAt))

	_, err = f.svc.Approve(ctx, f.general, p.ID)
	assert.Equal(t, planning.ErrNoOpTransition, pkgerrors.Cause(err))

	assert.Equal(t, 1, countKind(f.notifications(t, f.teacher), notification.KindApproved))
	assert.Equal(t, 0, countKind(f.notifications(t, f.pedago), notification.KindApproved), "actor is not notified")
	assert.Equal(t, 0, countKind(f.notifications(t, f.outsider), notification.KindApproved))

	// no terminal state
	d, err = f.svc.Reject(ctx, f.general, p.ID)
	require.NoError(t, err)
	assert.Equal(t, planning.StatusRejected, d.Status)
	assert.Equal(t, 1, countKind(f.notifications(t, f.teacher), notification.KindRejected))

	_, err = f.svc.Transition(ctx, f.general, p.ID, planning.Action("archive"))
	assert.Equal(t, planning.ErrInvalidAction, err)

	_, err = f.svc.Approve(ctx, f.general, "missing")
	assert.Equal(t, planning.ErrPlanNotFound, pkgerrors.Cause(err))
}

func TestService_notificationFailuresAreNotPropagated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.plan(t, 2025, 18)
	f.notifier.fail = true

	d, err := f.svc.Approve(ctx, f.pedago, p.ID)
	require.NoError(t, err)
	assert.Equal(t, planning.StatusApproved, d.Status)

	_, err = f.svc.AddComment(ctx, f.teacher, p.ID, "hello")
	require.NoError(t, err)
	assert.Empty(t, f.notifications(t, f.teacher))
}

func TestService_Delete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.plan(t, 2025, 18)

	_, err := f.svc.AddAttachment(ctx, f.teacher, p.ID, pdf("plan.pdf"))
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, f.teacher, p.ID, "draft")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.pedago, p.ID)
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, f.pedago, p.ID)
	assert.Equal(t, planning.ErrUnauthorized, err)

	key, err := f.svc.Delete(ctx, f.general, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Key(), key)

	_, err = f.svc.Delete(ctx, f.general, p.ID)
	assert.Equal(t, planning.ErrPlanNotFound, pkgerrors.Cause(err))
	_, err = f.svc.Get(ctx, p.ID)
	assert.Equal(t, planning.ErrPlanNotFound, pkgerrors.Cause(err))

	fresh, created, err := f.svc.FindOrCreate(ctx, f.teacher, key)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, p.ID, fresh.ID)
	assert.Equal(t, planning.StatusPending, fresh.Status)

	d, err := f.svc.GetDetail(ctx, f.teacher, fresh.ID)
	require.NoError(t, err)
	assert.Empty(t, d.Attachments)
	assert.Empty(t, d.Comments)

	for _, n := range f.notifications(t, f.teacher) {
		assert.Empty(t, n.RelatedPlanID, "notifications outlive the deleted planning")
	}
}

func TestService_attachments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.plan(t, 2025, 18)

	tests := []struct {
		name    string
		actor   user.User
		att     planning.NewAttachment
		wantErr error
	}{
		{
			name:    "exe rejected",
			actor:   f.teacher,
			att:     planning.NewAttachment{Name: "plan.exe", MimeType: "application/x-msdownload", Content: strings.NewReader("MZ")},
			wantErr: planning.ErrInvalidAttachmentType,
		},
		{name: "pdf accepted", actor: f.teacher, att: pdf("plan.pdf")},
		{
			name:  "docx by extension",
			actor: f.teacher,
			att:   planning.NewAttachment{Name: "Plan.DOCX", MimeType: "application/octet-stream", Content: strings.NewReader("PK")},
		},
		{
			name:  "odt by mime type",
			actor: f.pedago,
			att: planning.NewAttachment{
				Name: "upload", MimeType: "application/vnd.oasis.opendocument.text; charset=binary", Content: strings.NewReader("PK"),
			},
		},
		{name: "not a class member", actor: f.outsider, att: pdf("other.pdf"), wantErr: planning.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddAttachment(ctx, tt.actor, p.ID, tt.att)
			assert.Equal(t, tt.wantErr, pkgerrors.Cause(err))
		})
	}

	_, err := f.svc.AddAttachment(ctx, f.teacher, "missing", pdf("plan.pdf"))
	assert.Equal(t, planning.ErrPlanNotFound, pkgerrors.Cause(err))

	d, err := f.svc.GetDetail(ctx, f.teacher, p.ID)
	require.NoError(t, err)
	require.Len(t, d.Attachments, 3)
	assert.Equal(t, "plan.pdf", d.Attachments[0].OriginalName)
	assert.Equal(t, "Plan.DOCX", d.Attachments[1].OriginalName)

	// the teacher is not notified of their own uploads, moderators are
	assert.Equal(t, 1, countKind(f.notifications(t, f.teacher), notification.KindAttachmentAdded))
	assert.Equal(t, 2, countKind(f.notifications(t, f.pedago), notification.KindAttachmentAdded))
	assert.Equal(t, 3, countKind(f.notifications(t, f.general), notification.KindAttachmentAdded))

	att, rc, err := f.svc.OpenAttachment(ctx, f.general, d.Attachments[0].ID)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.4", string(content))
	assert.Equal(t, "application/pdf", att.MimeType)

	_, _, err = f.svc.OpenAttachment(ctx, f.outsider, att.ID)
	assert.Equal(t, planning.ErrUnauthorized, err)

	_, err = f.svc.RemoveAttachment(ctx, f.outsider, att.ID)
	assert.Equal(t, planning.ErrUnauthorized, err)

	d, err = f.svc.RemoveAttachment(ctx, f.pedago, att.ID)
	require.NoError(t, err)
	assert.Len(t, d.Attachments, 2)
	assert.Equal(t, 1, countKind(f.notifications(t, f.teacher), notification.KindAttachmentDeleted))

	_, err = f.svc.RemoveAttachment(ctx, f.pedago, att.ID)
	assert.Equal(t, planning.ErrAttachmentNotFound, pkgerrors.Cause(err))
	_, _, err = f.svc.OpenAttachment(ctx, f.pedago, att.ID)
	assert.Equal(t, planning.ErrAttachmentNotFound, pkgerrors.Cause(err))
}

func TestService_comments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.plan(t, 2025, 18)

	_, err := f.svc.AddComment(ctx, f.teacher, p.ID, "  \n\t ")
	assert.Equal(t, planning.ErrEmptyComment, err)

	_, err = f.svc.AddComment(ctx, f.teacher, p.ID, " first ")
	require.NoError(t, err)
	d, err := f.svc.AddComment(ctx, f.pedago, p.ID, "second")
	require.NoError(t, err)
	require.Len(t, d.Comments, 2)
	assert.Equal(t, "first", d.Comments[0].Text)
	assert.Equal(t, "Teacher", d.Comments[0].AuthorName)
	assert.Equal(t, "second", d.Comments[1].Text)

	assert.Equal(t, 1, countKind(f.notifications(t, f.teacher), notification.KindComment))
	assert.Equal(t, 1, countKind(f.notifications(t, f.pedago), notification.KindComment))

	// non-author, non-moderator
	mod := d.Comments[1]
	_, err = f.svc.RemoveComment(ctx, f.teacher, mod.ID)
	assert.Equal(t, planning.ErrUnauthorized, err)
	d, err = f.svc.GetDetail(ctx, f.teacher, p.ID)
	require.NoError(t, err)
	assert.Len(t, d.Comments, 2)

	// moderator deletes someone else's comment
	d, err = f.svc.RemoveComment(ctx, f.general, d.Comments[0].ID)
	require.NoError(t, err)
	require.Len(t, d.Comments, 1)
	assert.Equal(t, 1, countKind(f.notifications(t, f.teacher), notification.KindCommentDeleted))

	// author deletes their own comment
	d, err = f.svc.RemoveComment(ctx, f.pedago, mod.ID)
	require.NoError(t, err)
	assert.Empty(t, d.Comments)

	_, err = f.svc.RemoveComment(ctx, f.pedago, mod.ID)
	assert.Equal(t, planning.ErrCommentNotFound, pkgerrors.Cause(err))
}

func TestService_MonthOverview(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.plan(t, 2025, 22)
	_, err := f.svc.AddComment(ctx, f.teacher, p.ID, "ok")
	require.NoError(t, err)

	weeks, err := f.svc.MonthOverview(ctx, f.teacher, classID, 2025, time.May)
	require.NoError(t, err)
	require.Len(t, weeks, 5)
	for _, w := range weeks[:4] {
		assert.Nil(t, w.Planning)
	}
	require.NotNil(t, weeks[4].Planning)
	assert.Equal(t, p.ID, weeks[4].Planning.PlanID)
	assert.Equal(t, 1, weeks[4].Planning.CommentCount)
	assert.Equal(t, 0, weeks[4].Planning.AttachmentCount)

	// the plan of W22 also shows on June
	weeks, err = f.svc.MonthOverview(ctx, f.teacher, classID, 2025, time.June)
	require.NoError(t, err)
	require.NotNil(t, weeks[0].Planning)
	assert.Equal(t, 22, weeks[0].ISOWeek)

	_, err = f.svc.MonthOverview(ctx, f.outsider, classID, 2025, time.May)
	assert.Equal(t, planning.ErrUnauthorized, err)

	weeks, err = f.svc.MonthOverview(ctx, f.outsider, 0, 2025, time.May)
	require.NoError(t, err)
	assert.Len(t, weeks, 5)

	_, err = f.svc.MonthOverview(ctx, f.teacher, classID, 2025, 13)
	assert.Equal(t, calendar.ErrInvalidMonth, err)
}
