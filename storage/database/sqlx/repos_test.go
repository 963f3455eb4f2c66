package sqlxrepos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/planner/core/notification"
	"github.com/trezcool/planner/core/planning"
	"github.com/trezcool/planner/core/user"
	"github.com/trezcool/planner/tests"
)

func TestUserRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)

	teacher := testutil.CreateUser(t, repo, "Teacher", "teacher", "teacher@test.cd", "", user.RoleTeacher, []int64{1, 2}, true)
	testutil.CreateUser(t, repo, "Other", "other", "", "", user.RoleTeacher, []int64{3}, true)
	admin := testutil.CreateUser(t, repo, "Admin", "admin", "", "", user.RoleGeneralAdmin, nil, true)
	testutil.CreateUser(t, repo, "Gone", "gone", "", "", user.RoleTeacher, []int64{1}, false)

	assert.Equal(t, user.ErrUserExists, repo.CheckUsernameUniqueness(ctx, "teacher", ""))
	assert.Equal(t, user.ErrUserExists, repo.CheckUsernameUniqueness(ctx, "", "teacher@test.cd"))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "teacher", "", teacher.ID))

	got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "teacher@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, got.ID)
	assert.Equal(t, []int64{1, 2}, got.ClassIDs)

	_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
	assert.Equal(t, user.ErrNotFound, err)

	teachers, err := repo.QueryUsers(ctx, user.QueryFilter{Roles: []user.Role{user.RoleTeacher}, ClassID: 1, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, teacher.ID, teachers[0].ID)

	mods, err := repo.QueryUsers(ctx, user.QueryFilter{Roles: []user.Role{user.RolePedagogicalAdmin, user.RoleGeneralAdmin}})
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, admin.ID, mods[0].ID)

	got.LastLogin = time.Now().UTC()
	_, err = repo.UpdateUser(ctx, got)
	require.NoError(t, err)
}

func TestPlanningRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, NewUserRepository(db), "Teacher", "teacher", "", "", user.RoleTeacher, []int64{1}, true)
	repo := NewPlanningRepository(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	newPlan := planning.Plan{
		ClassID: 1, ISOYear: 2025, ISOWeek: 18, Status: planning.StatusPending,
		CreatedBy: usr.ID, CreatedAt: now, LastModifiedAt: now,
	}

	// concurrent find-or-create yields a single row
	const n = 10
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
			p, c, err := repo.FindOrCreatePlan(ctx, newPlan)
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
	require.Len(t, ids, 1)
	assert.Equal(t, 1, created)

	var planID string
	for id := range ids {
		planID = id
	}

	p, err := repo.UpdatePlanStatus(ctx, planID, planning.StatusApproved, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, planning.StatusApproved, p.Status)
	_, err = repo.UpdatePlanStatus(ctx, planID, planning.StatusApproved, now)
	assert.Equal(t, planning.ErrNoOpTransition, err)
	_, err = repo.UpdatePlanStatus(ctx, "9b2b8e1e-8a7c-4c3e-9d8e-0c1f2a3b4c5d", planning.StatusApproved, now)
	assert.Equal(t, planning.ErrPlanNotFound, err)

	att, err := repo.CreateAttachment(ctx, planning.Attachment{
		PlanID: planID, OriginalName: "plan.pdf", StorageRef: "ref.pdf", MimeType: "application/pdf", UploadedBy: usr.ID, UploadedAt: now,
	})
	require.NoError(t, err)
	_, err = repo.CreateComment(ctx, planning.Comment{PlanID: planID, AuthorID: usr.ID, AuthorName: usr.Name, Text: "first", CreatedAt: now})
	require.NoError(t, err)
	_, err = repo.CreateComment(ctx, planning.Comment{PlanID: planID, AuthorID: usr.ID, AuthorName: usr.Name, Text: "second", CreatedAt: now})
	require.NoError(t, err)

	cmts, err := repo.QueryComments(ctx, planID)
	require.NoError(t, err)
	require.Len(t, cmts, 2)
	assert.Equal(t, "first", cmts[0].Text)

	sums, err := repo.QuerySummaries(ctx, 1, []int64{planning.WeekCode(2025, 18), planning.WeekCode(2025, 19)})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].AttachmentCount)
	assert.Equal(t, 2, sums[0].CommentCount)

	notifRepo := NewNotificationRepository(db)
	require.NoError(t, notifRepo.CreateNotifications(ctx, []notification.Notification{
		{RecipientID: usr.ID, Kind: notification.KindApproved, Message: "approved", RelatedPlanID: planID, CreatedAt: now},
	}))

	deleted, atts, err := repo.DeletePlan(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, planID, deleted.ID)
	require.Len(t, atts, 1)
	assert.Equal(t, att.StorageRef, atts[0].StorageRef)

	_, err = repo.GetAttachment(ctx, att.ID)
	assert.Equal(t, planning.ErrAttachmentNotFound, err)
	_, _, err = repo.DeletePlan(ctx, planID)
	assert.Equal(t, planning.ErrPlanNotFound, err)

	ns, err := notifRepo.QueryNotifications(ctx, usr.ID, notification.QueryFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Empty(t, ns[0].RelatedPlanID)

	fresh, c, err := repo.FindOrCreatePlan(ctx, newPlan)
	require.NoError(t, err)
	assert.True(t, c)
	assert.NotEqual(t, planID, fresh.ID)
}

func TestNotificationRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	usrRepo := NewUserRepository(db)
	u1 := testutil.CreateUser(t, usrRepo, "One", "one", "", "", user.RoleTeacher, nil, true)
	u2 := testutil.CreateUser(t, usrRepo, "Two", "two", "", "", user.RoleTeacher, nil, true)
	repo := NewNotificationRepository(db)
	now := time.Now().UTC()

	ns := []notification.Notification{
		{RecipientID: u1.ID, Kind: notification.KindComment, Message: "old", CreatedAt: now.Add(-time.Hour)},
		{RecipientID: u1.ID, Kind: notification.KindComment, Message: "new", CreatedAt: now},
		{RecipientID: u2.ID, Kind: notification.KindComment, Message: "other", CreatedAt: now},
	}
	require.NoError(t, repo.CreateNotifications(ctx, ns))

	got, err := repo.QueryNotifications(ctx, u1.ID, notification.QueryFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Message)

	assert.Equal(t, notification.ErrNotFound, repo.MarkRead(ctx, u2.ID, ns[0].ID))
	require.NoError(t, repo.MarkRead(ctx, u1.ID, ns[0].ID))

	count, err := repo.CountUnread(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	changed, err := repo.MarkAllRead(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	assert.Equal(t, notification.ErrNotFound, repo.DeleteNotification(ctx, u2.ID, ns[1].ID))
	require.NoError(t, repo.DeleteNotification(ctx, u1.ID, ns[1].ID))
	assert.Equal(t, notification.ErrNotFound, repo.DeleteNotification(ctx, u1.ID, ns[1].ID))
}
