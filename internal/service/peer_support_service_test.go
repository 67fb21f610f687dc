package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/lock"
	"mindbridge-go/pkg/tasks"
)

type peerFixture struct {
	svc  *peerSupportService
	repo *stubPeerRepo
	pub  *recordingPublisher
}

func newPeerFixture() *peerFixture {
	f := &peerFixture{repo: newStubPeerRepo(), pub: &recordingPublisher{}}
	f.svc = newPeerSupportService(f.repo, nil, lock.NewLocalLocker(), f.pub)
	f.svc.now = func() time.Time { return apptToday }
	return f
}

func examPost() CreatePostRequest {
	return CreatePostRequest{
		Title:    "Finals week",
		Content:  "How do you all cope with three exams in two days?",
		Category: model.PostAcademicStress,
		Tags:     []string{" Exams ", ""},
	}
}

// publishedPost 发帖并由咨询师审核通过。
func (f *peerFixture) publishedPost(t *testing.T, req CreatePostRequest) *model.Post {
	t.Helper()
	ctx := context.Background()
	post, err := f.svc.CreatePost(ctx, student, req)
	require.NoError(t, err)
	post, err = f.svc.ModeratePost(ctx, counselor, post.ID, model.ModerationApproved, "")
	require.NoError(t, err)
	return post
}

func TestCreatePostStartsPending(t *testing.T) {
	f := newPeerFixture()
	ctx := context.Background()

	post, err := f.svc.CreatePost(ctx, student, examPost())
	require.NoError(t, err)
	assert.Equal(t, model.ModerationPending, post.Status)
	assert.Equal(t, []string{"exams"}, []string(post.Tags))
	assert.False(t, post.Flagged)
	assert.Empty(t, f.pub.kinds())

	// 未审核的帖子对其他学生不可见，作者本人可见
	_, err = f.svc.GetPost(ctx, student2, post.ID)
	assert.ErrorIs(t, err, ErrPostNotFound)
	own, err := f.svc.GetPost(ctx, student, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, own.Views)

	page, err := f.svc.ListPosts(ctx, student2, repository.PostFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Content)

	bad := examPost()
	bad.Category = "gossip"
	_, err = f.svc.CreatePost(ctx, student, bad)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	bad = examPost()
	bad.Content = "   "
	_, err = f.svc.CreatePost(ctx, student, bad)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCrisisPostIsFlaggedAndReported(t *testing.T) {
	f := newPeerFixture()
	req := examPost()
	req.Content = "Honestly I feel like I want to die after these results"

	post, err := f.svc.CreatePost(context.Background(), student, req)
	require.NoError(t, err)
	assert.True(t, post.Flagged)
	assert.Equal(t, model.ModerationPending, post.Status)

	require.Len(t, f.pub.tasks, 1)
	task := f.pub.tasks[0]
	assert.Equal(t, tasks.KindPeerContentFlagged, task.Kind)
	assert.Equal(t, post.ID, task.PostID)
	assert.Equal(t, uint(1), task.UserID)
	assert.Equal(t, string(model.RiskCritical), task.RiskLevel)

	flagged, err := f.svc.ListPosts(context.Background(), counselor, repository.PostFilter{Flagged: true}, 1, 10)
	require.NoError(t, err)
	require.Len(t, flagged.Content, 1)

	approved, err := f.svc.ModeratePost(context.Background(), counselor, post.ID, model.ModerationApproved, "reached out")
	require.NoError(t, err)
	assert.False(t, approved.Flagged)
	require.NotNil(t, approved.ModeratedBy)
	assert.Equal(t, uint(10), *approved.ModeratedBy)
	assert.Equal(t, "reached out", approved.ModerationNotes)
}

func TestModeratePostRequiresStaff(t *testing.T) {
	f := newPeerFixture()
	ctx := context.Background()
	post, err := f.svc.CreatePost(ctx, student, examPost())
	require.NoError(t, err)

	_, err = f.svc.ModeratePost(ctx, student, post.ID, model.ModerationApproved, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.ModeratePost(ctx, admin, post.ID, "deleted", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.ModeratePost(ctx, admin, 404, model.ModerationRejected, "")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestCommentsAndAnonymity(t *testing.T) {
	f := newPeerFixture()
	ctx := context.Background()
	req := examPost()
	req.IsAnonymous = true
	post := f.publishedPost(t, req)

	c, err := f.svc.AddComment(ctx, student2, post.ID, " Pomodoro helped me ", false)
	require.NoError(t, err)
	assert.Equal(t, model.ModerationApproved, c.Status)
	assert.Equal(t, "Pomodoro helped me", c.Content)

	crisis, err := f.svc.AddComment(ctx, student2, post.ID, "same, I want to end it all", true)
	require.NoError(t, err)
	assert.Equal(t, model.ModerationPending, crisis.Status)
	assert.Contains(t, f.pub.kinds(), tasks.KindPeerContentFlagged)

	// 其他学生看不到匿名作者，也看不到待审核评论
	viewed, err := f.svc.GetPost(ctx, Actor{UserID: 3, Role: model.RoleStudent}, post.ID)
	require.NoError(t, err)
	assert.Zero(t, viewed.AuthorID)
	require.Len(t, viewed.Comments, 1)
	assert.Equal(t, uint(2), viewed.Comments[0].AuthorID)

	// 评论者本人能看到自己待审核的评论
	mine, err := f.svc.GetPost(ctx, student2, post.ID)
	require.NoError(t, err)
	assert.Len(t, mine.Comments, 2)

	staff, err := f.svc.GetPost(ctx, counselor, post.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), staff.AuthorID)
	assert.Len(t, staff.Comments, 2)

	_, err = f.svc.ModerateComment(ctx, counselor, post.ID, crisis.ID, model.ModerationApproved)
	require.NoError(t, err)
	viewed, err = f.svc.GetPost(ctx, Actor{UserID: 3, Role: model.RoleStudent}, post.ID)
	require.NoError(t, err)
	require.Len(t, viewed.Comments, 2)
	assert.Zero(t, viewed.Comments[1].AuthorID)

	_, err = f.svc.ModerateComment(ctx, counselor, post.ID, crisis.ID, model.ModerationArchived)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.ModerateComment(ctx, counselor, post.ID, 404, model.ModerationRejected)
	assert.ErrorIs(t, err, ErrCommentNotFound)
}

func TestCommentOnUnpublishedPost(t *testing.T) {
	f := newPeerFixture()
	ctx := context.Background()
	post, err := f.svc.CreatePost(ctx, student, examPost())
	require.NoError(t, err)

	_, err = f.svc.AddComment(ctx, student, post.ID, "bump", false)
	assert.ErrorIs(t, err, ErrPostNotOpen)
	_, err = f.svc.AddComment(ctx, student2, post.ID, "hi", false)
	assert.ErrorIs(t, err, ErrPostNotFound)
	_, err = f.svc.AddComment(ctx, student, post.ID, " ", false)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLikePostOnce(t *testing.T) {
	f := newPeerFixture()
	ctx := context.Background()
	post := f.publishedPost(t, examPost())

	n, err := f.svc.LikePost(ctx, student2, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.svc.LikePost(ctx, student, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.svc.LikePost(ctx, student2, post.ID)
	assert.ErrorIs(t, err, ErrAlreadyLiked)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUserPostsHidesAnonymousFromOthers(t *testing.T) {
	f := newPeerFixture()
	ctx := context.Background()
	f.publishedPost(t, examPost())
	anon := examPost()
	anon.IsAnonymous = true
	f.publishedPost(t, anon)
	_, err := f.svc.CreatePost(ctx, student, examPost())
	require.NoError(t, err)

	own, err := f.svc.UserPosts(ctx, student, 1)
	require.NoError(t, err)
	assert.Len(t, own, 3)

	others, err := f.svc.UserPosts(ctx, student2, 1)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.False(t, others[0].IsAnonymous)
}

func TestSupportGroupMembership(t *testing.T) {
	f := newPeerFixture()
	ctx := context.Background()

	g, err := f.svc.CreateGroup(ctx, student, CreateGroupRequest{
		Name:        "First-year circle",
		Description: "Weekly check-in for first years",
		Category:    model.GroupFirstYear,
		MaxMembers:  2,
		Rules:       []string{"Be kind", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, g.MemberCount)
	assert.Equal(t, []string{"Be kind"}, []string(g.Rules))

	_, err = f.svc.JoinGroup(ctx, student, g.ID)
	assert.ErrorIs(t, err, ErrAlreadyMember)

	joined, err := f.svc.JoinGroup(ctx, student2, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, joined.MemberCount)

	_, err = f.svc.JoinGroup(ctx, Actor{UserID: 3, Role: model.RoleStudent}, g.ID)
	assert.ErrorIs(t, err, ErrGroupFull)

	require.NoError(t, f.svc.LeaveGroup(ctx, student2, g.ID))
	assert.ErrorIs(t, f.svc.LeaveGroup(ctx, student2, g.ID), ErrNotMember)
	_, err = f.svc.JoinGroup(ctx, Actor{UserID: 3, Role: model.RoleStudent}, g.ID)
	require.NoError(t, err)

	mine, err := f.svc.UserGroups(ctx, student, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	_, err = f.svc.UserGroups(ctx, student2, 1)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.JoinGroup(ctx, student, 404)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestPrivateGroupAndValidation(t *testing.T) {
	f := newPeerFixture()
	ctx := context.Background()

	g, err := f.svc.CreateGroup(ctx, counselor, CreateGroupRequest{
		Name:        "Grief support",
		Description: "Counselor-led group",
		Category:    model.GroupGeneral,
		IsPrivate:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, g.MaxMembers)

	_, err = f.svc.JoinGroup(ctx, student, g.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.JoinGroup(ctx, admin, g.ID)
	require.NoError(t, err)

	_, err = f.svc.CreateGroup(ctx, student, CreateGroupRequest{Name: "x", Description: "y", Category: "chess"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.CreateGroup(ctx, student, CreateGroupRequest{Name: "x", Description: "y", Category: model.GroupGeneral, MaxMembers: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	groups, err := f.svc.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestJoinGroupConcurrentRespectsCapacity(t *testing.T) {
	f := newPeerFixture()
	ctx := context.Background()
	g, err := f.svc.CreateGroup(ctx, counselor, CreateGroupRequest{
		Name: "Exam anxiety", Description: "Drop-in", Category: model.GroupAnxiety, MaxMembers: 5,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.JoinGroup(ctx, Actor{UserID: uint(100 + i), Role: model.RoleStudent}, g.ID)
		}(i)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
		} else {
			assert.ErrorIs(t, err, ErrGroupFull)
		}
	}
	assert.Equal(t, 4, joined)
	stored, err := f.repo.FindGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.MemberCount)
}
