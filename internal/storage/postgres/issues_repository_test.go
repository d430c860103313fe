package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trackline/server/internal/domain/ids"
	"github.com/trackline/server/internal/domain/issues"
	"github.com/trackline/server/internal/storage"
)

func strPtr(value string) *string {
	return &value
}

func TestIssueRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	created, err := repo.Issues().Create(ctx, issues.CreateInput{
		Title:       "Broken login button",
		Description: "Clicking login does nothing",
		Status:      string(issues.StatusOpen),
		ProjectID:   "web-frontend",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.True(t, ids.IsULID(created.ULID))
	require.Equal(t, issues.StatusOpen, created.Status)
	require.False(t, created.CreatedAt.IsZero())

	fetched, err := repo.Issues().GetByULID(ctx, created.ULID)
	require.NoError(t, err)
	require.Equal(t, created.ULID, fetched.ULID)
	require.Equal(t, "Broken login button", fetched.Title)
	require.Equal(t, "Clicking login does nothing", fetched.Description)
	require.Equal(t, "web-frontend", fetched.ProjectID)
}

func TestIssueRepositoryGetMissing(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	_, err = repo.Issues().GetByULID(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.ErrorIs(t, err, issues.ErrNotFound)
}

func TestIssueRepositoryListByProject(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	for _, in := range []issues.CreateInput{
		{Title: "first", Status: "open", ProjectID: "alpha"},
		{Title: "second", Status: "open", ProjectID: "alpha"},
		{Title: "other project", Status: "open", ProjectID: "beta"},
	} {
		_, err := repo.Issues().Create(ctx, in)
		require.NoError(t, err)
	}

	all, err := repo.Issues().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "first", all[0].Title)
	require.Equal(t, "second", all[1].Title)

	alpha, err := repo.Issues().ListByProject(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, alpha, 2)

	missing, err := repo.Issues().ListByProject(ctx, "nope")
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestIssueRepositoryUpdatePartial(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	created, err := repo.Issues().Create(ctx, issues.CreateInput{
		Title:       "typo in docs",
		Description: "original",
		Status:      "open",
		ProjectID:   "docs",
	})
	require.NoError(t, err)

	err = repo.Issues().Update(ctx, created.ULID, issues.UpdateInput{
		Status: strPtr(string(issues.StatusResolved)),
	})
	require.NoError(t, err)

	updated, err := repo.Issues().GetByULID(ctx, created.ULID)
	require.NoError(t, err)
	require.Equal(t, issues.StatusResolved, updated.Status)
	require.Equal(t, "typo in docs", updated.Title)
	require.Equal(t, "original", updated.Description)
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
}

func TestIssueRepositoryUpdateMissingIsSilent(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	err = repo.Issues().Update(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", issues.UpdateInput{
		Title: strPtr("never lands"),
	})
	require.NoError(t, err)
}

func TestIssueRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	created, err := repo.Issues().Create(ctx, issues.CreateInput{
		Title: "to be removed", Status: "open", ProjectID: "alpha",
	})
	require.NoError(t, err)

	affected, err := repo.Issues().Delete(ctx, created.ULID)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	affected, err = repo.Issues().Delete(ctx, created.ULID)
	require.NoError(t, err)
	require.Zero(t, affected)

	_, err = repo.Issues().GetByULID(ctx, created.ULID)
	require.ErrorIs(t, err, issues.ErrNotFound)
}

func TestIssueRepositoryComments(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	created, err := repo.Issues().Create(ctx, issues.CreateInput{
		Title: "needs discussion", Status: "open", ProjectID: "alpha",
	})
	require.NoError(t, err)

	comment, err := repo.Issues().CreateComment(ctx, created.ULID, issues.CommentInput{
		Body:   "reproduced on staging",
		Author: "sam",
	})
	require.NoError(t, err)
	require.True(t, ids.IsULID(comment.ULID))
	require.Equal(t, created.ULID, comment.IssueULID)
	require.Equal(t, "sam", comment.Author)

	_, err = repo.Issues().CreateComment(ctx, created.ULID, issues.CommentInput{Body: "second"})
	require.NoError(t, err)

	withComments, err := repo.Issues().GetWithComments(ctx, created.ULID)
	require.NoError(t, err)
	require.Len(t, withComments.Comments, 2)
	require.Equal(t, "reproduced on staging", withComments.Comments[0].Body)
	require.Empty(t, withComments.Comments[1].Author)

	all, err := repo.Issues().ListComments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestIssueRepositoryCommentOnMissingIssue(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	_, err = repo.Issues().CreateComment(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", issues.CommentInput{Body: "void"})
	require.ErrorIs(t, err, issues.ErrNotFound)
}

func TestIssueRepositoryDeleteCascadesComments(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	created, err := repo.Issues().Create(ctx, issues.CreateInput{
		Title: "short lived", Status: "open", ProjectID: "alpha",
	})
	require.NoError(t, err)

	_, err = repo.Issues().CreateComment(ctx, created.ULID, issues.CommentInput{Body: "gone soon"})
	require.NoError(t, err)

	_, err = repo.Issues().Delete(ctx, created.ULID)
	require.NoError(t, err)

	all, err := repo.Issues().ListComments(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestSubscriptionRepository(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	subs := repo.Subscriptions().(*SubscriptionRepository)

	created, err := subs.Create(ctx, "news", "news.issue.*", "https://hooks.example.com/issues")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.True(t, created.Enabled)

	_, err = subs.Create(ctx, "direct-exchange", "project.issue.created", "https://hooks.example.com/created")
	require.NoError(t, err)

	news, err := subs.ListForExchange(ctx, "news")
	require.NoError(t, err)
	require.Len(t, news, 1)
	require.Equal(t, "news.issue.*", news[0].BindingKey)

	none, err := subs.ListForExchange(ctx, "unknown")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestRepositoryWithTx(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context, txRepo storage.Repository) error {
		_, err := txRepo.Issues().Create(ctx, issues.CreateInput{
			Title: "inside tx", Status: "open", ProjectID: "alpha",
		})
		return err
	})
	require.NoError(t, err)

	all, err := repo.Issues().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	sentinel := require.New(t)
	err = repo.WithTx(ctx, func(ctx context.Context, txRepo storage.Repository) error {
		_, err := txRepo.Issues().Create(ctx, issues.CreateInput{
			Title: "rolled back", Status: "open", ProjectID: "alpha",
		})
		sentinel.NoError(err)
		return issues.ErrSaveFailed
	})
	require.ErrorIs(t, err, issues.ErrSaveFailed)

	all, err = repo.Issues().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
