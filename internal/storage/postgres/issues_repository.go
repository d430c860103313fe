package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/trackline/server/internal/domain/ids"
	"github.com/trackline/server/internal/domain/issues"
)

type issueRow struct {
	ID          pgtype.UUID
	ULID        string
	Title       string
	Description *string
	Status      string
	ProjectID   string
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

func (d issueRow) toDomain() *issues.Issue {
	issue := &issues.Issue{
		ID:          ids.UUIDToString(d.ID),
		ULID:        d.ULID,
		Title:       d.Title,
		Description: derefString(d.Description),
		Status:      issues.Status(d.Status),
		ProjectID:   d.ProjectID,
	}
	if d.CreatedAt.Valid {
		issue.CreatedAt = d.CreatedAt.Time
	}
	if d.UpdatedAt.Valid {
		issue.UpdatedAt = d.UpdatedAt.Time
	}
	return issue
}

const issueColumns = `i.id, i.ulid, i.title, i.description, i.status, i.project_id, i.created_at, i.updated_at`

func scanIssue(row pgx.Row) (*issues.Issue, error) {
	var data issueRow
	if err := row.Scan(
		&data.ID,
		&data.ULID,
		&data.Title,
		&data.Description,
		&data.Status,
		&data.ProjectID,
		&data.CreatedAt,
		&data.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return data.toDomain(), nil
}

func (r *IssueRepository) Create(ctx context.Context, input issues.CreateInput) (*issues.Issue, error) {
	queryer := r.queryer()

	ulid, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint ulid: %w", err)
	}

	row := queryer.QueryRow(ctx, `
INSERT INTO issues (ulid, title, description, status, project_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, ulid, title, description, status, project_id, created_at, updated_at
`, ulid, input.Title, nullIfEmpty(input.Description), input.Status, input.ProjectID)

	issue, err := scanIssue(row)
	if err != nil {
		return nil, fmt.Errorf("insert issue: %w", err)
	}
	return issue, nil
}

func (r *IssueRepository) List(ctx context.Context) ([]issues.Issue, error) {
	queryer := r.queryer()

	rows, err := queryer.Query(ctx, `
SELECT `+issueColumns+`
  FROM issues i
 ORDER BY i.created_at, i.ulid
`)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	return collectIssues(rows)
}

func (r *IssueRepository) ListByProject(ctx context.Context, projectID string) ([]issues.Issue, error) {
	queryer := r.queryer()

	rows, err := queryer.Query(ctx, `
SELECT `+issueColumns+`
  FROM issues i
 WHERE i.project_id = $1
 ORDER BY i.created_at, i.ulid
`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list issues by project: %w", err)
	}
	defer rows.Close()

	return collectIssues(rows)
}

func collectIssues(rows pgx.Rows) ([]issues.Issue, error) {
	items := []issues.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		items = append(items, *issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	return items, nil
}

func (r *IssueRepository) GetByULID(ctx context.Context, ulid string) (*issues.Issue, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
SELECT `+issueColumns+`
  FROM issues i
 WHERE i.ulid = $1
`, ulid)

	issue, err := scanIssue(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, issues.ErrNotFound
		}
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

// Update applies the fields present in input. A ulid that matches no row is
// not an error here; callers re-read the issue and surface absence there.
func (r *IssueRepository) Update(ctx context.Context, ulid string, input issues.UpdateInput) error {
	queryer := r.queryer()

	set := []string{"updated_at = now()"}
	args := []any{}
	arg := 1

	if input.Title != nil {
		set = append(set, fmt.Sprintf("title = $%d", arg))
		args = append(args, *input.Title)
		arg++
	}
	if input.Description != nil {
		set = append(set, fmt.Sprintf("description = $%d", arg))
		args = append(args, *input.Description)
		arg++
	}
	if input.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", arg))
		args = append(args, *input.Status)
		arg++
	}

	args = append(args, ulid)
	query := fmt.Sprintf("UPDATE issues SET %s WHERE ulid = $%d", strings.Join(set, ", "), arg)

	if _, err := queryer.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	return nil
}

func (r *IssueRepository) Delete(ctx context.Context, ulid string) (int64, error) {
	queryer := r.queryer()

	tag, err := queryer.Exec(ctx, `DELETE FROM issues WHERE ulid = $1`, ulid)
	if err != nil {
		return 0, fmt.Errorf("delete issue: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *IssueRepository) CreateComment(ctx context.Context, issueULID string, input issues.CommentInput) (*issues.Comment, error) {
	queryer := r.queryer()

	ulid, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint ulid: %w", err)
	}

	row := queryer.QueryRow(ctx, `
INSERT INTO comments (ulid, issue_id, body, author)
SELECT $1, i.id, $2, $3
  FROM issues i
 WHERE i.ulid = $4
RETURNING id, ulid, body, author, created_at
`, ulid, input.Body, nullIfEmpty(input.Author), issueULID)

	var data struct {
		ID        pgtype.UUID
		ULID      string
		Body      string
		Author    *string
		CreatedAt pgtype.Timestamptz
	}
	if err := row.Scan(&data.ID, &data.ULID, &data.Body, &data.Author, &data.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, issues.ErrNotFound
		}
		return nil, fmt.Errorf("insert comment: %w", err)
	}

	comment := &issues.Comment{
		ID:        ids.UUIDToString(data.ID),
		ULID:      data.ULID,
		IssueULID: issueULID,
		Body:      data.Body,
		Author:    derefString(data.Author),
	}
	if data.CreatedAt.Valid {
		comment.CreatedAt = data.CreatedAt.Time
	}
	return comment, nil
}

func (r *IssueRepository) GetWithComments(ctx context.Context, ulid string) (*issues.Issue, error) {
	issue, err := r.GetByULID(ctx, ulid)
	if err != nil {
		return nil, err
	}

	comments, err := r.commentsWhere(ctx, `WHERE i.ulid = $1`, ulid)
	if err != nil {
		return nil, err
	}
	issue.Comments = comments
	return issue, nil
}

func (r *IssueRepository) ListComments(ctx context.Context) ([]issues.Comment, error) {
	return r.commentsWhere(ctx, "")
}

func (r *IssueRepository) commentsWhere(ctx context.Context, where string, args ...any) ([]issues.Comment, error) {
	queryer := r.queryer()

	rows, err := queryer.Query(ctx, `
SELECT c.id, c.ulid, i.ulid, c.body, c.author, c.created_at
  FROM comments c
  JOIN issues i ON i.id = c.issue_id
 `+where+`
 ORDER BY c.created_at, c.ulid
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := []issues.Comment{}
	for rows.Next() {
		var data struct {
			ID        pgtype.UUID
			ULID      string
			IssueULID string
			Body      string
			Author    *string
			CreatedAt pgtype.Timestamptz
		}
		if err := rows.Scan(&data.ID, &data.ULID, &data.IssueULID, &data.Body, &data.Author, &data.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comment := issues.Comment{
			ID:        ids.UUIDToString(data.ID),
			ULID:      data.ULID,
			IssueULID: data.IssueULID,
			Body:      data.Body,
			Author:    derefString(data.Author),
		}
		if data.CreatedAt.Valid {
			comment.CreatedAt = data.CreatedAt.Time
		}
		items = append(items, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

type issueQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *IssueRepository) queryer() issueQueryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}
