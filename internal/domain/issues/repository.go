package issues

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("issue not found")

	// ErrSaveFailed wraps a persistence failure during create.
	ErrSaveFailed = errors.New("could not save issue")
)

// Repository is the persistence boundary for issues and their comments.
// Implementations return ErrNotFound for absent issues and generate public
// identifiers on insert.
type Repository interface {
	Create(ctx context.Context, input CreateInput) (*Issue, error)
	List(ctx context.Context) ([]Issue, error)
	ListByProject(ctx context.Context, projectID string) ([]Issue, error)
	GetByULID(ctx context.Context, ulid string) (*Issue, error)

	// Update applies the present fields of input to the stored issue.
	// An update that names no fields still bumps updated_at.
	Update(ctx context.Context, ulid string, input UpdateInput) error

	// Delete removes the issue and reports how many rows were affected.
	Delete(ctx context.Context, ulid string) (int64, error)

	CreateComment(ctx context.Context, issueULID string, input CommentInput) (*Comment, error)
	GetWithComments(ctx context.Context, ulid string) (*Issue, error)
	ListComments(ctx context.Context) ([]Comment, error)
}

// Publisher is the event side-channel. The production implementation
// enqueues deliveries on the Postgres-backed queue; tests substitute a
// recorder.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload any) error
}
