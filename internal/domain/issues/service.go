package issues

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/trackline/server/internal/sanitize"
)

// Service is the single authority for issue and comment lifecycle and for
// the event notifications that accompany each mutation. A publish failure
// after a successful write propagates to the caller; there is no
// compensating rollback of the already-persisted record.
type Service struct {
	repo      Repository
	publisher Publisher
	validate  *validator.Validate
}

func NewService(repo Repository, publisher Publisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidationError marks input that failed DTO validation so the transport
// layer can map it to a 400 instead of a 500.
type ValidationError struct {
	Err error
}

func (e ValidationError) Error() string {
	return "invalid input: " + e.Err.Error()
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*Issue, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, ValidationError{Err: err}
	}

	input.Title = sanitize.Text(input.Title)
	input.Description = sanitize.HTML(input.Description)
	input.ProjectID = sanitize.Text(input.ProjectID)
	if input.Status == "" {
		input.Status = string(StatusOpen)
	}

	issue, err := s.repo.Create(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	if err := s.publisher.Publish(ctx, ExchangeDirect, KeyIssueCreated, issueNotification{UUID: issue.ULID}); err != nil {
		return nil, fmt.Errorf("publish issue created: %w", err)
	}
	if err := s.publisher.Publish(ctx, ExchangeNews, KeyNewsCreate, newsCreatePayload{
		Title:       issue.Title,
		Description: issue.Description,
		Status:      string(issue.Status),
		ProjectID:   issue.ProjectID,
		IssueID:     issue.ULID,
	}); err != nil {
		return nil, fmt.Errorf("publish news create: %w", err)
	}

	return issue, nil
}

func (s *Service) List(ctx context.Context) ([]Issue, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByProject(ctx context.Context, projectID string) ([]Issue, error) {
	return s.repo.ListByProject(ctx, projectID)
}

func (s *Service) Get(ctx context.Context, ulid string) (*Issue, error) {
	return s.repo.GetByULID(ctx, ulid)
}

// Update applies the present fields of input, re-reads the issue, and
// publishes a news update tagged with presence-based scopes. An update that
// sets a field to its current value still reports that field's scope.
func (s *Service) Update(ctx context.Context, ulid string, input UpdateInput) (*Issue, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, ValidationError{Err: err}
	}

	if input.Title != nil {
		clean := sanitize.Text(*input.Title)
		input.Title = &clean
	}
	if input.Description != nil {
		clean := sanitize.HTML(*input.Description)
		input.Description = &clean
	}

	if err := s.repo.Update(ctx, ulid, input); err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}

	issue, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, ExchangeNews, KeyNewsUpdate, newsUpdatePayload{
		Title:        input.Title,
		Description:  input.Description,
		Status:       input.Status,
		ProjectID:    issue.ProjectID,
		IssueID:      issue.ULID,
		UpdateScopes: input.Scopes(),
	}); err != nil {
		return nil, fmt.Errorf("publish news update: %w", err)
	}

	return issue, nil
}

// Remove fetches the issue, deletes it, and publishes both the direct
// notification and the news event from the pre-delete snapshot. The
// affected-rows check after the fetch is deliberately kept; under
// concurrent deletes the row can vanish between the two statements.
func (s *Service) Remove(ctx context.Context, ulid string) error {
	issue, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return err
	}

	affected, err := s.repo.Delete(ctx, ulid)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := s.publisher.Publish(ctx, ExchangeDirect, KeyIssueDeleted, issueNotification{UUID: issue.ULID}); err != nil {
		return fmt.Errorf("publish issue deleted: %w", err)
	}
	if err := s.publisher.Publish(ctx, ExchangeNews, KeyNewsDelete, newsDeletePayload{
		Title:       issue.Title,
		Description: issue.Description,
		ProjectID:   issue.ProjectID,
		IssueID:     issue.ULID,
	}); err != nil {
		return fmt.Errorf("publish news delete: %w", err)
	}

	return nil
}

// AddComment verifies the issue exists before creating the comment, so a
// Not-Found leaves no persistence or publish side effects behind.
func (s *Service) AddComment(ctx context.Context, issueULID string, input CommentInput) (*Comment, error) {
	issue, err := s.repo.GetByULID(ctx, issueULID)
	if err != nil {
		return nil, err
	}

	if err := s.validate.Struct(input); err != nil {
		return nil, ValidationError{Err: err}
	}
	input.Body = sanitize.HTML(input.Body)
	input.Author = sanitize.Text(input.Author)

	comment, err := s.repo.CreateComment(ctx, issue.ULID, input)
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	if err := s.publisher.Publish(ctx, ExchangeNews, KeyNewsUpdate, newsCommentPayload{
		Body:         comment.Body,
		Author:       comment.Author,
		ProjectID:    issue.ProjectID,
		IssueID:      issue.ULID,
		UpdateScopes: []UpdateScope{ScopeComment},
	}); err != nil {
		return nil, fmt.Errorf("publish comment added: %w", err)
	}

	return comment, nil
}

// ListCommentsForIssue returns the issue with its comments relation populated.
func (s *Service) ListCommentsForIssue(ctx context.Context, issueULID string) (*Issue, error) {
	return s.repo.GetWithComments(ctx, issueULID)
}

func (s *Service) ListAllComments(ctx context.Context) ([]Comment, error) {
	return s.repo.ListComments(ctx)
}
