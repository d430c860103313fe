package issues

import "time"

// Status is the lifecycle state of an issue. The service does not enforce
// transitions between states; status is a plain field.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Issue is tracked work within a project. ULID is the public identifier;
// ID is the storage-generated UUID primary key and never leaves the server.
type Issue struct {
	ID          string
	ULID        string
	Title       string
	Description string
	Status      Status
	ProjectID   string
	Comments    []Comment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Comment belongs to exactly one issue. Comments are append-only: there is
// no update or delete surface for them.
type Comment struct {
	ID        string
	ULID      string
	IssueULID string
	Body      string
	Author    string
	CreatedAt time.Time
}

type CreateInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=20000"`
	Status      string `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
	ProjectID   string `json:"projectId" validate:"required,max=64"`
}

// UpdateInput is a partial field set. Nil means the field was absent from
// the request; update scopes are computed from presence, not from whether
// the value actually differs from the stored one.
type UpdateInput struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=20000"`
	Status      *string `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
}

type CommentInput struct {
	Body   string `json:"body" validate:"required,max=20000"`
	Author string `json:"author" validate:"omitempty,max=120"`
}

// UpdateScope tags which part of an issue a mutation touched. Scopes are
// event metadata only; nothing else consumes them.
type UpdateScope string

const (
	ScopeTitle       UpdateScope = "TITLE"
	ScopeDescription UpdateScope = "DESCRIPTION"
	ScopeStatus      UpdateScope = "STATUS"
	ScopeComment     UpdateScope = "COMMENT"
)

// Scopes reports which fields were present in the update request.
func (in UpdateInput) Scopes() []UpdateScope {
	scopes := make([]UpdateScope, 0, 3)
	if in.Title != nil {
		scopes = append(scopes, ScopeTitle)
	}
	if in.Description != nil {
		scopes = append(scopes, ScopeDescription)
	}
	if in.Status != nil {
		scopes = append(scopes, ScopeStatus)
	}
	return scopes
}
