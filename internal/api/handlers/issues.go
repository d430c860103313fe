package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/trackline/server/internal/api/problem"
	"github.com/trackline/server/internal/audit"
	"github.com/trackline/server/internal/domain/issues"
)

type IssuesHandler struct {
	Service *issues.Service
	Audit   *audit.Logger
	Env     string
}

func NewIssuesHandler(service *issues.Service, auditLogger *audit.Logger, env string) *IssuesHandler {
	return &IssuesHandler{Service: service, Audit: auditLogger, Env: env}
}

type issueResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	ProjectID   string            `json:"projectId"`
	Comments    []commentResponse `json:"comments,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issueId"`
	Body      string    `json:"body"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type listResponse struct {
	Items any `json:"items"`
}

func issuePayload(issue *issues.Issue) issueResponse {
	resp := issueResponse{
		ID:          issue.ULID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      string(issue.Status),
		ProjectID:   issue.ProjectID,
		CreatedAt:   issue.CreatedAt,
		UpdatedAt:   issue.UpdatedAt,
	}
	for _, comment := range issue.Comments {
		resp.Comments = append(resp.Comments, commentPayload(comment))
	}
	return resp
}

func commentPayload(comment issues.Comment) commentResponse {
	return commentResponse{
		ID:        comment.ULID,
		IssueID:   comment.IssueULID,
		Body:      comment.Body,
		Author:    comment.Author,
		CreatedAt: comment.CreatedAt,
	}
}

func (h *IssuesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	var input issues.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	issue, err := h.Service.Create(r.Context(), input)
	if err != nil {
		h.auditMutation(r, "issue.create", "", "failure")
		h.writeServiceError(w, r, err)
		return
	}

	h.auditMutation(r, "issue.create", issue.ULID, "success")
	writeJSON(w, http.StatusCreated, issuePayload(issue))
}

func (h *IssuesHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	var (
		items []issues.Issue
		err   error
	)
	if projectID := r.URL.Query().Get("project_id"); projectID != "" {
		items, err = h.Service.ListByProject(r.Context(), projectID)
	} else {
		items, err = h.Service.List(r.Context())
	}
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	payload := make([]issueResponse, 0, len(items))
	for i := range items {
		payload = append(payload, issuePayload(&items[i]))
	}
	writeJSON(w, http.StatusOK, listResponse{Items: payload})
}

func (h *IssuesHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	ulidValue, ok := ValidateAndExtractULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	issue, err := h.Service.Get(r.Context(), ulidValue)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, issuePayload(issue))
}

func (h *IssuesHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	ulidValue, ok := ValidateAndExtractULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	var input issues.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	issue, err := h.Service.Update(r.Context(), ulidValue, input)
	if err != nil {
		h.auditMutation(r, "issue.update", ulidValue, "failure")
		h.writeServiceError(w, r, err)
		return
	}

	h.auditMutation(r, "issue.update", ulidValue, "success")
	writeJSON(w, http.StatusOK, issuePayload(issue))
}

func (h *IssuesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	ulidValue, ok := ValidateAndExtractULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	if err := h.Service.Remove(r.Context(), ulidValue); err != nil {
		h.auditMutation(r, "issue.delete", ulidValue, "failure")
		h.writeServiceError(w, r, err)
		return
	}

	h.auditMutation(r, "issue.delete", ulidValue, "success")
	w.WriteHeader(http.StatusNoContent)
}

func (h *IssuesHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	ulidValue, ok := ValidateAndExtractULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	var input issues.CommentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	comment, err := h.Service.AddComment(r.Context(), ulidValue, input)
	if err != nil {
		h.auditMutation(r, "comment.create", ulidValue, "failure")
		h.writeServiceError(w, r, err)
		return
	}

	h.auditMutation(r, "comment.create", ulidValue, "success")
	writeJSON(w, http.StatusCreated, commentPayload(*comment))
}

func (h *IssuesHandler) ListIssueComments(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	ulidValue, ok := ValidateAndExtractULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	issue, err := h.Service.ListCommentsForIssue(r.Context(), ulidValue)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, issuePayload(issue))
}

func (h *IssuesHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	comments, err := h.Service.ListAllComments(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	payload := make([]commentResponse, 0, len(comments))
	for _, comment := range comments {
		payload = append(payload, commentPayload(comment))
	}
	writeJSON(w, http.StatusOK, listResponse{Items: payload})
}

func (h *IssuesHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr issues.ValidationError
	switch {
	case errors.As(err, &validationErr):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
	case errors.Is(err, issues.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
	}
}

func (h *IssuesHandler) auditMutation(r *http.Request, action, resourceID, status string) {
	if h.Audit == nil {
		return
	}
	h.Audit.LogFromRequest(r, action, "issue", resourceID, status, nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pathParam(r *http.Request, key string) string {
	if r == nil {
		return ""
	}
	return r.PathValue(key)
}
