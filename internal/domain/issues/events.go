package issues

// Event boundary. Exchange and routing key strings are part of the wire
// contract shared with downstream consumers and must not change.
const (
	ExchangeDirect = "direct-exchange"
	ExchangeNews   = "news"

	KeyIssueCreated = "project.issue.created"
	KeyIssueDeleted = "project.issue.deleted"
	KeyNewsCreate   = "news.issue.create"
	KeyNewsUpdate   = "news.issue.update"
	KeyNewsDelete   = "news.issue.delete"
)

// issueNotification is the direct service-to-service payload for created and
// deleted issues. The field is named uuid for wire compatibility even though
// it carries the issue's public ULID.
type issueNotification struct {
	UUID string `json:"uuid"`
}

type newsCreatePayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	ProjectID   string `json:"projectId"`
	IssueID     string `json:"issueId"`
}

type newsUpdatePayload struct {
	Title        *string       `json:"title,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Status       *string       `json:"status,omitempty"`
	ProjectID    string        `json:"projectId"`
	IssueID      string        `json:"issueId"`
	UpdateScopes []UpdateScope `json:"updateScopes"`
}

type newsDeletePayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"projectId"`
	IssueID     string `json:"issueId"`
}

type newsCommentPayload struct {
	Body         string        `json:"body"`
	Author       string        `json:"author,omitempty"`
	ProjectID    string        `json:"projectId"`
	IssueID      string        `json:"issueId"`
	UpdateScopes []UpdateScope `json:"updateScopes"`
}
