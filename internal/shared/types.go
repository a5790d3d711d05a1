package shared

import "time"

// shared types across the application: payloads carried in the data field of live-update frames

// ProjectUpdate is the data of a PROJECT_UPDATE frame
type ProjectUpdate struct {
	ProjectID int64     `json:"project_id"`           // GitLab project id
	Name      string    `json:"name"`                 // project path or display name
	Status    string    `json:"status"`               // e.g. "active", "archived"
	Message   string    `json:"message,omitempty"`    // human readable summary
	UpdatedAt time.Time `json:"updated_at,omitempty"` // event time on the GitLab side
}

// PipelineUpdate is the data of a PIPELINE_UPDATE frame
type PipelineUpdate struct {
	ProjectID  int64     `json:"project_id"`
	PipelineID int64     `json:"pipeline_id"`
	Ref        string    `json:"ref,omitempty"` // branch or tag
	Status     string    `json:"status"`        // GitLab pipeline status: running, success, failed...
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// MergeRequestUpdate is the data of a MERGE_REQUEST_UPDATE frame
type MergeRequestUpdate struct {
	ProjectID int64     `json:"project_id"`
	IID       int64     `json:"iid"` // merge request number within the project
	Title     string    `json:"title,omitempty"`
	State     string    `json:"state"` // opened, merged, closed
	Author    string    `json:"author,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Notification priorities and categories used by the dashboard inbox
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"

	CategorySecurity    = "security"
	CategoryPerformance = "performance"
	CategoryUpdate      = "update"
	CategoryAlert       = "alert"
)

// Notification is the data of a NOTIFICATION frame
type Notification struct {
	ID        string    `json:"id,omitempty"`
	Message   string    `json:"message"`
	Category  string    `json:"category,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
