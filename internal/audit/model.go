package audit

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionView   Action = "view"
)

// ListObjectID is the object id recorded for collection-level actions.
const ListObjectID = "list"

// Changes is the sanitized change payload. Only these keys are ever persisted.
type Changes struct {
	Fields   []string `json:"fields,omitempty"`
	Summary  *string  `json:"summary,omitempty"`
	Count    *int     `json:"count,omitempty"`
	Filters  []string `json:"filters,omitempty"`
	Metadata *string  `json:"metadata,omitempty"`
}

// Entry is one immutable row of the audit trail.
type Entry struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"user"`
	Action    Action     `json:"action"`
	ModelName string     `json:"model_name"`
	ObjectID  string     `json:"object_id"`
	Changes   Changes    `json:"changes"`
	Timestamp time.Time  `json:"timestamp"`
	IPAddress *string    `json:"ip_address"`
	UserAgent string     `json:"user_agent"`
}

type Filter struct {
	Action    Action
	ModelName string
	UserID    *uuid.UUID
	Limit     int
	Offset    int
}
