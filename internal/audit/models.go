package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of change an admin made.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Outcome records whether the audited change took effect.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

func (o Outcome) IsValid() bool {
	return o == OutcomeSuccess || o == OutcomeFailed
}

// Event is one admin action. Keep it transport-agnostic so sinks can fan out.
type Event struct {
	ID           uuid.UUID `json:"id"`
	AdminID      string    `json:"adminId"`
	Action       Action    `json:"action"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	Outcome      Outcome   `json:"outcome"`
	RequestID    string    `json:"requestId"`
	IP           string    `json:"ip,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Validate reports the first missing or unknown field.
func (e Event) Validate() error {
	switch {
	case e.AdminID == "":
		return fmt.Errorf("audit event requires AdminID")
	case !e.Action.IsValid():
		return fmt.Errorf("audit event has unknown action %q", e.Action)
	case e.ResourceType == "":
		return fmt.Errorf("audit event requires ResourceType")
	case !e.Outcome.IsValid():
		return fmt.Errorf("audit event has unknown outcome %q", e.Outcome)
	}
	return nil
}
