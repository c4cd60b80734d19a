package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is an append-only record of a state change.
// Metadata holds the JSON encoding of the action's typed payload.
type AuditLogEntry struct {
	ID           uuid.UUID       `json:"id"`
	Action       string          `json:"action"`
	UserID       *uuid.UUID      `json:"user_id,omitempty"`
	TargetUserID *uuid.UUID      `json:"target_user_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
