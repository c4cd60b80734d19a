package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification templates.
const (
	TemplateProfileUpdateSubmitted = "profile_update_submitted"
	TemplateProfileUpdateApproved  = "profile_update_approved"
	TemplateProfileUpdateRejected  = "profile_update_rejected"
	TemplateInvitation             = "invitation"
	TemplateWelcome                = "welcome"
	TemplateAccountSuspended       = "account_suspended"
)

// Outbox status.
const (
	OutboxStatusPending    = "pending"
	OutboxStatusDispatched = "dispatched"
)

// NotificationIntent is an outbox row written in the same transaction as the change that triggers it.
type NotificationIntent struct {
	ID           uuid.UUID         `json:"id"`
	Template     string            `json:"template"`
	Recipient    string            `json:"recipient"`
	Variables    map[string]string `json:"variables"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	DispatchedAt *time.Time        `json:"dispatched_at,omitempty"`
}
