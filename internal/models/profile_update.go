package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the state of a profile update request.
// pending is the only non-terminal state.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// Profile fields a user may ask to change.
const (
	FieldName  = "name"
	FieldEmail = "email"
)

// AllowedProfileFields is the allow-list for requested changes.
var AllowedProfileFields = map[string]struct{}{
	FieldName:  {},
	FieldEmail: {},
}

// ProfileUpdateRequest is a change-set proposed by a user and reviewed by a manager or higher.
type ProfileUpdateRequest struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	RequestedChanges map[string]string `json:"requested_changes"`
	Reason           string            `json:"reason,omitempty"`
	Status           RequestStatus     `json:"status"`
	RequestedAt      time.Time         `json:"requested_at"`
	ReviewedBy       *uuid.UUID        `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time        `json:"reviewed_at,omitempty"`
	RejectionReason  *string           `json:"rejection_reason,omitempty"`
}

// IsPending reports whether the request can still be reviewed.
func (r *ProfileUpdateRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}
