// Package audit records and reports the append-only audit trail.
//
// Each action has its own metadata struct; the action tag is derived from the struct, so an entry can
// never carry a payload of the wrong shape.
package audit

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Action tags.
const (
	ActionProfileUpdateRequested = "profile_update_requested"
	ActionProfileUpdateApproved  = "profile_update_approved"
	ActionProfileUpdateRejected  = "profile_update_rejected"
	ActionUserInvited            = "user_invited"
	ActionInvitationAccepted     = "invitation_accepted"
	ActionUserSuspended          = "user_suspended"
	ActionUserReactivated        = "user_reactivated"
	ActionUserRoleChanged        = "user_role_changed"
	ActionUserDeleted            = "user_deleted"
	ActionUserRegistered         = "user_registered"
	ActionUserLoggedIn           = "user_logged_in"
)

// Metadata is the payload of one audit action.
type Metadata interface {
	Action() string
}

// ProfileUpdateRequested records a submitted change request and the requester's reason.
type ProfileUpdateRequested struct {
	RequestID uuid.UUID         `json:"request_id"`
	Changes   map[string]string `json:"changes"`
	Reason    string            `json:"reason,omitempty"`
}

func (ProfileUpdateRequested) Action() string { return ActionProfileUpdateRequested }

// ProfileUpdateApproved records the field values before and after an approved request was applied.
type ProfileUpdateApproved struct {
	RequestID      uuid.UUID         `json:"request_id"`
	PreviousValues map[string]string `json:"previous_values"`
	NewValues      map[string]string `json:"new_values"`
}

func (ProfileUpdateApproved) Action() string { return ActionProfileUpdateApproved }

// ProfileUpdateRejected records the values a rejected request asked for and why it was turned down.
type ProfileUpdateRejected struct {
	RequestID       uuid.UUID         `json:"request_id"`
	RequestedValues map[string]string `json:"requested_values"`
	RejectionReason string            `json:"rejection_reason"`
}

func (ProfileUpdateRejected) Action() string { return ActionProfileUpdateRejected }

// UserInvited records an invitation sent to an email address for a role.
type UserInvited struct {
	InvitationID uuid.UUID `json:"invitation_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
}

func (UserInvited) Action() string { return ActionUserInvited }

// InvitationAccepted records the account created from an invitation.
type InvitationAccepted struct {
	InvitationID uuid.UUID `json:"invitation_id"`
	Role         string    `json:"role"`
}

func (InvitationAccepted) Action() string { return ActionInvitationAccepted }

// UserSuspended is logged against the suspended account.
type UserSuspended struct {
	PreviousStatus string `json:"previous_status"`
}

func (UserSuspended) Action() string { return ActionUserSuspended }

// UserReactivated is logged against the reactivated account.
type UserReactivated struct {
	PreviousStatus string `json:"previous_status"`
}

func (UserReactivated) Action() string { return ActionUserReactivated }

// UserRoleChanged records a promotion or demotion.
type UserRoleChanged struct {
	PreviousRole string `json:"previous_role"`
	NewRole      string `json:"new_role"`
}

func (UserRoleChanged) Action() string { return ActionUserRoleChanged }

// UserDeleted keeps the email and role of a removed account.
type UserDeleted struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (UserDeleted) Action() string { return ActionUserDeleted }

// UserRegistered records a self-service signup.
type UserRegistered struct {
	Email string `json:"email"`
}

func (UserRegistered) Action() string { return ActionUserRegistered }

// UserLoggedIn records a successful login.
type UserLoggedIn struct {
	UserAgent string `json:"user_agent,omitempty"`
}

func (UserLoggedIn) Action() string { return ActionUserLoggedIn }

var decoders = map[string]func() Metadata{
	ActionProfileUpdateRequested: func() Metadata { return &ProfileUpdateRequested{} },
	ActionProfileUpdateApproved:  func() Metadata { return &ProfileUpdateApproved{} },
	ActionProfileUpdateRejected:  func() Metadata { return &ProfileUpdateRejected{} },
	ActionUserInvited:            func() Metadata { return &UserInvited{} },
	ActionInvitationAccepted:     func() Metadata { return &InvitationAccepted{} },
	ActionUserSuspended:          func() Metadata { return &UserSuspended{} },
	ActionUserReactivated:        func() Metadata { return &UserReactivated{} },
	ActionUserRoleChanged:        func() Metadata { return &UserRoleChanged{} },
	ActionUserDeleted:            func() Metadata { return &UserDeleted{} },
	ActionUserRegistered:         func() Metadata { return &UserRegistered{} },
	ActionUserLoggedIn:           func() Metadata { return &UserLoggedIn{} },
}

// KnownAction reports whether action has a registered metadata type.
func KnownAction(action string) bool {
	_, ok := decoders[action]
	return ok
}

// Decode parses the stored metadata of an entry back into its typed form.
func Decode(action string, raw json.RawMessage) (Metadata, error) {
	newFn, ok := decoders[action]
	if !ok {
		return nil, fmt.Errorf("unknown audit action %q", action)
	}
	md := newFn()
	if len(raw) == 0 {
		return md, nil
	}
	if err := json.Unmarshal(raw, md); err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", action, err)
	}
	return md, nil
}
