// Package permissions evaluates what an acting user may do, optionally against a target user.
//
// Evaluation is pure: it reads only the two user records handed in and never touches storage.
// Anything it cannot decide (nil actor, inactive actor, unknown role, missing target) is denied,
// so callers check booleans instead of handling errors.
package permissions

import "github.com/tender-hub/backend/internal/models"

// Capabilities is the capability set of an actor, optionally scoped to a target.
type Capabilities struct {
	actor  *models.User
	target *models.User
}

// For returns the capability set of actor over target. target may be nil for checks that do not
// concern another user.
func For(actor, target *models.User) Capabilities {
	if !actor.IsActive() || !actor.Role.Valid() {
		return Capabilities{}
	}
	return Capabilities{actor: actor, target: target}
}

func (c Capabilities) denied() bool {
	return c.actor == nil
}

// HasRole reports whether the actor holds exactly role.
func (c Capabilities) HasRole(role models.Role) bool {
	return !c.denied() && c.actor.Role == role
}

// HasRoleOrHigher reports whether the actor ranks at or above role.
func (c Capabilities) HasRoleOrHigher(role models.Role) bool {
	return !c.denied() && c.actor.Role.AtLeast(role)
}

// outranks reports whether the actor may act on a user holding role:
// strictly higher rank, or owner.
func (c Capabilities) outranks(role models.Role) bool {
	if c.denied() || !role.Valid() {
		return false
	}
	return c.actor.Role == models.RoleOwner || c.actor.Role.Rank() > role.Rank()
}

// CanInviteUsers reports whether the actor may invite anyone at all.
func (c Capabilities) CanInviteUsers() bool {
	return c.HasRoleOrHigher(models.RoleManager)
}

// CanInviteManager reports whether the actor may invite a user with the manager role.
func (c Capabilities) CanInviteManager() bool {
	return c.CanInviteUsers() && c.outranks(models.RoleManager)
}

// CanInviteAdmin reports whether the actor may invite a user with the admin role.
func (c Capabilities) CanInviteAdmin() bool {
	return c.CanInviteUsers() && c.outranks(models.RoleAdmin)
}

// CanInviteRole dispatches to the role-specific invite check. Owners are never invited.
func (c Capabilities) CanInviteRole(role models.Role) bool {
	switch role {
	case models.RoleUser:
		return c.CanInviteUsers()
	case models.RoleManager:
		return c.CanInviteManager()
	case models.RoleAdmin:
		return c.CanInviteAdmin()
	default:
		return false
	}
}

// CanModifyUser reports whether the actor may change the target. Nobody modifies themselves
// through this path.
func (c Capabilities) CanModifyUser() bool {
	if c.denied() || c.target == nil || c.target.ID == c.actor.ID {
		return false
	}
	return c.outranks(c.target.Role)
}

// CanChangeRole reports whether the actor may set the target's role to newRole. Only an owner may
// grant a role at or above their own.
func (c Capabilities) CanChangeRole(newRole models.Role) bool {
	if !c.CanModifyUser() || !newRole.Valid() {
		return false
	}
	return c.actor.Role == models.RoleOwner || newRole.Rank() < c.actor.Role.Rank()
}

// CanSuspendUser reports whether the actor may suspend or reactivate the target.
func (c Capabilities) CanSuspendUser() bool {
	return c.HasRoleOrHigher(models.RoleManager) && c.CanModifyUser()
}

// CanReviewProfileUpdate reports whether the actor may approve or reject the target's profile
// update request.
func (c Capabilities) CanReviewProfileUpdate() bool {
	return c.HasRoleOrHigher(models.RoleManager) && c.CanModifyUser()
}

// CanDeleteUser reports whether the actor may delete the target. adminCount is the live number of
// admins, read by the caller.
func (c Capabilities) CanDeleteUser(adminCount int) bool {
	if !c.HasRoleOrHigher(models.RoleAdmin) || !c.CanModifyUser() {
		return false
	}
	return !IsLastAdmin(c.target, adminCount)
}

// IsLastAdmin reports whether removing u would leave no admin.
func IsLastAdmin(u *models.User, adminCount int) bool {
	return u != nil && u.Role == models.RoleAdmin && adminCount <= 1
}
