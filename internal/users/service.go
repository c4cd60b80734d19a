package users

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/audit"
	"github.com/tender-hub/backend/internal/auth"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/notifications"
	"github.com/tender-hub/backend/internal/permissions"
	"github.com/tender-hub/backend/pkg/utils"
)

// MaxNameLength matches the users.name column.
const MaxNameLength = 255

// AccessEvents is told when a user's role or status changed, after commit.
type AccessEvents interface {
	AccessChanged(ctx context.Context, userID uuid.UUID)
}

// Service implements account administration and onboarding.
type Service struct {
	store         Store
	events        AccessEvents
	baseURL       string
	invitationTTL time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewService creates a users service. baseURL is the frontend origin used in invitation links.
func NewService(store Store, baseURL string, invitationTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:         store,
		baseURL:       strings.TrimRight(baseURL, "/"),
		invitationTTL: invitationTTL,
		now:           time.Now,
		logger:        logger,
	}
}

// SetAccessEvents sets the receiver of access changes (optional).
func (s *Service) SetAccessEvents(e AccessEvents) {
	s.events = e
}

func (s *Service) accessChanged(ctx context.Context, userID uuid.UUID) {
	if s.events != nil {
		s.events.AccessChanged(ctx, userID)
	}
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.GetByID(ctx, id)
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]models.User, int, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, apperr.FieldError("role", "unknown role")
	}
	return s.store.List(ctx, f, limit, offset)
}

func validateName(name string, fields map[string]string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		fields["name"] = "is required"
	case utf8.RuneCountInString(name) > MaxNameLength:
		fields["name"] = "must be at most 255 characters"
	}
	return name
}

func validatePassword(password string, fields map[string]string) {
	if len(password) < utils.MinPasswordLength {
		fields["password"] = "must be at least 8 characters"
	}
}

// Register creates a self-service account with the user role.
func (s *Service) Register(ctx context.Context, in auth.Registration, ip string) (*models.User, error) {
	fields := map[string]string{}
	name := validateName(in.Name, fields)
	email, ok := utils.NormalizeEmail(in.Email)
	if !ok {
		fields["email"] = "must be a valid email address"
	}
	validatePassword(in.Password, fields)
	province := strings.TrimSpace(in.Province)
	if province != "" && !models.IsProvince(province) {
		fields["province"] = "unknown province"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid registration", fields)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:       uuid.New(),
		Name:     name,
		Email:    email,
		Password: hash,
		Role:     models.RoleUser,
		Status:   models.UserStatusActive,
		Province: province,
	}
	err = s.store.WithTx(ctx, func(tx TxStore) error {
		if err := tx.Create(ctx, u); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, &u.ID, &u.ID, audit.UserRegistered{Email: u.Email}, ip); err != nil {
			return err
		}
		return tx.Notify(ctx, notifications.NewIntent(models.TemplateWelcome, u.Email, map[string]string{"name": u.Name}))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID.String()))
	return u, nil
}

// Authenticate checks credentials and records the sign-in.
func (s *Service) Authenticate(ctx context.Context, email, password, ip, userAgent string) (*models.User, error) {
	normalized, ok := utils.NormalizeEmail(email)
	if !ok {
		return nil, auth.ErrInvalidCredentials
	}
	u, err := s.store.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(password, u.Password) {
		return nil, auth.ErrInvalidCredentials
	}
	if !u.IsActive() {
		return nil, auth.ErrAccountInactive
	}
	err = s.store.WithTx(ctx, func(tx TxStore) error {
		return tx.RecordAudit(ctx, &u.ID, &u.ID, audit.UserLoggedIn{UserAgent: userAgent}, ip)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// InviteInput is the body of an invitation.
type InviteInput struct {
	Email string
	Role  string
}

// Invite creates an invitation and emails the accept link. The token itself is only ever sent by email.
func (s *Service) Invite(ctx context.Context, actorID uuid.UUID, in InviteInput, ip string) (*models.Invitation, error) {
	fields := map[string]string{}
	email, ok := utils.NormalizeEmail(in.Email)
	if !ok {
		fields["email"] = "must be a valid email address"
	}
	role, ok := models.ParseRole(in.Role)
	if !ok {
		fields["role"] = "unknown role"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid invitation", fields)
	}

	token, tokenHash, err := utils.NewToken()
	if err != nil {
		return nil, err
	}
	var inv *models.Invitation
	err = s.store.WithTx(ctx, func(tx TxStore) error {
		actor, err := s.loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !permissions.For(actor, nil).CanInviteRole(role) {
			return apperr.Forbidden()
		}
		if _, err := tx.GetByEmail(ctx, email); err == nil {
			return apperr.Conflict("a user with this email already exists")
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		now := s.now().UTC()
		inv = &models.Invitation{
			Email:     email,
			Role:      role,
			TokenHash: tokenHash,
			InvitedBy: actor.ID,
			ExpiresAt: now.Add(s.invitationTTL),
		}
		if err := tx.CreateInvitation(ctx, inv); err != nil {
			return err
		}
		md := audit.UserInvited{InvitationID: inv.ID, Email: email, Role: string(role)}
		if err := tx.RecordAudit(ctx, &actor.ID, nil, md, ip); err != nil {
			return err
		}
		return tx.Notify(ctx, notifications.NewIntent(models.TemplateInvitation, email, map[string]string{
			"inviter_name": actor.Name,
			"role":         string(role),
			"invite_url":   s.baseURL + "/invitations/accept?token=" + url.QueryEscape(token),
			"expires_at":   inv.ExpiresAt.Format("2006-01-02 15:04 UTC"),
		}))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invitation created", zap.String("invitation_id", inv.ID.String()), zap.String("role", string(role)))
	return inv, nil
}

// AcceptInput is the body of an invitation acceptance.
type AcceptInput struct {
	Token    string
	Name     string
	Password string
}

// AcceptInvitation creates the invited account.
func (s *Service) AcceptInvitation(ctx context.Context, in AcceptInput, ip string) (*models.User, error) {
	fields := map[string]string{}
	token := strings.TrimSpace(in.Token)
	if token == "" {
		fields["token"] = "is required"
	}
	name := validateName(in.Name, fields)
	validatePassword(in.Password, fields)
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid invitation acceptance", fields)
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var u *models.User
	err = s.store.WithTx(ctx, func(tx TxStore) error {
		inv, err := tx.GetInvitationByTokenHashForUpdate(ctx, utils.HashToken(token))
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if inv.AcceptedAt != nil {
			return apperr.Conflict("invitation has already been accepted")
		}
		if inv.IsExpired(now) {
			return apperr.FieldError("token", "invitation has expired")
		}

		invitedBy, invitedAt := inv.InvitedBy, inv.CreatedAt
		u = &models.User{
			ID:        uuid.New(),
			Name:      name,
			Email:     inv.Email,
			Password:  hash,
			Role:      inv.Role,
			Status:    models.UserStatusActive,
			InvitedBy: &invitedBy,
			InvitedAt: &invitedAt,
		}
		if err := tx.Create(ctx, u); err != nil {
			return err
		}
		if err := tx.MarkInvitationAccepted(ctx, inv.ID, now); err != nil {
			return err
		}
		md := audit.InvitationAccepted{InvitationID: inv.ID, Role: string(inv.Role)}
		if err := tx.RecordAudit(ctx, &u.ID, &u.ID, md, ip); err != nil {
			return err
		}
		return tx.Notify(ctx, notifications.NewIntent(models.TemplateWelcome, u.Email, map[string]string{"name": u.Name}))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invitation accepted", zap.String("user_id", u.ID.String()))
	return u, nil
}

// Suspend blocks the target from signing in or acting.
func (s *Service) Suspend(ctx context.Context, actorID, targetID uuid.UUID, ip string) (*models.User, error) {
	var target *models.User
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		actor, t, err := s.lockPair(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}
		target = t
		if !permissions.For(actor, target).CanSuspendUser() {
			return apperr.Forbidden()
		}
		if target.Status == models.UserStatusSuspended {
			return apperr.Conflict("user is already suspended")
		}
		if target.IsActive() && target.Role == models.RoleAdmin {
			admins, err := tx.CountAdmins(ctx)
			if err != nil {
				return err
			}
			if permissions.IsLastAdmin(target, admins.Active) {
				return apperr.Conflict("cannot suspend the last admin")
			}
		}
		previous := target.Status
		if err := tx.UpdateStatus(ctx, target.ID, models.UserStatusSuspended); err != nil {
			return err
		}
		target.Status = models.UserStatusSuspended
		if err := tx.RecordAudit(ctx, &actor.ID, &target.ID, audit.UserSuspended{PreviousStatus: string(previous)}, ip); err != nil {
			return err
		}
		return tx.Notify(ctx, notifications.NewIntent(models.TemplateAccountSuspended, target.Email, map[string]string{"name": target.Name}))
	})
	if err != nil {
		return nil, err
	}
	s.accessChanged(ctx, target.ID)
	return target, nil
}

// Reactivate restores a suspended account.
func (s *Service) Reactivate(ctx context.Context, actorID, targetID uuid.UUID, ip string) (*models.User, error) {
	var target *models.User
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		actor, t, err := s.lockPair(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}
		target = t
		if !permissions.For(actor, target).CanSuspendUser() {
			return apperr.Forbidden()
		}
		if target.Status != models.UserStatusSuspended {
			return apperr.Conflict("user is not suspended")
		}
		if err := tx.UpdateStatus(ctx, target.ID, models.UserStatusActive); err != nil {
			return err
		}
		target.Status = models.UserStatusActive
		return tx.RecordAudit(ctx, &actor.ID, &target.ID, audit.UserReactivated{PreviousStatus: string(models.UserStatusSuspended)}, ip)
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// ChangeRole sets the target's role.
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID uuid.UUID, newRole string, ip string) (*models.User, error) {
	role, ok := models.ParseRole(newRole)
	if !ok {
		return nil, apperr.FieldError("role", "unknown role")
	}
	var target *models.User
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		actor, t, err := s.lockPair(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}
		target = t
		if !permissions.For(actor, target).CanChangeRole(role) {
			return apperr.Forbidden()
		}
		if target.Role == role {
			return apperr.FieldError("role", "user already has this role")
		}
		if target.IsActive() && target.Role == models.RoleAdmin {
			admins, err := tx.CountAdmins(ctx)
			if err != nil {
				return err
			}
			if permissions.IsLastAdmin(target, admins.Active) {
				return apperr.Conflict("cannot demote the last admin")
			}
		}
		previous := target.Role
		if err := tx.UpdateRole(ctx, target.ID, role); err != nil {
			return err
		}
		target.Role = role
		md := audit.UserRoleChanged{PreviousRole: string(previous), NewRole: string(role)}
		return tx.RecordAudit(ctx, &actor.ID, &target.ID, md, ip)
	})
	if err != nil {
		return nil, err
	}
	s.accessChanged(ctx, target.ID)
	return target, nil
}

// Delete removes the target account. Audit entries about the user are kept.
func (s *Service) Delete(ctx context.Context, actorID, targetID uuid.UUID, ip string) error {
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		actor, target, err := s.lockPair(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}
		caps := permissions.For(actor, target)
		if !caps.HasRoleOrHigher(models.RoleAdmin) || !caps.CanModifyUser() {
			return apperr.Forbidden()
		}
		// Suspended admins count here: deletion is final, suspension is not.
		admins, err := tx.CountAdmins(ctx)
		if err != nil {
			return err
		}
		if permissions.IsLastAdmin(target, admins.Total) {
			return apperr.Conflict("cannot delete the last admin")
		}
		if !caps.CanDeleteUser(admins.Total) {
			return apperr.Forbidden()
		}
		if err := tx.Delete(ctx, target.ID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, &actor.ID, &target.ID, audit.UserDeleted{Email: target.Email, Role: string(target.Role)}, ip)
	})
	if err != nil {
		return err
	}
	s.accessChanged(ctx, targetID)
	return nil
}

// loadActor locks the acting user. A vanished actor is treated as unauthorised.
func (s *Service) loadActor(ctx context.Context, tx TxStore, actorID uuid.UUID) (*models.User, error) {
	actor, err := tx.GetByIDForUpdate(ctx, actorID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Forbidden()
	}
	return actor, err
}

// lockPair locks actor and target rows in a fixed order so concurrent admin actions on each other
// cannot deadlock.
func (s *Service) lockPair(ctx context.Context, tx TxStore, actorID, targetID uuid.UUID) (actor, target *models.User, err error) {
	if actorID == targetID {
		actor, err = s.loadActor(ctx, tx, actorID)
		return actor, actor, err
	}
	if bytes.Compare(actorID[:], targetID[:]) < 0 {
		if actor, err = s.loadActor(ctx, tx, actorID); err != nil {
			return nil, nil, err
		}
		target, err = tx.GetByIDForUpdate(ctx, targetID)
	} else {
		if target, err = tx.GetByIDForUpdate(ctx, targetID); err != nil {
			return nil, nil, err
		}
		actor, err = s.loadActor(ctx, tx, actorID)
	}
	if err != nil {
		return nil, nil, err
	}
	return actor, target, nil
}
