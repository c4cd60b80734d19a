// Package approvals implements the profile update workflow: users propose changes to their own
// profile and a manager or higher approves or rejects them.
//
// A request is pending until reviewed, then approved or rejected for good. Every transition writes
// its audit entry and notification in the same transaction as the state change.
package approvals

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/apperr"
	"github.com/tender-hub/backend/internal/audit"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/notifications"
	"github.com/tender-hub/backend/internal/permissions"
	"github.com/tender-hub/backend/internal/telemetry"
	"github.com/tender-hub/backend/internal/users"
	"github.com/tender-hub/backend/pkg/utils"
)

// Review actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Events is told about transitions once they have committed.
type Events interface {
	RequestSubmitted(ctx context.Context, req *models.ProfileUpdateRequest)
	RequestReviewed(ctx context.Context, req *models.ProfileUpdateRequest)
}

// Service runs the approval workflow.
type Service struct {
	store  Store
	events Events
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates an approvals service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, now: time.Now, logger: logger}
}

// SetEvents sets the receiver of committed transitions (optional).
func (s *Service) SetEvents(e Events) {
	s.events = e
}

// SubmitInput is a user's proposed change-set.
type SubmitInput struct {
	UserID    uuid.UUID
	Changes   map[string]string
	Reason    string
	IPAddress string
}

// ReviewInput is a reviewer's decision on a request.
type ReviewInput struct {
	RequestID  uuid.UUID
	ReviewerID uuid.UUID
	Action     string
	Reason     string
	IPAddress  string
}

// normalizeChanges checks the change-set against the allow-list and canonicalises values.
func normalizeChanges(changes map[string]string) (map[string]string, error) {
	if len(changes) == 0 {
		return nil, apperr.FieldError("changes", "must contain at least one field")
	}
	fields := map[string]string{}
	out := make(map[string]string, len(changes))
	for field, value := range changes {
		if _, ok := models.AllowedProfileFields[field]; !ok {
			fields[field] = "field not allowed"
			continue
		}
		value = strings.TrimSpace(value)
		switch field {
		case models.FieldName:
			if value == "" {
				fields[field] = "must not be empty"
				continue
			}
			if utf8.RuneCountInString(value) > users.MaxNameLength {
				fields[field] = "must be at most 255 characters"
				continue
			}
		case models.FieldEmail:
			email, ok := utils.NormalizeEmail(value)
			if !ok {
				fields[field] = "must be a valid email address"
				continue
			}
			value = email
		}
		out[field] = value
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid changes", fields)
	}
	return out, nil
}

func currentValue(u *models.User, field string) string {
	switch field {
	case models.FieldName:
		return u.Name
	case models.FieldEmail:
		return u.Email
	}
	return ""
}

// Submit records a pending change-set for the user.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.ProfileUpdateRequest, error) {
	changes, err := normalizeChanges(in.Changes)
	if err != nil {
		return nil, err
	}
	req := &models.ProfileUpdateRequest{
		UserID:           in.UserID,
		RequestedChanges: changes,
		Reason:           strings.TrimSpace(in.Reason),
	}
	err = s.store.WithTx(ctx, func(tx TxStore) error {
		user, err := tx.GetUserForUpdate(ctx, in.UserID)
		if err != nil {
			return err
		}
		if !user.IsActive() {
			return apperr.Forbidden()
		}
		pending, err := tx.HasPending(ctx, user.ID)
		if err != nil {
			return err
		}
		if pending {
			return ErrPendingExists
		}

		fields := map[string]string{}
		for field, value := range changes {
			current := currentValue(user, field)
			if current == value || (field == models.FieldEmail && strings.EqualFold(current, value)) {
				fields[field] = "matches the current value"
			}
		}
		if email, ok := changes[models.FieldEmail]; ok && fields[models.FieldEmail] == "" {
			taken, err := tx.EmailTaken(ctx, email, user.ID)
			if err != nil {
				return err
			}
			if taken {
				fields[models.FieldEmail] = "already in use"
			}
		}
		if len(fields) > 0 {
			return apperr.Validation("invalid changes", fields)
		}

		if err := tx.CreateRequest(ctx, req); err != nil {
			return err
		}
		md := audit.ProfileUpdateRequested{RequestID: req.ID, Changes: req.RequestedChanges, Reason: req.Reason}
		if err := tx.RecordAudit(ctx, &user.ID, &user.ID, md, in.IPAddress); err != nil {
			return err
		}
		return tx.Notify(ctx, notifications.NewIntent(models.TemplateProfileUpdateSubmitted, user.Email, map[string]string{
			"name":       user.Name,
			"request_id": req.ID.String(),
		}))
	})
	if err != nil {
		return nil, err
	}
	telemetry.ApprovalTransitionsTotal.WithLabelValues("submitted").Inc()
	s.logger.Info("profile update submitted", zap.String("request_id", req.ID.String()), zap.String("user_id", req.UserID.String()))
	if s.events != nil {
		s.events.RequestSubmitted(ctx, req)
	}
	return req, nil
}

// Review approves or rejects a pending request. Approval applies the changes to the requester.
func (s *Service) Review(ctx context.Context, in ReviewInput) (*models.ProfileUpdateRequest, error) {
	if in.Action != ActionApprove && in.Action != ActionReject {
		return nil, apperr.FieldError("action", "must be approve or reject")
	}
	var req *models.ProfileUpdateRequest
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		var err error
		req, err = tx.GetRequest(ctx, in.RequestID)
		if err != nil {
			return err
		}
		if !req.IsPending() {
			return ErrAlreadyReviewed
		}
		if in.Action == ActionReject && strings.TrimSpace(in.Reason) == "" {
			return apperr.FieldError("reason", "is required when rejecting")
		}

		reviewer, requester, err := lockUsers(ctx, tx, in.ReviewerID, req.UserID)
		if err != nil {
			return err
		}
		if reviewer.ID == requester.ID || !permissions.For(reviewer, requester).CanReviewProfileUpdate() {
			return apperr.Forbidden()
		}

		now := s.now().UTC()
		req.ReviewedBy = &reviewer.ID
		req.ReviewedAt = &now
		if in.Action == ActionApprove {
			return s.approve(ctx, tx, req, reviewer, requester, in.IPAddress)
		}
		return s.reject(ctx, tx, req, reviewer, requester, in.Reason, in.IPAddress)
	})
	if err != nil {
		return nil, err
	}
	telemetry.ApprovalTransitionsTotal.WithLabelValues(string(req.Status)).Inc()
	s.logger.Info("profile update reviewed",
		zap.String("request_id", req.ID.String()),
		zap.String("status", string(req.Status)),
		zap.String("reviewer_id", in.ReviewerID.String()),
	)
	if s.events != nil {
		s.events.RequestReviewed(ctx, req)
	}
	return req, nil
}

func (s *Service) approve(ctx context.Context, tx TxStore, req *models.ProfileUpdateRequest, reviewer, requester *models.User, ip string) error {
	previous := make(map[string]string, len(req.RequestedChanges))
	for field := range req.RequestedChanges {
		previous[field] = currentValue(requester, field)
	}
	name, email := requester.Name, requester.Email
	if v, ok := req.RequestedChanges[models.FieldName]; ok {
		name = v
	}
	if v, ok := req.RequestedChanges[models.FieldEmail]; ok {
		taken, err := tx.EmailTaken(ctx, v, requester.ID)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("requested email is now in use by another user")
		}
		email = v
	}

	req.Status = models.RequestStatusApproved
	if err := tx.CompleteReview(ctx, req); err != nil {
		return err
	}
	if err := tx.UpdateUserProfile(ctx, requester.ID, name, email); err != nil {
		return err
	}
	md := audit.ProfileUpdateApproved{RequestID: req.ID, PreviousValues: previous, NewValues: req.RequestedChanges}
	if err := tx.RecordAudit(ctx, &reviewer.ID, &requester.ID, md, ip); err != nil {
		return err
	}
	// Sent to the address on record before the change so an unexpected email change is noticed.
	return tx.Notify(ctx, notifications.NewIntent(models.TemplateProfileUpdateApproved, requester.Email, map[string]string{
		"name":       name,
		"request_id": req.ID.String(),
	}))
}

func (s *Service) reject(ctx context.Context, tx TxStore, req *models.ProfileUpdateRequest, reviewer, requester *models.User, reason, ip string) error {
	req.Status = models.RequestStatusRejected
	req.RejectionReason = &reason
	if err := tx.CompleteReview(ctx, req); err != nil {
		return err
	}
	md := audit.ProfileUpdateRejected{RequestID: req.ID, RequestedValues: req.RequestedChanges, RejectionReason: reason}
	if err := tx.RecordAudit(ctx, &reviewer.ID, &requester.ID, md, ip); err != nil {
		return err
	}
	return tx.Notify(ctx, notifications.NewIntent(models.TemplateProfileUpdateRejected, requester.Email, map[string]string{
		"name":       requester.Name,
		"request_id": req.ID.String(),
		"reason":     reason,
	}))
}

// lockUsers locks both users in a fixed order so reviews running against each other cannot
// deadlock. A vanished reviewer is unauthorised.
func lockUsers(ctx context.Context, tx TxStore, reviewerID, requesterID uuid.UUID) (reviewer, requester *models.User, err error) {
	loadReviewer := func() error {
		reviewer, err = tx.GetUserForUpdate(ctx, reviewerID)
		if errors.Is(err, users.ErrNotFound) {
			err = apperr.Forbidden()
		}
		return err
	}
	loadRequester := func() error {
		requester, err = tx.GetUserForUpdate(ctx, requesterID)
		return err
	}
	if reviewerID == requesterID {
		if err := loadReviewer(); err != nil {
			return nil, nil, err
		}
		return reviewer, reviewer, nil
	}
	first, second := loadReviewer, loadRequester
	if bytes.Compare(requesterID[:], reviewerID[:]) < 0 {
		first, second = loadRequester, loadReviewer
	}
	if err := first(); err != nil {
		return nil, nil, err
	}
	if err := second(); err != nil {
		return nil, nil, err
	}
	return reviewer, requester, nil
}

// Get returns a request. Users see their own requests, managers and above see any.
func (s *Service) Get(ctx context.Context, viewer *models.User, id uuid.UUID) (*models.ProfileUpdateRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != viewer.ID && !permissions.For(viewer, nil).HasRoleOrHigher(models.RoleManager) {
		return nil, apperr.Forbidden()
	}
	return req, nil
}

// ListPending returns the review queue, oldest first.
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]models.ProfileUpdateRequest, int, error) {
	return s.store.ListPending(ctx, limit, offset)
}

// ListForUser returns the user's own requests, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ProfileUpdateRequest, error) {
	return s.store.ListForUser(ctx, userID)
}
