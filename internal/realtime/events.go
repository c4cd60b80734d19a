package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/models"
)

// Events pushed to browsers.
const (
	EventRequestSubmitted = "profile_update.submitted"
	EventRequestReviewed  = "profile_update.reviewed"
	EventSessionRevoked   = "session.revoked"
)

// RequestEvent is the payload of the profile update events.
type RequestEvent struct {
	RequestID       uuid.UUID            `json:"request_id"`
	UserID          uuid.UUID            `json:"user_id"`
	Fields          []string             `json:"fields"`
	Status          models.RequestStatus `json:"status"`
	RequestedAt     time.Time            `json:"requested_at"`
	ReviewedBy      *uuid.UUID           `json:"reviewed_by,omitempty"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
}

func newRequestEvent(req *models.ProfileUpdateRequest) RequestEvent {
	fields := make([]string, 0, len(req.RequestedChanges))
	for _, f := range []string{models.FieldName, models.FieldEmail} {
		if _, ok := req.RequestedChanges[f]; ok {
			fields = append(fields, f)
		}
	}
	return RequestEvent{
		RequestID:       req.ID,
		UserID:          req.UserID,
		Fields:          fields,
		Status:          req.Status,
		RequestedAt:     req.RequestedAt,
		ReviewedBy:      req.ReviewedBy,
		RejectionReason: req.RejectionReason,
	}
}

// RequestSubmitted tells reviewers and the requester a request joined the queue. A requester who is
// also a reviewer gets it once. Requested values are left out; reviewers fetch the request itself.
func (h *Hub) RequestSubmitted(ctx context.Context, req *models.ProfileUpdateRequest) {
	ev := newRequestEvent(req)
	h.publishAll(ctx, EventRequestSubmitted, ev,
		Message{Audience: AudienceReviewers, UserID: req.UserID},
	)
}

// RequestReviewed tells reviewers the request left the queue and the requester how it ended.
func (h *Hub) RequestReviewed(ctx context.Context, req *models.ProfileUpdateRequest) {
	ev := newRequestEvent(req)
	h.publishAll(ctx, EventRequestReviewed, ev,
		Message{Audience: AudienceReviewers, UserID: req.UserID},
	)
}

// AccessChanged closes the user's live connections so they reconnect with their current role,
// or not at all when suspended or deleted.
func (h *Hub) AccessChanged(ctx context.Context, userID uuid.UUID) {
	h.publishAll(ctx, EventSessionRevoked, map[string]string{"user_id": userID.String()},
		Message{Audience: AudienceUser, UserID: userID, Revoke: true},
	)
}

// publishAll is best effort: the state change has already committed.
func (h *Hub) publishAll(ctx context.Context, event string, payload interface{}, msgs ...Message) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal realtime event", zap.Error(err), zap.String("event", event))
		return
	}
	for _, m := range msgs {
		m.Event = event
		m.Data = data
		if err := h.Publish(ctx, m); err != nil {
			h.logger.Warn("publish realtime event", zap.Error(err), zap.String("event", event), zap.String("audience", string(m.Audience)))
		}
	}
}
