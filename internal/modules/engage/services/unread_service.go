package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/events"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// UnreadService maintains engage_unread_counts. The incremental path reacts
// to message.created; Recalculate rebuilds a count from message history and
// must agree with it.
type UnreadService struct {
	unread        repositories.UnreadRepo
	conversations repositories.ConversationRepo
	messages      repositories.MessageRepo
	now           func() time.Time
}

func NewUnreadService(unread repositories.UnreadRepo, conversations repositories.ConversationRepo, messages repositories.MessageRepo) *UnreadService {
	return &UnreadService{
		unread:        unread,
		conversations: conversations,
		messages:      messages,
		now:           utcNow,
	}
}

// Subscribe registers the incremental path on the bus.
func (s *UnreadService) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.MessageCreated, s.HandleMessageCreated)
}

// HandleMessageCreated bumps the count of every active participant except
// the user who sent the message.
func (s *UnreadService) HandleMessageCreated(ctx context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(MessageCreatedPayload)
	if !ok {
		return nil
	}

	participants, err := s.conversations.ActiveParticipants(ctx, payload.ConversationID)
	if err != nil {
		return err
	}

	targets := make([]uuid.UUID, 0, len(participants))
	for _, userID := range participants {
		if payload.SenderUserID != nil && *payload.SenderUserID == userID {
			continue
		}
		targets = append(targets, userID)
	}
	return s.unread.Increment(ctx, payload.ConversationID, targets)
}

// Get returns the user's cached count for a conversation.
func (s *UnreadService) Get(ctx context.Context, tenantID, conversationID, userID uuid.UUID) (*models.UnreadCount, error) {
	if _, err := s.conversations.FindByID(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	return s.unread.Get(ctx, userID, conversationID)
}

// MarkAsRead zeroes the user's count and moves last_read_at to now. Other
// users' counts are untouched.
func (s *UnreadService) MarkAsRead(ctx context.Context, tenantID, conversationID, userID uuid.UUID) error {
	if _, err := s.conversations.FindByID(ctx, tenantID, conversationID); err != nil {
		return err
	}
	ok, err := s.unread.MarkRead(ctx, userID, conversationID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.NotFound, "unread.MarkAsRead", "user is not a participant")
	}
	return nil
}

// errCountMoved means a read or an increment landed while a count was being
// rebuilt.
var errCountMoved = errors.New("unread count changed during recalculation")

// Recalculate rebuilds the count from messages created after last_read_at
// and not sent by the user, stores it and returns it.
func (s *UnreadService) Recalculate(ctx context.Context, tenantID, userID, conversationID uuid.UUID) (int64, error) {
	if _, err := s.conversations.FindByID(ctx, tenantID, conversationID); err != nil {
		return 0, err
	}
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		uc, err := s.unread.Get(ctx, userID, conversationID)
		if err != nil {
			return 0, err
		}
		n, _, err := s.recalculate(ctx, uc)
		if errors.Is(err, errCountMoved) {
			continue
		}
		return n, err
	}
	return 0, apperrors.New(apperrors.Transient, "unread.Recalculate", "count kept changing")
}

// recalculate writes the rebuilt count as a compare-and-set on the row it
// was derived from, so a concurrent MarkAsRead or increment is never lost.
func (s *UnreadService) recalculate(ctx context.Context, uc *models.UnreadCount) (int64, bool, error) {
	n, err := s.messages.CountUnread(ctx, uc.ConversationID, uc.LastReadAt, uc.UserID)
	if err != nil {
		return 0, false, err
	}
	if n == uc.Count {
		return n, false, nil
	}
	ok, err := s.unread.SetCount(ctx, uc, n)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, errCountMoved
	}
	return n, true, nil
}

// RecalculateAll reconciles every cached count and returns how many were
// wrong. Rows that fail are logged and skipped.
func (s *UnreadService) RecalculateAll(ctx context.Context) (int, error) {
	const page = 200
	corrected := 0

	for offset := 0; ; offset += page {
		rows, err := s.unread.List(ctx, page, offset)
		if err != nil {
			return corrected, err
		}
		for i := range rows {
			if ctx.Err() != nil {
				return corrected, ctx.Err()
			}
			_, fixed, err := s.recalculate(ctx, &rows[i])
			if errors.Is(err, errCountMoved) {
				// live traffic touched the row; the next sweep checks it again
				continue
			}
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return corrected, err
				}
				utils.LogWarn("unread recalculation failed", map[string]interface{}{
					"user_id":         rows[i].UserID.String(),
					"conversation_id": rows[i].ConversationID.String(),
					"error":           err.Error(),
				})
				continue
			}
			if fixed {
				corrected++
			}
		}
		if len(rows) < page {
			break
		}
	}

	if corrected > 0 {
		utils.LogWarn("unread counts drifted and were corrected", map[string]interface{}{"corrected": corrected})
	}
	return corrected, nil
}
