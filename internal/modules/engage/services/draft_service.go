package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

// Drafter generates a reply from a system prompt and history.
type Drafter interface {
	GenerateResponse(ctx context.Context, systemPrompt string, history []llm.Turn) (string, error)
}

// DraftResponse is returned by POST /conversations/:id/draft
type DraftResponse struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Draft          string    `json:"draft"`
}

// DraftService asks the model for a suggested agent reply. Drafts are
// returned to the agent, never sent.
type DraftService struct {
	conversations repositories.ConversationRepo
	customers     repositories.CustomerRepo
	messages      repositories.MessageRepo
	drafter       Drafter
	historySize   int
}

func NewDraftService(conversations repositories.ConversationRepo, customers repositories.CustomerRepo, messages repositories.MessageRepo, drafter Drafter) *DraftService {
	return &DraftService{
		conversations: conversations,
		customers:     customers,
		messages:      messages,
		drafter:       drafter,
		historySize:   20,
	}
}

func (s *DraftService) Draft(ctx context.Context, tenantID, conversationID uuid.UUID) (*DraftResponse, error) {
	const op = "draft.Draft"

	conv, err := s.conversations.FindByID(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	customer, err := s.customers.FindByID(ctx, tenantID, conv.CustomerID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListRecent(ctx, tenantID, conversationID, s.historySize)
	if err != nil {
		return nil, err
	}

	history := toTurns(msgs)
	if len(history) == 0 || history[len(history)-1].Role != llm.RoleCustomer {
		return nil, apperrors.New(apperrors.PreconditionFailed, op, "no customer message awaiting a reply")
	}

	text, err := s.drafter.GenerateResponse(ctx, llm.BuildSystemPrompt(draftContext(customer)), history)
	if errors.Is(err, llm.ErrDisabled) {
		return nil, apperrors.Wrap(apperrors.PreconditionFailed, op, err)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Transient, op, err)
	}
	return &DraftResponse{ConversationID: conversationID, Draft: text}, nil
}

func toTurns(msgs []models.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		role := llm.RoleAgent
		if m.SenderType == models.SenderCustomer {
			role = llm.RoleCustomer
		}
		turns = append(turns, llm.Turn{Role: role, Content: m.Content})
	}
	return turns
}

func draftContext(c *models.Customer) llm.DraftContext {
	dc := llm.DraftContext{}
	if c.DisplayName != c.Phone {
		dc.CustomerName = c.DisplayName
	}
	if c.BloodType != "" {
		dc.Notes = append(dc.Notes, "blood type "+c.BloodType)
	}
	if c.LastDonationAt != nil {
		dc.Notes = append(dc.Notes, fmt.Sprintf("last donation %s", c.LastDonationAt.Format("2006-01-02")))
	}
	return dc
}
