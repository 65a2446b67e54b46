package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/access"
	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/metrics"
)

// ReactionService keeps at most one reaction per (user, emoji) per message.
type ReactionService struct {
	msgs     MessageStore
	gate     *access.Gate
	notifier Notifier
	log      *zap.SugaredLogger
}

func NewReactionService(msgs MessageStore, gate *access.Gate, notifier Notifier, log *zap.SugaredLogger) *ReactionService {
	return &ReactionService{msgs: msgs, gate: gate, notifier: notifier, log: log}
}

func (s *ReactionService) Add(ctx context.Context, messageID, principal, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return apperr.E(apperr.ErrValidation, "emoji is empty")
	}
	m, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := s.gate.Require(ctx, m.ConversationID, principal, access.CapWrite); err != nil {
		return err
	}
	if m.IsDeleted {
		return apperr.E(apperr.ErrConflict, "message is deleted")
	}
	now := time.Now().UTC()
	added, err := s.msgs.AddReaction(ctx, messageID, domain.Reaction{UserID: principal, Emoji: emoji, Timestamp: now})
	if err != nil {
		return err
	}
	if !added {
		return apperr.E(apperr.ErrConflict, "reaction %q already exists", emoji)
	}
	metrics.ReactionsAdded.Inc()
	s.notify(ctx, Event{
		Kind:           EventReactionAdded,
		ConversationID: m.ConversationID,
		ActorID:        principal,
		Payload:        map[string]string{"message_id": messageID, "emoji": emoji},
		At:             now,
	})
	return nil
}

// Remove deletes the matching reaction; removing an absent one is a no-op.
func (s *ReactionService) Remove(ctx context.Context, messageID, principal, emoji string) error {
	m, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := s.gate.Require(ctx, m.ConversationID, principal, access.CapWrite); err != nil {
		return err
	}
	if err := s.msgs.RemoveReaction(ctx, messageID, principal, emoji); err != nil {
		return err
	}
	s.notify(ctx, Event{
		Kind:           EventReactionRemoved,
		ConversationID: m.ConversationID,
		ActorID:        principal,
		Payload:        map[string]string{"message_id": messageID, "emoji": emoji},
		At:             time.Now().UTC(),
	})
	return nil
}

func (s *ReactionService) Counts(ctx context.Context, messageID, principal string) (map[string]int, error) {
	m, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, m.ConversationID, principal, access.CapRead); err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, r := range m.Reactions {
		counts[r.Emoji]++
	}
	return counts, nil
}

func (s *ReactionService) notify(ctx context.Context, ev Event) {
	if s.notifier != nil {
		s.notifier.Publish(ctx, ev)
	}
}
