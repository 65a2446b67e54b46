package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/access"
	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
)

// ConversationService owns conversation records: roster, settings, the
// last-message snapshot and per-participant unread counters.
type ConversationService struct {
	convs    ConversationStore
	gate     *access.Gate
	notifier Notifier
	cache    UnreadCache
	log      *zap.SugaredLogger
}

func NewConversationService(convs ConversationStore, gate *access.Gate, notifier Notifier, cache UnreadCache, log *zap.SugaredLogger) *ConversationService {
	return &ConversationService{convs: convs, gate: gate, notifier: notifier, cache: cache, log: log}
}

type CreateConversationInput struct {
	Type         string
	Participants []string
	Settings     *domain.Settings
	Context      map[string]string
}

func (s *ConversationService) Create(ctx context.Context, creatorID string, in CreateConversationInput) (*domain.Conversation, error) {
	switch in.Type {
	case domain.ConversationDirect:
		if len(in.Participants) != 1 || in.Participants[0] == "" {
			return nil, apperr.E(apperr.ErrValidation, "direct conversation needs exactly one peer")
		}
		if in.Participants[0] == creatorID {
			return nil, apperr.E(apperr.ErrValidation, "cannot open a direct conversation with yourself")
		}
		return s.createDirect(ctx, creatorID, in.Participants[0], in.Context)
	case domain.ConversationGroup:
		return s.createGroup(ctx, creatorID, in)
	default:
		return nil, apperr.E(apperr.ErrValidation, "unsupported conversation type %q", in.Type)
	}
}

func (s *ConversationService) createDirect(ctx context.Context, creatorID, peerID string, extra map[string]string) (*domain.Conversation, error) {
	conv := newConversation(domain.ConversationDirect, creatorID, extra)
	conv.DirectKey = domain.DirectKeyFor(creatorID, peerID)
	now := conv.CreatedAt
	conv.Participants = []domain.Participant{
		{UserID: creatorID, Role: domain.RoleMember, JoinedAt: now, IsActive: true},
		{UserID: peerID, Role: domain.RoleMember, JoinedAt: now, IsActive: true},
	}
	conv.UnreadCount = map[string]int64{creatorID: 0, peerID: 0}
	if err := s.convs.Insert(ctx, conv); err != nil {
		return nil, err
	}
	s.notify(ctx, Event{
		Kind:           EventConversationCreated,
		ConversationID: conv.ID,
		ActorID:        creatorID,
		Payload:        conv,
		At:             now,
	})
	return conv, nil
}

func (s *ConversationService) createGroup(ctx context.Context, creatorID string, in CreateConversationInput) (*domain.Conversation, error) {
	conv := newConversation(domain.ConversationGroup, creatorID, in.Context)
	if in.Settings != nil {
		conv.Settings = *in.Settings
		conv.Settings.IsArchived = false
	}
	now := conv.CreatedAt
	conv.Participants = []domain.Participant{
		{UserID: creatorID, Role: domain.RoleAdmin, JoinedAt: now, IsActive: true},
	}
	conv.UnreadCount = map[string]int64{creatorID: 0}
	for _, uid := range in.Participants {
		if uid == "" || uid == creatorID {
			continue
		}
		if _, dup := conv.UnreadCount[uid]; dup {
			continue
		}
		conv.Participants = append(conv.Participants, domain.Participant{
			UserID: uid, Role: domain.RoleMember, JoinedAt: now, IsActive: true,
		})
		conv.UnreadCount[uid] = 0
	}
	if err := s.convs.Insert(ctx, conv); err != nil {
		return nil, err
	}
	s.notify(ctx, Event{
		Kind:           EventConversationCreated,
		ConversationID: conv.ID,
		ActorID:        creatorID,
		Payload:        conv,
		At:             now,
	})
	return conv, nil
}

// EnsureDirect finds the direct conversation between the two users, creating
// it when it does not exist yet. A concurrent create is absorbed by
// re-reading after the unique-key conflict.
func (s *ConversationService) EnsureDirect(ctx context.Context, userID, peerID string) (*domain.Conversation, error) {
	if peerID == "" || peerID == userID {
		return nil, apperr.E(apperr.ErrValidation, "invalid peer id")
	}
	key := domain.DirectKeyFor(userID, peerID)
	conv, err := s.convs.FindDirect(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}
	conv, err = s.createDirect(ctx, userID, peerID, nil)
	if apperr.IsConflict(err) {
		return s.convs.FindDirect(ctx, key)
	}
	return conv, err
}

func (s *ConversationService) Get(ctx context.Context, conversationID, principal string) (*domain.Conversation, error) {
	return s.gate.Require(ctx, conversationID, principal, access.CapRead)
}

func (s *ConversationService) List(ctx context.Context, principal string, limit int64) ([]*domain.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.convs.ListForUser(ctx, principal, limit)
}

func (s *ConversationService) GetUnreadCount(ctx context.Context, conversationID, principal string) (int64, error) {
	if s.cache != nil {
		if n, ok := s.cache.GetUnread(ctx, conversationID, principal); ok {
			return n, nil
		}
	}
	conv, err := s.gate.Require(ctx, conversationID, principal, access.CapRead)
	if err != nil {
		return 0, err
	}
	n := conv.UnreadCount[principal]
	if s.cache != nil {
		s.cache.SetUnread(ctx, conversationID, principal, n)
	}
	return n, nil
}

func (s *ConversationService) AddParticipant(ctx context.Context, conversationID, principal, userID, role string) error {
	conv, err := s.gate.Require(ctx, conversationID, principal, access.CapAdmin)
	if err != nil {
		return err
	}
	if conv.Type != domain.ConversationGroup {
		return apperr.E(apperr.ErrValidation, "participants can only be added to group conversations")
	}
	if role == "" {
		role = domain.RoleMember
	}
	if role != domain.RoleMember && role != domain.RoleAdmin {
		return apperr.E(apperr.ErrValidation, "unknown role %q", role)
	}
	if p, ok := conv.Participant(userID); ok {
		if p.IsActive {
			return apperr.E(apperr.ErrConflict, "user %s is already a participant", userID)
		}
		return s.convs.ReactivateParticipant(ctx, conversationID, userID)
	}
	return s.convs.AddParticipant(ctx, conversationID, domain.Participant{
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
		IsActive: true,
	})
}

// RemoveParticipant deactivates a roster entry. Admins may remove anyone;
// a member may only remove themselves (leave).
func (s *ConversationService) RemoveParticipant(ctx context.Context, conversationID, principal, userID string) error {
	capability := access.CapAdmin
	if principal == userID {
		capability = access.CapRead
	}
	conv, err := s.gate.Require(ctx, conversationID, principal, capability)
	if err != nil {
		return err
	}
	p, ok := conv.Participant(userID)
	if !ok || !p.IsActive {
		return apperr.E(apperr.ErrNotFound, "user %s is not an active participant", userID)
	}
	if err := s.convs.DeactivateParticipant(ctx, conversationID, userID, time.Now().UTC()); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateUnread(ctx, conversationID, userID)
	}
	return nil
}

func (s *ConversationService) Archive(ctx context.Context, conversationID, principal string) error {
	if _, err := s.gate.Require(ctx, conversationID, principal, access.CapAdmin); err != nil {
		return err
	}
	return s.convs.Archive(ctx, conversationID)
}

func (s *ConversationService) notify(ctx context.Context, ev Event) {
	if s.notifier != nil {
		s.notifier.Publish(ctx, ev)
	}
}

func newConversation(typ, creatorID string, extra map[string]string) *domain.Conversation {
	now := time.Now().UTC()
	return &domain.Conversation{
		ID:        uuid.NewString(),
		Type:      typ,
		Context:   extra,
		Settings:  domain.Settings{AllowFileSharing: true, AllowMediaSharing: true, MaxAttachmentSize: 25 << 20},
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
