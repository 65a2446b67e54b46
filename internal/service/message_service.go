package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/access"
	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/metrics"
)

// EditWindow bounds how long after creation a sender may change content.
const EditWindow = 15 * time.Minute

const previewLen = 120

// MessageService drives the message lifecycle: create, edit, soft delete,
// plus the unread-counter fan-out and last-message bookkeeping that belong
// to the same logical operation.
type MessageService struct {
	msgs     MessageStore
	convs    ConversationStore
	gate     *access.Gate
	convSvc  *ConversationService
	notifier Notifier
	cache    UnreadCache
	log      *zap.SugaredLogger
}

func NewMessageService(msgs MessageStore, convs ConversationStore, gate *access.Gate, convSvc *ConversationService, notifier Notifier, cache UnreadCache, log *zap.SugaredLogger) *MessageService {
	return &MessageService{msgs: msgs, convs: convs, gate: gate, convSvc: convSvc, notifier: notifier, cache: cache, log: log}
}

type CreateMessageInput struct {
	ConversationID string
	// PeerID opens (or reuses) a direct conversation when ConversationID
	// is empty.
	PeerID  string
	Type    string
	Content string
	File    *domain.FileRef
	ReplyTo string
}

func (s *MessageService) Create(ctx context.Context, senderID string, in CreateMessageInput) (*domain.Message, error) {
	conv, err := s.resolveConversation(ctx, senderID, in)
	if err != nil {
		return nil, err
	}

	if in.Type == "" {
		in.Type = domain.MessageText
	}
	switch in.Type {
	case domain.MessageText:
		if strings.TrimSpace(in.Content) == "" {
			return nil, apperr.E(apperr.ErrValidation, "message content is empty")
		}
	case domain.MessageFile:
		if in.File == nil || in.File.URL == "" {
			return nil, apperr.E(apperr.ErrValidation, "file message needs a file reference")
		}
		if !conv.Settings.AllowFileSharing {
			return nil, apperr.E(apperr.ErrForbidden, "file sharing is disabled for this conversation")
		}
		if conv.Settings.MaxAttachmentSize > 0 && in.File.FileSize > conv.Settings.MaxAttachmentSize {
			return nil, apperr.E(apperr.ErrValidation, "attachment exceeds %d bytes", conv.Settings.MaxAttachmentSize)
		}
	default:
		return nil, apperr.E(apperr.ErrValidation, "unsupported message type %q", in.Type)
	}

	if in.ReplyTo != "" {
		parent, err := s.msgs.Get(ctx, in.ReplyTo)
		if err != nil {
			return nil, err
		}
		if parent.ConversationID != conv.ID {
			return nil, apperr.E(apperr.ErrValidation, "reply_to references a message outside this conversation")
		}
	}

	now := time.Now().UTC()
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Type:           in.Type,
		Content:        in.Content,
		File:           in.File,
		ReplyTo:        in.ReplyTo,
		Reactions:      []domain.Reaction{},
		CreatedAt:      now,
	}
	if err := s.msgs.Insert(ctx, m); err != nil {
		return nil, err
	}

	if err := s.convs.SetLastMessage(ctx, conv.ID, snapshot(m)); err != nil {
		s.log.Errorw("set last message", "conversation", conv.ID, "err", err)
	}

	recipients := make([]string, 0, len(conv.Participants))
	for _, uid := range conv.ActiveParticipantIDs() {
		if uid != senderID {
			recipients = append(recipients, uid)
		}
	}
	if err := s.convs.IncrementUnread(ctx, conv.ID, recipients); err != nil {
		s.log.Errorw("increment unread", "conversation", conv.ID, "err", err)
	}
	if s.cache != nil {
		s.cache.InvalidateUnread(ctx, conv.ID, recipients...)
	}

	metrics.MessagesCreated.Inc()
	s.notify(ctx, Event{Kind: EventMessageCreated, ConversationID: conv.ID, ActorID: senderID, Payload: m, At: now})
	return m, nil
}

func (s *MessageService) resolveConversation(ctx context.Context, senderID string, in CreateMessageInput) (*domain.Conversation, error) {
	if in.ConversationID != "" {
		return s.gate.Require(ctx, in.ConversationID, senderID, access.CapWrite)
	}
	if in.PeerID != "" {
		return s.convSvc.EnsureDirect(ctx, senderID, in.PeerID)
	}
	return nil, apperr.E(apperr.ErrValidation, "conversation_id or peer_id required")
}

func (s *MessageService) Edit(ctx context.Context, messageID, senderID, newContent string) (*domain.Message, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, apperr.E(apperr.ErrValidation, "message content is empty")
	}
	m, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, m.ConversationID, senderID, access.CapWrite); err != nil {
		return nil, err
	}
	if m.SenderID != senderID {
		return nil, apperr.E(apperr.ErrForbidden, "only the sender may edit a message")
	}
	if m.Type != domain.MessageText {
		return nil, apperr.E(apperr.ErrValidation, "only text messages can be edited")
	}
	if m.IsDeleted {
		return nil, apperr.E(apperr.ErrConflict, "message is deleted")
	}
	now := time.Now().UTC()
	if now.Sub(m.CreatedAt) > EditWindow {
		return nil, apperr.E(apperr.ErrConflict, "edit window of %s has expired", EditWindow)
	}
	if err := s.msgs.SetContent(ctx, messageID, newContent, now); err != nil {
		return nil, err
	}
	m.Content = newContent
	m.EditedAt = &now

	if err := s.convs.SetLastMessagePreview(ctx, m.ConversationID, messageID, preview(m)); err != nil {
		s.log.Errorw("refresh last message preview", "conversation", m.ConversationID, "err", err)
	}

	metrics.MessagesEdited.Inc()
	s.notify(ctx, Event{Kind: EventMessageEdited, ConversationID: m.ConversationID, ActorID: senderID, Payload: m, At: now})
	return m, nil
}

// Delete soft-deletes a message and, when it was the conversation's last
// message, re-anchors the pointer at the newest remaining visible message.
// The recompute is best effort; the next send always re-anchors it.
func (s *MessageService) Delete(ctx context.Context, messageID, senderID string) error {
	m, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return err
	}
	conv, err := s.gate.Require(ctx, m.ConversationID, senderID, access.CapWrite)
	if err != nil {
		return err
	}
	if m.SenderID != senderID {
		return apperr.E(apperr.ErrForbidden, "only the sender may delete a message")
	}
	if m.IsDeleted {
		return nil
	}
	if err := s.msgs.SoftDelete(ctx, messageID, domain.DeletedPlaceholder); err != nil {
		return err
	}

	if conv.LastMessage != nil && conv.LastMessage.MessageID == messageID {
		newest, err := s.msgs.NewestVisible(ctx, m.ConversationID)
		switch {
		case err == nil:
			if err := s.convs.SetLastMessage(ctx, m.ConversationID, snapshot(newest)); err != nil {
				s.log.Errorw("re-anchor last message", "conversation", m.ConversationID, "err", err)
			}
		case apperr.IsNotFound(err):
			if err := s.convs.ClearLastMessage(ctx, m.ConversationID); err != nil {
				s.log.Errorw("clear last message", "conversation", m.ConversationID, "err", err)
			}
		default:
			s.log.Errorw("scan for last message", "conversation", m.ConversationID, "err", err)
		}
	}

	metrics.MessagesDeleted.Inc()
	s.notify(ctx, Event{Kind: EventMessageDeleted, ConversationID: m.ConversationID, ActorID: senderID, Payload: map[string]string{"message_id": messageID}, At: time.Now().UTC()})
	return nil
}

func (s *MessageService) notify(ctx context.Context, ev Event) {
	if s.notifier != nil {
		s.notifier.Publish(ctx, ev)
	}
}

func snapshot(m *domain.Message) *domain.LastMessage {
	return &domain.LastMessage{
		MessageID:      m.ID,
		ContentPreview: preview(m),
		SenderID:       m.SenderID,
		SentAt:         m.CreatedAt,
	}
}

func preview(m *domain.Message) string {
	if m.Type == domain.MessageFile && m.File != nil {
		return m.File.FileName
	}
	r := []rune(m.Content)
	if len(r) > previewLen {
		return string(r[:previewLen])
	}
	return m.Content
}
