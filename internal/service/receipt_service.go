package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/access"
	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/metrics"
)

// ReceiptService records read events idempotently and derives read rosters.
type ReceiptService struct {
	receipts ReceiptStore
	msgs     MessageStore
	convs    ConversationStore
	gate     *access.Gate
	cache    UnreadCache
	log      *zap.SugaredLogger
}

func NewReceiptService(receipts ReceiptStore, msgs MessageStore, convs ConversationStore, gate *access.Gate, cache UnreadCache, log *zap.SugaredLogger) *ReceiptService {
	return &ReceiptService{receipts: receipts, msgs: msgs, convs: convs, gate: gate, cache: cache, log: log}
}

// MarkRead records a receipt for each referenced message the principal has
// not read yet. The principal's own messages are skipped, re-marking is a
// no-op, and the unread counter is reset only when at least one new receipt
// was written. Returns the number of receipts inserted.
func (s *ReceiptService) MarkRead(ctx context.Context, conversationID, principal string, messageIDs []string) (int, error) {
	if len(messageIDs) == 0 {
		return 0, apperr.E(apperr.ErrValidation, "message_ids is empty")
	}
	if _, err := s.gate.Require(ctx, conversationID, principal, access.CapRead); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	inserted := 0
	for _, id := range messageIDs {
		m, err := s.msgs.Get(ctx, id)
		if err != nil {
			if apperr.IsNotFound(err) {
				continue
			}
			return inserted, err
		}
		if m.ConversationID != conversationID || m.SenderID == principal {
			continue
		}
		ok, err := s.receipts.Insert(ctx, &domain.ReadReceipt{
			MessageID:      id,
			ConversationID: conversationID,
			UserID:         principal,
			ReadAt:         now,
		})
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}

	if inserted > 0 {
		if err := s.convs.ResetUnread(ctx, conversationID, principal); err != nil {
			s.log.Errorw("reset unread", "conversation", conversationID, "user", principal, "err", err)
		}
		if s.cache != nil {
			s.cache.InvalidateUnread(ctx, conversationID, principal)
		}
		metrics.ReceiptsRecorded.Add(float64(inserted))
	}
	return inserted, nil
}

func (s *ReceiptService) GetReceipts(ctx context.Context, messageID, principal string) ([]*domain.ReadReceipt, error) {
	m, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, m.ConversationID, principal, access.CapRead); err != nil {
		return nil, err
	}
	return s.receipts.ListByMessage(ctx, messageID)
}

// LastRead pairs a participant with their most recent receipt.
type LastRead struct {
	UserID    string    `json:"user_id"`
	MessageID string    `json:"message_id"`
	ReadAt    time.Time `json:"read_at"`
}

// GetLastReadPerParticipant returns, for each active participant with at
// least one receipt, the newest message they have read. Used for "seen"
// indicators.
func (s *ReceiptService) GetLastReadPerParticipant(ctx context.Context, conversationID, principal string) ([]LastRead, error) {
	conv, err := s.gate.Require(ctx, conversationID, principal, access.CapRead)
	if err != nil {
		return nil, err
	}
	byUser, err := s.receipts.LastPerUser(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := []LastRead{}
	for _, uid := range conv.ActiveParticipantIDs() {
		rec, ok := byUser[uid]
		if !ok {
			continue
		}
		out = append(out, LastRead{UserID: uid, MessageID: rec.MessageID, ReadAt: rec.ReadAt})
	}
	return out, nil
}
