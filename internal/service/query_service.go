package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/access"
	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// QueryService serves reverse-chronological pagination and substring search,
// both access-filtered.
type QueryService struct {
	msgs     MessageStore
	gate     *access.Gate
	receipts *ReceiptService
	log      *zap.SugaredLogger
}

func NewQueryService(msgs MessageStore, gate *access.Gate, receipts *ReceiptService, log *zap.SugaredLogger) *QueryService {
	return &QueryService{msgs: msgs, gate: gate, receipts: receipts, log: log}
}

// ListMessages fetches one page ordered newest-first from the store, then
// reverses it so callers render ascending chronological order. Returned
// messages not authored by the principal are marked read as a side effect.
func (s *QueryService) ListMessages(ctx context.Context, conversationID, principal string, page, limit int) ([]*domain.Message, error) {
	if _, err := s.gate.Require(ctx, conversationID, principal, access.CapRead); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	skip := int64(page-1) * int64(limit)
	msgs, err := s.msgs.List(ctx, conversationID, skip, int64(limit))
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	unread := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID != principal {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) > 0 {
		if _, err := s.receipts.MarkRead(ctx, conversationID, principal, unread); err != nil {
			s.log.Errorw("auto mark read", "conversation", conversationID, "user", principal, "err", err)
		}
	}
	return msgs, nil
}

func (s *QueryService) SearchMessages(ctx context.Context, conversationID, principal, query string, limit int) ([]*domain.Message, error) {
	if _, err := s.gate.Require(ctx, conversationID, principal, access.CapRead); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperr.E(apperr.ErrValidation, "query is empty")
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return s.msgs.Search(ctx, conversationID, query, int64(limit))
}
