package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/access"
	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
)

// In-memory store fakes that keep the same targeted-update semantics as the
// Mongo repositories: counter and pointer mutations touch single keys under
// a lock, so the concurrency tests exercise the real contract.

type fakeConvStore struct {
	mu    sync.Mutex
	convs map[string]*domain.Conversation
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{convs: map[string]*domain.Conversation{}}
}

func copyConv(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Participants = append([]domain.Participant(nil), c.Participants...)
	cp.UnreadCount = map[string]int64{}
	for k, v := range c.UnreadCount {
		cp.UnreadCount[k] = v
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}

func (s *fakeConvStore) Insert(_ context.Context, c *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.DirectKey != "" {
		for _, existing := range s.convs {
			if existing.DirectKey == c.DirectKey {
				return apperr.E(apperr.ErrConflict, "direct conversation already exists")
			}
		}
	}
	s.convs[c.ID] = copyConv(c)
	return nil
}

func (s *fakeConvStore) Get(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, apperr.E(apperr.ErrNotFound, "conversation %s", id)
	}
	return copyConv(c), nil
}

func (s *fakeConvStore) FindDirect(_ context.Context, key string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.convs {
		if c.DirectKey == key {
			return copyConv(c), nil
		}
	}
	return nil, apperr.E(apperr.ErrNotFound, "direct conversation %s", key)
}

func (s *fakeConvStore) ListForUser(_ context.Context, userID string, limit int64) ([]*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Conversation{}
	for _, c := range s.convs {
		if p, ok := c.Participant(userID); ok && p.IsActive {
			out = append(out, copyConv(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeConvStore) SetLastMessage(_ context.Context, id string, lm *domain.LastMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		snap := *lm
		c.LastMessage = &snap
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *fakeConvStore) SetLastMessagePreview(_ context.Context, id, messageID, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok && c.LastMessage != nil && c.LastMessage.MessageID == messageID {
		c.LastMessage.ContentPreview = preview
	}
	return nil
}

func (s *fakeConvStore) ClearLastMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		c.LastMessage = nil
	}
	return nil
}

func (s *fakeConvStore) IncrementUnread(_ context.Context, id string, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		for _, uid := range userIDs {
			c.UnreadCount[uid]++
		}
	}
	return nil
}

func (s *fakeConvStore) ResetUnread(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		c.UnreadCount[userID] = 0
	}
	return nil
}

func (s *fakeConvStore) AddParticipant(_ context.Context, id string, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil
	}
	if _, exists := c.Participant(p.UserID); exists {
		return nil
	}
	c.Participants = append(c.Participants, p)
	c.UnreadCount[p.UserID] = 0
	return nil
}

func (s *fakeConvStore) ReactivateParticipant(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		if p, exists := c.Participant(userID); exists {
			p.IsActive = true
			p.LeftAt = nil
			c.UnreadCount[userID] = 0
		}
	}
	return nil
}

func (s *fakeConvStore) DeactivateParticipant(_ context.Context, id, userID string, leftAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		if p, exists := c.Participant(userID); exists {
			p.IsActive = false
			t := leftAt
			p.LeftAt = &t
			delete(c.UnreadCount, userID)
		}
	}
	return nil
}

func (s *fakeConvStore) Archive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		c.Settings.IsArchived = true
	}
	return nil
}

type fakeMsgStore struct {
	mu   sync.Mutex
	msgs map[string]*domain.Message
}

func newFakeMsgStore() *fakeMsgStore {
	return &fakeMsgStore{msgs: map[string]*domain.Message{}}
}

func copyMsg(m *domain.Message) *domain.Message {
	cp := *m
	cp.Reactions = append([]domain.Reaction(nil), m.Reactions...)
	if m.EditedAt != nil {
		t := *m.EditedAt
		cp.EditedAt = &t
	}
	return &cp
}

func (s *fakeMsgStore) Insert(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[m.ID] = copyMsg(m)
	return nil
}

func (s *fakeMsgStore) Get(_ context.Context, id string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, apperr.E(apperr.ErrNotFound, "message %s", id)
	}
	return copyMsg(m), nil
}

func (s *fakeMsgStore) SetContent(_ context.Context, id, content string, editedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.msgs[id]; ok {
		m.Content = content
		t := editedAt
		m.EditedAt = &t
	}
	return nil
}

func (s *fakeMsgStore) SoftDelete(_ context.Context, id, placeholder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.msgs[id]; ok {
		m.IsDeleted = true
		m.Content = placeholder
		m.File = nil
	}
	return nil
}

func (s *fakeMsgStore) sorted(conversationID string) []*domain.Message {
	out := []*domain.Message{}
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, copyMsg(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *fakeMsgStore) NewestVisible(_ context.Context, conversationID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.sorted(conversationID) {
		if !m.IsDeleted {
			return m, nil
		}
	}
	return nil, apperr.E(apperr.ErrNotFound, "no visible message in %s", conversationID)
}

func (s *fakeMsgStore) List(_ context.Context, conversationID string, skip, limit int64) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted(conversationID)
	if skip >= int64(len(all)) {
		return []*domain.Message{}, nil
	}
	all = all[skip:]
	if int64(len(all)) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *fakeMsgStore) Search(_ context.Context, conversationID, query string, limit int64) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	out := []*domain.Message{}
	for _, m := range s.sorted(conversationID) {
		if m.IsDeleted || m.Type != domain.MessageText {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), q) {
			out = append(out, m)
			if int64(len(out)) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeMsgStore) AddReaction(_ context.Context, id string, reaction domain.Reaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return false, apperr.E(apperr.ErrNotFound, "message %s", id)
	}
	for _, r := range m.Reactions {
		if r.UserID == reaction.UserID && r.Emoji == reaction.Emoji {
			return false, nil
		}
	}
	m.Reactions = append(m.Reactions, reaction)
	return true, nil
}

func (s *fakeMsgStore) RemoveReaction(_ context.Context, id, userID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil
	}
	kept := m.Reactions[:0]
	for _, r := range m.Reactions {
		if !(r.UserID == userID && r.Emoji == emoji) {
			kept = append(kept, r)
		}
	}
	m.Reactions = kept
	return nil
}

type fakeReceiptStore struct {
	mu       sync.Mutex
	receipts map[string]*domain.ReadReceipt // keyed by messageID|userID
}

func newFakeReceiptStore() *fakeReceiptStore {
	return &fakeReceiptStore{receipts: map[string]*domain.ReadReceipt{}}
}

func (s *fakeReceiptStore) Insert(_ context.Context, rec *domain.ReadReceipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.MessageID + "|" + rec.UserID
	if _, ok := s.receipts[key]; ok {
		return false, nil
	}
	cp := *rec
	s.receipts[key] = &cp
	return true, nil
}

func (s *fakeReceiptStore) ListByMessage(_ context.Context, messageID string) ([]*domain.ReadReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.ReadReceipt{}
	for _, rec := range s.receipts {
		if rec.MessageID == messageID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReadAt.Before(out[j].ReadAt) })
	return out, nil
}

func (s *fakeReceiptStore) LastPerUser(_ context.Context, conversationID string) (map[string]*domain.ReadReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]*domain.ReadReceipt{}
	for _, rec := range s.receipts {
		if rec.ConversationID != conversationID {
			continue
		}
		cur, ok := out[rec.UserID]
		if !ok || rec.ReadAt.After(cur.ReadAt) {
			cp := *rec
			out[rec.UserID] = &cp
		}
	}
	return out, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *fakeNotifier) Publish(_ context.Context, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Kind
	}
	return out
}

// fixture wires the full service graph over the fakes.
type fixture struct {
	convs    *fakeConvStore
	msgs     *fakeMsgStore
	receipts *fakeReceiptStore
	notifier *fakeNotifier

	convSvc  *ConversationService
	msgSvc   *MessageService
	rcptSvc  *ReceiptService
	reactSvc *ReactionService
	qrySvc   *QueryService
}

func newFixture() *fixture {
	f := &fixture{
		convs:    newFakeConvStore(),
		msgs:     newFakeMsgStore(),
		receipts: newFakeReceiptStore(),
		notifier: &fakeNotifier{},
	}
	log := zap.NewNop().Sugar()
	gate := access.NewGate(f.convs)
	f.convSvc = NewConversationService(f.convs, gate, f.notifier, nil, log)
	f.msgSvc = NewMessageService(f.msgs, f.convs, gate, f.convSvc, f.notifier, nil, log)
	f.rcptSvc = NewReceiptService(f.receipts, f.msgs, f.convs, gate, nil, log)
	f.reactSvc = NewReactionService(f.msgs, gate, f.notifier, log)
	f.qrySvc = NewQueryService(f.msgs, gate, f.rcptSvc, log)
	return f
}

func (f *fixture) group(t interface{ Fatalf(string, ...interface{}) }, creator string, members ...string) *domain.Conversation {
	conv, err := f.convSvc.Create(context.Background(), creator, CreateConversationInput{
		Type:         domain.ConversationGroup,
		Participants: members,
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return conv
}

func (f *fixture) send(t interface{ Fatalf(string, ...interface{}) }, convID, sender, content string) *domain.Message {
	m, err := f.msgSvc.Create(context.Background(), sender, CreateMessageInput{
		ConversationID: convID,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	return m
}
