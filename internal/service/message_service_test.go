package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
)

func TestSendMessageUpdatesCountersAndLastMessage(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob", "carol")

	m := f.send(t, conv.ID, "alice", "Hello")

	got, err := f.convs.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, m.ID, got.LastMessage.MessageID)
	assert.Equal(t, "Hello", got.LastMessage.ContentPreview)
	assert.Equal(t, "alice", got.LastMessage.SenderID)

	assert.Equal(t, int64(0), got.UnreadCount["alice"])
	assert.Equal(t, int64(1), got.UnreadCount["bob"])
	assert.Equal(t, int64(1), got.UnreadCount["carol"])
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob")

	_, err := f.msgSvc.Create(context.Background(), "alice", CreateMessageInput{
		ConversationID: conv.ID,
		Content:        "   ",
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSendMessageRequiresMembership(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob")

	_, err := f.msgSvc.Create(context.Background(), "mallory", CreateMessageInput{
		ConversationID: conv.ID,
		Content:        "hi",
	})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.msgSvc.Create(context.Background(), "alice", CreateMessageInput{
		ConversationID: "no-such-conversation",
		Content:        "hi",
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSendFileMessageHonorsSettings(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob")

	file := &domain.FileRef{FileName: "pic.png", FileSize: 512, MimeType: "image/png", URL: "https://cdn.local/pic.png"}
	m, err := f.msgSvc.Create(context.Background(), "alice", CreateMessageInput{
		ConversationID: conv.ID,
		Type:           domain.MessageFile,
		File:           file,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageFile, m.Type)

	got, err := f.convs.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "pic.png", got.LastMessage.ContentPreview)

	big := &domain.FileRef{FileName: "huge.bin", FileSize: 1 << 40, URL: "https://cdn.local/huge.bin"}
	_, err = f.msgSvc.Create(context.Background(), "alice", CreateMessageInput{
		ConversationID: conv.ID,
		Type:           domain.MessageFile,
		File:           big,
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReplyToMustBeSameConversation(t *testing.T) {
	f := newFixture()
	conv1 := f.group(t, "alice", "bob")
	conv2 := f.group(t, "alice", "carol")
	m1 := f.send(t, conv1.ID, "alice", "first")

	reply, err := f.msgSvc.Create(context.Background(), "bob", CreateMessageInput{
		ConversationID: conv1.ID,
		Content:        "re: first",
		ReplyTo:        m1.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, m1.ID, reply.ReplyTo)

	_, err = f.msgSvc.Create(context.Background(), "alice", CreateMessageInput{
		ConversationID: conv2.ID,
		Content:        "cross-thread",
		ReplyTo:        m1.ID,
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEditWindow(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob")

	cases := []struct {
		name    string
		age     time.Duration
		wantErr error
	}{
		{"within window", 14 * time.Minute, nil},
		{"expired", 16 * time.Minute, apperr.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := f.send(t, conv.ID, "alice", "original")
			f.msgs.mu.Lock()
			f.msgs.msgs[m.ID].CreatedAt = time.Now().UTC().Add(-tc.age)
			f.msgs.mu.Unlock()

			_, err := f.msgSvc.Edit(context.Background(), m.ID, "alice", "edited")
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestEditOnlyBySender(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob")
	m := f.send(t, conv.ID, "alice", "mine")

	_, err := f.msgSvc.Edit(context.Background(), m.ID, "bob", "stolen")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestEditRefreshesLastMessagePreview(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob")
	m1 := f.send(t, conv.ID, "alice", "Hello")

	edited, err := f.msgSvc.Edit(context.Background(), m1.ID, "alice", "Hello there")
	require.NoError(t, err)
	require.NotNil(t, edited.EditedAt)

	got, err := f.convs.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", got.LastMessage.ContentPreview)
}

func TestEditDoesNotTouchSnapshotOfOlderMessage(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob")
	m1 := f.send(t, conv.ID, "alice", "first")
	m2 := f.send(t, conv.ID, "alice", "second")

	_, err := f.msgSvc.Edit(context.Background(), m1.ID, "alice", "first, edited")
	require.NoError(t, err)

	got, err := f.convs.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, m2.ID, got.LastMessage.MessageID)
	assert.Equal(t, "second", got.LastMessage.ContentPreview)
}

func TestDeletedMessageIsTerminal(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob")
	m := f.send(t, conv.ID, "alice", "oops")

	require.NoError(t, f.msgSvc.Delete(context.Background(), m.ID, "alice"))

	_, err := f.msgSvc.Edit(context.Background(), m.ID, "alice", "resurrected")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = f.reactSvc.Add(context.Background(), m.ID, "bob", "👍")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// re-delete is a no-op, not an error
	assert.NoError(t, f.msgSvc.Delete(context.Background(), m.ID, "alice"))
}

func TestDeleteReanchorsLastMessage(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob")
	m1 := f.send(t, conv.ID, "alice", "first")
	time.Sleep(time.Millisecond)
	m2 := f.send(t, conv.ID, "bob", "second")

	require.NoError(t, f.msgSvc.Delete(context.Background(), m2.ID, "bob"))

	got, err := f.convs.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, m1.ID, got.LastMessage.MessageID)

	require.NoError(t, f.msgSvc.Delete(context.Background(), m1.ID, "alice"))

	got, err = f.convs.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastMessage)

	stored, err := f.msgs.Get(context.Background(), m1.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, domain.DeletedPlaceholder, stored.Content)
}

func TestDeleteOnlyBySender(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob")
	m := f.send(t, conv.ID, "alice", "mine")

	err := f.msgSvc.Delete(context.Background(), m.ID, "bob")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestConcurrentSendsLoseNoCounterUpdates(t *testing.T) {
	f := newFixture()
	conv := f.group(t, "alice", "bob", "carol")

	const n = 50
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "alice"
			if i%2 == 1 {
				sender = "bob"
			}
			_, err := f.msgSvc.Create(context.Background(), sender, CreateMessageInput{
				ConversationID: conv.ID,
				Content:        fmt.Sprintf("msg %d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.convs.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	// carol received every message; alice and bob each sent half
	assert.Equal(t, int64(n), got.UnreadCount["carol"])
	assert.Equal(t, int64(n/2), got.UnreadCount["alice"])
	assert.Equal(t, int64(n/2), got.UnreadCount["bob"])
}

func TestImplicitDirectConversationOnFirstMessage(t *testing.T) {
	f := newFixture()

	m, err := f.msgSvc.Create(context.Background(), "alice", CreateMessageInput{
		PeerID:  "bob",
		Content: "Hello",
	})
	require.NoError(t, err)

	conv, err := f.convs.Get(context.Background(), m.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationDirect, conv.Type)
	assert.Equal(t, int64(1), conv.UnreadCount["bob"])
	assert.Equal(t, int64(0), conv.UnreadCount["alice"])

	// second message reuses the same conversation
	m2, err := f.msgSvc.Create(context.Background(), "bob", CreateMessageInput{
		PeerID:  "alice",
		Content: "Hi back",
	})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, m2.ConversationID)
}
