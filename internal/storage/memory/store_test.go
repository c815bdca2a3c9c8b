package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempmail/capture/internal/domain"
	"tempmail/capture/internal/storage"
)

func TestMemoryStore_MailboxOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now().UTC()

	mailbox := &domain.Mailbox{
		ID:          "mb-1",
		Address:     "test@temp.mail",
		SecretToken: "tok",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
		IsActive:    true,
	}
	require.NoError(t, store.SaveMailbox(ctx, mailbox))

	got, err := store.FindMailboxByID(ctx, "mb-1")
	require.NoError(t, err)
	assert.Equal(t, "test@temp.mail", got.Address)

	got, err = store.FindMailboxByAddress(ctx, "test@temp.mail")
	require.NoError(t, err)
	assert.Equal(t, "mb-1", got.ID)

	_, err = store.FindMailboxByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.FindMailboxByAddress(ctx, "missing@temp.mail")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// 返回的是副本
	got.IsActive = false
	again, _ := store.FindMailboxByID(ctx, "mb-1")
	assert.True(t, again.IsActive)
}

func TestMemoryStore_FindActiveMailboxes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now().UTC()

	save := func(id string, created time.Time, expires time.Time, active bool) {
		require.NoError(t, store.SaveMailbox(ctx, &domain.Mailbox{
			ID: id, Address: id + "@temp.mail", CreatedAt: created, ExpiresAt: expires, IsActive: active,
		}))
	}
	save("old", now.Add(-2*time.Hour), now.Add(time.Hour), true)
	save("new", now.Add(-time.Hour), now.Add(time.Hour), true)
	save("expired", now.Add(-time.Minute), now.Add(-time.Second), true)
	save("inactive", now, now.Add(time.Hour), false)

	list, err := store.FindActiveMailboxes(ctx, []string{"old", "new", "expired", "inactive", "missing", "new"}, now, 20)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)

	t.Run("上限为批量最大值", func(t *testing.T) {
		ids := make([]string, 0, 30)
		for i := 0; i < 30; i++ {
			id := fmt.Sprintf("bulk-%02d", i)
			save(id, now.Add(time.Duration(i)*time.Second), now.Add(time.Hour), true)
			ids = append(ids, id)
		}
		list, err := store.FindActiveMailboxes(ctx, ids, now, 1000)
		require.NoError(t, err)
		assert.Len(t, list, storage.MaxBatchSize)
		assert.Equal(t, "bulk-29", list[0].ID)
	})
}

func TestMemoryStore_MessageOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.SaveAttachment(ctx, &domain.Attachment{ID: "a-0", MessageID: "msg-1"})
	assert.ErrorIs(t, err, storage.ErrNotFound, "父邮件不存在时不能写附件")

	msg := &domain.CapturedMessage{ID: "msg-1", MailboxID: "mb-1", IsEncrypted: true, ReceivedAt: time.Now()}
	require.NoError(t, store.SaveMessage(ctx, msg))
	require.NoError(t, store.SaveAttachment(ctx, &domain.Attachment{ID: "a-1", MessageID: "msg-1", FileName: "a.txt"}))
	require.NoError(t, store.SaveAttachment(ctx, &domain.Attachment{ID: "a-2", MessageID: "msg-1", FileName: "b.txt"}))

	got, err := store.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, got.IsEncrypted)

	atts, err := store.ListAttachments(ctx, "msg-1")
	require.NoError(t, err)
	assert.Len(t, atts, 2)

	_, err = store.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, store.MessageCount())
}

func TestBlobStore(t *testing.T) {
	blobs := NewBlobStore()
	data := []byte("payload")

	ref, err := blobs.Put(context.Background(), "m/1_a.txt", data, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "m/1_a.txt", ref)

	data[0] = 'X'
	blob, ok := blobs.Get(ref)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), blob.Data)
	assert.Equal(t, "text/plain", blob.ContentType)
	assert.Equal(t, 1, blobs.Len())
}
