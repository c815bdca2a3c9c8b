package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tempmail/capture/internal/domain"
	"tempmail/capture/internal/storage"
)

var mailboxColumns = []string{"id", "address", "token", "owner_id", "created_at", "expires_at", "is_active"}

// newMockStore 使用 sqlmock 连接构造存储，断言 GORM 生成的 SQL
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStoreWithDialector(postgres.New(postgres.Config{Conn: db}), DefaultPoolConfig(), false)
	require.NoError(t, err)
	return store, mock
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound), storage.ErrNotFound)
	assert.ErrorIs(t, translate(fmt.Errorf("query: %w", gorm.ErrRecordNotFound)), storage.ErrNotFound)

	other := errors.New("connection reset by peer")
	assert.Equal(t, other, translate(other))
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Positive(t, cfg.ConnMaxLifetime)
}

func TestStore_FindActiveMailboxes(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	query := regexp.QuoteMeta(`SELECT * FROM "mailboxes" WHERE id IN ($1,$2,$3) AND is_active = $4 AND expires_at > $5 ORDER BY created_at DESC LIMIT $6`)

	t.Run("数据库侧过滤并按创建时间倒序", func(t *testing.T) {
		store, mock := newMockStore(t)
		rows := sqlmock.NewRows(mailboxColumns).
			AddRow("B", "b@example.com", "tb", nil, now.Add(-time.Minute), now.Add(time.Hour), true).
			AddRow("A", "a@example.com", "ta", nil, now.Add(-time.Hour), now.Add(time.Hour), true)
		mock.ExpectQuery(query).
			WithArgs("A", "B", "C", true, now, storage.MaxBatchSize).
			WillReturnRows(rows)

		got, err := store.FindActiveMailboxes(context.Background(), []string{"A", "B", "C"}, now, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "B", got[0].ID)
		assert.Equal(t, "tb", got[0].SecretToken)
		assert.True(t, got[0].IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("上限不超过批量最大值", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(query).
			WithArgs("A", "B", "C", true, now, storage.MaxBatchSize).
			WillReturnRows(sqlmock.NewRows(mailboxColumns))

		got, err := store.FindActiveMailboxes(context.Background(), []string{"A", "B", "C"}, now, 500)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("调用方上限更小时使用调用方上限", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(query).
			WithArgs("A", "B", "C", true, now, 5).
			WillReturnRows(sqlmock.NewRows(mailboxColumns))

		_, err := store.FindActiveMailboxes(context.Background(), []string{"A", "B", "C"}, now, 5)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("空ID列表不查询", func(t *testing.T) {
		store, mock := newMockStore(t)

		got, err := store.FindActiveMailboxes(context.Background(), nil, now, 20)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("驱动错误原样返回供重试判断", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(query).WillReturnError(&pgconn.PgError{Code: "40001"})

		_, err := store.FindActiveMailboxes(context.Background(), []string{"A", "B", "C"}, now, 20)
		require.Error(t, err)
		assert.True(t, storage.IsTransient(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_FindMailboxByAddress(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	query := regexp.QuoteMeta(`SELECT * FROM "mailboxes" WHERE address = $1 ORDER BY "mailboxes"."id" LIMIT $2`)

	t.Run("命中", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(query).
			WithArgs("user@example.com", 1).
			WillReturnRows(sqlmock.NewRows(mailboxColumns).
				AddRow("mb-1", "user@example.com", "secret", nil, now, now.Add(time.Hour), false))

		mb, err := store.FindMailboxByAddress(context.Background(), "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, "mb-1", mb.ID)
		assert.False(t, mb.IsActive)
		assert.True(t, mb.ExpiresAt.Equal(now.Add(time.Hour)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("不存在返回 ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(query).
			WithArgs("nobody@example.com", 1).
			WillReturnRows(sqlmock.NewRows(mailboxColumns))

		_, err := store.FindMailboxByAddress(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_SaveMessage(t *testing.T) {
	store, mock := newMockStore(t)
	received := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := &domain.CapturedMessage{
		ID:            "msg-1",
		MailboxID:     "mb-1",
		SenderAddress: "a@b.com",
		SubjectCipher: []byte("sc"),
		SubjectNonce:  []byte("sn"),
		BodyCipher:    []byte("bc"),
		BodyNonce:     []byte("bn"),
		HTMLCipher:    []byte{},
		HTMLNonce:     []byte{},
		IsEncrypted:   true,
		ReceivedAt:    received,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "messages" ("id","mailbox_id","sender_address","subject_cipher","subject_nonce","body_cipher","body_nonce","html_cipher","html_nonce","is_encrypted","received_at","is_read") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`)).
		WithArgs("msg-1", "mb-1", "a@b.com", []byte("sc"), []byte("sn"), []byte("bc"), []byte("bn"),
			sqlmock.AnyArg(), sqlmock.AnyArg(), true, received, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveMessage(context.Background(), msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveAttachment(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO "attachments" ("id","message_id","file_name","content_type","size_bytes","storage_ref") VALUES ($1,$2,$3,$4,$5,$6)`)
	att := &domain.Attachment{
		ID:          "att-1",
		MessageID:   "msg-1",
		FileName:    "report.pdf",
		ContentType: "application/pdf",
		SizeBytes:   42,
		StorageRef:  "msg-1/1700000000_report.pdf",
	}

	t.Run("写入元数据", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(insert).
			WithArgs("att-1", "msg-1", "report.pdf", "application/pdf", 42, "msg-1/1700000000_report.pdf").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.SaveAttachment(context.Background(), att))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("写入失败回滚", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(insert).WillReturnError(&pgconn.PgError{Code: "23503"})
		mock.ExpectRollback()

		err := store.SaveAttachment(context.Background(), att)
		require.Error(t, err)
		assert.False(t, storage.IsTransient(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
