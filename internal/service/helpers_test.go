package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"tempmail/capture/internal/crypto"
	"tempmail/capture/internal/domain"
	"tempmail/capture/internal/events"
	"tempmail/capture/internal/monitoring"
	"tempmail/capture/internal/retry"
	"tempmail/capture/internal/storage"
	"tempmail/capture/internal/storage/memory"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestMetrics() *monitoring.Metrics {
	return monitoring.NewMetrics(prometheus.NewRegistry())
}

// fastPolicy 与默认策略相同的次数，但等待时间缩短到毫秒级
func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2,
		Jitter:         0.2,
		AttemptTimeout: time.Second,
		Deadline:       5 * time.Second,
	}
}

func seedMailbox(t *testing.T, store *memory.Store, mb domain.Mailbox) domain.Mailbox {
	t.Helper()
	if mb.SecretToken == "" {
		mb.SecretToken = "token-" + mb.ID
	}
	require.NoError(t, store.SaveMailbox(context.Background(), &mb))
	return mb
}

func testEncryptor(t *testing.T) *crypto.FieldEncryptor {
	t.Helper()
	key, err := crypto.DeriveKey("service-test-secret")
	require.NoError(t, err)
	enc, err := crypto.NewFieldEncryptor(key)
	require.NoError(t, err)
	return enc
}

// flakyStore 在前 failures 次查询时返回 err
type flakyStore struct {
	*memory.Store
	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (f *flakyStore) next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return f.err
	}
	return nil
}

func (f *flakyStore) FindMailboxByID(ctx context.Context, id string) (*domain.Mailbox, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return f.Store.FindMailboxByID(ctx, id)
}

func (f *flakyStore) FindActiveMailboxes(ctx context.Context, ids []string, now time.Time, limit int) ([]domain.Mailbox, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return f.Store.FindActiveMailboxes(ctx, ids, now, limit)
}

func (f *flakyStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// failingMessages SaveMessage 总是失败
type failingMessages struct {
	storage.MessageRepository
}

func (failingMessages) SaveMessage(context.Context, *domain.CapturedMessage) error {
	return errors.Join(storage.ErrTransient, errors.New("connection reset"))
}

// flakyBlobStore 前 failFirst 次上传失败
type flakyBlobStore struct {
	*memory.BlobStore
	mu        sync.Mutex
	failFirst int
}

func (b *flakyBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	if b.failFirst > 0 {
		b.failFirst--
		b.mu.Unlock()
		return "", errors.New("object storage unavailable")
	}
	b.mu.Unlock()
	return b.BlobStore.Put(ctx, path, data, contentType)
}

type failingSealer struct{}

func (failingSealer) Encrypt(string) (crypto.Sealed, error) {
	return crypto.Sealed{}, errors.New("entropy unavailable")
}

// memoryDeduper 内存版幂等过滤器
type memoryDeduper struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{keys: make(map[string]bool)}
}

func (d *memoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.keys[key] {
		return false, nil
	}
	d.keys[key] = true
	return true, nil
}

func (d *memoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key)
	return nil
}

func (d *memoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.MessageCaptured
	err    error
}

func (p *recordingPublisher) PublishCaptured(_ context.Context, e events.MessageCaptured) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}
