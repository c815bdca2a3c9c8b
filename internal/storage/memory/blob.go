package memory

import (
	"context"
	"sync"
)

// BlobStore 内存对象存储。
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// Blob 一个已保存的对象。
type Blob struct {
	Data        []byte
	ContentType string
}

// NewBlobStore 创建内存对象存储。
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]Blob)}
}

// Put 保存对象，返回的引用即路径本身。
func (b *BlobStore) Put(_ context.Context, path string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.blobs[path] = Blob{Data: append([]byte(nil), data...), ContentType: contentType}
	return path, nil
}

// Get 读取对象。
func (b *BlobStore) Get(path string) (Blob, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	blob, ok := b.blobs[path]
	return blob, ok
}

// Len 返回对象数量。
func (b *BlobStore) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
