package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tempmail/capture/internal/storage"
)

// Store 文件系统对象存储，附件内容按对象键保存在根目录下
type Store struct {
	basePath      string         // 存储根目录
	platformUtils *PlatformUtils // 平台兼容性工具
}

var _ storage.BlobStore = (*Store)(nil)

// objectMeta 与对象一同写入的元数据
type objectMeta struct {
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	SavedAt     string `json:"savedAt"`
}

// NewStore 创建文件系统存储实例
func NewStore(basePath string) (*Store, error) {
	platformUtils := NewPlatformUtils()

	if err := platformUtils.ValidatePath(basePath); err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}

	normalizedPath := platformUtils.NormalizePath(basePath)

	if err := os.MkdirAll(normalizedPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{
		basePath:      normalizedPath,
		platformUtils: platformUtils,
	}, nil
}

// Put 写入对象，返回以 / 分隔的相对存储引用
//
// 先写临时文件再重命名，读取方不会看到写了一半的对象。
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full, err := s.platformUtils.JoinKey(s.basePath, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to commit object: %w", err)
	}

	meta, _ := json.MarshalIndent(objectMeta{
		ContentType: contentType,
		Size:        int64(len(data)),
		SavedAt:     time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err := os.WriteFile(full+".meta.json", meta, 0644); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("failed to write object metadata: %w", err)
	}

	rel, err := filepath.Rel(s.basePath, full)
	if err != nil {
		return full, nil
	}
	return filepath.ToSlash(rel), nil
}

// Get 读取对象内容及其内容类型
func (s *Store) Get(ctx context.Context, ref string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	full, err := s.platformUtils.JoinKey(s.basePath, ref)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", storage.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to read object: %w", err)
	}

	var meta objectMeta
	if raw, err := os.ReadFile(full + ".meta.json"); err == nil {
		_ = json.Unmarshal(raw, &meta)
	}
	return data, meta.ContentType, nil
}

// Ping 检查根目录可写
func (s *Store) Ping(context.Context) error {
	f, err := os.CreateTemp(s.basePath, ".ping-*")
	if err != nil {
		return fmt.Errorf("blob storage not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
