package filesystem

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// PlatformUtils 平台兼容性工具
type PlatformUtils struct{}

// NewPlatformUtils 创建平台工具实例
func NewPlatformUtils() *PlatformUtils {
	return &PlatformUtils{}
}

// ValidatePath 验证路径是否安全
func (p *PlatformUtils) ValidatePath(path string) error {
	if len(path) > p.GetMaxPathLength() {
		return fmt.Errorf("path too long: %d characters", len(path))
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains NUL byte")
	}
	for _, elem := range strings.FieldsFunc(path, isSeparator) {
		if elem == ".." {
			return fmt.Errorf("path traversal detected: %s", path)
		}
	}
	return nil
}

// ValidateKey 验证对象键：必须是相对路径且不能逃逸出根目录
func (p *PlatformUtils) ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	if filepath.IsAbs(key) || strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return fmt.Errorf("object key must be relative: %s", key)
	}
	return p.ValidatePath(key)
}

// GetMaxPathLength 获取当前平台的最大路径长度
func (p *PlatformUtils) GetMaxPathLength() int {
	if runtime.GOOS == "windows" {
		return 260
	}
	return 4096
}

// IsCaseSensitive 检查当前文件系统是否大小写敏感
func (p *PlatformUtils) IsCaseSensitive() bool {
	return runtime.GOOS != "windows"
}

// NormalizePath 标准化路径
func (p *PlatformUtils) NormalizePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	cleanPath := filepath.Clean(absPath)
	if !p.IsCaseSensitive() {
		cleanPath = strings.ToLower(cleanPath)
	}
	return cleanPath
}

// JoinKey 把对象键拼接到根目录下，结果保证位于根目录之内
func (p *PlatformUtils) JoinKey(base, key string) (string, error) {
	if err := p.ValidateKey(key); err != nil {
		return "", err
	}

	full := filepath.Join(base, filepath.FromSlash(key))
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object key escapes base path: %s", key)
	}
	return full, nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
