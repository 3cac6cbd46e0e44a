package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ezac101/chainmail/internal/content"
)

// Store 文件系统内容存储实现。
//
// 目录布局按标识前缀分片，避免单目录下文件过多：
// {base}/{id[0:2]}/{id[2:4]}/{id}
type Store struct {
	basePath string
	maxSize  int64
}

// NewStore 创建文件系统内容存储实例。
func NewStore(basePath string, maxSize int64) (*Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("content base path is required")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	return &Store{
		basePath: basePath,
		maxSize:  maxSize,
	}, nil
}

// Put 写入内容，返回内容标识。
//
// 已存在的对象直接返回标识，不重复写入。写入通过临时文件
// 加重命名完成，避免出现半写状态的对象。
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", content.ErrEmptyContent
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", content.ErrContentTooLarge
	}

	id := content.ContentID(data)
	objectPath := s.objectPath(id)

	if _, err := os.Stat(objectPath); err == nil {
		return id, nil
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(objectPath), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, objectPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to commit content: %w", err)
	}

	return id, nil
}

// Get 按标识读取内容。
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	if err := content.ValidateContentID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.objectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, content.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return data, nil
}

// Has 判断内容是否存在。
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	if err := content.ValidateContentID(id); err != nil {
		return false, err
	}

	if _, err := os.Stat(s.objectPath(id)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Health 检查存储根目录可访问。
func (s *Store) Health() error {
	_, err := os.Stat(s.basePath)
	return err
}

// objectPath 计算对象的分片路径。
func (s *Store) objectPath(id string) string {
	return filepath.Join(s.basePath, id[0:2], id[2:4], id)
}
