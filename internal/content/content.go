package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrNotFound 内容不存在
	ErrNotFound = errors.New("content not found")
	// ErrEmptyContent 内容为空
	ErrEmptyContent = errors.New("content must not be empty")
	// ErrContentTooLarge 内容超过大小上限
	ErrContentTooLarge = errors.New("content too large")
	// ErrInvalidContentID 内容标识格式无效
	ErrInvalidContentID = errors.New("invalid content id")
)

// Store 定义内容寻址存储接口。
//
// 标识由内容的 SHA-256 派生，同一字节序列永远映射到同一标识。
// 存储不提供 pin 或可达性保证；只要账本记录还引用某个标识，
// 内容保持可取是应用层的责任。
type Store interface {
	// Put 写入内容并返回内容标识。重复写入同一内容是幂等的。
	Put(ctx context.Context, data []byte) (string, error)
	// Get 按标识读取内容，不存在时返回 ErrNotFound。
	Get(ctx context.Context, id string) ([]byte, error)
	// Has 判断标识对应的内容是否可取。
	Has(ctx context.Context, id string) (bool, error)
	// Health 检查后端可用性。
	Health() error
}

// ContentID 计算字节序列的内容标识（SHA-256 十六进制）。
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidateContentID 校验内容标识格式。
func ValidateContentID(id string) error {
	if len(id) != sha256.Size*2 {
		return ErrInvalidContentID
	}
	if _, err := hex.DecodeString(id); err != nil {
		return ErrInvalidContentID
	}
	return nil
}
