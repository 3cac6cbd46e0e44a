package service

import (
	"context"

	"github.com/ezac101/chainmail/internal/content"
)

// ContentService 封装密文内容的上传与读取。
//
// 节点只经手密文：加密在客户端完成，这里不校验也不解释
// 内容字节。上传与账本提交是两个独立步骤，上传成功而提交
// 失败只会留下一个无引用的内容对象，不破坏账本一致性。
type ContentService struct {
	store content.Store
}

// NewContentService 创建内容服务。
func NewContentService(store content.Store) *ContentService {
	return &ContentService{store: store}
}

// Upload 上传密文，返回内容标识。
func (s *ContentService) Upload(ctx context.Context, data []byte) (string, error) {
	return s.store.Put(ctx, data)
}

// Fetch 按标识读取密文。
func (s *ContentService) Fetch(ctx context.Context, id string) ([]byte, error) {
	return s.store.Get(ctx, id)
}

// Exists 判断内容是否可取。
func (s *ContentService) Exists(ctx context.Context, id string) (bool, error) {
	return s.store.Has(ctx, id)
}

// Health 检查内容后端可用性。
func (s *ContentService) Health() error {
	return s.store.Health()
}
