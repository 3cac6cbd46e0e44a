package memory

import (
	"sync"
	"time"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/storage"
)

// Store 使用内存保存账本状态，主要用于开发验证与测试。
//
// 所有写操作通过同一把互斥锁串行化，与账本要求的全局顺序
// 一致性一致：编号分配、索引追加与事件写入在持锁期间一次完成，
// 不存在部分可见的中间状态。
type Store struct {
	mu sync.RWMutex

	records        []*domain.EmailRecord         // 下标 i 对应 id i+1
	recipientIndex map[domain.Address][]uint64   // 收件索引，按写入顺序追加
	senderIndex    map[domain.Address][]uint64   // 发件索引，按写入顺序追加
	publicKeys     map[domain.Address]*domain.PublicKeyRegistration
	events         []*domain.Event // 下标 i 对应 seq i+1
	roles          *domain.Roles

	relayBalance uint64
	gasSpent     uint64

	operators  map[string]*domain.Operator
	byUsername map[string]string // username -> operatorID

	rateLimits        map[string]*rateLimitEntry
	rateLimitsCleanup time.Time // 下次清理过期速率限制的时间
}

// rateLimitEntry 速率限制条目
type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		records:           make([]*domain.EmailRecord, 0),
		recipientIndex:    make(map[domain.Address][]uint64),
		senderIndex:       make(map[domain.Address][]uint64),
		publicKeys:        make(map[domain.Address]*domain.PublicKeyRegistration),
		events:            make([]*domain.Event, 0),
		operators:         make(map[string]*domain.Operator),
		byUsername:        make(map[string]string),
		rateLimits:        make(map[string]*rateLimitEntry),
		rateLimitsCleanup: time.Now().Add(5 * time.Minute),
	}
}

// AppendEmail 追加一条邮件记录并分配编号。
//
// 编号、双向索引与 EmailSent 事件在持锁期间一次写入，
// 要么全部生效要么全部不生效。
func (s *Store) AppendEmail(record *domain.EmailRecord) (*domain.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.ID = uint64(len(s.records)) + 1
	stored.Immutable = true

	s.records = append(s.records, &stored)
	s.recipientIndex[stored.Recipient] = append(s.recipientIndex[stored.Recipient], stored.ID)
	s.senderIndex[stored.Sender] = append(s.senderIndex[stored.Sender], stored.ID)

	s.appendEventLocked(domain.NewEmailSentEvent(&stored))

	result := stored
	return &result, nil
}

// GetEmail 按编号读取邮件记录。
func (s *Store) GetEmail(id uint64) (*domain.EmailRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == 0 || id > uint64(len(s.records)) {
		return nil, storage.ErrEmailNotFound
	}

	record := *s.records[id-1]
	return &record, nil
}

// ListRecipientEmails 返回某账户作为收件人的全部记录编号（写入顺序）。
func (s *Store) ListRecipientEmails(account domain.Address) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.recipientIndex[account]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out, nil
}

// ListSenderEmails 返回某账户作为发件人的全部记录编号（写入顺序）。
func (s *Store) ListSenderEmails(account domain.Address) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.senderIndex[account]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out, nil
}

// TotalEmails 返回已写入的记录总数。
func (s *Store) TotalEmails() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records)), nil
}

// SavePublicKey 覆盖写入某账户的公钥并追加事件。
func (s *Store) SavePublicKey(reg *domain.PublicKeyRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *reg
	s.publicKeys[stored.Account] = &stored
	s.appendEventLocked(domain.NewPublicKeyRegisteredEvent(&stored))
	return nil
}

// GetPublicKey 返回某账户当前登记的公钥，未登记时返回空字符串。
func (s *Store) GetPublicKey(account domain.Address) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.publicKeys[account]
	if !ok {
		return "", nil
	}
	return reg.PublicKey, nil
}

// CountPublicKeys 返回已登记公钥的账户数。
func (s *Store) CountPublicKeys() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.publicKeys)), nil
}

// appendEventLocked 追加账本事件，调用方必须已持写锁。
func (s *Store) appendEventLocked(event *domain.Event) {
	event.Seq = uint64(len(s.events)) + 1
	s.events = append(s.events, event)
}

// ListEvents 按序号范围查询事件：返回 seq > afterSeq 的前 limit 条。
func (s *Store) ListEvents(afterSeq uint64, limit int) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if afterSeq >= uint64(len(s.events)) {
		return []domain.Event{}, nil
	}

	end := uint64(len(s.events))
	if limit > 0 && afterSeq+uint64(limit) < end {
		end = afterSeq + uint64(limit)
	}

	out := make([]domain.Event, 0, end-afterSeq)
	for _, ev := range s.events[afterSeq:end] {
		out = append(out, *ev)
	}
	return out, nil
}

// LatestEventSeq 返回最新事件序号，无事件时为 0。
func (s *Store) LatestEventSeq() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.events)), nil
}

// GetRoles 返回账本角色。
func (s *Store) GetRoles() (*domain.Roles, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.roles == nil {
		return nil, storage.ErrRolesNotInitialized
	}
	roles := *s.roles
	return &roles, nil
}

// SaveRoles 持久化账本角色。
func (s *Store) SaveRoles(roles *domain.Roles) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *roles
	s.roles = &stored
	return nil
}

// RelayBalance 返回当前中继手续费余额。
func (s *Store) RelayBalance() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relayBalance, nil
}

// CreditBalance 增加中继余额，返回新余额。
func (s *Store) CreditBalance(amount uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.relayBalance += amount
	return s.relayBalance, nil
}

// DebitBalance 扣减中继余额，余额不足时整体拒绝。
func (s *Store) DebitBalance(amount uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.relayBalance < amount {
		return s.relayBalance, storage.ErrInsufficientBalance
	}
	s.relayBalance -= amount
	s.gasSpent += amount
	return s.relayBalance, nil
}

// TotalGasSpent 返回中继累计消耗的 gas。
func (s *Store) TotalGasSpent() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gasSpent, nil
}

// CreateOperator 创建运营账户。
func (s *Store) CreateOperator(op *domain.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[op.Username]; exists {
		return storage.ErrOperatorExists
	}

	stored := *op
	s.operators[stored.ID] = &stored
	s.byUsername[stored.Username] = stored.ID
	return nil
}

// GetOperatorByID 按 ID 查找运营账户。
func (s *Store) GetOperatorByID(id string) (*domain.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operators[id]
	if !ok {
		return nil, storage.ErrOperatorNotFound
	}
	result := *op
	return &result, nil
}

// GetOperatorByUsername 按用户名查找运营账户。
func (s *Store) GetOperatorByUsername(username string) (*domain.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, storage.ErrOperatorNotFound
	}
	result := *s.operators[id]
	return &result, nil
}

// UpdateOperatorLastLogin 更新运营账户的最近登录时间。
func (s *Store) UpdateOperatorLastLogin(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.operators[id]
	if !ok {
		return storage.ErrOperatorNotFound
	}
	now := time.Now().UTC()
	op.LastLoginAt = &now
	return nil
}

// IncrementRateLimit 递增限流计数，窗口到期后重新计数。
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.After(s.rateLimitsCleanup) {
		for k, entry := range s.rateLimits {
			if now.After(entry.ExpiresAt) {
				delete(s.rateLimits, k)
			}
		}
		s.rateLimitsCleanup = now.Add(5 * time.Minute)
	}

	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.ExpiresAt) {
		entry = &rateLimitEntry{ExpiresAt: now.Add(window)}
		s.rateLimits[key] = entry
	}
	entry.Count++
	return entry.Count, nil
}

// GetRateLimit 返回当前限流计数。
func (s *Store) GetRateLimit(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rateLimits[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return 0, nil
	}
	return entry.Count, nil
}

// Close 关闭存储，内存实现为空操作。
func (s *Store) Close() error {
	return nil
}

// Health 检查存储健康状态，内存实现始终健康。
func (s *Store) Health() error {
	return nil
}
