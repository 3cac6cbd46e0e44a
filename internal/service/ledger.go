package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/storage"
)

var (
	// ErrZeroAddress 地址为全零值
	ErrZeroAddress = errors.New("zero address not allowed")
	// ErrNotRelay 调用方不是当前中继地址
	ErrNotRelay = errors.New("caller is not the relay address")
	// ErrNotOwner 调用方不是当前所有者
	ErrNotOwner = errors.New("caller is not the owner")
	// ErrInvalidEmailID 邮件编号超出范围
	ErrInvalidEmailID = errors.New("invalid email ID")
)

// EventSink 接收账本事件通知的回调。
//
// 回调在写锁之外调用，不阻塞后续提交；投递是尽力而为的，
// 可靠的事件观察走 Events 的范围查询。
type EventSink func(event *domain.Event)

// LedgerService 实现账本合约的全部语义。
//
// 写操作通过互斥锁全局串行化：编号分配是线性一致的，任何两次
// 提交不会拿到相同编号。记录写入后永不变更，系统中不存在
// 更新或删除路径。校验和鉴权失败整体拒绝，不产生部分状态变更。
type LedgerService struct {
	store storage.Store
	now   func() time.Time

	mu    sync.Mutex // 串行化所有状态变更
	sinks []EventSink
}

// NewLedgerService 创建账本服务。
//
// 角色只在存储为空时用创世配置初始化；之后以存储中持久化的
// owner / relay 为准，配置不再覆盖。
func NewLedgerService(store storage.Store, genesisOwner, genesisRelay domain.Address) (*LedgerService, error) {
	s := &LedgerService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}

	_, err := store.GetRoles()
	if errors.Is(err, storage.ErrRolesNotInitialized) {
		if genesisOwner.IsZero() || genesisRelay.IsZero() {
			return nil, fmt.Errorf("genesis roles required: %w", ErrZeroAddress)
		}
		if err := store.SaveRoles(&domain.Roles{
			Owner:        genesisOwner,
			RelayAddress: genesisRelay,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize ledger roles: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load ledger roles: %w", err)
	}

	return s, nil
}

// Subscribe 注册事件回调。
func (s *LedgerService) Subscribe(sink EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// LogSend 以调用方为发件人提交一条邮件记录，对任意调用方开放。
func (s *LedgerService) LogSend(caller, recipient domain.Address, contentPointer string) (uint64, error) {
	return s.submitEmail(caller, recipient, contentPointer)
}

// LogSendFor 由中继代表任意发件人提交记录，仅限当前中继地址调用。
func (s *LedgerService) LogSendFor(caller, sender, recipient domain.Address, contentPointer string) (uint64, error) {
	roles, err := s.store.GetRoles()
	if err != nil {
		return 0, err
	}
	if caller != roles.RelayAddress {
		return 0, ErrNotRelay
	}
	return s.submitEmail(sender, recipient, contentPointer)
}

// submitEmail 执行共享的提交原语：校验、编号分配、索引追加与事件。
//
// 任一前置条件失败时整体拒绝，不产生状态变更。
func (s *LedgerService) submitEmail(sender, recipient domain.Address, contentPointer string) (uint64, error) {
	if sender.IsZero() || recipient.IsZero() {
		return 0, ErrZeroAddress
	}
	if err := domain.ValidateContentPointer(contentPointer); err != nil {
		return 0, err
	}

	s.mu.Lock()
	record, err := s.store.AppendEmail(&domain.EmailRecord{
		Sender:         sender,
		Recipient:      recipient,
		ContentPointer: contentPointer,
		CreatedAt:      s.now(),
	})
	sinks := s.sinks
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	dispatch(sinks, domain.NewEmailSentEvent(record))
	return record.ID, nil
}

// RegisterPublicKey 登记调用方自己的公钥，覆盖旧值。
func (s *LedgerService) RegisterPublicKey(caller domain.Address, key string) error {
	return s.registerKey(caller, key)
}

// RegisterPublicKeyFor 由中继代表任意账户登记公钥，仅限中继调用。
func (s *LedgerService) RegisterPublicKeyFor(caller, account domain.Address, key string) error {
	roles, err := s.store.GetRoles()
	if err != nil {
		return err
	}
	if caller != roles.RelayAddress {
		return ErrNotRelay
	}
	return s.registerKey(account, key)
}

func (s *LedgerService) registerKey(account domain.Address, key string) error {
	if account.IsZero() {
		return ErrZeroAddress
	}
	if key == "" {
		return domain.ErrEmptyPublicKey
	}

	s.mu.Lock()
	reg := &domain.PublicKeyRegistration{
		Account:      account,
		PublicKey:    key,
		RegisteredAt: s.now(),
	}
	err := s.store.SavePublicKey(reg)
	sinks := s.sinks
	s.mu.Unlock()
	if err != nil {
		return err
	}

	dispatch(sinks, domain.NewPublicKeyRegisteredEvent(reg))
	return nil
}

// GetEmail 按编号读取记录，编号超出 [1, emailCount] 时拒绝。
func (s *LedgerService) GetEmail(id uint64) (*domain.EmailRecord, error) {
	record, err := s.store.GetEmail(id)
	if errors.Is(err, storage.ErrEmailNotFound) {
		return nil, ErrInvalidEmailID
	}
	return record, err
}

// GetRecipientEmails 返回某账户收到的全部记录编号（时间序）。
func (s *LedgerService) GetRecipientEmails(account domain.Address) ([]uint64, error) {
	return s.store.ListRecipientEmails(account)
}

// GetSenderEmails 返回某账户发出的全部记录编号（时间序）。
func (s *LedgerService) GetSenderEmails(account domain.Address) ([]uint64, error) {
	return s.store.ListSenderEmails(account)
}

// GetPublicKey 返回账户当前公钥，未登记时为空字符串。
func (s *LedgerService) GetPublicKey(account domain.Address) (string, error) {
	return s.store.GetPublicKey(account)
}

// GetTotalEmails 返回记录总数。
func (s *LedgerService) GetTotalEmails() (uint64, error) {
	return s.store.TotalEmails()
}

// Events 按序号范围查询账本事件。
func (s *LedgerService) Events(afterSeq uint64, limit int) ([]domain.Event, error) {
	return s.store.ListEvents(afterSeq, limit)
}

// LatestEventSeq 返回最新事件序号。
func (s *LedgerService) LatestEventSeq() (uint64, error) {
	return s.store.LatestEventSeq()
}

// Roles 返回当前账本角色。
func (s *LedgerService) Roles() (*domain.Roles, error) {
	return s.store.GetRoles()
}

// SetRelayAddress 变更中继地址，仅限所有者调用，拒绝零地址。
func (s *LedgerService) SetRelayAddress(caller, newRelay domain.Address) error {
	if newRelay.IsZero() {
		return ErrZeroAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	roles, err := s.store.GetRoles()
	if err != nil {
		return err
	}
	if caller != roles.Owner {
		return ErrNotOwner
	}

	roles.RelayAddress = newRelay
	return s.store.SaveRoles(roles)
}

// TransferOwnership 转移所有权，仅限所有者调用，拒绝零地址。
func (s *LedgerService) TransferOwnership(caller, newOwner domain.Address) error {
	if newOwner.IsZero() {
		return ErrZeroAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	roles, err := s.store.GetRoles()
	if err != nil {
		return err
	}
	if caller != roles.Owner {
		return ErrNotOwner
	}

	roles.Owner = newOwner
	return s.store.SaveRoles(roles)
}

// dispatch 向所有事件回调投递事件。
func dispatch(sinks []EventSink, event *domain.Event) {
	for _, sink := range sinks {
		sink(event)
	}
}
