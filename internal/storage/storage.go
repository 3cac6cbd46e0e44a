package storage

import (
	"errors"
	"time"

	"github.com/ezac101/chainmail/internal/domain"
)

var (
	// ErrEmailNotFound 邮件记录未找到
	ErrEmailNotFound = errors.New("email record not found")
	// ErrRolesNotInitialized 账本角色尚未初始化
	ErrRolesNotInitialized = errors.New("ledger roles not initialized")
	// ErrOperatorNotFound 运营账户未找到
	ErrOperatorNotFound = errors.New("operator not found")
	// ErrOperatorExists 运营账户已存在
	ErrOperatorExists = errors.New("operator already exists")
	// ErrInsufficientBalance 中继手续费余额不足
	ErrInsufficientBalance = errors.New("insufficient relay balance")
)

// LedgerRepository 定义邮件记录的追加与读取操作。
//
// AppendEmail 必须在单个事务内完成编号分配与记录写入：
// 编号从 1 开始稠密单调递增，并发调用不会产生重复或空洞。
// 对应的 EmailSent 事件在同一事务内追加。
type LedgerRepository interface {
	AppendEmail(record *domain.EmailRecord) (*domain.EmailRecord, error)
	GetEmail(id uint64) (*domain.EmailRecord, error)
	ListRecipientEmails(account domain.Address) ([]uint64, error)
	ListSenderEmails(account domain.Address) ([]uint64, error)
	TotalEmails() (uint64, error)
}

// KeyRepository 定义公钥登记表操作。
//
// SavePublicKey 覆盖写入且不保留历史，同一事务内追加
// PublicKeyRegistered 事件。
type KeyRepository interface {
	SavePublicKey(reg *domain.PublicKeyRegistration) error
	GetPublicKey(account domain.Address) (string, error)
	CountPublicKeys() (uint64, error)
}

// EventRepository 定义账本事件的范围查询。
type EventRepository interface {
	ListEvents(afterSeq uint64, limit int) ([]domain.Event, error)
	LatestEventSeq() (uint64, error)
}

// RoleRepository 定义账本角色（owner / relay）的持久化。
type RoleRepository interface {
	GetRoles() (*domain.Roles, error)
	SaveRoles(roles *domain.Roles) error
}

// RelayBalanceRepository 定义中继手续费余额的记账操作。
//
// DebitBalance 在余额不足时返回 ErrInsufficientBalance，
// 不产生部分扣减。
type RelayBalanceRepository interface {
	RelayBalance() (uint64, error)
	CreditBalance(amount uint64) (uint64, error)
	DebitBalance(amount uint64) (uint64, error)
	TotalGasSpent() (uint64, error)
}

// OperatorRepository 定义运营账户数据存取操作。
type OperatorRepository interface {
	CreateOperator(op *domain.Operator) error
	GetOperatorByID(id string) (*domain.Operator, error)
	GetOperatorByUsername(username string) (*domain.Operator, error)
	UpdateOperatorLastLogin(id string) error
}

// RateLimitRepository 定义限流操作。
type RateLimitRepository interface {
	IncrementRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)
}

// Store 定义完整的存储接口。
type Store interface {
	LedgerRepository
	KeyRepository
	EventRepository
	RoleRepository
	RelayBalanceRepository
	OperatorRepository
	RateLimitRepository

	Close() error
	Health() error
}
