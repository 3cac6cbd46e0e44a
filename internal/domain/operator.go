package domain

import "time"

// OperatorRole 运营者角色
type OperatorRole string

const (
	// RoleOperator 普通运营者，可查看统计与中继状态
	RoleOperator OperatorRole = "operator"
	// RoleSuper 超级运营者，可执行所有权转移与中继地址变更
	RoleSuper OperatorRole = "super"
)

// Operator 表示中继节点的后台运营账户。
//
// 运营账户只控制本节点的管理接口，与账本上的账户地址无关。
type Operator struct {
	ID           string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username     string       `json:"username" gorm:"type:varchar(64);uniqueIndex;not null"`
	PasswordHash string       `json:"-" gorm:"type:varchar(255);not null"`
	Role         OperatorRole `json:"role" gorm:"type:varchar(16);default:operator"`
	IsActive     bool         `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastLoginAt  *time.Time   `json:"lastLoginAt,omitempty"`
}

// TableName 指定 GORM 表名。
func (Operator) TableName() string {
	return "operators"
}

// IsSuper 判断是否为超级运营者。
func (o *Operator) IsSuper() bool {
	return o.Role == RoleSuper
}

// LedgerStatistics 账本运行统计。
type LedgerStatistics struct {
	TotalEmails     uint64  `json:"totalEmails"`
	TotalEvents     uint64  `json:"totalEvents"`
	RegisteredKeys  uint64  `json:"registeredKeys"`
	RelayBalance    uint64  `json:"relayBalance"`
	RelayGasSpent   uint64  `json:"relayGasSpent"`
	Owner           Address `json:"owner"`
	RelayAddress    Address `json:"relayAddress"`
	ContentBackend  string  `json:"contentBackend"`
	StorageBackend  string  `json:"storageBackend"`
}
