package domain

import "time"

// EmailRecord 表示账本中一条不可变的邮件元数据记录。
//
// 记录一旦写入即不再变化：系统中不存在任何更新或删除路径，
// 永久性是产品保证而非实现疏漏。
type EmailRecord struct {
	ID             uint64    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Sender         Address   `json:"sender" gorm:"type:varchar(42);index;not null"`
	Recipient      Address   `json:"recipient" gorm:"type:varchar(42);index;not null"`
	ContentPointer string    `json:"contentPointer" gorm:"type:varchar(512);not null"`
	CreatedAt      time.Time `json:"createdAt"`
	Immutable      bool      `json:"immutable" gorm:"default:true"`
}

// TableName 指定 GORM 表名。
func (EmailRecord) TableName() string {
	return "email_records"
}

// PublicKeyRegistration 表示账户当前登记的公钥。
//
// 同一账户重复登记会覆盖旧值，链上不保留历史。
type PublicKeyRegistration struct {
	Account      Address   `json:"account" gorm:"primaryKey;type:varchar(42)"`
	PublicKey    string    `json:"publicKey" gorm:"type:text;not null"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// TableName 指定 GORM 表名。
func (PublicKeyRegistration) TableName() string {
	return "public_keys"
}

// Roles 记录账本的权限角色：合约所有者与中继地址。
type Roles struct {
	ID           uint    `json:"-" gorm:"primaryKey"`
	Owner        Address `json:"owner" gorm:"type:varchar(42);not null"`
	RelayAddress Address `json:"relayAddress" gorm:"type:varchar(42);not null"`
}

// TableName 指定 GORM 表名。
func (Roles) TableName() string {
	return "ledger_roles"
}
