package domain

import "time"

// EventType 定义账本事件类型。
type EventType string

const (
	// EventEmailSent 邮件记录创建事件
	EventEmailSent EventType = "email_sent"
	// EventPublicKeyRegistered 公钥登记事件
	EventPublicKeyRegistered EventType = "public_key_registered"
)

// Event 表示一条追加写入的账本事件，可按序号范围查询。
//
// Seq 由存储层在事件写入时分配，从 1 开始单调递增。
// 观察者记录最后读到的 Seq 并按增量拉取，实现 at-least-once 通知。
type Event struct {
	Seq       uint64    `json:"seq" gorm:"primaryKey;autoIncrement"`
	Type      EventType `json:"type" gorm:"type:varchar(32);index;not null"`
	Timestamp time.Time `json:"timestamp"`

	// EmailSent 事件字段
	EmailID        uint64  `json:"emailId,omitempty" gorm:"index"`
	Sender         Address `json:"sender,omitempty" gorm:"type:varchar(42)"`
	Recipient      Address `json:"recipient,omitempty" gorm:"type:varchar(42);index"`
	ContentPointer string  `json:"contentPointer,omitempty" gorm:"type:varchar(512)"`

	// PublicKeyRegistered 事件字段
	Account   Address `json:"account,omitempty" gorm:"type:varchar(42)"`
	PublicKey string  `json:"publicKey,omitempty" gorm:"type:text"`
}

// TableName 指定 GORM 表名。
func (Event) TableName() string {
	return "ledger_events"
}

// NewEmailSentEvent 构造邮件记录事件。
func NewEmailSentEvent(record *EmailRecord) *Event {
	return &Event{
		Type:           EventEmailSent,
		Timestamp:      record.CreatedAt,
		EmailID:        record.ID,
		Sender:         record.Sender,
		Recipient:      record.Recipient,
		ContentPointer: record.ContentPointer,
	}
}

// NewPublicKeyRegisteredEvent 构造公钥登记事件。
func NewPublicKeyRegisteredEvent(reg *PublicKeyRegistration) *Event {
	return &Event{
		Type:      EventPublicKeyRegistered,
		Timestamp: reg.RegisteredAt,
		Account:   reg.Account,
		PublicKey: reg.PublicKey,
	}
}
