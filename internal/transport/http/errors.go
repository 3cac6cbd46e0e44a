package httptransport

import (
	"github.com/ezac101/chainmail/internal/auth"
	"github.com/ezac101/chainmail/internal/content"
	"github.com/ezac101/chainmail/internal/domain"
)

// 错误消息映射表（业务错误 -> 中文消息）
//
// 账本的拒绝原因（零地址、越权调用、编号越界等）不在此表中，
// 它们按原文透传给客户端，方便排查链上语义问题。
var errorMessages = map[error]string{
	// 地址与内容错误
	domain.ErrInvalidAddress: "账户地址格式无效",

	// 内容库错误
	content.ErrNotFound:         "密文内容不存在",
	content.ErrEmptyContent:     "内容不能为空",
	content.ErrContentTooLarge:  "内容超出大小限制",
	content.ErrInvalidContentID: "内容标识格式无效",

	// 认证错误
	auth.ErrInvalidUsername:    "用户名格式无效",
	auth.ErrInvalidPassword:    "密码不符合要求",
	auth.ErrUsernameExists:     "用户名已存在",
	auth.ErrInvalidCredentials: "用户名或密码错误",
	auth.ErrOperatorInactive:   "运营账户已被禁用",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgRequestBodyEmpty = "请求体不能为空"
	MsgInvalidAddress   = "账户地址格式无效"
	MsgInvalidEmailID   = "邮件编号格式无效"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "用户名或密码错误"
	MsgTokenExpired       = "登录已过期，请重新登录"
	MsgTokenInvalid       = "无效的访问令牌"
	MsgPermissionDenied   = "权限不足"

	// 账本相关
	MsgEmailGetFailed     = "获取邮件记录失败"
	MsgEmailListFailed    = "获取邮件列表失败"
	MsgKeyGetFailed       = "获取公钥失败"
	MsgEventListFailed    = "获取事件列表失败"
	MsgStatisticsFailed   = "获取统计数据失败"
	MsgRolesGetFailed     = "获取角色信息失败"
	MsgBalanceFailed      = "获取中继余额失败"
	MsgCreditFailed       = "中继充值失败"
	MsgRoleChangeFailed   = "角色变更失败"
	MsgOperatorFailed     = "创建运营账户失败"

	// 内容相关
	MsgContentUploadFailed = "上传密文失败"
	MsgContentGetFailed    = "读取密文失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
