package httptransport

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/service"
)

// LedgerHandler 处理账本只读查询的 HTTP 请求
type LedgerHandler struct {
	ledger *service.LedgerService
	log    *zap.Logger
}

// NewLedgerHandler 创建账本查询处理器
func NewLedgerHandler(ledger *service.LedgerService, log *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		log:    log,
	}
}

// GetEmail 按编号读取邮件记录
func (h *LedgerHandler) GetEmail(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, MsgInvalidEmailID)
		return
	}

	record, err := h.ledger.GetEmail(id)
	if err != nil {
		if errors.Is(err, service.ErrInvalidEmailID) {
			// 越界编号按账本拒绝原因原文返回
			NotFound(c, err.Error())
			return
		}
		InternalError(c, MsgEmailGetFailed)
		return
	}

	Success(c, record)
}

// GetEmailCount 返回账本中的记录总数
func (h *LedgerHandler) GetEmailCount(c *gin.Context) {
	total, err := h.ledger.GetTotalEmails()
	if err != nil {
		InternalError(c, MsgEmailGetFailed)
		return
	}

	Success(c, gin.H{"total": total})
}

// GetInbox 返回账户作为收件人的邮件编号列表
func (h *LedgerHandler) GetInbox(c *gin.Context) {
	account, err := domain.ParseAddress(c.Param("address"))
	if err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}

	ids, err := h.ledger.GetRecipientEmails(account)
	if err != nil {
		InternalError(c, MsgEmailListFailed)
		return
	}

	Success(c, gin.H{
		"account": account.String(),
		"emails":  ids,
	})
}

// GetOutbox 返回账户作为发件人的邮件编号列表
func (h *LedgerHandler) GetOutbox(c *gin.Context) {
	account, err := domain.ParseAddress(c.Param("address"))
	if err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}

	ids, err := h.ledger.GetSenderEmails(account)
	if err != nil {
		InternalError(c, MsgEmailListFailed)
		return
	}

	Success(c, gin.H{
		"account": account.String(),
		"emails":  ids,
	})
}

// GetPublicKey 查询账户的注册公钥
//
// 未注册的账户返回空字符串而不是 404，语义与账本一致。
func (h *LedgerHandler) GetPublicKey(c *gin.Context) {
	account, err := domain.ParseAddress(c.Param("address"))
	if err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}

	key, err := h.ledger.GetPublicKey(account)
	if err != nil {
		InternalError(c, MsgKeyGetFailed)
		return
	}

	Success(c, gin.H{
		"account":   account.String(),
		"publicKey": key,
	})
}

// ListEvents 按序号区间读取账本事件
func (h *LedgerHandler) ListEvents(c *gin.Context) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	events, err := h.ledger.Events(after, limit)
	if err != nil {
		InternalError(c, MsgEventListFailed)
		return
	}

	latest, err := h.ledger.LatestEventSeq()
	if err != nil {
		InternalError(c, MsgEventListFailed)
		return
	}

	Success(c, gin.H{
		"events":    events,
		"latestSeq": latest,
	})
}

// GetRoles 查询账本的所有者与中继地址
func (h *LedgerHandler) GetRoles(c *gin.Context) {
	roles, err := h.ledger.Roles()
	if err != nil {
		InternalError(c, MsgRolesGetFailed)
		return
	}

	Success(c, roles)
}
