package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/monitoring"
	"github.com/ezac101/chainmail/internal/service"
	"github.com/ezac101/chainmail/internal/storage"
)

// RelayHandler 处理中继代付提交的 HTTP 请求
type RelayHandler struct {
	relay   *service.RelayService
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewRelayHandler 创建中继处理器
func NewRelayHandler(relay *service.RelayService, metrics *monitoring.Metrics, log *zap.Logger) *RelayHandler {
	return &RelayHandler{
		relay:   relay,
		metrics: metrics,
		log:     log,
	}
}

type sendEmailRequest struct {
	Sender         string `json:"sender" binding:"required"`
	Recipient      string `json:"recipient" binding:"required"`
	ContentPointer string `json:"contentPointer" binding:"required"`
}

type registerKeyRequest struct {
	Account   string `json:"account" binding:"required"`
	PublicKey string `json:"publicKey" binding:"required"`
}

// SendEmail 代付提交一条邮件记录
func (h *RelayHandler) SendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	sender, err := domain.ParseAddress(req.Sender)
	if err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}
	recipient, err := domain.ParseAddress(req.Recipient)
	if err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}

	result, err := h.relay.SubmitEmail(sender, recipient, req.ContentPointer)
	if err != nil {
		h.metrics.RecordRelaySubmit("email", "rejected", 0)
		h.respondSubmitError(c, err)
		return
	}

	h.metrics.RecordRelaySubmit("email", "ok", result.GasUsed)
	h.metrics.RecordEmailLogged()

	h.log.Info("邮件已通过中继上账",
		zap.Uint64("email_id", result.ID),
		zap.String("sender", sender.String()),
		zap.String("recipient", recipient.String()),
		zap.Uint64("gas_used", result.GasUsed))

	Created(c, result)
}

// RegisterKey 代付注册账户公钥
func (h *RelayHandler) RegisterKey(c *gin.Context) {
	var req registerKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	account, err := domain.ParseAddress(req.Account)
	if err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}

	result, err := h.relay.RegisterKey(account, req.PublicKey)
	if err != nil {
		h.metrics.RecordRelaySubmit("key", "rejected", 0)
		h.respondSubmitError(c, err)
		return
	}

	h.metrics.RecordRelaySubmit("key", "ok", result.GasUsed)
	h.metrics.RecordKeyRegistered()

	h.log.Info("公钥已通过中继注册",
		zap.String("account", account.String()),
		zap.Uint64("gas_used", result.GasUsed))

	Created(c, result)
}

// Balance 查询中继账户状态
func (h *RelayHandler) Balance(c *gin.Context) {
	balance, err := h.relay.Balance()
	if err != nil {
		InternalError(c, MsgBalanceFailed)
		return
	}

	gasSpent, err := h.relay.GasSpent()
	if err != nil {
		InternalError(c, MsgBalanceFailed)
		return
	}

	h.metrics.UpdateRelayBalance(balance)

	Success(c, gin.H{
		"balance":    balance,
		"gasSpent":   gasSpent,
		"minBalance": h.relay.MinBalance(),
	})
}

// respondSubmitError 把提交失败映射为 HTTP 响应
//
// 账本拒绝的原因原文返回，余额不足用 402 区分。
func (h *RelayHandler) respondSubmitError(c *gin.Context, err error) {
	h.metrics.RecordLedgerReject(err.Error())

	switch {
	case errors.Is(err, service.ErrRelayBalanceTooLow),
		errors.Is(err, storage.ErrInsufficientBalance):
		PaymentRequired(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrZeroAddress),
		errors.Is(err, domain.ErrEmptyContentPointer),
		errors.Is(err, domain.ErrContentPointerTooLong),
		errors.Is(err, domain.ErrEmptyPublicKey),
		errors.Is(err, domain.ErrMalformedPublicKey):
		UnprocessableEntity(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrNotRelay):
		Forbidden(c, GetErrorMessage(err))
	default:
		InternalError(c, GetErrorMessage(err))
	}
}
