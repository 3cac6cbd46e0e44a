package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/monitoring"
	"github.com/ezac101/chainmail/internal/service"
)

// AdminHandler 处理账本管理相关的 HTTP 请求
//
// 角色变更的调用方身份从请求体的 caller 字段取：运营后台
// 替当前所有者提交，账本仍然按所有者规则校验。
type AdminHandler struct {
	admin  *service.AdminService
	alerts *monitoring.AlertManager
	log    *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(admin *service.AdminService, alerts *monitoring.AlertManager, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		alerts: alerts,
		log:    log,
	}
}

type setRelayRequest struct {
	Caller   string `json:"caller" binding:"required"`
	NewRelay string `json:"newRelay" binding:"required"`
}

type transferOwnershipRequest struct {
	Caller   string `json:"caller" binding:"required"`
	NewOwner string `json:"newOwner" binding:"required"`
}

type creditRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

// Statistics 返回账本运行统计
func (h *AdminHandler) Statistics(c *gin.Context) {
	stats, err := h.admin.Statistics()
	if err != nil {
		h.log.Error("汇总统计失败", zap.Error(err))
		InternalError(c, MsgStatisticsFailed)
		return
	}

	Success(c, stats)
}

// Alerts 返回当前活跃告警
func (h *AdminHandler) Alerts(c *gin.Context) {
	Success(c, h.alerts.GetActiveAlerts())
}

// SetRelayAddress 更换授权中继地址
func (h *AdminHandler) SetRelayAddress(c *gin.Context) {
	var req setRelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}
	newRelay, err := domain.ParseAddress(req.NewRelay)
	if err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}

	if err := h.admin.SetRelayAddress(caller, newRelay); err != nil {
		h.respondRoleError(c, err)
		return
	}

	h.log.Info("中继地址已更换",
		zap.String("caller", caller.String()),
		zap.String("new_relay", newRelay.String()))

	Success(c, gin.H{"relayAddress": newRelay.String()})
}

// TransferOwnership 转移账本所有权
func (h *AdminHandler) TransferOwnership(c *gin.Context) {
	var req transferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}
	newOwner, err := domain.ParseAddress(req.NewOwner)
	if err != nil {
		BadRequest(c, MsgInvalidAddress)
		return
	}

	if err := h.admin.TransferOwnership(caller, newOwner); err != nil {
		h.respondRoleError(c, err)
		return
	}

	h.log.Info("账本所有权已转移",
		zap.String("caller", caller.String()),
		zap.String("new_owner", newOwner.String()))

	Success(c, gin.H{"owner": newOwner.String()})
}

// CreditRelay 为中继账户充值
func (h *AdminHandler) CreditRelay(c *gin.Context) {
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	balance, err := h.admin.CreditRelay(req.Amount)
	if err != nil {
		h.log.Error("中继充值失败", zap.Error(err))
		InternalError(c, MsgCreditFailed)
		return
	}

	h.log.Info("中继账户已充值",
		zap.Uint64("amount", req.Amount),
		zap.Uint64("balance", balance))

	Success(c, gin.H{"balance": balance})
}

// respondRoleError 把角色变更失败映射为 HTTP 响应
//
// 账本拒绝原因原文返回。
func (h *AdminHandler) respondRoleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotOwner):
		Forbidden(c, err.Error())
	case errors.Is(err, service.ErrZeroAddress):
		UnprocessableEntity(c, err.Error())
	default:
		h.log.Error("角色变更失败", zap.Error(err))
		InternalError(c, MsgRoleChangeFailed)
	}
}
