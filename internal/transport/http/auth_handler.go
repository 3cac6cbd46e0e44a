package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/auth"
	jwtpkg "github.com/ezac101/chainmail/internal/auth/jwt"
	"github.com/ezac101/chainmail/internal/domain"
)

// AuthHandler 处理运营账户认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service
	jwtManager  *jwtpkg.Manager
	log         *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service, jwtManager *jwtpkg.Manager, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtManager:  jwtManager,
		log:         log,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type createOperatorRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

type operatorResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
}

type authResponse struct {
	Operator     operatorResponse `json:"operator"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	ExpiresIn    int64            `json:"expiresIn"`
}

// Login 运营账户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	op, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrOperatorInactive):
			Forbidden(c, GetErrorMessage(err))
		default:
			Unauthorized(c, MsgInvalidCredentials)
		}
		return
	}

	tokens, err := h.jwtManager.GenerateTokenPair(op.ID, op.Username, string(op.Role))
	if err != nil {
		h.log.Error("签发令牌失败", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	h.log.Info("运营账户登录成功",
		zap.String("operator_id", op.ID),
		zap.String("username", op.Username))

	Success(c, authResponse{
		Operator: operatorResponse{
			ID:       op.ID,
			Username: op.Username,
			Role:     string(op.Role),
			IsActive: op.IsActive,
		},
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

// Refresh 用刷新令牌换取新的访问令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		if errors.Is(err, jwtpkg.ErrExpiredToken) {
			Unauthorized(c, MsgTokenExpired)
			return
		}
		Unauthorized(c, MsgTokenInvalid)
		return
	}

	Success(c, gin.H{"accessToken": accessToken})
}

// CreateOperator 创建新的运营账户（仅超级运营者）
func (h *AuthHandler) CreateOperator(c *gin.Context) {
	var req createOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	role := domain.OperatorRole(req.Role)
	if role != "" && role != domain.RoleOperator && role != domain.RoleSuper {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	op, err := h.authService.Register(auth.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameExists):
			Conflict(c, GetErrorMessage(err))
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			BadRequest(c, GetErrorMessage(err))
		default:
			h.log.Error("创建运营账户失败", zap.Error(err))
			InternalError(c, MsgOperatorFailed)
		}
		return
	}

	Created(c, operatorResponse{
		ID:       op.ID,
		Username: op.Username,
		Role:     string(op.Role),
		IsActive: op.IsActive,
	})
}
