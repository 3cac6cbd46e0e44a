package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/storage"
)

var (
	// ErrInvalidUsername 无效的用户名
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword 无效的密码
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUsernameExists 用户名已存在
	ErrUsernameExists = errors.New("username already exists")
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOperatorInactive 运营账户已被禁用
	ErrOperatorInactive = errors.New("operator is inactive")
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-]{3,64}$`)

// Service 运营账户认证服务
//
// 运营账户只管本节点的管理接口，和账本上的地址身份无关。
type Service struct {
	operators storage.OperatorRepository
}

// NewService 创建认证服务
func NewService(operators storage.OperatorRepository) *Service {
	return &Service{operators: operators}
}

// RegisterInput 注册输入
type RegisterInput struct {
	Username string
	Password string
	Role     domain.OperatorRole
}

// Register 创建运营账户
func (s *Service) Register(input RegisterInput) (*domain.Operator, error) {
	username := strings.ToLower(input.Username)
	if !usernameRegex.MatchString(username) {
		return nil, ErrInvalidUsername
	}

	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	if op, err := s.operators.GetOperatorByUsername(username); err == nil && op != nil {
		return nil, ErrUsernameExists
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := input.Role
	if role == "" {
		role = domain.RoleOperator
	}

	op := &domain.Operator{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}

	if err := s.operators.CreateOperator(op); err != nil {
		if errors.Is(err, storage.ErrOperatorExists) {
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}

	return op, nil
}

// Login 运营账户登录
func (s *Service) Login(username, password string) (*domain.Operator, error) {
	op, err := s.operators.GetOperatorByUsername(strings.ToLower(username))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !op.IsActive {
		return nil, ErrOperatorInactive
	}

	if !CheckPassword(password, op.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	_ = s.operators.UpdateOperatorLastLogin(op.ID)

	return op, nil
}

// GetOperatorByID 根据 ID 获取运营账户
func (s *Service) GetOperatorByID(id string) (*domain.Operator, error) {
	return s.operators.GetOperatorByID(id)
}

// ValidatePassword 验证密码强度
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 72 {
		return errors.New("password must be at most 72 characters")
	}
	return nil
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
