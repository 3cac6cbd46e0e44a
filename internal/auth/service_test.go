package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/storage/memory"
)

func newTestService() *Service {
	return NewService(memory.NewStore())
}

func TestService_Register(t *testing.T) {
	svc := newTestService()

	op, err := svc.Register(RegisterInput{
		Username: "Admin",
		Password: "password123",
		Role:     domain.RoleSuper,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, op.ID)
	assert.Equal(t, "admin", op.Username) // 用户名统一小写
	assert.Equal(t, domain.RoleSuper, op.Role)
	assert.True(t, op.IsActive)
	assert.NotEqual(t, "password123", op.PasswordHash)
}

func TestService_Register_DefaultRole(t *testing.T) {
	svc := newTestService()

	op, err := svc.Register(RegisterInput{
		Username: "viewer",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOperator, op.Role)
}

func TestService_Register_Validation(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"Username too short", "ab", "password123", ErrInvalidUsername},
		{"Username too long", strings.Repeat("a", 65), "password123", ErrInvalidUsername},
		{"Username with spaces", "bad user", "password123", ErrInvalidUsername},
		{"Username with special chars", "user@host", "password123", ErrInvalidUsername},
		{"Empty username", "", "password123", ErrInvalidUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(RegisterInput{Username: tt.username, Password: tt.password})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("Password too short", func(t *testing.T) {
		_, err := svc.Register(RegisterInput{Username: "validuser", Password: "short"})
		assert.Error(t, err)
	})

	t.Run("Password too long", func(t *testing.T) {
		_, err := svc.Register(RegisterInput{Username: "validuser", Password: strings.Repeat("a", 73)})
		assert.Error(t, err)
	})
}

func TestService_Register_Duplicate(t *testing.T) {
	svc := newTestService()

	_, err := svc.Register(RegisterInput{Username: "admin", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Register(RegisterInput{Username: "admin", Password: "password456"})
	assert.ErrorIs(t, err, ErrUsernameExists)

	// 大小写不同的同名用户也视为重复
	_, err = svc.Register(RegisterInput{Username: "ADMIN", Password: "password456"})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestService_Login(t *testing.T) {
	svc := newTestService()

	created, err := svc.Register(RegisterInput{Username: "admin", Password: "password123"})
	require.NoError(t, err)

	op, err := svc.Login("admin", "password123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, op.ID)

	// 登录更新最近登录时间
	fetched, err := svc.GetOperatorByID(created.ID)
	require.NoError(t, err)
	assert.NotNil(t, fetched.LastLoginAt)
}

func TestService_Login_CaseInsensitiveUsername(t *testing.T) {
	svc := newTestService()

	_, err := svc.Register(RegisterInput{Username: "admin", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Login("ADMIN", "password123")
	assert.NoError(t, err)
}

func TestService_Login_InvalidCredentials(t *testing.T) {
	svc := newTestService()

	_, err := svc.Register(RegisterInput{Username: "admin", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Login("admin", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login("missing", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("password123")
	require.NoError(t, err)

	assert.True(t, CheckPassword("password123", hash))
	assert.False(t, CheckPassword("wrong", hash))

	// 相同密码每次生成不同的哈希
	hash2, err := HashPassword("password123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}
