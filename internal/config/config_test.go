package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"CHAINMAIL_JWT_SECRET",
		"CHAINMAIL_SERVER_HOST",
		"CHAINMAIL_SERVER_PORT",
		"CHAINMAIL_LEDGER_OWNER_ADDRESS",
		"CHAINMAIL_LEDGER_RELAY_ADDRESS",
		"CHAINMAIL_RELAY_MIN_BALANCE",
		"CHAINMAIL_RELAY_BASE_GAS",
		"CHAINMAIL_CONTENT_BACKEND",
		"CHAINMAIL_CONTENT_PATH",
		"CHAINMAIL_CONTENT_S3_ENDPOINT",
		"CHAINMAIL_CONTENT_S3_ACCESS_KEY",
		"CHAINMAIL_CONTENT_S3_SECRET_KEY",
		"CHAINMAIL_BRIDGE_ENABLED",
		"CHAINMAIL_BRIDGE_ACCOUNT_ADDRESS",
		"CHAINMAIL_CORS_ALLOWED_ORIGINS",
		"CHAINMAIL_LOG_LEVEL",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	reset := func() {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("CHAINMAIL_JWT_SECRET", "test-secret-key-for-development-32-chars-long")
		os.Setenv("CHAINMAIL_LEDGER_OWNER_ADDRESS", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
		os.Setenv("CHAINMAIL_LEDGER_RELAY_ADDRESS", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	}

	t.Run("加载默认配置成功", func(t *testing.T) {
		reset()

		cfg, err := Load()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, uint64(100000), cfg.Relay.MinBalance)
		assert.Equal(t, uint64(21000), cfg.Relay.BaseGas)
		assert.Equal(t, uint64(68), cfg.Relay.GasPerByte)
		assert.Equal(t, "filesystem", cfg.Content.Backend)
		assert.Equal(t, "./data/content", cfg.Content.Path)
		assert.False(t, cfg.Bridge.Enabled)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("解析账本角色地址", func(t *testing.T) {
		reset()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", cfg.Ledger.OwnerAddress.String())
		assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", cfg.Ledger.RelayAddress.String())
	})

	t.Run("缺少所有者地址时失败", func(t *testing.T) {
		reset()
		os.Unsetenv("CHAINMAIL_LEDGER_OWNER_ADDRESS")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("缺少中继地址时失败", func(t *testing.T) {
		reset()
		os.Unsetenv("CHAINMAIL_LEDGER_RELAY_ADDRESS")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("零地址被拒绝", func(t *testing.T) {
		reset()
		os.Setenv("CHAINMAIL_LEDGER_OWNER_ADDRESS", "0x0000000000000000000000000000000000000000")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("默认JWT密钥被拒绝", func(t *testing.T) {
		reset()
		os.Setenv("CHAINMAIL_JWT_SECRET", "change-me-in-production")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("过短的JWT密钥被拒绝", func(t *testing.T) {
		reset()
		os.Setenv("CHAINMAIL_JWT_SECRET", "too-short")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("不支持的内容后端被拒绝", func(t *testing.T) {
		reset()
		os.Setenv("CHAINMAIL_CONTENT_BACKEND", "ipfs")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("s3后端要求访问凭证", func(t *testing.T) {
		reset()
		os.Setenv("CHAINMAIL_CONTENT_BACKEND", "s3")
		os.Setenv("CHAINMAIL_CONTENT_S3_ENDPOINT", "http://localhost:9000")

		_, err := Load()
		assert.Error(t, err)

		os.Setenv("CHAINMAIL_CONTENT_S3_ACCESS_KEY", "minioadmin")
		os.Setenv("CHAINMAIL_CONTENT_S3_SECRET_KEY", "minioadmin")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "s3", cfg.Content.Backend)
		assert.Equal(t, "http://localhost:9000", cfg.Content.S3Endpoint)
	})

	t.Run("桥接启用时要求账户地址", func(t *testing.T) {
		reset()
		os.Setenv("CHAINMAIL_BRIDGE_ENABLED", "true")

		_, err := Load()
		assert.Error(t, err)

		os.Setenv("CHAINMAIL_BRIDGE_ACCOUNT_ADDRESS", "0xcccccccccccccccccccccccccccccccccccccccc")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Bridge.Enabled)
		assert.Equal(t, "0xcccccccccccccccccccccccccccccccccccccccc", cfg.Bridge.AccountAddress.String())
	})

	t.Run("解析CORS来源列表", func(t *testing.T) {
		reset()
		os.Setenv("CHAINMAIL_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		reset()
		os.Setenv("CHAINMAIL_SERVER_PORT", "9090")
		os.Setenv("CHAINMAIL_RELAY_MIN_BALANCE", "50")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, uint64(50), cfg.Relay.MinBalance)
	})
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"Single item", "a", []string{"a"}},
		{"Multiple items", "a,b,c", []string{"a", "b", "c"}},
		{"Trims whitespace", " a , b ", []string{"a", "b"}},
		{"Skips empty items", "a,,b,", []string{"a", "b"}},
		{"Empty string", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseList(tt.input))
		})
	}
}
