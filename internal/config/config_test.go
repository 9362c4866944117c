package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"DEALRADAR_CRYPTO_SECRET",
		"DEALRADAR_SERVER_HOST",
		"DEALRADAR_SERVER_PORT",
		"DEALRADAR_CORS_ALLOWED_ORIGINS",
		"DEALRADAR_LOG_LEVEL",
		"DEALRADAR_LOG_DEVELOPMENT",
		"DEALRADAR_AI_API_KEY",
		"DEALRADAR_AI_MODEL",
		"DEALRADAR_MICROSOFT_CLIENT_ID",
		"DEALRADAR_PIPEDRIVE_CLIENT_ID",
		"DEALRADAR_SUBSCRIPTION_NOTIFICATION_URL",
		"DEALRADAR_SUBSCRIPTION_STATE_SECRET",
		"DEALRADAR_SUBSCRIPTION_RENEW_WINDOW",
		"DEALRADAR_POOL_MAX_WORKERS",
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

	t.Run("加载默认配置成功", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}

		// 设置必需的加密密钥
		os.Setenv("DEALRADAR_CRYPTO_SECRET", "test-secret-key-for-development-32-chars-long-at-least")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
		assert.Equal(t, "https://login.microsoftonline.com/common/oauth2/v2.0/token", cfg.Microsoft.TokenURL)
		assert.Equal(t, "https://oauth.pipedrive.com/oauth/token", cfg.Pipedrive.TokenURL)
		assert.Equal(t, "openai/gpt-4o-mini", cfg.AI.Model)
		assert.Equal(t, "https://openrouter.ai/api/v1", cfg.AI.BaseURL)
		assert.Equal(t, 10, cfg.AI.RatePerMinute)
		assert.Equal(t, "dealradar", cfg.Subscription.StateIssuer)
		assert.Equal(t, time.Hour, cfg.Subscription.RenewInterval)
		assert.Equal(t, 24*time.Hour, cfg.Subscription.RenewWindow)
		assert.Equal(t, 8, cfg.Pool.MaxWorkers)
		assert.Equal(t, 256, cfg.Pool.QueueSize)

		// clientState 密钥缺省复用加密主密钥
		assert.Equal(t, cfg.Crypto.Secret, cfg.Subscription.StateSecret)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		os.Setenv("DEALRADAR_CRYPTO_SECRET", "custom-crypto-secret-key-32-chars-long-minimum")
		os.Setenv("DEALRADAR_SERVER_HOST", "127.0.0.1")
		os.Setenv("DEALRADAR_SERVER_PORT", "9090")
		os.Setenv("DEALRADAR_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
		os.Setenv("DEALRADAR_LOG_LEVEL", "debug")
		os.Setenv("DEALRADAR_LOG_DEVELOPMENT", "true")
		os.Setenv("DEALRADAR_AI_API_KEY", "sk-or-test")
		os.Setenv("DEALRADAR_AI_MODEL", "openai/gpt-4o")
		os.Setenv("DEALRADAR_MICROSOFT_CLIENT_ID", "ms-app-1")
		os.Setenv("DEALRADAR_PIPEDRIVE_CLIENT_ID", "pd-app-1")
		os.Setenv("DEALRADAR_SUBSCRIPTION_NOTIFICATION_URL", "https://deals.example.com/api/webhooks/mail")
		os.Setenv("DEALRADAR_SUBSCRIPTION_RENEW_WINDOW", "12h")
		os.Setenv("DEALRADAR_POOL_MAX_WORKERS", "16")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Log.Development)
		assert.Equal(t, "sk-or-test", cfg.AI.APIKey)
		assert.Equal(t, "openai/gpt-4o", cfg.AI.Model)
		assert.Equal(t, "ms-app-1", cfg.Microsoft.ClientID)
		assert.Equal(t, "pd-app-1", cfg.Pipedrive.ClientID)
		assert.Equal(t, "https://deals.example.com/api/webhooks/mail", cfg.Subscription.NotificationURL)
		assert.Equal(t, 12*time.Hour, cfg.Subscription.RenewWindow)
		assert.Equal(t, 16, cfg.Pool.MaxWorkers)
	})

	t.Run("加密密钥太短失败", func(t *testing.T) {
		os.Setenv("DEALRADAR_CRYPTO_SECRET", "short-key") // 少于32字符

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "crypto secret must be at least 32 characters long")
	})

	t.Run("使用默认加密密钥失败", func(t *testing.T) {
		os.Setenv("DEALRADAR_CRYPTO_SECRET", "change-me-in-production")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "crypto secret cannot be the default value")
	})

	t.Run("独立配置的clientState密钥生效", func(t *testing.T) {
		os.Setenv("DEALRADAR_CRYPTO_SECRET", "valid-crypto-secret-key-32-chars-long-minimum")
		os.Setenv("DEALRADAR_SUBSCRIPTION_STATE_SECRET", "separate-state-secret-key-32-chars-long-min")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, "separate-state-secret-key-32-chars-long-min", cfg.Subscription.StateSecret)
		assert.NotEqual(t, cfg.Crypto.Secret, cfg.Subscription.StateSecret)
	})
}

func TestParseList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "单个条目",
			input:    "https://app.example.com",
			expected: []string{"https://app.example.com"},
		},
		{
			name:     "多个条目去除空白",
			input:    " a.example.com , b.example.com ,",
			expected: []string{"a.example.com", "b.example.com"},
		},
		{
			name:     "全部为空",
			input:    " , , ",
			expected: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseList(tc.input))
		})
	}
}
