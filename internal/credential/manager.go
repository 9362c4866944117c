package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"dealradar/backend/internal/crypto"
	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/monitoring"
	"dealradar/backend/internal/storage"
)

// OAuthEndpoint 描述单个提供方的令牌端点配置
type OAuthEndpoint struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string // 可为空，Microsoft 刷新时需要带 scope
}

// Manager 负责第三方凭证的加载、持久化与刷新
// 令牌在数据库中以密文存放，仅在内存中以明文存在
type Manager struct {
	store     storage.IntegrationRepository
	encryptor *crypto.Encryptor
	endpoints map[domain.Provider]OAuthEndpoint
	client    *http.Client
	logger    *zap.Logger

	// refreshGroup 合并同一 (user, provider) 的并发刷新请求
	// 多个调用同时收到 401 时只向上游发起一次刷新
	refreshGroup singleflight.Group
}

// NewManager 创建凭证管理器
func NewManager(store storage.IntegrationRepository, encryptor *crypto.Encryptor, endpoints map[domain.Provider]OAuthEndpoint, logger *zap.Logger) *Manager {
	return &Manager{
		store:     store,
		encryptor: encryptor,
		endpoints: endpoints,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// Get 加载指定用户在指定提供方的激活凭证并解密
// 集成不存在时返回 storage.ErrIntegrationNotFound
func (m *Manager) Get(ctx context.Context, userID string, provider domain.Provider) (domain.Tokens, error) {
	integration, err := m.store.GetIntegration(userID, provider)
	if err != nil {
		return domain.Tokens{}, err
	}

	accessToken, err := m.encryptor.Decrypt(integration.AccessToken)
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("decrypt access token for user %s provider %s: %w", userID, provider, err)
	}

	refreshToken := ""
	if integration.RefreshToken != "" {
		refreshToken, err = m.encryptor.Decrypt(integration.RefreshToken)
		if err != nil {
			return domain.Tokens{}, fmt.Errorf("decrypt refresh token for user %s provider %s: %w", userID, provider, err)
		}
	}

	return domain.Tokens{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ExpiresAt:      integration.ExpiresAt,
		ProviderUserID: integration.ProviderUserID,
	}, nil
}

// Connect 为用户首次接入提供方，加密令牌并落库
func (m *Manager) Connect(ctx context.Context, userID string, provider domain.Provider, tokens domain.Tokens) (*domain.Integration, error) {
	encAccess, err := m.encryptor.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}

	var encRefresh string
	if tokens.RefreshToken != "" {
		encRefresh, err = m.encryptor.Encrypt(tokens.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	now := time.Now()
	integration := &domain.Integration{
		ID:             uuid.New().String(),
		UserID:         userID,
		Provider:       provider,
		AccessToken:    encAccess,
		RefreshToken:   encRefresh,
		ExpiresAt:      tokens.ExpiresAt,
		ProviderUserID: tokens.ProviderUserID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.store.SaveIntegration(integration); err != nil {
		return nil, fmt.Errorf("persist integration: %w", err)
	}

	m.logger.Info("集成已接入",
		zap.String("user_id", userID),
		zap.String("provider", string(provider)))
	return integration, nil
}

// Disconnect 断开集成，软删除凭证记录
func (m *Manager) Disconnect(ctx context.Context, userID string, provider domain.Provider) error {
	return m.store.DeactivateIntegration(userID, provider)
}

// Persist 加密并保存一对新令牌
func (m *Manager) Persist(ctx context.Context, userID string, provider domain.Provider, tokens domain.Tokens) error {
	integration, err := m.store.GetIntegration(userID, provider)
	if err != nil {
		return err
	}

	encAccess, err := m.encryptor.Encrypt(tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	integration.AccessToken = encAccess

	if tokens.RefreshToken != "" {
		encRefresh, err := m.encryptor.Encrypt(tokens.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		integration.RefreshToken = encRefresh
	}
	integration.ExpiresAt = tokens.ExpiresAt
	if tokens.ProviderUserID != "" {
		integration.ProviderUserID = tokens.ProviderUserID
	}

	return m.store.UpdateIntegration(integration)
}

// Refresh 使用刷新令牌向提供方换取新的令牌对并持久化
// 通过 singleflight 按 (user, provider) 合并并发刷新
func (m *Manager) Refresh(ctx context.Context, userID string, provider domain.Provider) (domain.Tokens, error) {
	key := userID + "|" + string(provider)
	result, err, _ := m.refreshGroup.Do(key, func() (interface{}, error) {
		return m.doRefresh(ctx, userID, provider)
	})
	if err != nil {
		return domain.Tokens{}, err
	}
	return result.(domain.Tokens), nil
}

// tokenResponse OAuth2 令牌端点的标准响应体
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (m *Manager) doRefresh(ctx context.Context, userID string, provider domain.Provider) (domain.Tokens, error) {
	endpoint, ok := m.endpoints[provider]
	if !ok {
		return domain.Tokens{}, fmt.Errorf("no oauth endpoint configured for provider %s", provider)
	}

	current, err := m.Get(ctx, userID, provider)
	if err != nil {
		return domain.Tokens{}, err
	}
	if current.RefreshToken == "" {
		return domain.Tokens{}, fmt.Errorf("no refresh token stored for user %s provider %s", userID, provider)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", current.RefreshToken)
	form.Set("client_id", endpoint.ClientID)
	form.Set("client_secret", endpoint.ClientSecret)
	if endpoint.Scope != "" {
		form.Set("scope", endpoint.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("refresh token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// 不记录响应体，避免泄露凭证相关信息
		m.logger.Warn("令牌刷新被拒绝",
			zap.String("user_id", userID),
			zap.String("provider", string(provider)),
			zap.Int("status", resp.StatusCode))
		monitoring.RecordTokenRefresh(string(provider), "error")
		return domain.Tokens{}, fmt.Errorf("token refresh rejected with status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return domain.Tokens{}, fmt.Errorf("parse refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return domain.Tokens{}, fmt.Errorf("refresh response missing access token")
	}

	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	tokens := domain.Tokens{
		AccessToken:    tr.AccessToken,
		RefreshToken:   tr.RefreshToken,
		ExpiresAt:      &expiresAt,
		ProviderUserID: current.ProviderUserID,
	}
	// 部分提供方刷新时不轮换 refresh token，沿用旧值
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = current.RefreshToken
	}

	if err := m.Persist(ctx, userID, provider, tokens); err != nil {
		return domain.Tokens{}, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	monitoring.RecordTokenRefresh(string(provider), "ok")
	m.logger.Info("令牌刷新成功",
		zap.String("user_id", userID),
		zap.String("provider", string(provider)))
	return tokens, nil
}
