package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
)

// APIError 上游接口返回非 2xx 时的终态错误
// 调用方不应对此类错误重试,重试逻辑(401 刷新后重试一次)已在 Caller 内完成
type APIError struct {
	Provider domain.Provider
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error: status %d: %s", e.Provider, e.Status, e.Body)
}

// CredentialSource 为调用提供令牌的加载与刷新能力
type CredentialSource interface {
	Get(ctx context.Context, userID string, provider domain.Provider) (domain.Tokens, error)
	Refresh(ctx context.Context, userID string, provider domain.Provider) (domain.Tokens, error)
}

// Caller 封装对单个提供方的统一调用策略：
// 附加 Bearer 令牌发起请求，401 时刷新一次并重试一次，其他非 2xx 返回 *APIError。
// 所有客户端共用这一个实现，各自不再携带重试逻辑。
type Caller struct {
	provider domain.Provider
	creds    CredentialSource
	client   *http.Client
	logger   *zap.Logger
}

// NewCaller 创建指定提供方的调用器
func NewCaller(provider domain.Provider, creds CredentialSource, timeout time.Duration, logger *zap.Logger) *Caller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Caller{
		provider: provider,
		creds:    creds,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Call 以指定用户身份调用上游接口并返回原始 JSON 响应体
// body 非 nil 时序列化为 JSON 请求体;204 等空响应返回 nil
func (c *Caller) Call(ctx context.Context, userID, method, url string, body interface{}) (json.RawMessage, error) {
	tokens, err := c.creds.Get(ctx, userID, c.provider)
	if err != nil {
		return nil, err
	}

	resp, raw, err := c.do(ctx, method, url, body, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// 令牌过期,刷新后重试一次
		c.logger.Info("访问令牌已过期,正在刷新",
			zap.String("user_id", userID),
			zap.String("provider", string(c.provider)))

		tokens, err = c.creds.Refresh(ctx, userID, c.provider)
		if err != nil {
			return nil, fmt.Errorf("refresh after 401: %w", err)
		}

		resp, raw, err = c.do(ctx, method, url, body, tokens.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Provider: c.provider, Status: resp.StatusCode, Body: string(raw)}
	}

	if len(raw) == 0 {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

func (c *Caller) do(ctx context.Context, method, url string, body interface{}, accessToken string) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s response: %w", c.provider, err)
	}
	return resp, raw, nil
}
