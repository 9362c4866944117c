package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/monitoring"
)

// DefaultBaseURL OpenRouter 聊天补全接口地址
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// DefaultModel 缺省使用的模型
const DefaultModel = "openai/gpt-4o-mini"

// personalMailProviders 组织名提取时需要过滤的个人邮箱提供商
var personalMailProviders = map[string]struct{}{
	"gmail":   {},
	"hotmail": {},
	"outlook": {},
	"yahoo":   {},
	"icloud":  {},
	"live":    {},
}

// Config 分类客户端配置
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// RatePerMinute 本地限速，0 表示不限
	RatePerMinute int
}

// Client 调用 AI 服务完成邮件分类、组织名提取与摘要生成
// 内置 rate.Limiter 做本地限速，避免把上游配额打满
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient 创建分类客户端
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)
	}

	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		logger:  logger,
	}
}

// chatMessage 聊天补全请求中的单条消息
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest 聊天补全请求体
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// complete 发送单轮对话并返回模型输出文本
func (c *Client) complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		monitoring.RecordAICall("error")
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		monitoring.RecordAICall("error")
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		monitoring.RecordAICall("error")
		return "", fmt.Errorf("ai api error: status %d", resp.StatusCode)
	}
	monitoring.RecordAICall("ok")

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Classify 对邮件会话做销售机会分类
// 永不返回错误：调用失败或输出不可解析时回退到全否定的默认结果，
// 下游据此走 "Error: Failed to process" 或非机会分支
func (c *Client) Classify(ctx context.Context, email *domain.InboundEmail) *domain.ClassificationResult {
	content, err := c.complete(ctx, buildAnalysisPrompt(email), 0.1, 0)
	if err != nil {
		c.logger.Warn("AI 分类调用失败，使用默认结果",
			zap.String("message_id", email.ID),
			zap.Error(err))
		return domain.DefaultClassificationResult()
	}
	return parseClassification(content, c.logger)
}

// parseClassification 从模型输出中截取首个 { 到最后一个 } 之间的 JSON 并解析
// 解析失败时返回默认结果，缺失字段由 Normalize 补齐
func parseClassification(content string, logger *zap.Logger) *domain.ClassificationResult {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		logger.Warn("AI 输出中未找到 JSON，使用默认结果")
		return domain.DefaultClassificationResult()
	}

	result := domain.DefaultClassificationResult()
	if err := json.Unmarshal([]byte(content[start:end+1]), result); err != nil {
		logger.Warn("AI 输出 JSON 解析失败，使用默认结果", zap.Error(err))
		return domain.DefaultClassificationResult()
	}
	result.Normalize()
	return result
}

// Summarize 生成丹麦语会话摘要，用于交易备注
// 失败时返回错误，调用方自行回退到模板化备注
func (c *Client) Summarize(ctx context.Context, conversation string) (string, error) {
	content, err := c.complete(ctx, buildDanishSummaryPrompt(conversation), 0.3, 150)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// ExtractOrganizationName 从邮箱域名与正文推断组织名
// 个人邮箱提供商返回空字符串，失败时同样返回空（调用方使用域名回退链）
func (c *Client) ExtractOrganizationName(ctx context.Context, domainLabel, emailContent string) string {
	content, err := c.complete(ctx, buildOrgNamePrompt(domainLabel, emailContent), 0.2, 16)
	if err != nil {
		c.logger.Warn("组织名提取失败", zap.String("domain", domainLabel), zap.Error(err))
		return ""
	}

	name := strings.TrimSpace(content)
	if _, personal := personalMailProviders[strings.ToLower(name)]; personal {
		return ""
	}
	return name
}
