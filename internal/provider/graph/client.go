package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/provider"
)

// DefaultBaseURL Microsoft Graph v1.0 接口地址
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// subscriptionTTL 订阅有效期，邮件资源允许的上限以内取 3 天
const subscriptionTTL = 72 * time.Hour

// Client 邮箱提供方客户端，负责邮件拉取与 Webhook 订阅的全生命周期
type Client struct {
	baseURL string
	caller  *provider.Caller
	logger  *zap.Logger
}

// NewClient 创建邮箱客户端，baseURL 为空时使用线上地址
func NewClient(baseURL string, caller *provider.Caller, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, caller: caller, logger: logger}
}

// graphRecipient Graph 消息中的收件人结构
type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// graphMessage Graph 消息响应体中本服务关心的字段
type graphMessage struct {
	ID           string           `json:"id"`
	Subject      string           `json:"subject"`
	From         graphRecipient   `json:"from"`
	ToRecipients []graphRecipient `json:"toRecipients"`
	Body         struct {
		Content string `json:"content"`
	} `json:"body"`
	SentDateTime *time.Time `json:"sentDateTime"`
}

// GetMessage 按消息 ID 拉取完整邮件内容
// providerUserID 非空时走 /users/{id}/messages 路径，否则退回 /me
func (c *Client) GetMessage(ctx context.Context, userID, providerUserID, messageID string) (*domain.InboundEmail, error) {
	var url string
	if providerUserID != "" {
		url = fmt.Sprintf("%s/users/%s/messages/%s", c.baseURL, providerUserID, messageID)
	} else {
		url = fmt.Sprintf("%s/me/messages/%s", c.baseURL, messageID)
	}

	raw, err := c.caller.Call(ctx, userID, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var msg graphMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("parse message response: %w", err)
	}

	to := make([]string, 0, len(msg.ToRecipients))
	for _, r := range msg.ToRecipients {
		if r.EmailAddress.Address != "" {
			to = append(to, r.EmailAddress.Address)
		}
	}

	return &domain.InboundEmail{
		ID:      msg.ID,
		UserID:  userID,
		Subject: msg.Subject,
		From:    msg.From.EmailAddress.Address,
		To:      to,
		SentAt:  msg.SentDateTime,
		Body:    msg.Body.Content,
	}, nil
}

// UserInfo 提供方侧的用户信息
type UserInfo struct {
	ID          string
	DisplayName string
	Email       string
}

// GetUserInfo 获取当前授权用户在提供方侧的身份信息
func (c *Client) GetUserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	raw, err := c.caller.Call(ctx, userID, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, err
	}

	var me struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.Unmarshal(raw, &me); err != nil {
		return nil, fmt.Errorf("parse user info response: %w", err)
	}

	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	return &UserInfo{ID: me.ID, DisplayName: me.DisplayName, Email: email}, nil
}

// SubscriptionInfo 提供方侧的订阅视图
type SubscriptionInfo struct {
	ID              string     `json:"id"`
	Resource        string     `json:"resource"`
	NotificationURL string     `json:"notificationUrl"`
	ClientState     string     `json:"clientState"`
	ExpiresAt       *time.Time `json:"expirationDateTime"`
}

// CreateSubscription 为用户邮箱创建新邮件的 Webhook 订阅
// clientState 由调用方签发，回调时用于校验通知来源
func (c *Client) CreateSubscription(ctx context.Context, userID, notificationURL, resource, clientState string) (*SubscriptionInfo, error) {
	if resource == "" {
		resource = "/me/messages"
	}
	expiresAt := time.Now().UTC().Add(subscriptionTTL)

	body := map[string]string{
		"changeType":         "created",
		"notificationUrl":    notificationURL,
		"resource":           resource,
		"expirationDateTime": expiresAt.Format(time.RFC3339),
		"clientState":        clientState,
	}

	raw, err := c.caller.Call(ctx, userID, http.MethodPost, c.baseURL+"/subscriptions", body)
	if err != nil {
		return nil, err
	}

	var info SubscriptionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parse subscription response: %w", err)
	}

	c.logger.Info("邮箱订阅创建成功",
		zap.String("user_id", userID),
		zap.String("subscription_id", info.ID))
	return &info, nil
}

// ListSubscriptions 列出用户当前全部订阅
func (c *Client) ListSubscriptions(ctx context.Context, userID string) ([]SubscriptionInfo, error) {
	raw, err := c.caller.Call(ctx, userID, http.MethodGet, c.baseURL+"/subscriptions", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Value []SubscriptionInfo `json:"value"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("parse subscription list response: %w", err)
	}
	return envelope.Value, nil
}

// RenewSubscription 续期订阅，返回新的过期时间
func (c *Client) RenewSubscription(ctx context.Context, userID, subscriptionID string) (*time.Time, error) {
	expiresAt := time.Now().UTC().Add(subscriptionTTL)
	body := map[string]string{
		"expirationDateTime": expiresAt.Format(time.RFC3339),
	}

	url := fmt.Sprintf("%s/subscriptions/%s", c.baseURL, subscriptionID)
	raw, err := c.caller.Call(ctx, userID, http.MethodPatch, url, body)
	if err != nil {
		return nil, err
	}

	var info SubscriptionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parse renew response: %w", err)
	}
	return info.ExpiresAt, nil
}

// DeleteSubscription 删除订阅
func (c *Client) DeleteSubscription(ctx context.Context, userID, subscriptionID string) error {
	url := fmt.Sprintf("%s/subscriptions/%s", c.baseURL, subscriptionID)
	_, err := c.caller.Call(ctx, userID, http.MethodDelete, url, nil)
	return err
}
