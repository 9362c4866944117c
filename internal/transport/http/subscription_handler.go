package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/service"
	"dealradar/backend/internal/storage"
)

// SubscriptionHandler Webhook 订阅的生命周期管理
type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	logger        *zap.Logger
}

// NewSubscriptionHandler 创建订阅处理器
func NewSubscriptionHandler(subscriptions *service.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

type subscriptionResponse struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscriptionId"`
	Resource       string    `json:"resource"`
	ExpiresAt      time.Time `json:"expiresAt"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

type subscriptionListResponse struct {
	Items []subscriptionResponse `json:"items"`
	Count int                    `json:"count"`
}

// Create 为当前用户创建新邮件订阅
func (h *SubscriptionHandler) Create(c *gin.Context) {
	userID := c.GetString("userID")

	subscription, err := h.subscriptions.Create(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("订阅创建失败",
			zap.String("user_id", userID),
			zap.Error(err))
		InternalError(c, MsgSubscriptionCreateFailed)
		return
	}

	Created(c, toSubscriptionResponse(subscription))
}

// List 列出当前用户的激活订阅
func (h *SubscriptionHandler) List(c *gin.Context) {
	userID := c.GetString("userID")

	subscriptions, err := h.subscriptions.List(userID)
	if err != nil {
		InternalError(c, MsgSubscriptionListFailed)
		return
	}

	items := make([]subscriptionResponse, 0, len(subscriptions))
	for i := range subscriptions {
		items = append(items, toSubscriptionResponse(&subscriptions[i]))
	}

	Success(c, subscriptionListResponse{Items: items, Count: len(items)})
}

// Renew 续期指定订阅
func (h *SubscriptionHandler) Renew(c *gin.Context) {
	userID := c.GetString("userID")
	subscriptionID := c.Param("id")

	subscription, err := h.subscriptions.Renew(c.Request.Context(), userID, subscriptionID)
	if err != nil {
		if errors.Is(err, storage.ErrSubscriptionNotFound) {
			NotFound(c, MsgSubscriptionNotFound)
			return
		}
		InternalError(c, MsgSubscriptionRenewFailed)
		return
	}

	Success(c, toSubscriptionResponse(subscription))
}

// Delete 删除指定订阅
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	userID := c.GetString("userID")
	subscriptionID := c.Param("id")

	if err := h.subscriptions.Delete(c.Request.Context(), userID, subscriptionID); err != nil {
		if errors.Is(err, storage.ErrSubscriptionNotFound) {
			NotFound(c, MsgSubscriptionNotFound)
			return
		}
		InternalError(c, MsgSubscriptionDeleteFailed)
		return
	}

	NoContent(c)
}

func toSubscriptionResponse(subscription *domain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:             subscription.ID,
		SubscriptionID: subscription.SubscriptionID,
		Resource:       subscription.Resource,
		ExpiresAt:      subscription.ExpiresAt,
		IsActive:       subscription.IsActive,
		CreatedAt:      subscription.CreatedAt,
	}
}
