package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/service"
)

// WebhookHandler 提供方推送通知的入口
type WebhookHandler struct {
	ingest *service.IngestService
	logger *zap.Logger
}

// NewWebhookHandler 创建 Webhook 处理器
func NewWebhookHandler(ingest *service.IngestService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{ingest: ingest, logger: logger}
}

type notificationResult struct {
	SubscriptionID string `json:"subscriptionId"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
}

// HandleNotification 处理提供方推送
//
// 订阅创建时提供方会带 validationToken 做握手校验，必须原样以
// text/plain 回显。正常推送一律返回 202，单条通知的失败不影响
// 整批确认，否则提供方会反复重投。
func (h *WebhookHandler) HandleNotification(c *gin.Context) {
	// 验证握手优先于一切业务逻辑
	if token := c.Query("validationToken"); token != "" {
		c.String(http.StatusOK, "%s", token)
		return
	}

	if c.Request.Method == http.MethodGet {
		c.Status(http.StatusOK)
		return
	}

	var envelope domain.NotificationEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		h.logger.Warn("通知载荷解析失败", zap.Error(err))
		// 无法解析的载荷也返回 202，避免提供方重投垃圾数据
		c.Status(http.StatusAccepted)
		return
	}

	results := make([]notificationResult, 0, len(envelope.Value))
	for _, notification := range envelope.Value {
		result := h.ingest.Ingest(c.Request.Context(), notification)
		results = append(results, notificationResult{
			SubscriptionID: notification.SubscriptionID,
			Status:         string(result.Status),
			Reason:         result.Reason,
		})
	}

	c.JSON(http.StatusAccepted, gin.H{"results": results})
}
