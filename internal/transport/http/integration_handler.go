package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dealradar/backend/internal/credential"
	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/storage"
)

// IntegrationHandler 第三方集成的接入与断开
type IntegrationHandler struct {
	credentials *credential.Manager
	store       storage.IntegrationRepository
	logger      *zap.Logger
}

// NewIntegrationHandler 创建集成处理器
func NewIntegrationHandler(credentials *credential.Manager, store storage.IntegrationRepository, logger *zap.Logger) *IntegrationHandler {
	return &IntegrationHandler{credentials: credentials, store: store, logger: logger}
}

type connectIntegrationRequest struct {
	AccessToken    string `json:"accessToken" binding:"required"`
	RefreshToken   string `json:"refreshToken"`
	ExpiresIn      int    `json:"expiresIn"` // 秒
	ProviderUserID string `json:"providerUserId"`
}

type integrationResponse struct {
	ID             string     `json:"id"`
	Provider       string     `json:"provider"`
	ProviderUserID string     `json:"providerUserId,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	IsActive       bool       `json:"isActive"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// parseProvider 校验路径中的提供方标识
func parseProvider(raw string) (domain.Provider, bool) {
	switch domain.Provider(raw) {
	case domain.ProviderMicrosoft:
		return domain.ProviderMicrosoft, true
	case domain.ProviderPipedrive:
		return domain.ProviderPipedrive, true
	}
	return "", false
}

// Connect 保存 OAuth 回调换到的令牌对，令牌加密落库
func (h *IntegrationHandler) Connect(c *gin.Context) {
	provider, ok := parseProvider(c.Param("provider"))
	if !ok {
		BadRequest(c, MsgInvalidProvider)
		return
	}

	var req connectIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	userID := c.GetString("userID")

	tokens := domain.Tokens{
		AccessToken:    req.AccessToken,
		RefreshToken:   req.RefreshToken,
		ProviderUserID: req.ProviderUserID,
	}
	if req.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
		tokens.ExpiresAt = &expiresAt
	}

	integration, err := h.credentials.Connect(c.Request.Context(), userID, provider, tokens)
	if err != nil {
		h.logger.Error("集成接入失败",
			zap.String("user_id", userID),
			zap.String("provider", string(provider)),
			zap.Error(err))
		InternalError(c, MsgIntegrationConnectFailed)
		return
	}

	Created(c, toIntegrationResponse(integration))
}

// Get 查看集成状态，响应不包含任何令牌材料
func (h *IntegrationHandler) Get(c *gin.Context) {
	provider, ok := parseProvider(c.Param("provider"))
	if !ok {
		BadRequest(c, MsgInvalidProvider)
		return
	}

	userID := c.GetString("userID")

	integration, err := h.store.GetIntegration(userID, provider)
	if err != nil {
		if errors.Is(err, storage.ErrIntegrationNotFound) {
			NotFound(c, MsgIntegrationNotFound)
			return
		}
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, toIntegrationResponse(integration))
}

// Disconnect 断开集成（软删除）
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	provider, ok := parseProvider(c.Param("provider"))
	if !ok {
		BadRequest(c, MsgInvalidProvider)
		return
	}

	userID := c.GetString("userID")

	if err := h.credentials.Disconnect(c.Request.Context(), userID, provider); err != nil {
		if errors.Is(err, storage.ErrIntegrationNotFound) {
			NotFound(c, MsgIntegrationNotFound)
			return
		}
		InternalError(c, MsgIntegrationDisconnectFailed)
		return
	}

	NoContent(c)
}

func toIntegrationResponse(integration *domain.Integration) integrationResponse {
	return integrationResponse{
		ID:             integration.ID,
		Provider:       string(integration.Provider),
		ProviderUserID: integration.ProviderUserID,
		ExpiresAt:      integration.ExpiresAt,
		IsActive:       integration.IsActive,
		CreatedAt:      integration.CreatedAt,
	}
}
