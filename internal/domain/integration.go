package domain

import "time"

// Provider 第三方集成提供方标识
type Provider string

const (
	// ProviderMicrosoft 邮箱提供方（Microsoft Graph）
	ProviderMicrosoft Provider = "microsoft"
	// ProviderPipedrive CRM 提供方（Pipedrive）
	ProviderPipedrive Provider = "pipedrive"
)

// Integration 表示用户与第三方服务的 OAuth 集成记录。
//
// 每个 (user_id, provider) 组合最多存在一条激活记录。
// AccessToken 与 RefreshToken 在落库前必须加密，断开连接时软删除（IsActive=false）。
type Integration struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string     `json:"userId" gorm:"type:varchar(36);index:idx_user_provider;not null"`
	Provider       Provider   `json:"provider" gorm:"type:varchar(32);index:idx_user_provider;not null"`
	AccessToken    string     `json:"-" gorm:"type:text"` // 加密存储
	RefreshToken   string     `json:"-" gorm:"type:text"` // 加密存储，可为空
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	ProviderUserID string     `json:"providerUserId" gorm:"type:varchar(255)"` // 提供方侧的用户标识
	IsActive       bool       `json:"isActive" gorm:"default:true;index"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Tokens 解密后的令牌对，仅存在于内存中，绝不落库或写入日志。
type Tokens struct {
	AccessToken    string
	RefreshToken   string
	ExpiresAt      *time.Time
	ProviderUserID string
}
