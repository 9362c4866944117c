package domain

import "time"

// Subscription 邮箱提供方的 Webhook 订阅记录。
//
// 摄入层只接受引用了激活订阅的通知；后台任务在临近过期时续期。
type Subscription struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `json:"userId" gorm:"type:varchar(36);index;not null"`
	SubscriptionID string    `json:"subscriptionId" gorm:"type:varchar(255);uniqueIndex;not null"` // 提供方侧订阅 ID
	Resource       string    `json:"resource" gorm:"type:varchar(512)"`
	ClientState    string    `json:"-" gorm:"type:text"` // 签名令牌，携带内部用户 ID
	ExpiresAt      time.Time `json:"expiresAt"`
	IsActive       bool      `json:"isActive" gorm:"default:true;index"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Notification 提供方推送的单条变更通知。
type Notification struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	ChangeType     string `json:"changeType"`
	Resource       string `json:"resource"`
}

// NotificationEnvelope 提供方 Webhook 的外层载荷 {value: [...]}。
type NotificationEnvelope struct {
	Value []Notification `json:"value"`
}
