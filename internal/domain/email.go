package domain

import "time"

// ThreadMessage 会话线程中的一封历史邮件（按时间顺序排列）。
type ThreadMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// InboundEmail 表示一封已拉取完整内容的入站邮件。
//
// 拉取完成后不可变，(UserID, ID) 作为去重键。
type InboundEmail struct {
	ID      string          `json:"id"` // 提供方消息 ID
	UserID  string          `json:"userId"`
	Subject string          `json:"subject"`
	From    string          `json:"from"`
	To      []string        `json:"to"`
	SentAt  *time.Time      `json:"sentAt,omitempty"`
	Body    string          `json:"body"`
	Thread  []ThreadMessage `json:"thread,omitempty"` // 按时间顺序的历史邮件，可为空
}

// Recipient 返回主收件人地址，没有收件人时返回空字符串。
func (e *InboundEmail) Recipient() string {
	if len(e.To) == 0 {
		return ""
	}
	return e.To[0]
}

// ProcessedEmail 已处理邮件的去重记录。
//
// (UserID, ProviderMessageID) 全局唯一，重复通知据此被跳过。
type ProcessedEmail struct {
	ID                string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID            string     `json:"userId" gorm:"type:varchar(36);uniqueIndex:idx_user_message;not null"`
	ProviderMessageID string     `json:"providerMessageId" gorm:"type:varchar(512);uniqueIndex:idx_user_message;not null"`
	Subject           string     `json:"subject" gorm:"type:varchar(998)"`
	Sender            string     `json:"sender" gorm:"type:varchar(320)"`
	Recipient         string     `json:"recipient" gorm:"type:varchar(320)"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}
