package domain

import "time"

// 结果分类的封闭标签集。
// 前八个由归类器产出；OutcomeDuplicateEmail 与 OutcomeNewContactNoCompany
// 是 legacy 标签，仅存在于历史审计记录中，不再新写入。
// 重复通知只记活动日志，每封邮件维持唯一一条结果记录。
const (
	OutcomeError               = "Error: Failed to process"
	OutcomeLowConfidence       = "Skipped: Low confidence score"
	OutcomeNotSalesDeal        = "Ignored: Not a sales deal"
	OutcomeDealExists          = "Not created: Deal already exists"
	OutcomeContactAndOrgExist  = "Created: Contact & company already exists"
	OutcomeContactExists       = "Created: Contact already exists"
	OutcomeOrgExists           = "Created: Company already exists"
	OutcomeAllCreated          = "Created: New contact, company & deal created"
	OutcomeDuplicateEmail      = "Skipped: Duplicate email"
	OutcomeNewContactNoCompany = "Created: New contact created (no company)"
)

// OutcomeRecord 单封邮件处理结果的审计记录，只追加，创建后不再更新。
type OutcomeRecord struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `json:"userId" gorm:"type:varchar(36);index;not null"`
	EmailID        string    `json:"emailId" gorm:"type:varchar(512);index"`
	Outcome        string    `json:"outcome" gorm:"type:varchar(128);index"`
	Classification string    `json:"classification" gorm:"type:text"` // 分类结果快照 JSON
	Resolution     string    `json:"resolution" gorm:"type:text"`     // 解析结果快照 JSON
	DurationMs     int64     `json:"durationMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ActivityLog 面向用户的活动日志，写入失败仅本地记录，绝不向调用方传播。
type ActivityLog struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string    `json:"userId" gorm:"type:varchar(36);index;not null"`
	ActivityType string    `json:"activityType" gorm:"type:varchar(64);index"`
	Status       string    `json:"status" gorm:"type:varchar(32)"`
	Message      string    `json:"message" gorm:"type:text"`
	Metadata     string    `json:"metadata" gorm:"type:text"` // JSON
	CreatedAt    time.Time `json:"createdAt"`
}
