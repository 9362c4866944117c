package httptransport

import (
	"dealradar/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	storage.ErrIntegrationNotFound:  "集成不存在或已断开",
	storage.ErrSubscriptionNotFound: "订阅不存在",
	storage.ErrDuplicateEmail:       "邮件已处理过",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidProvider  = "不支持的提供方"
	MsgUserIDRequired   = "缺少用户标识"
	MsgInvalidLimit     = "limit 参数无效"
	MsgRequestBodyEmpty = "请求体不能为空"

	// 集成相关
	MsgIntegrationConnectFailed    = "接入集成失败"
	MsgIntegrationNotFound         = "集成不存在或已断开"
	MsgIntegrationDisconnectFailed = "断开集成失败"

	// 订阅相关
	MsgSubscriptionCreateFailed = "创建订阅失败"
	MsgSubscriptionListFailed   = "获取订阅列表失败"
	MsgSubscriptionRenewFailed  = "订阅续期失败"
	MsgSubscriptionDeleteFailed = "删除订阅失败"
	MsgSubscriptionNotFound     = "订阅不存在"

	// 审计相关
	MsgOutcomeListFailed  = "获取处理结果失败"
	MsgActivityListFailed = "获取活动日志失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
