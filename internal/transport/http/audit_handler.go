package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"dealradar/backend/internal/storage"
)

// 审计列表的分页上限
const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// AuditHandler 处理结果与活动日志的查询
type AuditHandler struct {
	outcomes   storage.OutcomeRepository
	activities storage.ActivityRepository
}

// NewAuditHandler 创建审计处理器
func NewAuditHandler(outcomes storage.OutcomeRepository, activities storage.ActivityRepository) *AuditHandler {
	return &AuditHandler{outcomes: outcomes, activities: activities}
}

// parseLimit 解析 limit 查询参数并收敛到合法范围
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("limit", strconv.Itoa(defaultAuditLimit))
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, false
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	return limit, true
}

// ListOutcomes 返回当前用户最近的邮件处理结果
func (h *AuditHandler) ListOutcomes(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		BadRequest(c, MsgInvalidLimit)
		return
	}

	records, err := h.outcomes.ListOutcomes(c.GetString("userID"), limit)
	if err != nil {
		InternalError(c, MsgOutcomeListFailed)
		return
	}

	Success(c, gin.H{
		"items": records,
		"count": len(records),
	})
}

// ListActivities 返回当前用户最近的活动日志
func (h *AuditHandler) ListActivities(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		BadRequest(c, MsgInvalidLimit)
		return
	}

	activities, err := h.activities.ListActivities(c.GetString("userID"), limit)
	if err != nil {
		InternalError(c, MsgActivityListFailed)
		return
	}

	Success(c, gin.H{
		"items": activities,
		"count": len(activities),
	})
}
