package service

import "dealradar/backend/internal/domain"

// confidenceThreshold 低于此置信度的商机不落 CRM
const confidenceThreshold = 0.3

// Categorize 根据分类与解析结果归类处理结局，返回固定的结局标签。
//
// 纯函数，判定顺序即业务优先级：
// 处理失败、低置信度、非商机、已有交易，最后才是四种创建组合。
func Categorize(cls *domain.ClassificationResult, res *domain.ResolutionResult) string {
	if cls == nil {
		return domain.OutcomeError
	}

	if cls.Confidence < confidenceThreshold {
		return domain.OutcomeLowConfidence
	}

	if !cls.IsOpportunity {
		return domain.OutcomeNotSalesDeal
	}

	if res == nil || res.Failed {
		return domain.OutcomeError
	}

	if !res.DealCreated && res.Reason == domain.ResolutionReasonOpenDeal {
		return domain.OutcomeDealExists
	}

	if res.DealCreated {
		switch {
		case res.ContactExistedBefore && res.OrgExistedBefore:
			return domain.OutcomeContactAndOrgExist
		case res.ContactExistedBefore:
			return domain.OutcomeContactExists
		case res.OrgExistedBefore:
			return domain.OutcomeOrgExists
		default:
			return domain.OutcomeAllCreated
		}
	}

	if res.Contact != nil {
		return domain.OutcomeDealExists
	}

	return domain.OutcomeError
}
