package domain

// DealStatusOpen 未关闭的 CRM 交易状态
const DealStatusOpen = "open"

// Contact CRM 联系人视图（提供方数据，不落库）。
type Contact struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	OrgID   int    `json:"orgId,omitempty"`
	OrgName string `json:"orgName,omitempty"`
}

// Organization CRM 组织视图。
type Organization struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Deal CRM 交易视图。
type Deal struct {
	ID       int     `json:"id"`
	Title    string  `json:"title"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
}

// ResolutionReasonOpenDeal 已存在未关闭交易时跳过创建的原因标记
const ResolutionReasonOpenDeal = "open deal exists"

// ResolutionResult CRM 解析引擎的产出。
//
// 解析过程中的单步失败被折叠进 Failed/Error 字段而非抛出，
// 编排器据此仍可归类并记录结果。
type ResolutionResult struct {
	Contact              *Contact      `json:"contact,omitempty"`
	Organization         *Organization `json:"organization,omitempty"`
	DealCreated          bool          `json:"dealCreated"`
	Deal                 *Deal         `json:"deal,omitempty"`
	ContactExistedBefore bool          `json:"contactExistedBefore"`
	OrgExistedBefore     bool          `json:"orgExistedBefore"`
	Reason               string        `json:"reason,omitempty"`
	Failed               bool          `json:"failed,omitempty"`
	Error                string        `json:"error,omitempty"`
}
