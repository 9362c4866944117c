package domain

// 分类结果的枚举取值。模型返回未知取值时回退到 "other"/"low"/"no_action"。
const (
	OpportunityNewBusiness = "new_business"
	OpportunityUpsell      = "upsell"
	OpportunityFollowUp    = "follow_up"
	OpportunityInquiry     = "inquiry"
	OpportunityOther       = "other"

	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"

	ActionScheduleMeeting = "schedule_meeting"
	ActionSendProposal    = "send_proposal"
	ActionFollowUp        = "follow_up"
	ActionNoAction        = "no_action"
)

// DefaultCurrency 分类结果缺省货币
const DefaultCurrency = "DKK"

// ClassificationResult AI 分类服务返回的结构化判定。
//
// 创建后不可变。解析失败或字段缺失时由 Normalize 补齐确定性默认值，
// 分类永远产出可用结果，不向下游传播解析错误。
type ClassificationResult struct {
	IsOpportunity    bool     `json:"is_sales_opportunity"`
	Confidence       float64  `json:"confidence"`
	OpportunityType  string   `json:"opportunity_type"`
	EstimatedValue   float64  `json:"estimated_value"`
	Currency         string   `json:"currency"`
	Urgency          string   `json:"urgency"`
	NextAction       string   `json:"next_action"`
	PersonName       string   `json:"person_name"`
	OrganizationName string   `json:"organization_name"`
	KeyPoints        []string `json:"key_points"`
}

// DefaultClassificationResult 返回全否定的默认分类结果。
func DefaultClassificationResult() *ClassificationResult {
	return &ClassificationResult{
		IsOpportunity:    false,
		Confidence:       0.0,
		OpportunityType:  OpportunityOther,
		EstimatedValue:   0,
		Currency:         DefaultCurrency,
		Urgency:          UrgencyLow,
		NextAction:       ActionNoAction,
		PersonName:       "",
		OrganizationName: "",
		KeyPoints:        []string{},
	}
}

// Normalize 将缺失或越界的字段替换为确定性默认值。
func (r *ClassificationResult) Normalize() {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	if r.EstimatedValue < 0 {
		r.EstimatedValue = 0
	}
	if len(r.Currency) != 3 {
		r.Currency = DefaultCurrency
	}
	switch r.OpportunityType {
	case OpportunityNewBusiness, OpportunityUpsell, OpportunityFollowUp, OpportunityInquiry, OpportunityOther:
	default:
		r.OpportunityType = OpportunityOther
	}
	switch r.Urgency {
	case UrgencyHigh, UrgencyMedium, UrgencyLow:
	default:
		r.Urgency = UrgencyLow
	}
	switch r.NextAction {
	case ActionScheduleMeeting, ActionSendProposal, ActionFollowUp, ActionNoAction:
	default:
		r.NextAction = ActionNoAction
	}
	if r.KeyPoints == nil {
		r.KeyPoints = []string{}
	}
}
