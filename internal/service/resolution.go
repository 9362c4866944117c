package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/monitoring"
)

// CRMGateway 解析引擎依赖的 CRM 操作集合
type CRMGateway interface {
	SearchContactByEmail(ctx context.Context, userID, email string) (*domain.Contact, error)
	HasOpenDeal(ctx context.Context, userID string, personID int) (bool, error)
	CreateContact(ctx context.Context, userID, name, email string, orgID int) (*domain.Contact, error)
	SearchOrganizationByName(ctx context.Context, userID, name string) (*domain.Organization, error)
	CreateOrganization(ctx context.Context, userID, name string) (*domain.Organization, error)
	CreateDeal(ctx context.Context, userID string, personID int, title string, value float64, currency string, orgID int) (*domain.Deal, error)
	CreateNote(ctx context.Context, userID string, dealID int, content string) error
}

// Summarizer 生成交易备注用的会话摘要
type Summarizer interface {
	Summarize(ctx context.Context, conversation string) (string, error)
}

// fallbackSummary 摘要生成失败时写入备注的固定文案
const fallbackSummary = "E-mail samtale blev analyseret af AI system."

// ResolutionService 把分类结果落实为 CRM 侧的联系人、组织与交易。
//
// Resolve 永不返回错误：单步失败折叠进结果的 Failed/Error 字段，
// 编排器据此仍能归类并记录处理结果。
type ResolutionService struct {
	crm        CRMGateway
	summarizer Summarizer
	logger     *zap.Logger
}

// NewResolutionService 创建解析引擎
func NewResolutionService(crm CRMGateway, summarizer Summarizer, logger *zap.Logger) *ResolutionService {
	return &ResolutionService{crm: crm, summarizer: summarizer, logger: logger}
}

// Resolve 执行完整的 CRM 解析流程
// 非商机直接短路返回空结果，不产生任何 CRM 写入
func (s *ResolutionService) Resolve(ctx context.Context, email *domain.InboundEmail, cls *domain.ClassificationResult) *domain.ResolutionResult {
	result := &domain.ResolutionResult{}

	if !cls.IsOpportunity {
		return result
	}

	userID := email.UserID
	recipient := email.Recipient()
	if recipient == "" {
		result.Failed = true
		result.Error = "email has no recipient"
		return result
	}

	// 联系人查找
	contact, err := s.crm.SearchContactByEmail(ctx, userID, recipient)
	if err != nil {
		return s.fail(result, "contact lookup failed", err)
	}
	result.Contact = contact
	result.ContactExistedBefore = contact != nil

	// 组织候选链：联系人已关联的组织、AI 提取的组织名、域名首段
	orgName := ""
	if contact != nil && contact.OrgName != "" {
		orgName = contact.OrgName
	} else if cls.OrganizationName != "" {
		orgName = cls.OrganizationName
	} else {
		orgName = orgFromDomain(recipient)
	}

	// 组织查找
	var org *domain.Organization
	if orgName != "" {
		org, err = s.crm.SearchOrganizationByName(ctx, userID, orgName)
		if err != nil {
			return s.fail(result, "organization lookup failed", err)
		}
	}
	result.Organization = org
	result.OrgExistedBefore = org != nil

	// 联系人缺失时补建（组织先行）
	if contact == nil {
		if org == nil && orgName != "" {
			org, err = s.crm.CreateOrganization(ctx, userID, orgName)
			if err != nil {
				return s.fail(result, "organization creation failed", err)
			}
			result.Organization = org
		}

		personName := cls.PersonName
		if personName == "" {
			personName = localPart(recipient)
		}

		orgID := 0
		if org != nil {
			orgID = org.ID
		}
		contact, err = s.crm.CreateContact(ctx, userID, personName, recipient, orgID)
		if err != nil {
			return s.fail(result, "contact creation failed", err)
		}
		result.Contact = contact
	}

	// 已有未关闭交易时跳过创建
	hasOpen, err := s.crm.HasOpenDeal(ctx, userID, contact.ID)
	if err != nil {
		return s.fail(result, "open deal check failed", err)
	}
	if hasOpen {
		result.Reason = domain.ResolutionReasonOpenDeal
		return result
	}

	// 创建交易
	personName := cls.PersonName
	if personName == "" {
		personName = contact.Name
	}
	title := fmt.Sprintf("AI: %s - %s", personName, orgName)

	orgID := contact.OrgID
	if orgID == 0 && result.Organization != nil {
		orgID = result.Organization.ID
	}

	deal, err := s.crm.CreateDeal(ctx, userID, contact.ID, title, cls.EstimatedValue, cls.Currency, orgID)
	if err != nil {
		return s.fail(result, "deal creation failed", err)
	}
	result.Deal = deal
	result.DealCreated = true
	monitoring.RecordDealCreated()

	// 备注失败不影响交易结果
	if err := s.attachNote(ctx, userID, deal.ID, email); err != nil {
		s.logger.Warn("交易备注写入失败",
			zap.String("user_id", userID),
			zap.Int("deal_id", deal.ID),
			zap.Error(err))
	}

	return result
}

// attachNote 生成丹麦语摘要并作为备注挂到交易下
func (s *ResolutionService) attachNote(ctx context.Context, userID string, dealID int, email *domain.InboundEmail) error {
	conversation := buildConversation(email)

	summary, err := s.summarizer.Summarize(ctx, conversation)
	if err != nil {
		summary = fallbackSummary
	}

	sentAt := ""
	if email.SentAt != nil {
		sentAt = email.SentAt.Format(time.RFC3339)
	}

	content := fmt.Sprintf(`Samtale Opsummering:

%s

E-mail Detaljer:
Fra: %s
Til: %s
Emne: %s
Modtaget: %s
Antal e-mails: %d

---
AI-genereret opsummering af e-mail analyse system.`,
		summary, email.From, email.Recipient(), email.Subject, sentAt, len(email.Thread)+1)

	return s.crm.CreateNote(ctx, userID, dealID, content)
}

// buildConversation 拼装摘要用的会话文本，最新邮件在前
func buildConversation(email *domain.InboundEmail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Latest email:\nFrom: %s\nTo: %s\nSubject: %s\nContent: %s\n\n",
		email.From, email.Recipient(), email.Subject, email.Body)

	for i := len(email.Thread) - 1; i >= 0; i-- {
		msg := email.Thread[i]
		fmt.Fprintf(&b, "Previous email %d:\nFrom: %s\nTo: %s\nSubject: %s\nContent: %s\n\n",
			len(email.Thread)-i, msg.From, msg.To, msg.Subject, msg.Content)
	}
	return b.String()
}

func (s *ResolutionService) fail(result *domain.ResolutionResult, step string, err error) *domain.ResolutionResult {
	s.logger.Error("CRM 解析步骤失败", zap.String("step", step), zap.Error(err))
	result.Failed = true
	result.Error = fmt.Sprintf("%s: %v", step, err)
	return result
}

// orgFromDomain 从收件人域名推断组织名，取域名首段并把首字母大写
// lars@grundfos.com 推断为 Grundfos
func orgFromDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at == -1 || at == len(email)-1 {
		return ""
	}
	label := strings.Split(email[at+1:], ".")[0]
	if label == "" {
		return ""
	}
	runes := []rune(strings.ToLower(label))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// localPart 返回邮箱地址 @ 前的部分
func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
