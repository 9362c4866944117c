package classify

import (
	"fmt"
	"strings"

	"dealradar/backend/internal/domain"
)

// analysisPromptTemplate 邮件分类的指令模板，要求模型只输出 JSON
const analysisPromptTemplate = `Analyze this email conversation and extract sales opportunity information:

%s

Please provide a JSON response with the following structure:
{
    "is_sales_opportunity": true/false,
    "confidence": 0.0-1.0,
    "opportunity_type": "new_business|upsell|follow_up|inquiry|other",
    "estimated_value": 0,
    "currency": "DKK",
    "urgency": "high|medium|low",
    "next_action": "schedule_meeting|send_proposal|follow_up|no_action",
    "person_name": "extracted_full_name_from_emails",
    "organization_name": "recipient_organization_from_signature_or_domain",
    "key_points": ["point1", "point2"]
}

Instructions:
1. Extract the recipient's full name from email addresses, signatures, or email content.
2. Extract the recipient's organization from the thread, signature, or the domain of the recipient's email address (e.g., lars.pedersen@grundfos.com -> Grundfos). Never use the sender's organization.
3. Only respond with valid JSON. Use DKK as the default currency.`

// orgNamePromptTemplate 从邮箱域名与正文推断组织名称
const orgNamePromptTemplate = `Extract the most likely real company name from this email domain and content. If it's a personal email, return an empty string.
Domain: %s
Email content: %s
Company name: `

// danishSummaryPromptTemplate 丹麦语会话摘要，用于交易备注
const danishSummaryPromptTemplate = `Opsummer denne e-mail samtale på dansk i 2-3 sætninger, med fokus på vigtige forretningspunkter, krav og næste skridt:

%s

Opsummering:`

// buildTranscript 把当前邮件与历史线程拼成模型可读的会话文本
// 当前邮件在前，线程邮件按时间顺序编号跟在后面
func buildTranscript(email *domain.InboundEmail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current Email:\nFrom: %s\nTo: %s\nSubject: %s\nContent: %s\n",
		email.From, strings.Join(email.To, ", "), email.Subject, email.Body)

	if len(email.Thread) > 0 {
		b.WriteString("\nPrevious emails in thread:\n")
		for i, msg := range email.Thread {
			fmt.Fprintf(&b, "\nEmail %d:\nFrom: %s\nTo: %s\nSubject: %s\nContent: %s\n",
				i+1, msg.From, msg.To, msg.Subject, msg.Content)
		}
	}
	return b.String()
}

func buildAnalysisPrompt(email *domain.InboundEmail) string {
	return fmt.Sprintf(analysisPromptTemplate, buildTranscript(email))
}

func buildOrgNamePrompt(domainLabel, emailContent string) string {
	return fmt.Sprintf(orgNamePromptTemplate, domainLabel, emailContent)
}

func buildDanishSummaryPrompt(conversation string) string {
	return fmt.Sprintf(danishSummaryPromptTemplate, conversation)
}
