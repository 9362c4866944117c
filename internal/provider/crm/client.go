package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/provider"
)

// Client CRM 提供方客户端，覆盖联系人、组织、交易与备注操作
type Client struct {
	baseURL string
	caller  *provider.Caller
	logger  *zap.Logger
}

// NewClient 创建 CRM 客户端
// baseURL 形如 https://{company}.pipedrive.com/api/v2，测试时可指向本地服务
func NewClient(baseURL string, caller *provider.Caller, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		caller:  caller,
		logger:  logger,
	}
}

// searchItems 搜索接口的通用响应结构
type searchItems struct {
	Data struct {
		Items []struct {
			Item json.RawMessage `json:"item"`
		} `json:"items"`
	} `json:"data"`
}

// personItem 搜索结果中的联系人条目
type personItem struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	Emails       []string `json:"emails"`
	Organization *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"organization"`
}

// SearchContactByEmail 按邮箱地址查找联系人
// 仅在搜索结果中存在大小写不敏感的精确匹配时返回，否则返回 nil
func (c *Client) SearchContactByEmail(ctx context.Context, userID, email string) (*domain.Contact, error) {
	u := fmt.Sprintf("%s/persons/search?term=%s&fields=email", c.baseURL, url.QueryEscape(email))
	raw, err := c.caller.Call(ctx, userID, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var result searchItems
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse contact search response: %w", err)
	}

	for _, entry := range result.Data.Items {
		var person personItem
		if err := json.Unmarshal(entry.Item, &person); err != nil {
			continue
		}
		for _, candidate := range person.Emails {
			if strings.EqualFold(candidate, email) {
				contact := &domain.Contact{
					ID:    person.ID,
					Name:  person.Name,
					Email: email,
				}
				if person.Organization != nil {
					contact.OrgID = person.Organization.ID
					contact.OrgName = person.Organization.Name
				}
				return contact, nil
			}
		}
	}
	return nil, nil
}

// dealData 交易接口的响应条目
type dealData struct {
	ID       int     `json:"id"`
	Title    string  `json:"title"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
}

func (d dealData) toDomain() domain.Deal {
	return domain.Deal{ID: d.ID, Title: d.Title, Value: d.Value, Currency: d.Currency, Status: d.Status}
}

// ListDeals 列出联系人关联的交易，status 非空时按状态过滤
func (c *Client) ListDeals(ctx context.Context, userID string, personID int, status string) ([]domain.Deal, error) {
	u := fmt.Sprintf("%s/deals?person_id=%d", c.baseURL, personID)
	if status != "" {
		u += "&status=" + url.QueryEscape(status)
	}

	raw, err := c.caller.Call(ctx, userID, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []dealData `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse deals response: %w", err)
	}

	deals := make([]domain.Deal, 0, len(result.Data))
	for _, d := range result.Data {
		deals = append(deals, d.toDomain())
	}
	return deals, nil
}

// HasOpenDeal 判断联系人是否已有未关闭的交易
func (c *Client) HasOpenDeal(ctx context.Context, userID string, personID int) (bool, error) {
	deals, err := c.ListDeals(ctx, userID, personID, domain.DealStatusOpen)
	if err != nil {
		return false, err
	}
	return len(deals) > 0, nil
}

// CreateContact 创建联系人，orgID 大于 0 时挂到对应组织下
func (c *Client) CreateContact(ctx context.Context, userID, name, email string, orgID int) (*domain.Contact, error) {
	payload := map[string]interface{}{
		"name": name,
		"emails": []map[string]interface{}{
			{"value": email, "primary": true},
		},
	}
	if orgID > 0 {
		payload["org_id"] = orgID
	}

	raw, err := c.caller.Call(ctx, userID, http.MethodPost, c.baseURL+"/persons", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse create contact response: %w", err)
	}

	c.logger.Info("联系人创建成功",
		zap.String("user_id", userID),
		zap.Int("contact_id", result.Data.ID))
	return &domain.Contact{ID: result.Data.ID, Name: result.Data.Name, Email: email, OrgID: orgID}, nil
}

// SearchOrganizationByName 按名称查找组织（大小写不敏感的精确匹配）
func (c *Client) SearchOrganizationByName(ctx context.Context, userID, name string) (*domain.Organization, error) {
	u := fmt.Sprintf("%s/organizations/search?term=%s", c.baseURL, url.QueryEscape(name))
	raw, err := c.caller.Call(ctx, userID, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var result searchItems
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse organization search response: %w", err)
	}

	for _, entry := range result.Data.Items {
		var org struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(entry.Item, &org); err != nil {
			continue
		}
		if strings.EqualFold(org.Name, name) {
			return &domain.Organization{ID: org.ID, Name: org.Name}, nil
		}
	}
	return nil, nil
}

// CreateOrganization 创建组织
func (c *Client) CreateOrganization(ctx context.Context, userID, name string) (*domain.Organization, error) {
	payload := map[string]interface{}{"name": name}

	raw, err := c.caller.Call(ctx, userID, http.MethodPost, c.baseURL+"/organizations", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse create organization response: %w", err)
	}

	c.logger.Info("组织创建成功",
		zap.String("user_id", userID),
		zap.Int("org_id", result.Data.ID))
	return &domain.Organization{ID: result.Data.ID, Name: result.Data.Name}, nil
}

// CreateDeal 为联系人创建交易，orgID 大于 0 时关联组织
func (c *Client) CreateDeal(ctx context.Context, userID string, personID int, title string, value float64, currency string, orgID int) (*domain.Deal, error) {
	payload := map[string]interface{}{
		"title":     title,
		"person_id": personID,
		"value":     value,
		"currency":  currency,
	}
	if orgID > 0 {
		payload["org_id"] = orgID
	}

	raw, err := c.caller.Call(ctx, userID, http.MethodPost, c.baseURL+"/deals", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data *dealData `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse create deal response: %w", err)
	}
	if result.Data == nil {
		return nil, fmt.Errorf("create deal response missing data")
	}

	deal := result.Data.toDomain()
	c.logger.Info("交易创建成功",
		zap.String("user_id", userID),
		zap.Int("deal_id", deal.ID),
		zap.String("title", deal.Title))
	return &deal, nil
}

// CreateNote 在交易下记录备注
func (c *Client) CreateNote(ctx context.Context, userID string, dealID int, content string) error {
	payload := map[string]interface{}{
		"content": content,
		"deal_id": dealID,
	}

	_, err := c.caller.Call(ctx, userID, http.MethodPost, c.baseURL+"/notes", payload)
	return err
}
