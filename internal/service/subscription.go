package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dealradar/backend/internal/auth/clientstate"
	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/provider/graph"
	"dealradar/backend/internal/storage"
)

// SubscriptionGateway 提供方侧订阅操作的抽象，便于测试替换
type SubscriptionGateway interface {
	CreateSubscription(ctx context.Context, userID, notificationURL, resource, clientState string) (*graph.SubscriptionInfo, error)
	RenewSubscription(ctx context.Context, userID, subscriptionID string) (*time.Time, error)
	DeleteSubscription(ctx context.Context, userID, subscriptionID string) error
}

// SubscriptionService 管理 Webhook 订阅的完整生命周期
// 提供方侧操作成功后才写本地记录，保持两边一致
type SubscriptionService struct {
	store           storage.Store
	gateway         SubscriptionGateway
	signer          *clientstate.Signer
	activity        *ActivityService
	notificationURL string
	logger          *zap.Logger
}

// NewSubscriptionService 创建订阅服务
func NewSubscriptionService(store storage.Store, gateway SubscriptionGateway, signer *clientstate.Signer, activity *ActivityService, notificationURL string, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		store:           store,
		gateway:         gateway,
		signer:          signer,
		activity:        activity,
		notificationURL: notificationURL,
		logger:          logger,
	}
}

// Create 为用户创建新邮件订阅并持久化记录
func (s *SubscriptionService) Create(ctx context.Context, userID string) (*domain.Subscription, error) {
	clientState, err := s.signer.Sign(userID)
	if err != nil {
		return nil, fmt.Errorf("sign client state: %w", err)
	}

	info, err := s.gateway.CreateSubscription(ctx, userID, s.notificationURL, "", clientState)
	if err != nil {
		return nil, fmt.Errorf("create provider subscription: %w", err)
	}

	subscription := &domain.Subscription{
		ID:             uuid.New().String(),
		UserID:         userID,
		SubscriptionID: info.ID,
		Resource:       info.Resource,
		ClientState:    clientState,
		IsActive:       true,
		CreatedAt:      time.Now(),
	}
	if info.ExpiresAt != nil {
		subscription.ExpiresAt = *info.ExpiresAt
	}

	if err := s.store.SaveSubscription(subscription); err != nil {
		return nil, fmt.Errorf("persist subscription: %w", err)
	}

	s.logger.Info("订阅创建成功",
		zap.String("user_id", userID),
		zap.String("subscription_id", info.ID),
		zap.Time("expires_at", subscription.ExpiresAt))
	s.activity.LogSubscription(userID, ActivitySubscriptionCreated, info.ID)

	return subscription, nil
}

// List 返回用户的激活订阅
func (s *SubscriptionService) List(userID string) ([]domain.Subscription, error) {
	all, err := s.store.ListActiveSubscriptions()
	if err != nil {
		return nil, err
	}

	var result []domain.Subscription
	for _, sub := range all {
		if sub.UserID == userID {
			result = append(result, sub)
		}
	}
	return result, nil
}

// Renew 续期单条订阅并刷新本地过期时间
func (s *SubscriptionService) Renew(ctx context.Context, userID, subscriptionID string) (*domain.Subscription, error) {
	subscription, err := s.store.GetSubscriptionByProviderID(subscriptionID)
	if err != nil {
		return nil, err
	}
	if subscription.UserID != userID {
		return nil, storage.ErrSubscriptionNotFound
	}

	expiresAt, err := s.gateway.RenewSubscription(ctx, userID, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("renew provider subscription: %w", err)
	}
	if expiresAt != nil {
		subscription.ExpiresAt = *expiresAt
	}

	if err := s.store.UpdateSubscription(subscription); err != nil {
		return nil, fmt.Errorf("persist renewal: %w", err)
	}

	s.activity.LogSubscription(userID, ActivitySubscriptionRenewed, subscriptionID)
	return subscription, nil
}

// Delete 删除提供方订阅并软删除本地记录
// 提供方侧已不存在的订阅按幂等处理，继续清理本地记录
func (s *SubscriptionService) Delete(ctx context.Context, userID, subscriptionID string) error {
	subscription, err := s.store.GetSubscriptionByProviderID(subscriptionID)
	if err != nil {
		return err
	}
	if subscription.UserID != userID {
		return storage.ErrSubscriptionNotFound
	}

	if err := s.gateway.DeleteSubscription(ctx, userID, subscriptionID); err != nil {
		s.logger.Warn("提供方订阅删除失败，仅清理本地记录",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err))
	}

	return s.store.DeactivateSubscription(subscriptionID)
}

// RenewExpiring 续期所有在窗口内到期的激活订阅，返回成功续期的数量
// 由后台定时任务周期性调用
func (s *SubscriptionService) RenewExpiring(ctx context.Context, within time.Duration) int {
	subscriptions, err := s.store.ListActiveSubscriptions()
	if err != nil {
		s.logger.Error("订阅列表读取失败", zap.Error(err))
		return 0
	}

	cutoff := time.Now().Add(within)
	renewed := 0
	for i := range subscriptions {
		sub := &subscriptions[i]
		if sub.ExpiresAt.After(cutoff) {
			continue
		}

		expiresAt, err := s.gateway.RenewSubscription(ctx, sub.UserID, sub.SubscriptionID)
		if err != nil {
			s.logger.Warn("订阅续期失败",
				zap.String("subscription_id", sub.SubscriptionID),
				zap.Error(err))
			continue
		}
		if expiresAt != nil {
			sub.ExpiresAt = *expiresAt
		}
		if err := s.store.UpdateSubscription(sub); err != nil {
			s.logger.Warn("订阅续期落库失败",
				zap.String("subscription_id", sub.SubscriptionID),
				zap.Error(err))
			continue
		}

		s.activity.LogSubscription(sub.UserID, ActivitySubscriptionRenewed, sub.SubscriptionID)
		renewed++
	}

	if renewed > 0 {
		s.logger.Info("后台订阅续期完成", zap.Int("renewed", renewed))
	}
	return renewed
}
