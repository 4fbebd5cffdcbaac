package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"social-go/internal/config"
	"social-go/internal/kafka"
	"social-go/internal/models"
	"social-go/internal/ratelimit"
	"social-go/internal/storage"

	"gorm.io/gorm"
)

var (
	ErrFriendRequestSelf     = errors.New("不能添加自己为好友")
	ErrFriendRequestExists   = errors.New("已存在待处理的好友请求")
	ErrRateLimited           = errors.New("好友请求创建过于频繁，请稍后再试")
	ErrRecipientNotFound     = errors.New("接收用户不存在")
	ErrFriendRequestNotFound = errors.New("好友请求不存在")
	ErrNotRecipientOfRequest = errors.New("您不是此好友请求的接收者")
	ErrNotParticipant        = errors.New("您不是此好友请求的参与者")
	ErrRequestNotPending     = errors.New("该好友请求不是待处理状态")
)

// FriendEvent 的事件类型。
const (
	FriendEventCreated  = "created"
	FriendEventAccepted = "accepted"
	FriendEventRejected = "rejected"
)

// FriendEvent defines the structure for Kafka messages describing friend
// request lifecycle changes. 消费端据此落库通知并做实时推送。
type FriendEvent struct {
	Type       string    `json:"type"`
	RequestID  uint      `json:"requestId"`
	FromUserID uint      `json:"fromUserId"`
	ToUserID   uint      `json:"toUserId"`
	Timestamp  time.Time `json:"timestamp"`
}

// FriendRequestService defines the interface for the friend request workflow.
type FriendRequestService interface {
	SendFriendRequest(ctx context.Context, fromUserID, toUserID uint) (*models.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, actingUserID, requestID uint) error
	RejectFriendRequest(ctx context.Context, actingUserID, requestID uint) error
	GetRequest(ctx context.Context, actingUserID, requestID uint) (*models.FriendRequest, error)
	ListRequests(ctx context.Context, userID uint) ([]models.FriendRequest, error)
	ListPendingRequests(ctx context.Context, userID uint) ([]*models.FriendRequestWithSender, error)
	// DeleteRequest 是管理性删除，不属于正常工作流。仅允许请求的参与者调用。
	DeleteRequest(ctx context.Context, actingUserID, requestID uint) error
}

type friendRequestService struct {
	userRepo    storage.UserRepository
	friendRepo  storage.FriendRequestRepository
	limiter     ratelimit.Limiter
	producer    kafka.MessageProducer
	kafkaConfig config.KafkaConfig
}

// NewFriendRequestService creates a new FriendRequestService instance.
// producer 可以为 nil，此时不发布生命周期事件。
func NewFriendRequestService(
	userRepo storage.UserRepository,
	friendRepo storage.FriendRequestRepository,
	limiter ratelimit.Limiter,
	producer kafka.MessageProducer,
	cfg config.KafkaConfig,
) FriendRequestService {
	return &friendRequestService{
		userRepo:    userRepo,
		friendRepo:  friendRepo,
		limiter:     limiter,
		producer:    producer,
		kafkaConfig: cfg,
	}
}

// SendFriendRequest validates and persists a new pending friend request.
// 检查顺序：自我请求 → 限流 → 接收者存在 → 查重（与插入同一事务）。
func (s *friendRequestService) SendFriendRequest(ctx context.Context, fromUserID, toUserID uint) (*models.FriendRequest, error) {
	if fromUserID == toUserID {
		return nil, ErrFriendRequestSelf
	}

	// 限流检查放在操作最前面，由外部协作方维护计数
	allowed, err := s.limiter.CheckAndConsume(ctx, fromUserID, ratelimit.ActionCreateFriendRequest)
	if err != nil {
		return nil, fmt.Errorf("检查创建配额时出错: %w", err)
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	if _, err := s.userRepo.GetByID(ctx, toUserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("检查接收用户时出错: %w", err)
	}

	request, err := s.friendRepo.CreatePending(ctx, fromUserID, toUserID)
	if err != nil {
		if errors.Is(err, storage.ErrPendingRequestExists) {
			return nil, ErrFriendRequestExists
		}
		// 并发竞态的败者：保持 storage.ErrConstraintViolation 可被调用方识别
		if errors.Is(err, storage.ErrConstraintViolation) {
			return nil, err
		}
		return nil, fmt.Errorf("创建好友请求失败: %w", err)
	}

	s.publishEvent(ctx, FriendEventCreated, request)
	return request, nil
}

// AcceptFriendRequest processes the acceptance of a friend request.
func (s *friendRequestService) AcceptFriendRequest(ctx context.Context, actingUserID, requestID uint) error {
	return s.resolve(ctx, actingUserID, requestID, models.FriendRequestStatusAccepted)
}

// RejectFriendRequest processes the rejection of a friend request.
func (s *friendRequestService) RejectFriendRequest(ctx context.Context, actingUserID, requestID uint) error {
	return s.resolve(ctx, actingUserID, requestID, models.FriendRequestStatusRejected)
}

// resolve is the single parameterized transition shared by accept and reject,
// so the two operations can never diverge in their validation rules.
// 校验顺序固定：存在性 → 归属（接收者才能处理） → 状态（仅 pending 可变更）。
func (s *friendRequestService) resolve(ctx context.Context, actingUserID, requestID uint, target models.FriendRequestStatus) error {
	request, err := s.friendRepo.GetRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFriendRequestNotFound
		}
		return fmt.Errorf("检索好友请求失败: %w", err)
	}

	if request.ToUserID != actingUserID {
		return ErrNotRecipientOfRequest
	}
	if request.Status != models.FriendRequestStatusPending {
		return ErrRequestNotPending
	}

	// CAS 更新：并发的 accept/reject 只有一个能命中
	if err := s.friendRepo.UpdateStatusFromPending(ctx, requestID, target); err != nil {
		if errors.Is(err, storage.ErrRequestNotPending) {
			return ErrRequestNotPending
		}
		return fmt.Errorf("更新好友请求状态失败: %w", err)
	}

	request.Status = target
	eventType := FriendEventAccepted
	if target == models.FriendRequestStatusRejected {
		eventType = FriendEventRejected
	}
	s.publishEvent(ctx, eventType, request)

	log.Printf("Friend request %d resolved to %s by user %d", requestID, target, actingUserID)
	return nil
}

// GetRequest retrieves a single friend request; only its participants may see it.
// 对非参与者返回「不存在」而不是「无权限」，避免泄露请求 ID 是否存在。
func (s *friendRequestService) GetRequest(ctx context.Context, actingUserID, requestID uint) (*models.FriendRequest, error) {
	request, err := s.friendRepo.GetRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFriendRequestNotFound
		}
		return nil, fmt.Errorf("检索好友请求失败: %w", err)
	}
	if !request.Involves(actingUserID) {
		return nil, ErrFriendRequestNotFound
	}
	return request, nil
}

// ListRequests retrieves all requests where the user is sender or recipient.
func (s *friendRequestService) ListRequests(ctx context.Context, userID uint) ([]models.FriendRequest, error) {
	requests, err := s.friendRepo.ListInvolving(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取好友请求列表失败: %w", err)
	}
	return requests, nil
}

// ListPendingRequests retrieves all pending friend requests for a given user,
// enriched with sender info.
func (s *friendRequestService) ListPendingRequests(ctx context.Context, userID uint) ([]*models.FriendRequestWithSender, error) {
	pendingRequests, err := s.friendRepo.ListPendingFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取待处理好友请求失败: %w", err)
	}

	resultDTOs := make([]*models.FriendRequestWithSender, 0, len(pendingRequests))
	for _, req := range pendingRequests {
		sender, err := s.userRepo.GetBasicInfoByID(ctx, req.FromUserID)
		if err != nil {
			log.Printf("Error fetching sender info for user %d (request %d): %v", req.FromUserID, req.ID, err)
			continue
		}
		resultDTOs = append(resultDTOs, &models.FriendRequestWithSender{
			FriendRequest: req,
			Sender:        sender,
		})
	}
	return resultDTOs, nil
}

// DeleteRequest soft-deletes a friend request as an administrative override.
func (s *friendRequestService) DeleteRequest(ctx context.Context, actingUserID, requestID uint) error {
	request, err := s.friendRepo.GetRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFriendRequestNotFound
		}
		return fmt.Errorf("检索好友请求失败: %w", err)
	}
	if !request.Involves(actingUserID) {
		return ErrNotParticipant
	}
	if err := s.friendRepo.Delete(ctx, requestID); err != nil {
		return fmt.Errorf("删除好友请求失败: %w", err)
	}
	log.Printf("Friend request %d deleted by user %d", requestID, actingUserID)
	return nil
}

// publishEvent 尽力发布生命周期事件。事件只驱动通知，发布失败不影响
// 已完成的工作流操作，记录日志即可。
func (s *friendRequestService) publishEvent(ctx context.Context, eventType string, request *models.FriendRequest) {
	if s.producer == nil {
		return
	}
	event := FriendEvent{
		Type:       eventType,
		RequestID:  request.ID,
		FromUserID: request.FromUserID,
		ToUserID:   request.ToUserID,
		Timestamp:  time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshalling friend event for request %d: %v", request.ID, err)
		return
	}
	key := []byte(fmt.Sprintf("%d-%d", request.FromUserID, request.ToUserID))
	if err := s.producer.SendMessage(ctx, s.kafkaConfig.FriendEventTopic, key, payload); err != nil {
		log.Printf("Error producing friend event %s for request %d: %v", eventType, request.ID, err)
	}
}
