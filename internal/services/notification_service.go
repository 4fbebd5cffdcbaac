package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"social-go/internal/models"
	"social-go/internal/storage"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// EventPusher 把序列化后的通知实时推送给在线用户。
// 由 websocket Hub 实现；nil 表示不做实时推送。
type EventPusher interface {
	PushToUser(userID uint, payload []byte)
}

// NotificationService 消费好友请求生命周期事件，落库为通知并推送。
type NotificationService interface {
	// ProcessFriendEvent 是 Kafka 消费者的 MessageHandler。
	// 返回 nil 表示消息可以提交；返回错误会让消息被重新投递。
	ProcessFriendEvent(ctx context.Context, kafkaMsg *confluentKafka.Message) error
	ListNotifications(ctx context.Context, userID uint, limit int) ([]models.Notification, error)
	MarkAllRead(ctx context.Context, userID uint) error
}

type notificationService struct {
	notifRepo storage.NotificationRepository
	pusher    EventPusher
}

// NewNotificationService creates a new NotificationService instance.
func NewNotificationService(notifRepo storage.NotificationRepository, pusher EventPusher) NotificationService {
	return &notificationService{notifRepo: notifRepo, pusher: pusher}
}

// ProcessFriendEvent handles incoming friend events from Kafka.
func (s *notificationService) ProcessFriendEvent(ctx context.Context, kafkaMsg *confluentKafka.Message) error {
	var event FriendEvent
	if err := json.Unmarshal(kafkaMsg.Value, &event); err != nil {
		log.Printf("Error unmarshalling friend event from Kafka: %v, value: %s", err, string(kafkaMsg.Value))
		return nil // 坏消息直接跳过并提交 offset，重试也不会成功
	}

	notification, err := notificationFromEvent(event)
	if err != nil {
		log.Printf("Skipping friend event with unknown type %q (request %d)", event.Type, event.RequestID)
		return nil
	}

	if err := s.notifRepo.Create(ctx, notification); err != nil {
		log.Printf("Error saving notification for user %d (request %d): %v", notification.UserID, event.RequestID, err)
		return err // 可重试
	}

	if s.pusher != nil {
		payload, err := json.Marshal(notification)
		if err == nil {
			s.pusher.PushToUser(notification.UserID, payload)
		}
	}
	return nil
}

// notificationFromEvent 决定通知的接收者：created 通知请求接收方，
// accepted/rejected 通知请求发送方。
func notificationFromEvent(event FriendEvent) (*models.Notification, error) {
	switch event.Type {
	case FriendEventCreated:
		return &models.Notification{
			UserID:    event.ToUserID,
			ActorID:   event.FromUserID,
			RequestID: event.RequestID,
			Type:      models.NotificationFriendRequestReceived,
		}, nil
	case FriendEventAccepted:
		return &models.Notification{
			UserID:    event.FromUserID,
			ActorID:   event.ToUserID,
			RequestID: event.RequestID,
			Type:      models.NotificationFriendRequestAccepted,
		}, nil
	case FriendEventRejected:
		return &models.Notification{
			UserID:    event.FromUserID,
			ActorID:   event.ToUserID,
			RequestID: event.RequestID,
			Type:      models.NotificationFriendRequestRejected,
		}, nil
	default:
		return nil, fmt.Errorf("unknown friend event type: %s", event.Type)
	}
}

func (s *notificationService) ListNotifications(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	notifications, err := s.notifRepo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("获取通知列表失败: %w", err)
	}
	return notifications, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uint) error {
	if err := s.notifRepo.MarkAllRead(ctx, userID); err != nil {
		return fmt.Errorf("标记通知已读失败: %w", err)
	}
	return nil
}
