package models

// NotificationType 定义通知类型
type NotificationType string

const (
	NotificationFriendRequestReceived NotificationType = "friend_request_received"
	NotificationFriendRequestAccepted NotificationType = "friend_request_accepted"
	NotificationFriendRequestRejected NotificationType = "friend_request_rejected"
)

// Notification 是好友请求生命周期事件落库后的通知记录。
// 由 Kafka 消费者写入，通过 API 和 WebSocket 投递给接收方。
type Notification struct {
	BaseModel
	UserID    uint             `gorm:"not null;index" json:"userId"` // 通知接收者
	ActorID   uint             `gorm:"not null" json:"actorId"`      // 触发通知的用户
	RequestID uint             `gorm:"not null" json:"requestId"`
	Type      NotificationType `gorm:"type:varchar(40);not null" json:"type"`
	Read      bool             `gorm:"not null;default:false" json:"read"`
}
