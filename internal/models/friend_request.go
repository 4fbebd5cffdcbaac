package models

// FriendRequestStatus 定义好友请求的状态
type FriendRequestStatus string

const (
	FriendRequestStatusPending  FriendRequestStatus = "pending"
	FriendRequestStatusAccepted FriendRequestStatus = "accepted"
	FriendRequestStatusRejected FriendRequestStatus = "rejected"
)

// IsTerminal reports whether the status is a resolved state.
// accepted 与 rejected 都是终态，不可再变更。
func (s FriendRequestStatus) IsTerminal() bool {
	return s == FriendRequestStatusAccepted || s == FriendRequestStatusRejected
}

// FriendRequest 代表一个好友请求记录。
// 同一对用户（不分方向）同一时刻最多存在一条 pending 记录，由数据库上的
// 部分唯一索引兜底保证（见 storage.AutoMigrateTables）。
type FriendRequest struct {
	BaseModel
	FromUserID uint                `gorm:"not null;index:idx_friend_request_users" json:"fromUserId"` // 请求发送者
	ToUserID   uint                `gorm:"not null;index:idx_friend_request_users" json:"toUserId"`   // 请求接收者
	Status     FriendRequestStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
}

// OtherParty returns the participant that is not userID.
// 调用方需保证 userID 是请求的参与者之一。
func (r *FriendRequest) OtherParty(userID uint) uint {
	if r.FromUserID == userID {
		return r.ToUserID
	}
	return r.FromUserID
}

// Involves reports whether userID is sender or recipient of the request.
func (r *FriendRequest) Involves(userID uint) bool {
	return r.FromUserID == userID || r.ToUserID == userID
}

// FriendRequestWithSender is a DTO that includes friend request details
// along with basic information about the user who sent the request.
// Useful for API responses for listing pending requests.
type FriendRequestWithSender struct {
	FriendRequest
	Sender *UserBasicInfo `json:"sender"`
}
