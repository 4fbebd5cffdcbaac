package ratelimit

import "context"

// ActionCreateFriendRequest 是好友请求创建操作的限流动作名。
const ActionCreateFriendRequest = "create_friend_request"

// Limiter 定义了限流协作方的接口。
// 工作流引擎在操作开始时调用 CheckAndConsume，自己不维护任何计数状态。
type Limiter interface {
	// CheckAndConsume 原子地检查并消耗一次配额。
	// 返回 false 表示该用户在当前窗口内已超出配额。
	CheckAndConsume(ctx context.Context, userID uint, action string) (bool, error)
}
