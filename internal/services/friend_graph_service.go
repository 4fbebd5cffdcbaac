package services

import (
	"context"
	"fmt"
	"sort"

	"social-go/internal/models"
	"social-go/internal/storage"
)

// FriendGraphService derives the undirected friendship relation from accepted
// friend requests. 好友关系不单独存储：{A,B} 是好友当且仅当两人之间存在
// 一条 accepted 请求，方向不限。
type FriendGraphService interface {
	// ListFriends 返回用户所有好友的 ID，按 ID 升序。
	ListFriends(ctx context.Context, userID uint) ([]uint, error)
	// ListFriendsInfo 返回用户所有好友的公开信息。
	ListFriendsInfo(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error)
	// IsFriend 判断两个用户之间是否存在 accepted 请求（任一方向）。
	IsFriend(ctx context.Context, userA, userB uint) (bool, error)
}

type friendGraphService struct {
	userRepo   storage.UserRepository
	friendRepo storage.FriendRequestRepository
}

// NewFriendGraphService creates a new FriendGraphService instance.
func NewFriendGraphService(userRepo storage.UserRepository, friendRepo storage.FriendRequestRepository) FriendGraphService {
	return &friendGraphService{userRepo: userRepo, friendRepo: friendRepo}
}

func (s *friendGraphService) ListFriends(ctx context.Context, userID uint) ([]uint, error) {
	accepted, err := s.friendRepo.ListAcceptedInvolving(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取好友列表失败: %w", err)
	}

	// 同一对用户历史上可能有多条 accepted 记录，去重
	seen := make(map[uint]struct{}, len(accepted))
	friendIDs := make([]uint, 0, len(accepted))
	for _, req := range accepted {
		other := req.OtherParty(userID)
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		friendIDs = append(friendIDs, other)
	}

	// 按 ID 排序，保证结果确定
	sort.Slice(friendIDs, func(i, j int) bool { return friendIDs[i] < friendIDs[j] })
	return friendIDs, nil
}

func (s *friendGraphService) ListFriendsInfo(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error) {
	friendIDs, err := s.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(friendIDs) == 0 {
		return []*models.UserBasicInfo{}, nil
	}

	friendsInfo, err := s.userRepo.GetMultipleBasicInfoByIDs(ctx, friendIDs)
	if err != nil {
		return nil, fmt.Errorf("获取好友信息失败: %w", err)
	}
	return friendsInfo, nil
}

func (s *friendGraphService) IsFriend(ctx context.Context, userA, userB uint) (bool, error) {
	if userA == userB {
		return false, nil
	}
	accepted, err := s.friendRepo.ListAcceptedInvolving(ctx, userA)
	if err != nil {
		return false, fmt.Errorf("检查好友关系失败: %w", err)
	}
	for _, req := range accepted {
		if req.OtherParty(userA) == userB {
			return true, nil
		}
	}
	return false, nil
}
