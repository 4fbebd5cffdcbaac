package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"social-go/internal/models"
	"social-go/internal/storage"

	"gorm.io/gorm"
)

// searchResultLimit 限制模糊搜索返回的结果数量。
const searchResultLimit = 20

// UserService 定义了用户相关服务的接口。
type UserService interface {
	GetUserProfile(ctx context.Context, userID uint) (*models.User, error)
	UpdateUserProfile(ctx context.Context, userID uint, username, avatarURL, bio string) (*models.User, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
}

// userService 是 UserService 的实现。
type userService struct {
	userRepo storage.UserRepository
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo storage.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

// GetUserProfile 获取用户公开的个人资料。
func (s *userService) GetUserProfile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("获取用户 %d 失败: %w", userID, err)
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateUserProfile 更新用户的个人资料。
func (s *userService) UpdateUserProfile(ctx context.Context, userID uint, username, avatarURL, bio string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("更新用户资料失败，用户 %d 未找到: %w", userID, err)
	}

	updated := false
	if username != "" && user.Username != username {
		user.Username = username
		updated = true
	}
	if avatarURL != "" && user.AvatarURL != avatarURL {
		user.AvatarURL = avatarURL
		updated = true
	}
	if bio != "" && user.Bio != bio {
		user.Bio = bio
		updated = true
	}

	if !updated {
		user.PasswordHash = ""
		return user, nil
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("更新用户 %d 资料失败: %w", userID, err)
	}
	user.PasswordHash = ""
	return user, nil
}

// SearchUsers 实现用户搜索策略，按顺序：
//  1. query 与某个用户的邮箱精确匹配（不区分大小写）时，只返回该用户；
//  2. 否则返回用户名或邮箱包含 query 的用户（不区分大小写，按 ID 去重）；
//  3. 空查询返回空列表，绝不返回全部用户。
func (s *userService) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}

	user, err := s.userRepo.GetByEmailExact(ctx, query)
	if err == nil {
		user.PasswordHash = ""
		return []models.User{*user}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("按邮箱搜索用户失败: %w", err)
	}

	users, err := s.userRepo.SearchByNameOrEmail(ctx, query, searchResultLimit)
	if err != nil {
		return nil, fmt.Errorf("搜索用户失败: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}
