package storage

import (
	"context"
	"errors"

	"social-go/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrPendingRequestExists 表示事务内检查发现两人之间已有 pending 请求。
	ErrPendingRequestExists = errors.New("已存在待处理的好友请求")
	// ErrConstraintViolation 表示插入时撞上 pending 唯一索引（并发竞态的败者）。
	ErrConstraintViolation = errors.New("好友请求唯一性约束冲突")
	// ErrRequestNotPending 表示状态更新的 CAS 未命中：记录已不是 pending。
	ErrRequestNotPending = errors.New("该好友请求不是待处理状态")
)

// FriendRequestRepository defines the interface for friend request data operations.
type FriendRequestRepository interface {
	// CreatePending 原子地完成「查重 + 插入」：检查与插入在同一个事务中，
	// 两个并发创建不可能都通过检查；数据库的部分唯一索引兜底。
	CreatePending(ctx context.Context, fromUserID, toUserID uint) (*models.FriendRequest, error)
	GetRequestByID(ctx context.Context, requestID uint) (*models.FriendRequest, error)
	// UpdateStatusFromPending 以 compare-and-set 方式把 pending 请求置为终态，
	// 记录不是 pending 时返回 ErrRequestNotPending。
	UpdateStatusFromPending(ctx context.Context, requestID uint, status models.FriendRequestStatus) error
	ListInvolving(ctx context.Context, userID uint) ([]models.FriendRequest, error)
	ListPendingFor(ctx context.Context, toUserID uint) ([]models.FriendRequest, error)
	ListAcceptedInvolving(ctx context.Context, userID uint) ([]models.FriendRequest, error)
	// Delete 软删除一条请求。仅用于管理操作，不属于正常工作流。
	Delete(ctx context.Context, requestID uint) error
}

type gormFriendRequestRepository struct {
	db *gorm.DB
}

func NewGormFriendRequestRepository(db *gorm.DB) FriendRequestRepository {
	return &gormFriendRequestRepository{db: db}
}

func (r *gormFriendRequestRepository) CreatePending(ctx context.Context, fromUserID, toUserID uint) (*models.FriendRequest, error) {
	request := &models.FriendRequest{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     models.FriendRequestStatusPending,
	}

	err := withRetryOnce(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var count int64
			err := tx.Model(&models.FriendRequest{}).
				Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)",
					fromUserID, toUserID, toUserID, fromUserID).
				Where("status = ?", models.FriendRequestStatusPending).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count > 0 {
				return ErrPendingRequestExists
			}

			if err := tx.Create(request).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrConstraintViolation
				}
				return err
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (r *gormFriendRequestRepository) GetRequestByID(ctx context.Context, requestID uint) (*models.FriendRequest, error) {
	var request models.FriendRequest
	// 只读查询天然幂等，可以和写路径共用一次重试
	err := withRetryOnce(func() error {
		return r.db.WithContext(ctx).First(&request, requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *gormFriendRequestRepository) UpdateStatusFromPending(ctx context.Context, requestID uint, status models.FriendRequestStatus) error {
	if !status.IsTerminal() {
		return ErrRequestNotPending
	}
	result := r.db.WithContext(ctx).Model(&models.FriendRequest{}).
		Where("id = ? AND status = ?", requestID, models.FriendRequestStatusPending).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	// CAS 未命中：记录不存在或已被并发的 accept/reject 抢先置为终态
	if result.RowsAffected == 0 {
		return ErrRequestNotPending
	}
	return nil
}

func (r *gormFriendRequestRepository) ListInvolving(ctx context.Context, userID uint) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := withRetryOnce(func() error {
		return r.db.WithContext(ctx).
			Where("from_user_id = ? OR to_user_id = ?", userID, userID).
			Order("id").
			Find(&requests).Error
	})
	return requests, err
}

func (r *gormFriendRequestRepository) ListPendingFor(ctx context.Context, toUserID uint) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := withRetryOnce(func() error {
		return r.db.WithContext(ctx).
			Where("to_user_id = ? AND status = ?", toUserID, models.FriendRequestStatusPending).
			Order("id").
			Find(&requests).Error
	})
	return requests, err
}

func (r *gormFriendRequestRepository) ListAcceptedInvolving(ctx context.Context, userID uint) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := withRetryOnce(func() error {
		return r.db.WithContext(ctx).
			Where("(from_user_id = ? OR to_user_id = ?) AND status = ?",
				userID, userID, models.FriendRequestStatusAccepted).
			Order("id").
			Find(&requests).Error
	})
	return requests, err
}

func (r *gormFriendRequestRepository) Delete(ctx context.Context, requestID uint) error {
	return r.db.WithContext(ctx).Delete(&models.FriendRequest{}, requestID).Error
}
