package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"social-go/internal/models"
	"social-go/internal/storage"

	"gorm.io/gorm"
)

// fakeUserRepo 是 storage.UserRepository 的内存实现，供服务层测试使用。
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uint]*models.User)}
}

func (f *fakeUserRepo) addUser(email, username string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	user := &models.User{
		Email:    strings.ToLower(email),
		Username: username,
	}
	user.ID = f.nextID
	f.users[user.ID] = user
	return user
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	f.nextID++
	user.ID = f.nextID
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmailExact(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) SearchByNameOrEmail(ctx context.Context, query string, limit int) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	term := strings.ToLower(query)
	var results []models.User
	// 按 ID 升序返回，与真实实现的 Order("id") 保持一致
	for id := uint(1); id <= f.nextID; id++ {
		user, ok := f.users[id]
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(user.Username), term) ||
			strings.Contains(strings.ToLower(user.Email), term) {
			results = append(results, *user)
			if len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

func (f *fakeUserRepo) GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.UserBasicInfo{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
	}, nil
}

func (f *fakeUserRepo) GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) ([]*models.UserBasicInfo, error) {
	var infos []*models.UserBasicInfo
	for _, id := range userIDs {
		info, err := f.GetBasicInfoByID(ctx, id)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// fakeFriendRequestRepo 是 storage.FriendRequestRepository 的内存实现。
// mutex 模拟数据库事务的原子性：CreatePending 的查重与插入不可分割。
type fakeFriendRequestRepo struct {
	mu       sync.Mutex
	nextID   uint
	requests map[uint]*models.FriendRequest
}

func newFakeFriendRequestRepo() *fakeFriendRequestRepo {
	return &fakeFriendRequestRepo{requests: make(map[uint]*models.FriendRequest)}
}

func (f *fakeFriendRequestRepo) CreatePending(ctx context.Context, fromUserID, toUserID uint) (*models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.Status != models.FriendRequestStatusPending {
			continue
		}
		if (req.FromUserID == fromUserID && req.ToUserID == toUserID) ||
			(req.FromUserID == toUserID && req.ToUserID == fromUserID) {
			return nil, storage.ErrPendingRequestExists
		}
	}
	f.nextID++
	request := &models.FriendRequest{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     models.FriendRequestStatusPending,
	}
	request.ID = f.nextID
	f.requests[request.ID] = request
	copied := *request
	return &copied, nil
}

func (f *fakeFriendRequestRepo) GetRequestByID(ctx context.Context, requestID uint) (*models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	request, ok := f.requests[requestID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *request
	return &copied, nil
}

func (f *fakeFriendRequestRepo) UpdateStatusFromPending(ctx context.Context, requestID uint, status models.FriendRequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !status.IsTerminal() {
		return storage.ErrRequestNotPending
	}
	request, ok := f.requests[requestID]
	if !ok || request.Status != models.FriendRequestStatusPending {
		return storage.ErrRequestNotPending
	}
	request.Status = status
	return nil
}

func (f *fakeFriendRequestRepo) ListInvolving(ctx context.Context, userID uint) ([]models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []models.FriendRequest
	for id := uint(1); id <= f.nextID; id++ {
		request, ok := f.requests[id]
		if ok && request.Involves(userID) {
			results = append(results, *request)
		}
	}
	return results, nil
}

func (f *fakeFriendRequestRepo) ListPendingFor(ctx context.Context, toUserID uint) ([]models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []models.FriendRequest
	for id := uint(1); id <= f.nextID; id++ {
		request, ok := f.requests[id]
		if ok && request.ToUserID == toUserID && request.Status == models.FriendRequestStatusPending {
			results = append(results, *request)
		}
	}
	return results, nil
}

func (f *fakeFriendRequestRepo) ListAcceptedInvolving(ctx context.Context, userID uint) ([]models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []models.FriendRequest
	for id := uint(1); id <= f.nextID; id++ {
		request, ok := f.requests[id]
		if ok && request.Involves(userID) && request.Status == models.FriendRequestStatusAccepted {
			results = append(results, *request)
		}
	}
	return results, nil
}

func (f *fakeFriendRequestRepo) Delete(ctx context.Context, requestID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.requests, requestID)
	return nil
}

// countingLimiter 按用户计数的限流器，模拟滑动窗口在窗口内的行为。
type countingLimiter struct {
	mu     sync.Mutex
	limit  int
	counts map[uint]int
}

func newCountingLimiter(limit int) *countingLimiter {
	return &countingLimiter{limit: limit, counts: make(map[uint]int)}
}

func (l *countingLimiter) CheckAndConsume(ctx context.Context, userID uint, action string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[userID] >= l.limit {
		return false, nil
	}
	l.counts[userID]++
	return true, nil
}

// allowAllLimiter 永远放行，供不关心限流的测试使用。
type allowAllLimiter struct{}

func (allowAllLimiter) CheckAndConsume(ctx context.Context, userID uint, action string) (bool, error) {
	return true, nil
}

// recordingProducer 记录发布到 Kafka 的消息，供断言生命周期事件。
type recordingProducer struct {
	mu       sync.Mutex
	messages []recordedMessage
}

type recordedMessage struct {
	topic   string
	key     []byte
	payload []byte
}

func (p *recordingProducer) SendMessage(ctx context.Context, topic string, key, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, recordedMessage{topic: topic, key: key, payload: payload})
	return nil
}

func (p *recordingProducer) Close() {}

func (p *recordingProducer) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []string
	for _, msg := range p.messages {
		var event FriendEvent
		if err := json.Unmarshal(msg.payload, &event); err == nil {
			types = append(types, event.Type)
		}
	}
	return types
}
