package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"social-go/internal/middleware"
	"social-go/internal/models"
	"social-go/internal/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFriendService 通过函数字段逐个桩掉 FriendRequestService 的方法。
type stubFriendService struct {
	sendFn    func(ctx context.Context, fromUserID, toUserID uint) (*models.FriendRequest, error)
	acceptFn  func(ctx context.Context, actingUserID, requestID uint) error
	rejectFn  func(ctx context.Context, actingUserID, requestID uint) error
	getFn     func(ctx context.Context, actingUserID, requestID uint) (*models.FriendRequest, error)
	listFn    func(ctx context.Context, userID uint) ([]models.FriendRequest, error)
	pendingFn func(ctx context.Context, userID uint) ([]*models.FriendRequestWithSender, error)
	deleteFn  func(ctx context.Context, actingUserID, requestID uint) error
}

func (s *stubFriendService) SendFriendRequest(ctx context.Context, fromUserID, toUserID uint) (*models.FriendRequest, error) {
	return s.sendFn(ctx, fromUserID, toUserID)
}

func (s *stubFriendService) AcceptFriendRequest(ctx context.Context, actingUserID, requestID uint) error {
	return s.acceptFn(ctx, actingUserID, requestID)
}

func (s *stubFriendService) RejectFriendRequest(ctx context.Context, actingUserID, requestID uint) error {
	return s.rejectFn(ctx, actingUserID, requestID)
}

func (s *stubFriendService) GetRequest(ctx context.Context, actingUserID, requestID uint) (*models.FriendRequest, error) {
	return s.getFn(ctx, actingUserID, requestID)
}

func (s *stubFriendService) ListRequests(ctx context.Context, userID uint) ([]models.FriendRequest, error) {
	return s.listFn(ctx, userID)
}

func (s *stubFriendService) ListPendingRequests(ctx context.Context, userID uint) ([]*models.FriendRequestWithSender, error) {
	return s.pendingFn(ctx, userID)
}

func (s *stubFriendService) DeleteRequest(ctx context.Context, actingUserID, requestID uint) error {
	return s.deleteFn(ctx, actingUserID, requestID)
}

type stubGraphService struct {
	friendsInfoFn func(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error)
}

func (s *stubGraphService) ListFriends(ctx context.Context, userID uint) ([]uint, error) {
	return nil, nil
}

func (s *stubGraphService) ListFriendsInfo(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error) {
	return s.friendsInfoFn(ctx, userID)
}

func (s *stubGraphService) IsFriend(ctx context.Context, userA, userB uint) (bool, error) {
	return false, nil
}

// authedRequest 构造一个带认证上下文的请求，模拟中间件已通过。
func authedRequest(t *testing.T, method, target string, body any, userID uint) *http.Request {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestSendFriendRequestHandler_Created(t *testing.T) {
	stub := &stubFriendService{
		sendFn: func(ctx context.Context, fromUserID, toUserID uint) (*models.FriendRequest, error) {
			request := &models.FriendRequest{
				FromUserID: fromUserID,
				ToUserID:   toUserID,
				Status:     models.FriendRequestStatusPending,
			}
			request.ID = 11
			return request, nil
		},
	}
	handler := NewFriendRequestHandler(stub, &stubGraphService{})

	req := authedRequest(t, http.MethodPost, "/api/v1/friend-requests", SendFriendRequestPayload{ToUserID: 2}, 1)
	rec := httptest.NewRecorder()
	handler.SendFriendRequestHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got models.FriendRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint(11), got.ID)
	assert.Equal(t, models.FriendRequestStatusPending, got.Status)
}

func TestSendFriendRequestHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"self request", services.ErrFriendRequestSelf, http.StatusBadRequest},
		{"recipient missing", services.ErrRecipientNotFound, http.StatusBadRequest},
		{"duplicate pending", services.ErrFriendRequestExists, http.StatusConflict},
		{"rate limited", services.ErrRateLimited, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubFriendService{
				sendFn: func(ctx context.Context, fromUserID, toUserID uint) (*models.FriendRequest, error) {
					return nil, tc.serviceErr
				},
			}
			handler := NewFriendRequestHandler(stub, &stubGraphService{})

			req := authedRequest(t, http.MethodPost, "/api/v1/friend-requests", SendFriendRequestPayload{ToUserID: 2}, 1)
			rec := httptest.NewRecorder()
			handler.SendFriendRequestHandler(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestSendFriendRequestHandler_MissingRecipientID(t *testing.T) {
	handler := NewFriendRequestHandler(&stubFriendService{}, &stubGraphService{})

	req := authedRequest(t, http.MethodPost, "/api/v1/friend-requests", map[string]any{}, 1)
	rec := httptest.NewRecorder()
	handler.SendFriendRequestHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendFriendRequestHandler_Unauthenticated(t *testing.T) {
	handler := NewFriendRequestHandler(&stubFriendService{}, &stubGraphService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/friend-requests", bytes.NewReader([]byte(`{"toUserId":2}`)))
	rec := httptest.NewRecorder()
	handler.SendFriendRequestHandler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// routedRequest 通过 mux 路由分发，让 {requestID} 路径变量生效。
func routedRequest(handler http.HandlerFunc, pattern, method string, req *http.Request) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	router.HandleFunc(pattern, handler).Methods(method)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAcceptFriendRequestHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"not found", services.ErrFriendRequestNotFound, http.StatusNotFound},
		{"not recipient", services.ErrNotRecipientOfRequest, http.StatusForbidden},
		{"already resolved", services.ErrRequestNotPending, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubFriendService{
				acceptFn: func(ctx context.Context, actingUserID, requestID uint) error {
					return tc.serviceErr
				},
			}
			handler := NewFriendRequestHandler(stub, &stubGraphService{})

			req := authedRequest(t, http.MethodPost, "/api/v1/friend-requests/5/accept", nil, 2)
			rec := routedRequest(handler.AcceptFriendRequestHandler,
				"/api/v1/friend-requests/{requestID:[0-9]+}/accept", http.MethodPost, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestAcceptFriendRequestHandler_OK(t *testing.T) {
	var gotActing, gotRequest uint
	stub := &stubFriendService{
		acceptFn: func(ctx context.Context, actingUserID, requestID uint) error {
			gotActing, gotRequest = actingUserID, requestID
			return nil
		},
	}
	handler := NewFriendRequestHandler(stub, &stubGraphService{})

	req := authedRequest(t, http.MethodPost, "/api/v1/friend-requests/5/accept", nil, 2)
	rec := routedRequest(handler.AcceptFriendRequestHandler,
		"/api/v1/friend-requests/{requestID:[0-9]+}/accept", http.MethodPost, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint(2), gotActing)
	assert.Equal(t, uint(5), gotRequest)
}

func TestRejectFriendRequestHandler_OK(t *testing.T) {
	stub := &stubFriendService{
		rejectFn: func(ctx context.Context, actingUserID, requestID uint) error {
			return nil
		},
	}
	handler := NewFriendRequestHandler(stub, &stubGraphService{})

	req := authedRequest(t, http.MethodPost, "/api/v1/friend-requests/5/reject", nil, 2)
	rec := routedRequest(handler.RejectFriendRequestHandler,
		"/api/v1/friend-requests/{requestID:[0-9]+}/reject", http.MethodPost, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteFriendRequestHandler(t *testing.T) {
	stub := &stubFriendService{
		deleteFn: func(ctx context.Context, actingUserID, requestID uint) error {
			return nil
		},
	}
	handler := NewFriendRequestHandler(stub, &stubGraphService{})

	req := authedRequest(t, http.MethodDelete, "/api/v1/friend-requests/5", nil, 1)
	rec := routedRequest(handler.DeleteFriendRequestHandler,
		"/api/v1/friend-requests/{requestID:[0-9]+}", http.MethodDelete, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListFriendsHandler_EmptyListIsJSONArray(t *testing.T) {
	graph := &stubGraphService{
		friendsInfoFn: func(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error) {
			return nil, nil
		},
	}
	handler := NewFriendRequestHandler(&stubFriendService{}, graph)

	req := authedRequest(t, http.MethodGet, "/api/v1/friends", nil, 1)
	rec := httptest.NewRecorder()
	handler.ListFriendsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListPendingRequestsHandler(t *testing.T) {
	stub := &stubFriendService{
		pendingFn: func(ctx context.Context, userID uint) ([]*models.FriendRequestWithSender, error) {
			request := models.FriendRequest{FromUserID: 3, ToUserID: userID, Status: models.FriendRequestStatusPending}
			request.ID = 9
			return []*models.FriendRequestWithSender{
				{FriendRequest: request, Sender: &models.UserBasicInfo{ID: 3, Username: "carol"}},
			}, nil
		},
	}
	handler := NewFriendRequestHandler(stub, &stubGraphService{})

	req := authedRequest(t, http.MethodGet, "/api/v1/friend-requests/pending", nil, 1)
	rec := httptest.NewRecorder()
	handler.ListPendingRequestsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	sender, ok := got[0]["sender"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "carol", sender["username"])
}
