package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"social-go/internal/middleware"
	"social-go/internal/models"
	"social-go/internal/services"
	"social-go/internal/storage"

	"github.com/gorilla/mux"
)

// FriendRequestHandler handles HTTP requests related to friend requests
// and the derived friend graph.
type FriendRequestHandler struct {
	friendService services.FriendRequestService
	graphService  services.FriendGraphService
}

// NewFriendRequestHandler creates a new FriendRequestHandler.
func NewFriendRequestHandler(fs services.FriendRequestService, gs services.FriendGraphService) *FriendRequestHandler {
	return &FriendRequestHandler{friendService: fs, graphService: gs}
}

// SendFriendRequestPayload defines the expected JSON body for sending a friend request.
type SendFriendRequestPayload struct {
	ToUserID uint `json:"toUserId"`
}

// SendFriendRequestHandler handles POST /api/v1/friend-requests
func (h *FriendRequestHandler) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	fromUserID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var payload SendFriendRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.ToUserID == 0 {
		writeJSONError(w, "缺少接收者ID (toUserId)", http.StatusBadRequest)
		return
	}

	request, err := h.friendService.SendFriendRequest(r.Context(), fromUserID, payload.ToUserID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFriendRequestSelf) || errors.Is(err, services.ErrRecipientNotFound):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrFriendRequestExists) || errors.Is(err, storage.ErrConstraintViolation):
			writeJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, services.ErrRateLimited):
			writeJSONError(w, err.Error(), http.StatusTooManyRequests)
		default:
			log.Printf("Error sending friend request from %d to %d: %v", fromUserID, payload.ToUserID, err)
			writeJSONError(w, "发送好友请求失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusCreated, request)
}

// requestIDFromPath 从路径参数中解析 requestID。
func requestIDFromPath(w http.ResponseWriter, r *http.Request) (uint, bool) {
	vars := mux.Vars(r)
	requestIDStr, ok := vars["requestID"]
	if !ok {
		writeJSONError(w, "缺少好友请求ID", http.StatusBadRequest)
		return 0, false
	}
	requestID, err := strconv.ParseUint(requestIDStr, 10, 32)
	if err != nil {
		writeJSONError(w, "无效的好友请求ID格式", http.StatusBadRequest)
		return 0, false
	}
	return uint(requestID), true
}

// writeResolveError 统一映射 accept/reject 的失败：
// 不存在 404，不是接收者 403，已处理 409。
func writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrFriendRequestNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrNotRecipientOfRequest) || errors.Is(err, services.ErrNotParticipant):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrRequestNotPending):
		writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		writeJSONError(w, "处理好友请求失败", http.StatusInternalServerError)
	}
}

// AcceptFriendRequestHandler handles POST /api/v1/friend-requests/{requestID}/accept
func (h *FriendRequestHandler) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	requestID, ok := requestIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.friendService.AcceptFriendRequest(r.Context(), actingUserID, requestID); err != nil {
		writeResolveError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "好友请求已接受"})
}

// RejectFriendRequestHandler handles POST /api/v1/friend-requests/{requestID}/reject
func (h *FriendRequestHandler) RejectFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	requestID, ok := requestIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.friendService.RejectFriendRequest(r.Context(), actingUserID, requestID); err != nil {
		writeResolveError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "好友请求已拒绝"})
}

// GetFriendRequestHandler handles GET /api/v1/friend-requests/{requestID}
func (h *FriendRequestHandler) GetFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	requestID, ok := requestIDFromPath(w, r)
	if !ok {
		return
	}

	request, err := h.friendService.GetRequest(r.Context(), actingUserID, requestID)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, request)
}

// DeleteFriendRequestHandler handles DELETE /api/v1/friend-requests/{requestID}
// 管理性删除，不属于正常工作流。
func (h *FriendRequestHandler) DeleteFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	requestID, ok := requestIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.friendService.DeleteRequest(r.Context(), actingUserID, requestID); err != nil {
		writeResolveError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFriendRequestsHandler handles GET /api/v1/friend-requests
func (h *FriendRequestHandler) ListFriendRequestsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	requests, err := h.friendService.ListRequests(r.Context(), userID)
	if err != nil {
		log.Printf("Error fetching friend requests for user %d: %v", userID, err)
		writeJSONError(w, "获取好友请求列表失败", http.StatusInternalServerError)
		return
	}
	if requests == nil {
		requests = []models.FriendRequest{}
	}
	writeJSONResponse(w, http.StatusOK, requests)
}

// ListPendingRequestsHandler handles GET /api/v1/friend-requests/pending
func (h *FriendRequestHandler) ListPendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	pendingRequests, err := h.friendService.ListPendingRequests(r.Context(), userID)
	if err != nil {
		log.Printf("Error fetching pending requests for user %d: %v", userID, err)
		writeJSONError(w, "获取待处理请求失败", http.StatusInternalServerError)
		return
	}
	if pendingRequests == nil {
		pendingRequests = []*models.FriendRequestWithSender{}
	}
	writeJSONResponse(w, http.StatusOK, pendingRequests)
}

// ListFriendsHandler handles GET /api/v1/friends
func (h *FriendRequestHandler) ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	friendsList, err := h.graphService.ListFriendsInfo(r.Context(), userID)
	if err != nil {
		log.Printf("Error fetching friends list for user %d: %v", userID, err)
		writeJSONError(w, "获取好友列表失败", http.StatusInternalServerError)
		return
	}
	if friendsList == nil {
		friendsList = []*models.UserBasicInfo{}
	}
	writeJSONResponse(w, http.StatusOK, friendsList)
}
