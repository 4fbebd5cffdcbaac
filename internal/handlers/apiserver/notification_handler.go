package apiserver

import (
	"log"
	"net/http"
	"strconv"

	"social-go/internal/middleware"
	"social-go/internal/models"
	"social-go/internal/services"
)

const defaultNotificationLimit = 50

// NotificationHandler handles HTTP requests for the notification feed.
type NotificationHandler struct {
	notifService services.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(ns services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifService: ns}
}

// ListNotificationsHandler handles GET /api/v1/notifications
func (h *NotificationHandler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	limit := defaultNotificationLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	notifications, err := h.notifService.ListNotifications(r.Context(), userID, limit)
	if err != nil {
		log.Printf("Error fetching notifications for user %d: %v", userID, err)
		writeJSONError(w, "获取通知列表失败", http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	writeJSONResponse(w, http.StatusOK, notifications)
}

// MarkNotificationsReadHandler handles POST /api/v1/notifications/read
func (h *NotificationHandler) MarkNotificationsReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	if err := h.notifService.MarkAllRead(r.Context(), userID); err != nil {
		log.Printf("Error marking notifications read for user %d: %v", userID, err)
		writeJSONError(w, "标记通知已读失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "通知已全部标记为已读"})
}
