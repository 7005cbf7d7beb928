package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"school-notification-service/internal/middleware"
	"school-notification-service/internal/queue"
	"school-notification-service/internal/usecase"
	"school-notification-service/pkg/response"
	"school-notification-service/pkg/xerrors"
)

type NotificationHandler struct {
	uc    *usecase.NotificationUsecase
	queue *queue.Queue
}

func NewNotificationHandler(uc *usecase.NotificationUsecase, q *queue.Queue) *NotificationHandler {
	return &NotificationHandler{uc: uc, queue: q}
}

// ----------------------
// Dispatch Handlers
// ----------------------

func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var in usecase.CreateNotificationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	schoolID := middleware.SchoolIDFromContext(r.Context())
	if schoolID == "" {
		schoolID = in.SchoolID
	}
	userID := middleware.UserIDFromContext(r.Context())

	result, err := h.uc.CreateNotification(r.Context(), schoolID, userID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, result)
}

func (h *NotificationHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var in usecase.CreateNotificationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	schoolID := middleware.SchoolIDFromContext(r.Context())
	if schoolID == "" {
		schoolID = in.SchoolID
	}
	userID := middleware.UserIDFromContext(r.Context())

	result, err := h.uc.Broadcast(r.Context(), schoolID, userID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, result)
}

func (h *NotificationHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	schoolID := middleware.SchoolIDFromContext(r.Context())
	userID := middleware.UserIDFromContext(r.Context())

	result, err := h.uc.SendTest(r.Context(), schoolID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, result)
}

func (h *NotificationHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.uc.ListTemplates())
}

func (h *NotificationHandler) CancelNotification(w http.ResponseWriter, r *http.Request) {
	notificationID := chi.URLParam(r, "notificationId")
	schoolID := middleware.SchoolIDFromContext(r.Context())

	if err := h.uc.CancelNotification(r.Context(), notificationID, schoolID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----------------------
// Recipient Handlers
// ----------------------

func (h *NotificationHandler) MyNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, unread, err := h.uc.MyNotifications(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, items, map[string]interface{}{
		"unreadCount": unread,
	})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryId")
	userID := middleware.UserIDFromContext(r.Context())

	count, err := h.uc.MarkAsRead(r.Context(), deliveryID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"deliveryId":  deliveryID,
		"unreadCount": count,
	})
}

// ----------------------
// Operations Handlers
// ----------------------

func (h *NotificationHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryId")

	d, err := h.uc.RetryDelivery(r.Context(), deliveryID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, d)
}

func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	schoolID := middleware.SchoolIDFromContext(r.Context())

	var from, to *time.Time
	if v := r.URL.Query().Get("startDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = &t
		}
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = &t
		}
	}

	stats, err := h.uc.Stats(r.Context(), schoolID, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, stats)
}

func (h *NotificationHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.queue.Stats())
}

// writeError maps domain errors to HTTP responses
func (h *NotificationHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		response.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, xerrors.ErrUnauthorized):
		response.Error(w, http.StatusForbidden, "notification does not belong to you")
	case errors.Is(err, xerrors.ErrInvalidTarget):
		response.Error(w, http.StatusBadRequest, "invalid target type")
	case errors.Is(err, xerrors.ErrInvalidChannel):
		response.Error(w, http.StatusBadRequest, "invalid channel")
	case errors.Is(err, xerrors.ErrSchoolRequired):
		response.Error(w, http.StatusBadRequest, "school context required")
	case errors.Is(err, xerrors.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, xerrors.ErrNotRetryable):
		response.Error(w, http.StatusConflict, "delivery is not in a retryable state")
	case errors.Is(err, xerrors.ErrRetryExhausted):
		response.Error(w, http.StatusConflict, "delivery retry limit reached")
	default:
		response.Error(w, http.StatusInternalServerError, err.Error())
	}
}
