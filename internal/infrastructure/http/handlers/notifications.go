package handlers

import (
	"context"
	"net/http"

	"github.com/yuzvak/checkout-service/internal/domain/notification"
	"github.com/yuzvak/checkout-service/internal/domain/user"
	"github.com/yuzvak/checkout-service/internal/infrastructure/http/middleware"
	"github.com/yuzvak/checkout-service/internal/infrastructure/http/response"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

type CartEventPublisher interface {
	PublishCartReplaced(ctx context.Context, event notification.CartReplaced) error
}

type NotificationHandler struct {
	queue     *notification.Queue
	publisher CartEventPublisher
	log       *logger.Logger
}

// NewNotificationHandler takes an optional publisher. Without one, posted
// events go straight into the local queue.
func NewNotificationHandler(queue *notification.Queue, publisher CartEventPublisher, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		queue:     queue,
		publisher: publisher,
		log:       log,
	}
}

func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r.Context())
	active := h.queue.Active(user.ResolveCartIdentity(session).Key())
	response.WriteSuccess(w, response.List(active, 0, 0))
}

func (h *NotificationHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var event notification.CartReplaced
	if !decodeBody(w, r, &event) {
		return
	}
	if event.CartKey == "" {
		event.CartKey = user.ResolveCartIdentity(middleware.SessionFrom(r.Context())).Key()
	}
	if err := event.Validate(); err != nil {
		response.WriteDomainError(w, err)
		return
	}

	if h.publisher == nil {
		n := h.queue.Push(event)
		response.WriteCreated(w, n)
		return
	}

	if err := h.publisher.PublishCartReplaced(r.Context(), event); err != nil {
		h.log.Error("Failed to publish cart event", "error", err)
		response.WriteError(w, http.StatusServiceUnavailable, response.StatusServiceUnavailable, "Cart event could not be published")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
