package messaging

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Handler exposes the trade conversations over HTTP and websockets.
type Handler struct {
	store Store
	hub   *Hub
}

func NewHandler(store Store, hub *Hub) *Handler {
	return &Handler{store: store, hub: hub}
}

func fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "conversation not found"})
	case errors.Is(err, ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrNotReceiver):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrEmpty), errors.Is(err, ErrTooLong):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("messaging request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// participant resolves the caller and the conversation in :id, checking membership.
func (h *Handler) participant(c echo.Context) (string, *Conversation, error) {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return "", nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	convID := c.Param("id")
	if convID == "" {
		return "", nil, c.JSON(http.StatusBadRequest, echo.Map{"error": "missing conversation id"})
	}
	conv, err := h.store.Get(c.Request().Context(), convID)
	if err != nil {
		return "", nil, fail(c, err)
	}
	if !conv.Member(userID) {
		return "", nil, fail(c, ErrForbidden)
	}
	return userID, conv, nil
}

// ListConversations - conversations of the current user with unread counts
func (h *Handler) ListConversations(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	convs, err := h.store.ListForUser(ctx, userID)
	if err != nil {
		return fail(c, err)
	}

	type item struct {
		Conversation
		With   string `json:"with"`
		Unread int64  `json:"unread"`
	}
	items := make([]item, 0, len(convs))
	for _, conv := range convs {
		n, err := h.store.UnreadCount(ctx, conv.ID, userID)
		if err != nil {
			return fail(c, err)
		}
		items = append(items, item{Conversation: conv, With: conv.Other(userID), Unread: n})
	}
	return c.JSON(http.StatusOK, echo.Map{"conversations": items})
}

// SendMessage - a participant posts into the conversation
func (h *Handler) SendMessage(c echo.Context) error {
	userID, conv, err := h.participant(c)
	if conv == nil {
		return err
	}

	var body struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	msg, err := h.store.Send(c.Request().Context(), conv.ID, userID, body.Body)
	if err != nil {
		return fail(c, err)
	}

	h.hub.Broadcast(conv.ID, "message_new", msg)
	h.hub.Push(conv.Other(userID), "message:new", msg)

	return c.JSON(http.StatusCreated, msg)
}

// ListMessages - the conversation history, optionally only after ?since
func (h *Handler) ListMessages(c echo.Context) error {
	_, conv, err := h.participant(c)
	if conv == nil {
		return err
	}

	var since time.Time
	if s := c.QueryParam("since"); s != "" {
		since, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid since timestamp, use RFC3339"})
		}
	}

	msgs, err := h.store.Messages(c.Request().Context(), conv.ID, since)
	if err != nil {
		return fail(c, err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

// UnreadCount - unread messages addressed to the current user
func (h *Handler) UnreadCount(c echo.Context) error {
	userID, conv, err := h.participant(c)
	if conv == nil {
		return err
	}
	n, err := h.store.UnreadCount(c.Request().Context(), conv.ID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"unread": n})
}

// MarkMessageRead - the recipient acknowledges a message
func (h *Handler) MarkMessageRead(c echo.Context) error {
	userID, conv, err := h.participant(c)
	if conv == nil {
		return err
	}
	msgID := c.Param("message_id")
	if msgID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing message id"})
	}

	readAt, err := h.store.MarkRead(c.Request().Context(), conv.ID, msgID, userID)
	if err != nil {
		return fail(c, err)
	}

	h.hub.Broadcast(conv.ID, "message_read", echo.Map{
		"message_id": msgID,
		"user_id":    userID,
		"read_at":    readAt.UTC().Format(time.RFC3339),
	})
	return c.JSON(http.StatusOK, echo.Map{"message_id": msgID, "read_at": readAt.UTC().Format(time.RFC3339)})
}

// ConversationWS - realtime room for one conversation
func (h *Handler) ConversationWS(c echo.Context) error {
	userID, conv, err := h.participant(c)
	if conv == nil {
		return err
	}
	return h.hub.serveRoom(c.Response(), c.Request(), conv.ID, userID)
}

// StreamWS - the caller's personal stream of notifications and new messages
func (h *Handler) StreamWS(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return h.hub.serveUser(c.Response(), c.Request(), userID)
}
