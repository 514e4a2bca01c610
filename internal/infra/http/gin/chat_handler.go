package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"campusmarket/internal/app/dto"
	chatsvc "campusmarket/internal/app/services/chat"
	domainchat "campusmarket/internal/domain/chat"
	domainlisting "campusmarket/internal/domain/listing"
	domainuser "campusmarket/internal/domain/user"
)

// ChatHTTP exposes the conversation endpoints.
type ChatHTTP interface {
	Contact(c *gin.Context)
	View(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	Inbox(c *gin.Context)
	UnreadBadge(c *gin.Context)
}

type ChatHandler struct {
	Service *chatsvc.Service
	Logger  *slog.Logger
}

// Contact resolves the thread between the caller and the listing's
// seller, creating it on first contact, and appends the message when one
// is given.
func (h ChatHandler) Contact(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	listingID := strings.TrimSpace(c.Param("id"))
	if listingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing id is required"})
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	viewer := domainuser.ID(principal.ID)

	if strings.TrimSpace(req.Body) == "" {
		conversation, err := h.Service.FindOrCreate(c.Request.Context(), domainlisting.ID(listingID), viewer)
		if err != nil {
			h.respondChatError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.MapConversation(conversation))
		return
	}

	conversation, message, err := h.Service.Contact(c.Request.Context(), domainlisting.ID(listingID), viewer, req.Body)
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"conversation": dto.MapConversation(conversation),
		"message":      dto.MapChatMessage(message),
	})
}

// View returns the ordered transcript and marks the counterpart's
// messages as read, mirroring a user opening the thread on screen.
func (h ChatHandler) View(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	messages, err := h.Service.View(c.Request.Context(), domainchat.ConversationID(conversationID), domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": dto.MapChatMessages(messages)})
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	message, err := h.Service.Append(c.Request.Context(), domainchat.ConversationID(conversationID), domainuser.ID(principal.ID), req.Body)
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.MapChatMessage(message))
}

// MarkRead flips the unread flag on everything addressed to the caller.
// Safe to repeat; a second call reports zero marked.
func (h ChatHandler) MarkRead(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	marked, err := h.Service.MarkSeen(c.Request.Context(), domainchat.ConversationID(conversationID), domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ReadReceipt{ConversationID: conversationID, Marked: marked})
}

// Inbox returns one row per conversation, newest activity first.
func (h ChatHandler) Inbox(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	summaries, err := h.Service.Inbox(c.Request.Context(), domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapInbox(summaries))
}

// UnreadBadge reports the total unread count across all threads.
func (h ChatHandler) UnreadBadge(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	unread, err := h.Service.TotalUnread(c.Request.Context(), domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.UnreadBadge{Unread: unread})
}

func (h ChatHandler) respondChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainchat.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, domainlisting.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
	case errors.Is(err, domainchat.ErrNotAParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
	case errors.Is(err, domainchat.ErrInvalidParticipants):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start chat with yourself"})
	case errors.Is(err, domainchat.ErrEmptyBody):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message body is required"})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat operation failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
