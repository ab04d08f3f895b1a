package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	memberdomain "github.com/dinehall/dinehall/internal/member/domain"
	notificationdomain "github.com/dinehall/dinehall/internal/notification/domain"
	"github.com/dinehall/dinehall/internal/restaurantcontext"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type sendNotificationBody struct {
	Title    string                        `json:"title"`
	Message  string                        `json:"message"`
	Type     string                        `json:"type"`
	Priority notificationdomain.Priority   `json:"priority"`
	Target   notificationdomain.TargetType `json:"target"`
	Roles    []memberdomain.Role           `json:"roles"`
	UserIDs  []snowflake.ID                `json:"user_ids"`
	Metadata datatypes.JSON                `json:"metadata"`
}

func (b sendNotificationBody) target() notificationdomain.Target {
	switch b.Target {
	case notificationdomain.TargetTypeRole:
		return notificationdomain.TargetRoles(b.Roles...)
	case notificationdomain.TargetTypeUser:
		return notificationdomain.TargetUsers(b.UserIDs...)
	default:
		return notificationdomain.Target{Type: b.Target}
	}
}

func (s *Server) SendNotification(c *gin.Context) {
	restaurantID, ok := restaurantcontext.RestaurantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	senderID, ok := restaurantcontext.UserIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var body sendNotificationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.notificationSvc.Send(c.Request.Context(), notificationdomain.SendRequest{
		RestaurantID: restaurantID,
		SenderID:     senderID,
		Title:        body.Title,
		Message:      body.Message,
		Type:         body.Type,
		Priority:     body.Priority,
		Target:       body.target(),
		Metadata:     body.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) ListNotifications(c *gin.Context) {
	restaurantID, userID, ok := inboxScope(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := s.notificationSvc.List(c.Request.Context(), restaurantID, userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": entries})
}

func (s *Server) UnreadCount(c *gin.Context) {
	restaurantID, userID, ok := inboxScope(c)
	if !ok {
		return
	}
	count, err := s.notificationSvc.UnreadCount(c.Request.Context(), restaurantID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	restaurantID, userID, ok := inboxScope(c)
	if !ok {
		return
	}
	notificationID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.notificationSvc.MarkRead(c.Request.Context(), restaurantID, userID, notificationID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	restaurantID, userID, ok := inboxScope(c)
	if !ok {
		return
	}
	updated, err := s.notificationSvc.MarkAllRead(c.Request.Context(), restaurantID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (s *Server) DeleteNotification(c *gin.Context) {
	restaurantID, userID, ok := inboxScope(c)
	if !ok {
		return
	}
	notificationID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.notificationSvc.Delete(c.Request.Context(), restaurantID, userID, notificationID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ClearAllNotifications(c *gin.Context) {
	restaurantID, userID, ok := inboxScope(c)
	if !ok {
		return
	}
	removed, err := s.notificationSvc.ClearAll(c.Request.Context(), restaurantID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// inboxScope pulls the (restaurant, user) pair every read-state
// operation is scoped to. Aborts the request when either is missing.
func inboxScope(c *gin.Context) (snowflake.ID, snowflake.ID, bool) {
	restaurantID, ok := restaurantcontext.RestaurantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return 0, 0, false
	}
	userID, ok := restaurantcontext.UserIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return 0, 0, false
	}
	return restaurantID, userID, true
}
