package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/beacon/internal/notifications"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	errMissingNotificationsService = errors.New("notifications service dependency required")
	errMissingUserDirectory        = errors.New("user directory dependency required")
	errMissingTransport            = errors.New("transport dependency required")
)

// UserDirectory manages the recipient identities notifications may target.
type UserDirectory interface {
	CreateUser(displayName string) (notifications.User, error)
	ListUsers() ([]notifications.User, error)
}

// Dependencies lists the collaborators the HTTP surface is built from.
type Dependencies struct {
	Notifications *notifications.Service
	Users         UserDirectory
	Transport     *Transport
	Logger        *zap.Logger
}

// NewHTTPHandler assembles the gin router for the delivery service.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Notifications == nil {
		return nil, errMissingNotificationsService
	}
	if deps.Users == nil {
		return nil, errMissingUserDirectory
	}
	if deps.Transport == nil {
		return nil, errMissingTransport
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		notifications: deps.Notifications,
		users:         deps.Users,
		transport:     deps.Transport,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/users", handler.handleCreateUser)
	router.GET("/users", handler.handleListUsers)
	router.POST("/notifications", handler.handleSubmitNotification)
	router.GET("/ws", deps.Transport.HandleConnection)

	return router, nil
}

type httpHandler struct {
	notifications *notifications.Service
	users         UserDirectory
	transport     *Transport
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createUserPayload struct {
	DisplayName string `json:"display_name"`
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	var request createUserPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.DisplayName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.CreateUser(strings.TrimSpace(request.DisplayName))
	if err != nil {
		h.logger.Error("failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user_create_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "display_name": user.DisplayName})
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	users, err := h.users.ListUsers()
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user_list_failed"})
		return
	}

	response := make([]gin.H, 0, len(users))
	for _, user := range users {
		response = append(response, gin.H{"id": user.ID, "display_name": user.DisplayName})
	}
	c.JSON(http.StatusOK, gin.H{"users": response})
}

type submitNotificationPayload struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

func (h *httpHandler) handleSubmitNotification(c *gin.Context) {
	var request submitNotificationPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.UserID <= 0 || strings.TrimSpace(request.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	notification, err := h.notifications.Submit(request.UserID, request.Message)
	if err != nil {
		if errors.Is(err, notifications.ErrUnknownUser) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown_user"})
			return
		}
		h.logger.Error("failed to submit notification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notification_submit_failed"})
		return
	}

	c.JSON(http.StatusCreated, notification)
}
