package http

import (
	"errors"
	"net/http"

	"project_waflow/internal/config"
	"project_waflow/internal/entities"
	"project_waflow/internal/infrastructure"
	"project_waflow/internal/interfaces"
	"project_waflow/internal/usecases"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	messageService   *usecases.MessageService
	dashboardUsecase *usecases.DashboardUsecase
	ledger           interfaces.ConversationLedger
	verifyToken      string
	logger           *log.Entry
}

func NewHandler(service *usecases.MessageService, dashboard *usecases.DashboardUsecase, ledger interfaces.ConversationLedger, verifyToken string) *Handler {
	return &Handler{
		messageService:   service,
		dashboardUsecase: dashboard,
		ledger:           ledger,
		verifyToken:      verifyToken,
		logger:           log.WithField("module", "http"),
	}
}

func SetupRoutes(r *gin.Engine, service *usecases.MessageService, flows *usecases.FlowUsecase, auth *usecases.AuthUsecase, dashboard *usecases.DashboardUsecase, ledger interfaces.ConversationLedger, waConfig config.WhatsAppConfig, limiter *infrastructure.RecipientLimiter, middleware *Middleware) {
	h := NewHandler(service, dashboard, ledger, waConfig.VerifyToken)
	flowHandler := NewFlowHandler(flows)
	waHandler := NewWhatsAppHandler(waConfig, dashboard, limiter)

	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(10 << 20)) // 10MB max request size
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider callbacks are authenticated by the verify token, not JWT
	r.GET("/api/webhook", h.VerifyWebhook)
	r.POST("/api/webhook", h.ReceiveWebhook)

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", func(c *gin.Context) {
			var loginReq struct {
				Username string `json:"username" binding:"required"`
				Password string `json:"password" binding:"required"`
			}
			if err := c.ShouldBindJSON(&loginReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := auth.Login(loginReq.Username, loginReq.Password)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token, "expiresIn": int(usecases.TokenTTL.Seconds())})
		})
	}

	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerClient(10, 30))
	{
		api.GET("/dashboard/stats", h.GetStats)

		api.POST("/messages/send", h.SendMessage)
		api.POST("/messages/send-template", h.SendTemplate)

		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/phone/:phone", h.GetConversationByPhone)
		api.GET("/conversations/lead/:leadId", h.GetConversationByLead)

		flowHandler.RegisterRoutes(api)
		waHandler.RegisterRoutes(api)
	}
}

// respondError maps domain errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entities.ErrFlowNotFound), errors.Is(err, entities.ErrConversationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entities.ErrInvalidFlow), errors.Is(err, usecases.ErrMissingField), errors.Is(err, infrastructure.ErrInvalidRecipient):
		status = http.StatusBadRequest
	case errors.Is(err, usecases.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		log.WithField("module", "http").WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
