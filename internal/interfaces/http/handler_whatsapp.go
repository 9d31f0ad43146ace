package http

import (
	"net/http"

	"project_waflow/internal/config"
	"project_waflow/internal/infrastructure"
	"project_waflow/internal/usecases"

	"github.com/gin-gonic/gin"
)

// WhatsAppHandler exposes the delivery configuration and audit log
type WhatsAppHandler struct {
	cfg       config.WhatsAppConfig
	dashboard *usecases.DashboardUsecase
	limiter   *infrastructure.RecipientLimiter
}

func NewWhatsAppHandler(cfg config.WhatsAppConfig, dashboard *usecases.DashboardUsecase, limiter *infrastructure.RecipientLimiter) *WhatsAppHandler {
	return &WhatsAppHandler{
		cfg:       cfg,
		dashboard: dashboard,
		limiter:   limiter,
	}
}

func (h *WhatsAppHandler) RegisterRoutes(api *gin.RouterGroup) {
	wa := api.Group("/whatsapp")
	{
		wa.GET("/config", h.GetConfig)
		wa.GET("/message-log", h.GetMessageLog)
	}
}

// lastFour masks an identifier down to its last four characters
func lastFour(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

// GetConfig reports which credentials are present without exposing them
func (h *WhatsAppHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"configured":        h.cfg.Configured(),
		"hasAccessToken":    h.cfg.AccessToken != "",
		"hasPhoneNumberId":  h.cfg.PhoneNumberID != "",
		"phoneNumberId":     lastFour(h.cfg.PhoneNumberID),
		"apiVersion":        h.cfg.APIVersion,
		"brandName":         h.cfg.BrandName,
		"businessAccountId": lastFour(h.cfg.BusinessAccountID),
		"rateLimit":         h.limiter.GetStats(),
	})
}

// GetMessageLog returns the most recent delivery attempts
func (h *WhatsAppHandler) GetMessageLog(c *gin.Context) {
	logs, err := h.dashboard.MessageLog(c.Request.Context(), MaxLogTail)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
