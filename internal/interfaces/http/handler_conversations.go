package http

import (
	"errors"
	"net/http"

	"project_waflow/internal/entities"
	"project_waflow/internal/infrastructure"
	"project_waflow/internal/usecases"

	"github.com/gin-gonic/gin"
)

// SendMessage delivers an operator message to one contact
func (h *Handler) SendMessage(c *gin.Context) {
	var req struct {
		Phone    string `json:"phone" binding:"required"`
		Text     string `json:"text" binding:"required"`
		LeadID   string `json:"leadId"`
		LeadName string `json:"leadName"`
		CSMName  string `json:"csmName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone and text required"})
		return
	}
	if !ValidPhone(req.Phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	res, err := h.messageService.SendText(c.Request.Context(), usecases.SendRequest{
		Phone:    req.Phone,
		Text:     SanitizeString(req.Text),
		LeadID:   req.LeadID,
		LeadName: TruncateString(SanitizeString(req.LeadName), MaxIDLength),
		CSMName:  TruncateString(SanitizeString(req.CSMName), MaxIDLength),
	})
	respondSend(c, res, err)
}

// SendTemplate delivers a pre-approved template to one contact
func (h *Handler) SendTemplate(c *gin.Context) {
	var req struct {
		Phone          string   `json:"phone" binding:"required"`
		TemplateName   string   `json:"templateName" binding:"required"`
		TemplateParams []string `json:"templateParams"`
		Language       string   `json:"language"`
		LeadID         string   `json:"leadId"`
		LeadName       string   `json:"leadName"`
		CSMName        string   `json:"csmName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone and templateName required"})
		return
	}
	if !ValidPhone(req.Phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}
	if !ValidateLength(req.TemplateName, 1, MaxTemplateNameLength) || len(req.TemplateParams) > MaxTemplateParams {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template"})
		return
	}
	params := make([]string, 0, len(req.TemplateParams))
	for _, p := range req.TemplateParams {
		params = append(params, SanitizeString(p))
	}

	res, err := h.messageService.SendTemplate(c.Request.Context(), usecases.TemplateRequest{
		Phone:        req.Phone,
		TemplateName: SanitizeString(req.TemplateName),
		Params:       params,
		Language:     TruncateString(SanitizeString(req.Language), 16),
		LeadID:       req.LeadID,
		LeadName:     TruncateString(SanitizeString(req.LeadName), MaxIDLength),
		CSMName:      TruncateString(SanitizeString(req.CSMName), MaxIDLength),
	})
	respondSend(c, res, err)
}

func respondSend(c *gin.Context, res *usecases.SendResult, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, infrastructure.ErrInvalidRecipient), res == nil:
		respondError(c, err)
	default:
		// the provider rejected or never acknowledged the message
		c.JSON(http.StatusBadGateway, res)
	}
}

func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.ledger.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *Handler) GetConversationByPhone(c *gin.Context) {
	phone := c.Param("phone")
	if !ValidPhone(phone) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	conv, err := h.ledger.Get(c.Request.Context(), phone)
	if errors.Is(err, entities.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

func (h *Handler) GetConversationByLead(c *gin.Context) {
	leadID := c.Param("leadId")
	if !ValidID(leadID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No conversation for this lead"})
		return
	}
	conv, err := h.ledger.FindByLead(c.Request.Context(), leadID)
	if errors.Is(err, entities.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No conversation for this lead"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}
