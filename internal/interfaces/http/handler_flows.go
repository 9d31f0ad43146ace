package http

import (
	"net/http"

	"project_waflow/internal/entities"
	"project_waflow/internal/usecases"

	"github.com/gin-gonic/gin"
)

// FlowHandler serves flow authoring and dry runs
type FlowHandler struct {
	flows *usecases.FlowUsecase
}

func NewFlowHandler(flows *usecases.FlowUsecase) *FlowHandler {
	return &FlowHandler{flows: flows}
}

func (h *FlowHandler) RegisterRoutes(api *gin.RouterGroup) {
	flows := api.Group("/flows")
	{
		flows.GET("", h.List)
		flows.POST("", h.Create)
		flows.GET("/:id", h.Get)
		flows.PUT("/:id", h.Update)
		flows.DELETE("/:id", h.Delete)
		flows.POST("/:id/activate", h.Activate)
		flows.POST("/:id/test", h.Test)
	}
}

// flowID reads the :id parameter, answering 404 for ids that cannot exist
func flowID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !ValidID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": entities.ErrFlowNotFound.Error()})
		return "", false
	}
	return id, true
}

func (h *FlowHandler) List(c *gin.Context) {
	flows, err := h.flows.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flows": flows})
}

func (h *FlowHandler) Get(c *gin.Context) {
	id, ok := flowID(c)
	if !ok {
		return
	}
	flow, err := h.flows.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flow": flow})
}

func (h *FlowHandler) Create(c *gin.Context) {
	var in usecases.FlowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.Name = SanitizeString(in.Name)
	flow, err := h.flows.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"flow": flow})
}

// Update merges the posted fields into the stored flow
func (h *FlowHandler) Update(c *gin.Context) {
	id, ok := flowID(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	flow, err := h.flows.Update(c.Request.Context(), id, body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flow": flow})
}

func (h *FlowHandler) Delete(c *gin.Context) {
	id, ok := flowID(c)
	if !ok {
		return
	}
	if err := h.flows.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *FlowHandler) Activate(c *gin.Context) {
	id, ok := flowID(c)
	if !ok {
		return
	}
	if err := h.flows.Activate(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Test dry-runs the flow with a sample message; nothing is sent
func (h *FlowHandler) Test(c *gin.Context) {
	id, ok := flowID(c)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}
	msg := TruncateString(SanitizeString(req.Message), MaxTestInput)
	events, err := h.flows.Test(c.Request.Context(), id, msg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": events})
}
