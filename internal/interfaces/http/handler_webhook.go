package http

import (
	"net/http"

	"project_waflow/internal/entities"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const wabaObject = "whatsapp_business_account"

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value webhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []webhookMessage `json:"messages"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		RecipientID string `json:"recipient_id"`
	} `json:"statuses"`
}

type webhookMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`
	Interactive *struct {
		Type        string       `json:"type"`
		ButtonReply *replyOption `json:"button_reply"`
		ListReply   *replyOption `json:"list_reply"`
	} `json:"interactive"`
}

type replyOption struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// contactName finds the profile name the provider sent alongside a message
func (v webhookValue) contactName(from string) string {
	for _, c := range v.Contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	if len(v.Contacts) > 0 {
		return v.Contacts[0].Profile.Name
	}
	return ""
}

// extractText returns the display text of a message and, for replies to
// interactive prompts, the id of the chosen option
func extractText(m webhookMessage) (text, replyID string) {
	switch m.Type {
	case "text":
		if m.Text != nil {
			text = m.Text.Body
		}
	case "button":
		if m.Button != nil {
			text, replyID = m.Button.Text, m.Button.Payload
		}
	case "interactive":
		if m.Interactive != nil {
			switch {
			case m.Interactive.ButtonReply != nil:
				text, replyID = m.Interactive.ButtonReply.Title, m.Interactive.ButtonReply.ID
			case m.Interactive.ListReply != nil:
				text, replyID = m.Interactive.ListReply.Title, m.Interactive.ListReply.ID
			}
		}
	}
	if text == "" {
		msgType := m.Type
		if msgType == "" {
			msgType = "unknown"
		}
		text = "[" + msgType + "]"
	}
	return text, replyID
}

// VerifyWebhook answers the provider's subscription handshake
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		h.logger.Info("Webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "Forbidden")
}

// ReceiveWebhook records incoming messages and delivery statuses. Once the
// payload parses the provider always gets a 200 so it does not redeliver.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}
	if payload.Object != wabaObject {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	ctx := c.Request.Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			for _, m := range value.Messages {
				text, replyID := extractText(m)
				msgType := m.Type
				if msgType == "" {
					msgType = "text"
				}
				in := entities.InboundMessage{
					From:        m.From,
					ContactName: value.contactName(m.From),
					Type:        msgType,
					Text:        SanitizeString(text),
					ReplyID:     replyID,
					WAMessageID: m.ID,
				}
				if err := h.messageService.ReceiveInbound(ctx, in); err != nil {
					h.logger.WithError(err).WithField("from", m.From).Error("Failed to record incoming message")
				}
			}
			for _, st := range value.Statuses {
				_, err := h.messageService.HandleStatus(ctx, entities.StatusUpdate{
					RecipientID: st.RecipientID,
					WAMessageID: st.ID,
					Status:      st.Status,
				})
				if err != nil {
					h.logger.WithError(err).WithFields(log.Fields{"id": st.ID, "status": st.Status}).Error("Failed to apply status")
				}
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
