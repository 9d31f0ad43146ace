package infrastructure

import (
	"fmt"

	"project_waflow/internal/entities"
)

// Provider limits for interactive messages
const (
	MaxReplyButtons   = 3
	maxButtonTitle    = 20
	maxRowTitle       = 24
	maxRowDescription = 72
	maxListRows       = 10
	listButtonLabel   = "Select"
	listSectionTitle  = "Options"
	ReplyTypeList     = "list"
)

// BuildInteractive renders a question as reply buttons, or as a list when
// the author asked for one or there are too many options for buttons.
func BuildInteractive(to, body string, options []entities.QuestionOption, replyType string) map[string]any {
	var interactive map[string]any
	if replyType == ReplyTypeList || len(options) > MaxReplyButtons {
		interactive = listPayload(body, options)
	} else {
		interactive = buttonPayload(body, options)
	}
	return map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}
}

func buttonPayload(body string, options []entities.QuestionOption) map[string]any {
	buttons := make([]map[string]any, 0, len(options))
	for i, opt := range options {
		buttons = append(buttons, map[string]any{
			"type": "reply",
			"reply": map[string]string{
				"id":    optionID(opt, "btn", i),
				"title": clip(opt.Text, maxButtonTitle),
			},
		})
	}
	return map[string]any{
		"type":   "button",
		"body":   map[string]string{"text": body},
		"action": map[string]any{"buttons": buttons},
	}
}

func listPayload(body string, options []entities.QuestionOption) map[string]any {
	if len(options) > maxListRows {
		options = options[:maxListRows]
	}
	rows := make([]map[string]string, 0, len(options))
	for i, opt := range options {
		row := map[string]string{
			"id":    optionID(opt, "row", i),
			"title": clip(opt.Text, maxRowTitle),
		}
		// clipped titles repeat the option text in the description
		if len([]rune(opt.Text)) > maxRowTitle {
			row["description"] = clip(opt.Text, maxRowDescription)
		}
		rows = append(rows, row)
	}
	return map[string]any{
		"type": "list",
		"body": map[string]string{"text": body},
		"action": map[string]any{
			"button": listButtonLabel,
			"sections": []map[string]any{
				{"title": listSectionTitle, "rows": rows},
			},
		},
	}
}

// BuildTemplate renders a template message; params fill the body placeholders in order
func BuildTemplate(to, name, language string, params []string) map[string]any {
	components := []map[string]any{}
	if len(params) > 0 {
		parameters := make([]map[string]string, 0, len(params))
		for _, p := range params {
			parameters = append(parameters, map[string]string{"type": "text", "text": p})
		}
		components = append(components, map[string]any{"type": "body", "parameters": parameters})
	}
	return map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":       name,
			"language":   map[string]string{"code": language},
			"components": components,
		},
	}
}

// optionID falls back to the option answer so a reply id always matches its option
func optionID(opt entities.QuestionOption, prefix string, i int) string {
	id := opt.ID
	if id == "" {
		id = opt.Answer()
	}
	if id == "" {
		return fmt.Sprintf("%s_%d", prefix, i)
	}
	return clip(id, 256)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
