package entities

// OutboundText is a plain text message to one recipient
type OutboundText struct {
	To       string
	Text     string
	LeadName string
	CSMName  string
}

// OutboundQuestion is a question rendered as interactive buttons or a list
type OutboundQuestion struct {
	To        string
	Text      string
	Options   []QuestionOption
	ReplyType string
	LeadName  string
	CSMName   string
}

// OutboundTemplate is a pre-approved provider template with positional body parameters
type OutboundTemplate struct {
	To       string
	Name     string
	Language string
	Params   []string
	LeadName string
	CSMName  string
}

// TemplateLabel is how a template send appears in conversation history
func TemplateLabel(name string) string {
	return "[Template: " + name + "]"
}

// DeliveryResult describes the outcome of one send invocation.
// Simulated is set when credentials are missing and nothing was sent.
type DeliveryResult struct {
	To        string `json:"to"`
	MessageID string `json:"messageId,omitempty"`
	Attempts  int    `json:"attempts"`
	Simulated bool   `json:"simulated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Sent reports whether the provider accepted the message
func (r *DeliveryResult) Sent() bool {
	return r != nil && !r.Simulated && r.Error == ""
}
