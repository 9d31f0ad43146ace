package entities

import "time"

// MaxAuditEntries bounds the send log; the oldest entries are evicted first
const MaxAuditEntries = 1000

// AuditEntry records one delivery invocation in the send log
type AuditEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	To          string    `json:"to"`
	LeadName    string    `json:"leadName,omitempty"`
	CSMName     string    `json:"csmName,omitempty"`
	Brand       string    `json:"brand"`
	Status      string    `json:"status"`
	MessageID   string    `json:"messageId,omitempty"`
	Error       string    `json:"error,omitempty"`
	TextPreview string    `json:"textPreview"`
}
