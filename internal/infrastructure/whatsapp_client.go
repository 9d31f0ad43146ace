package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"project_waflow/internal/entities"
	"project_waflow/internal/interfaces"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const (
	// MaxTextLength is the provider limit for a text message body
	MaxTextLength = 4096
	// MaxInteractiveBodyLength is the provider limit for an interactive message body
	MaxInteractiveBodyLength = 1024

	// DefaultTemplateLanguage is used when a template send names no language
	DefaultTemplateLanguage = "en"

	previewLength = 100
)

var (
	ErrNotConfigured    = errors.New("whatsapp api not configured")
	ErrInvalidRecipient = errors.New("invalid phone number")
)

// ProviderError is a non-2xx answer from the messaging API
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable is true for rate limiting and server-side failures
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type CloudClientOptions struct {
	AccessToken   string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string
	BrandName     string
	Retries       int
	BackoffUnit   time.Duration
	Timeout       time.Duration
}

// WhatsAppCloudClient sends messages through the WhatsApp Cloud API from the
// single configured business number. Every send invocation that reaches the
// recipient check leaves exactly one entry in the audit log.
type WhatsAppCloudClient struct {
	opts       CloudClientOptions
	httpClient *http.Client
	audit      interfaces.AuditLog
	limiter    *RecipientLimiter
	logger     *log.Entry
}

func NewWhatsAppCloudClient(opts CloudClientOptions, audit interfaces.AuditLog, limiter *RecipientLimiter) *WhatsAppCloudClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://graph.facebook.com"
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "v21.0"
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &WhatsAppCloudClient{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		audit:      audit,
		limiter:    limiter,
		logger:     log.WithField("module", "whatsapp"),
	}
}

// Configured reports whether both the access token and sender id are set
func (w *WhatsAppCloudClient) Configured() bool {
	return w.opts.AccessToken != "" && w.opts.PhoneNumberID != ""
}

func (w *WhatsAppCloudClient) SendText(ctx context.Context, req entities.OutboundText) (*entities.DeliveryResult, error) {
	text := TruncateText(req.Text, MaxTextLength)
	build := func(to string) any {
		return map[string]any{
			"messaging_product": "whatsapp",
			"to":                to,
			"type":              "text",
			"text":              map[string]string{"body": text},
		}
	}
	return w.deliver(ctx, req.To, text, req.LeadName, req.CSMName, build)
}

func (w *WhatsAppCloudClient) SendQuestion(ctx context.Context, req entities.OutboundQuestion) (*entities.DeliveryResult, error) {
	text := TruncateText(req.Text, MaxInteractiveBodyLength)
	build := func(to string) any {
		return BuildInteractive(to, text, req.Options, req.ReplyType)
	}
	return w.deliver(ctx, req.To, text, req.LeadName, req.CSMName, build)
}

func (w *WhatsAppCloudClient) SendTemplate(ctx context.Context, req entities.OutboundTemplate) (*entities.DeliveryResult, error) {
	lang := req.Language
	if lang == "" {
		lang = DefaultTemplateLanguage
	}
	build := func(to string) any {
		return BuildTemplate(to, req.Name, lang, req.Params)
	}
	return w.deliver(ctx, req.To, entities.TemplateLabel(req.Name), req.LeadName, req.CSMName, build)
}

func (w *WhatsAppCloudClient) deliver(ctx context.Context, rawTo, text, leadName, csmName string, build func(to string) any) (*entities.DeliveryResult, error) {
	if w.opts.AccessToken == "" {
		return &entities.DeliveryResult{
			To:        rawTo,
			Simulated: true,
			Error:     "WhatsApp API not configured. Add WHATSAPP_ACCESS_TOKEN to .env file.",
		}, nil
	}
	if w.opts.PhoneNumberID == "" {
		return &entities.DeliveryResult{
			To:        rawTo,
			Simulated: true,
			Error:     "No WhatsApp Phone Number ID. Add WHATSAPP_PHONE_NUMBER_ID to .env file.",
		}, nil
	}

	entry := entities.AuditEntry{
		LeadName:    leadName,
		CSMName:     csmName,
		Brand:       w.opts.BrandName,
		TextPreview: TruncateText(text, previewLength),
	}

	to := NormalizeWAPhone(rawTo)
	entry.To = to
	if countDigits(to) < 10 {
		err := fmt.Errorf("%w: %s", ErrInvalidRecipient, rawTo)
		w.record(ctx, entry, "", err)
		return &entities.DeliveryResult{To: to, Error: err.Error()}, err
	}

	body, err := json.Marshal(build(to))
	if err != nil {
		return nil, fmt.Errorf("marshal message payload: %w", err)
	}

	// a started attempt sequence runs to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	result := &entities.DeliveryResult{To: to}
	maxAttempts := w.opts.Retries + 1
	op := func() error {
		result.Attempts++
		if err := w.limiter.Wait(ctx, to); err != nil {
			return backoff.Permanent(err)
		}
		id, err := w.post(ctx, body)
		if err == nil {
			result.MessageID = id
			return nil
		}
		w.logger.WithFields(log.Fields{
			"to":      to,
			"attempt": fmt.Sprintf("%d/%d", result.Attempts, maxAttempts),
		}).WithError(err).Warn("WhatsApp send attempt failed")

		var pe *ProviderError
		if errors.As(err, &pe) && !pe.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithMaxRetries(&linearBackOff{unit: w.opts.BackoffUnit}, uint64(w.opts.Retries))
	if err := backoff.Retry(op, policy); err != nil {
		result.Error = err.Error()
		w.logger.WithFields(log.Fields{
			"to":       to,
			"lead":     leadName,
			"csm":      csmName,
			"brand":    w.opts.BrandName,
			"attempts": result.Attempts,
		}).WithError(err).Error("WhatsApp FAILED")
		w.record(ctx, entry, "", err)
		return result, err
	}

	w.logger.WithFields(log.Fields{
		"to":     to,
		"lead":   leadName,
		"csm":    csmName,
		"brand":  w.opts.BrandName,
		"msg_id": result.MessageID,
	}).Info("WhatsApp SENT")
	w.record(ctx, entry, result.MessageID, nil)
	return result, nil
}

// record appends the audit entry; failures are logged and never reach the caller
func (w *WhatsAppCloudClient) record(ctx context.Context, entry entities.AuditEntry, messageID string, sendErr error) {
	if w.audit == nil {
		return
	}
	entry.Timestamp = time.Now().UTC()
	if sendErr != nil {
		entry.Status = entities.StatusFailed
		entry.Error = sendErr.Error()
	} else {
		entry.Status = entities.StatusSent
		entry.MessageID = messageID
	}
	if err := w.audit.Append(ctx, entry); err != nil {
		w.logger.WithError(err).Error("Failed to write message log")
	}
}

func (w *WhatsAppCloudClient) post(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(w.opts.BaseURL, "/"), w.opts.APIVersion, w.opts.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+w.opts.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		// a 2xx answer means the message was accepted
		w.logger.WithError(err).Warn("Unreadable send response, message id unknown")
		return "", nil
	}
	if len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}

// linearBackOff waits attempt × unit between attempts
type linearBackOff struct {
	unit time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.unit
}

func (b *linearBackOff) Reset() { b.n = 0 }

// TruncateText cuts s to at most max characters, marking the cut with "..."
func TruncateText(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}
