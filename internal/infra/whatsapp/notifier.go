// internal/infra/whatsapp/notifier.go
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"provider-dispatch/internal/domain"
)

// Config holds the messaging vendor credentials and sender identity.
type Config struct {
	AccountSID  string
	AuthToken   string
	From        string
	TemplateSID string
	APIBase     string
	Timeout     time.Duration
}

// Notifier delivers messages over the vendor's WhatsApp REST API. Templated
// messages are sent through the vendor's content API when a template SID is
// configured; otherwise the plain body is used.
type Notifier struct {
	client      *http.Client
	accountSID  string
	authToken   string
	from        string
	templateSID string
	apiBase     string
	logger      *slog.Logger
}

// NewNotifier creates a WhatsApp notifier.
func NewNotifier(cfg Config, logger *slog.Logger) *Notifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.twilio.com"
	}
	return &Notifier{
		client:      &http.Client{Timeout: timeout},
		accountSID:  cfg.AccountSID,
		authToken:   cfg.AuthToken,
		from:        cfg.From,
		templateSID: cfg.TemplateSID,
		apiBase:     apiBase,
		logger:      logger.With("component", "whatsapp-notifier"),
	}
}

// Send delivers one message to a provider's WhatsApp address.
func (n *Notifier) Send(ctx context.Context, address string, msg domain.Message) error {
	form := url.Values{}
	form.Set("From", whatsappAddr(n.from))
	form.Set("To", whatsappAddr(address))

	if msg.Template != "" && n.templateSID != "" {
		vars, err := json.Marshal(msg.Params)
		if err != nil {
			return fmt.Errorf("failed to encode template variables: %w", err)
		}
		form.Set("ContentSid", n.templateSID)
		form.Set("ContentVariables", string(vars))
	} else {
		form.Set("Body", msg.Body)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", n.apiBase, n.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create vendor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(n.accountSID, n.authToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("vendor request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read a small portion of the body for error reporting.
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("vendor returned server error %s: %s", resp.Status, string(bodyBytes))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("vendor rejected message %s: %s", resp.Status, string(bodyBytes))
	}

	n.logger.Debug("message delivered", "to", address, "template", msg.Template)
	return nil
}

// whatsappAddr prefixes an address with the vendor's channel scheme unless
// it already carries one.
func whatsappAddr(addr string) string {
	if strings.HasPrefix(addr, "whatsapp:") {
		return addr
	}
	return "whatsapp:" + addr
}
