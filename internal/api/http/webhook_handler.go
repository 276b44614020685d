// internal/api/http/webhook_handler.go
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"provider-dispatch/internal/domain"
	"provider-dispatch/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// responseHandler is the correlator surface the webhook needs.
type responseHandler interface {
	HandleResponse(ctx context.Context, ev domain.InboundResponse) (domain.ResponseOutcome, error)
}

// WebhookHandler parses inbound vendor webhooks into response events and
// hands them to the correlator. The vendor posts form-encoded fields; button
// replies additionally carry a structured payload that round-trips the
// session id.
type WebhookHandler struct {
	correlator responseHandler
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(correlator responseHandler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		correlator: correlator,
		logger:     logger.With("component", "webhook-handler"),
		tracer:     otel.Tracer("provider-dispatch-api"),
	}
}

// RegisterRoutes registers the webhook route to the http.ServeMux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/webhooks/whatsapp", func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "HTTP POST /webhooks/whatsapp", trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		h.handleInbound(iw, r.WithContext(ctx))

		metrics.HttpRequestsTotal.WithLabelValues("/webhooks/whatsapp", r.Method, strconv.Itoa(iw.statusCode)).Inc()
		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})
}

func (h *WebhookHandler) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Malformed form body", http.StatusBadRequest)
		return
	}

	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	if from == "" {
		http.Error(w, "Missing sender", http.StatusBadRequest)
		return
	}

	ev := parseResponse(from, r.FormValue("Body"), r.FormValue("ButtonPayload"))
	h.logger.Info("inbound response received",
		"responder", ev.Responder,
		"decision", string(ev.Decision),
		"session_id", ev.SessionID)

	outcome, err := h.correlator.HandleResponse(r.Context(), ev)
	if err != nil {
		h.logger.Error("failed to handle inbound response", "responder", ev.Responder, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// The vendor relays the response body back to the provider, so every
	// defined outcome answers 200 with a human-readable reply.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(replyFor(outcome)))
}

// parseResponse maps the raw form fields to a response event. A button
// payload of the form "accept:<session-id>" or "decline:<session-id>" wins
// over free text; free-text replies are normalized yes/no words without a
// session id, correlated by the fallback lookup.
func parseResponse(from, body, buttonPayload string) domain.InboundResponse {
	if action, sessionID, ok := strings.Cut(buttonPayload, ":"); ok {
		switch strings.ToLower(strings.TrimSpace(action)) {
		case "accept":
			return domain.InboundResponse{Responder: from, Decision: domain.DecisionAccept, SessionID: sessionID}
		case "decline":
			return domain.InboundResponse{Responder: from, Decision: domain.DecisionDecline, SessionID: sessionID}
		}
	}

	switch strings.ToLower(strings.TrimSpace(body)) {
	case "si", "sí", "yes", "y":
		return domain.InboundResponse{Responder: from, Decision: domain.DecisionAccept}
	case "no", "n":
		return domain.InboundResponse{Responder: from, Decision: domain.DecisionDecline}
	}
	return domain.InboundResponse{Responder: from, Decision: domain.Decision(strings.TrimSpace(body))}
}

// replyFor maps a correlator outcome to the text relayed to the provider.
// Internal failures never reach here; providers only ever see these replies.
func replyFor(outcome domain.ResponseOutcome) string {
	switch outcome {
	case domain.OutcomeAccepted:
		return "Thanks for accepting. The client's contact details are on their way."
	case domain.OutcomeAlreadyTaken:
		return "This request has already been assigned to another provider."
	case domain.OutcomeDeclineRecorded, domain.OutcomeAllDeclined:
		return "Understood, thanks for letting us know."
	case domain.OutcomeNoPending:
		return "There is no pending request for this number."
	case domain.OutcomeInvalidDecision:
		return "Please reply YES or NO."
	default:
		return "Response received."
	}
}
