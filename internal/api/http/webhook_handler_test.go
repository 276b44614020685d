package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"provider-dispatch/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubCorrelator records the event it was handed and returns a canned outcome.
type stubCorrelator struct {
	lastEvent domain.InboundResponse
	outcome   domain.ResponseOutcome
	err       error
}

func (s *stubCorrelator) HandleResponse(ctx context.Context, ev domain.InboundResponse) (domain.ResponseOutcome, error) {
	s.lastEvent = ev
	return s.outcome, s.err
}

func postWebhook(t *testing.T, handler *WebhookHandler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_FreeTextAccept(t *testing.T) {
	stub := &stubCorrelator{outcome: domain.OutcomeAccepted}
	h := NewWebhookHandler(stub, testLogger())

	rec := postWebhook(t, h, url.Values{
		"From": {"whatsapp:+56911112222"},
		"Body": {" Sí "},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "+56911112222", stub.lastEvent.Responder)
	assert.Equal(t, domain.DecisionAccept, stub.lastEvent.Decision)
	assert.Empty(t, stub.lastEvent.SessionID, "free text carries no session id")
	assert.Contains(t, rec.Body.String(), "Thanks for accepting")
}

func TestWebhook_FreeTextDecline(t *testing.T) {
	stub := &stubCorrelator{outcome: domain.OutcomeDeclineRecorded}
	h := NewWebhookHandler(stub, testLogger())

	rec := postWebhook(t, h, url.Values{
		"From": {"whatsapp:+56911112222"},
		"Body": {"NO"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.DecisionDecline, stub.lastEvent.Decision)
}

func TestWebhook_ButtonPayloadCarriesSessionID(t *testing.T) {
	stub := &stubCorrelator{outcome: domain.OutcomeAccepted}
	h := NewWebhookHandler(stub, testLogger())

	rec := postWebhook(t, h, url.Values{
		"From":          {"whatsapp:+56911112222"},
		"Body":          {"Accept request"},
		"ButtonPayload": {"accept:2f9e8d6a-1111-2222-3333-444455556666"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.DecisionAccept, stub.lastEvent.Decision)
	assert.Equal(t, "2f9e8d6a-1111-2222-3333-444455556666", stub.lastEvent.SessionID)
}

func TestWebhook_UnrecognizedTextIsRejectedPolitely(t *testing.T) {
	stub := &stubCorrelator{outcome: domain.OutcomeInvalidDecision}
	h := NewWebhookHandler(stub, testLogger())

	rec := postWebhook(t, h, url.Values{
		"From": {"whatsapp:+56911112222"},
		"Body": {"maybe later"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, stub.lastEvent.Decision.Valid())
	assert.Contains(t, rec.Body.String(), "Please reply YES or NO")
}

func TestWebhook_AlreadyTakenReply(t *testing.T) {
	stub := &stubCorrelator{outcome: domain.OutcomeAlreadyTaken}
	h := NewWebhookHandler(stub, testLogger())

	rec := postWebhook(t, h, url.Values{
		"From": {"whatsapp:+56911112222"},
		"Body": {"si"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already been assigned")
}

func TestWebhook_NoPendingReply(t *testing.T) {
	stub := &stubCorrelator{outcome: domain.OutcomeNoPending}
	h := NewWebhookHandler(stub, testLogger())

	rec := postWebhook(t, h, url.Values{
		"From": {"whatsapp:+56911112222"},
		"Body": {"si"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no pending request")
}

func TestWebhook_MissingSender(t *testing.T) {
	stub := &stubCorrelator{outcome: domain.OutcomeAccepted}
	h := NewWebhookHandler(stub, testLogger())

	rec := postWebhook(t, h, url.Values{"Body": {"si"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_CorrelatorErrorIsOpaque(t *testing.T) {
	stub := &stubCorrelator{err: fmt.Errorf("store unavailable")}
	h := NewWebhookHandler(stub, testLogger())

	rec := postWebhook(t, h, url.Values{
		"From": {"whatsapp:+56911112222"},
		"Body": {"si"},
	})

	// Internal failures are never relayed to providers.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "store unavailable")
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	stub := &stubCorrelator{}
	h := NewWebhookHandler(stub, testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
