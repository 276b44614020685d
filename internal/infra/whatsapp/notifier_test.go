package whatsapp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"provider-dispatch/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestNotifier(apiBase, templateSID string) *Notifier {
	return NewNotifier(Config{
		AccountSID:  "AC123",
		AuthToken:   "secret",
		From:        "+56900000000",
		TemplateSID: templateSID,
		APIBase:     apiBase,
		Timeout:     2 * time.Second,
	}, testLogger())
}

func TestSend_PlainBody(t *testing.T) {
	var gotPath, gotFrom, gotTo, gotBody, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotFrom = r.FormValue("From")
		gotTo = r.FormValue("To")
		gotBody = r.FormValue("Body")
		gotUser, _, _ = r.BasicAuth()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL, "")
	err := n.Send(context.Background(), "+56911112222", domain.Message{Body: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	assert.Equal(t, "whatsapp:+56900000000", gotFrom)
	assert.Equal(t, "whatsapp:+56911112222", gotTo)
	assert.Equal(t, "hello", gotBody)
	assert.Equal(t, "AC123", gotUser)
}

func TestSend_TemplateUsesContentVariables(t *testing.T) {
	var gotContentSid, gotVars, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotContentSid = r.FormValue("ContentSid")
		gotVars = r.FormValue("ContentVariables")
		gotBody = r.FormValue("Body")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL, "HX999")
	err := n.Send(context.Background(), "+56911112222", domain.Message{
		Template: "provider_offer",
		Params:   map[string]string{"session_id": "s1"},
		Body:     "fallback text",
	})
	require.NoError(t, err)

	assert.Equal(t, "HX999", gotContentSid)
	assert.Contains(t, gotVars, `"session_id":"s1"`)
	assert.Empty(t, gotBody, "templated sends do not carry a plain body")
}

func TestSend_TemplateWithoutSIDFallsBackToBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotBody = r.FormValue("Body")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL, "")
	err := n.Send(context.Background(), "+56911112222", domain.Message{
		Template: "provider_offer",
		Body:     "fallback text",
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback text", gotBody)
}

func TestSend_VendorErrorsAreReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL, "")
	err := n.Send(context.Background(), "bogus", domain.Message{Body: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid number")

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv2.Close()

	n = newTestNotifier(srv2.URL, "")
	err = n.Send(context.Background(), "+56911112222", domain.Message{Body: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error")
}

func TestWhatsappAddr(t *testing.T) {
	assert.Equal(t, "whatsapp:+1", whatsappAddr("+1"))
	assert.Equal(t, "whatsapp:+1", whatsappAddr("whatsapp:+1"))
}
