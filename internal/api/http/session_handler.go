// internal/api/http/session_handler.go
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"provider-dispatch/internal/domain"
	"provider-dispatch/internal/metrics"
	"provider-dispatch/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SessionHandler serves the session intake and lookup endpoints.
type SessionHandler struct {
	service  *usecase.SessionService
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewSessionHandler creates a new SessionHandler with its validator.
func NewSessionHandler(service *usecase.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service:  service,
		logger:   logger.With("component", "session-handler"),
		validate: validator.New(),
		tracer:   otel.Tracer("provider-dispatch-api"),
	}
}

// instrumentedResponseWriter captures the status code for metrics.
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes registers session routes to the http.ServeMux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	baseHandler := http.HandlerFunc(h.handleSessions)

	instrumentedHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := "/sessions"
		if id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions"), "/"); id != "" {
			path = "/sessions/{id}"
		}

		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		baseHandler.ServeHTTP(iw, r)

		metrics.HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})

	mux.Handle("/sessions", instrumentedHandler)
	mux.Handle("/sessions/", instrumentedHandler)
}

func (h *SessionHandler) handleSessions(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions"), "/")

	switch r.Method {
	case http.MethodPost:
		if id != "" {
			http.NotFound(w, r)
			return
		}
		h.handleCreateSession(w, r)
	case http.MethodGet:
		if id == "" {
			http.Error(w, "Session id is required", http.StatusBadRequest)
			return
		}
		h.handleGetSession(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCreateSession handles POST /sessions with DTO validation.
func (h *SessionHandler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.CreateSession")
	defer span.End()

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors,
				"Field '"+err.Field()+"' failed on the '"+err.Tag()+"' tag.",
			)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "Validation failed",
			"details": validationErrors,
		})
		return
	}

	session := req.ToDomainSession()
	if err := h.service.Create(ctx, session); err != nil {
		span.SetStatus(codes.Error, "Failed to create session in service")
		span.RecordError(err)
		h.logger.Error("error creating session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	span.SetAttributes(attribute.String("session.id", session.ID))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

func (h *SessionHandler) handleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	session, err := h.service.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to get session from service")
		span.RecordError(err)
		h.logger.Warn("error getting session", "session_id", id, "error", err)
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}
