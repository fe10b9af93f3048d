// Package handler exposes the messaging-platform webhook.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"walletpass/internal/pass/models"
	"walletpass/internal/pass/service"
	"walletpass/internal/platform/logger"
	dErrors "walletpass/pkg/domain-errors"
	"walletpass/pkg/platform/httputil"
	"walletpass/pkg/requestcontext"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	// maxBodyBytes matches the platform's largest notification with headroom.
	maxBodyBytes = 15 << 20
)

// Service runs the pipeline for one inbound image.
type Service interface {
	Process(ctx context.Context, ref models.ImageRef) (*service.Result, error)
	AskForImage(ctx context.Context, to string) error
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	svc         Service
	verifyToken string
	appSecret   []byte
	checks      map[string]HealthCheck
	logger      *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithAppSecret turns on X-Hub-Signature-256 verification.
func WithAppSecret(secret string) Option {
	return func(h *Handler) {
		if secret != "" {
			h.appSecret = []byte(secret)
		}
	}
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func New(svc Service, verifyToken string, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}
	if verifyToken == "" {
		return nil, errors.New("verify token is required")
	}
	h := &Handler{
		svc:         svc,
		verifyToken: verifyToken,
		checks:      make(map[string]HealthCheck),
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register registers the webhook routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/webhook", h.handleVerify)
	r.Post("/webhook", h.handleInbound)
	r.Get("/health", h.handleHealth)
}

// handleVerify answers the subscription handshake.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || !hmac.Equal([]byte(q.Get("hub.verify_token")), []byte(h.verifyToken)) {
		h.logger.WarnContext(r.Context(), "webhook verification failed",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		http.Error(w, "Verification failed", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

func (h *Handler) handleInbound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "read body"))
		return
	}
	if !h.signatureValid(r.Header.Get(signatureHeader), body) {
		h.logger.WarnContext(ctx, "webhook signature mismatch", "request_id", requestID)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid signature"))
		return
	}

	var payload webhookPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON payload"))
			return
		}
	}

	msg, ok := payload.firstMessage()
	if !ok {
		h.logger.DebugContext(ctx, "no message in payload", "request_id", requestID)
		httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "No message"})
		return
	}

	if !msg.isImage() {
		h.logger.InfoContext(ctx, "non-image message",
			"request_id", requestID,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		if err := h.svc.AskForImage(ctx, msg.From); err != nil {
			h.logger.ErrorContext(ctx, "failed to ask for image", "request_id", requestID, "error", err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Non-image"})
		return
	}

	res, err := h.svc.Process(ctx, msg.imageRef())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeBadRequest) {
			httputil.WriteError(w, err)
			return
		}
		// a non-2xx answer makes the platform redeliver
		httputil.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: string(dErrors.CodeOf(err))})
		return
	}

	switch res.State {
	case service.StateSkipped:
		httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Duplicate"})
	case service.StateNoFace:
		httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "No face"})
	default:
		httputil.WriteJSON(w, http.StatusOK, passResponse{PassURL: res.PassURL})
	}
}

func (h *Handler) signatureValid(header string, body []byte) bool {
	if h.appSecret == nil {
		return true
	}
	got, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	sig, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.appSecret)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "check", name, "error", err)
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = "unavailable"
			continue
		}
		body[name] = "ok"
	}
	httputil.WriteJSON(w, status, body)
}
