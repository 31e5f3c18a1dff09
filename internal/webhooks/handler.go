// internal/webhooks/handler.go
package webhooks

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"portalbridge/internal/activity"
	"portalbridge/internal/tenants"
	"portalbridge/pkg/httperr"
)

const (
	headerMAC    = "X-Shopify-Hmac-SHA256"
	headerDomain = "X-Shopify-Shop-Domain"

	topicUninstalled = "app/uninstalled"
)

// Handler receives platform callbacks. This is a different trust boundary
// from the credential path: the caller is the platform itself, authenticated
// by a MAC over the raw body with the app's shared secret.
type Handler struct {
	secret   string
	registry *tenants.Registry
	store    *Store
	recorder *activity.Recorder
	log      *zap.SugaredLogger
}

func NewHandler(sharedSecret string, reg *tenants.Registry, store *Store, rec *activity.Recorder, log *zap.SugaredLogger) *Handler {
	return &Handler{secret: sharedSecret, registry: reg, store: store, recorder: rec, log: log}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/{topic}/{subtopic}", h.receive)
	r.Post("/webhooks/{topic}", h.receive)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if sub := chi.URLParam(r, "subtopic"); sub != "" {
		topic += "/" + sub
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil {
		httperr.Write(w, httperr.Validation("body read failed"))
		return
	}
	// MAC first; headers are untrusted until the body authenticates.
	if !VerifyMAC(body, r.Header.Get(headerMAC), h.secret) {
		httperr.Write(w, httperr.Authentication("webhook verification failed"))
		return
	}
	domain := r.Header.Get(headerDomain)
	tenant, err := h.registry.GetByDomain(r.Context(), domain)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			httperr.Write(w, httperr.NotFound("unknown shop"))
			return
		}
		h.log.Errorw("webhook tenant lookup", "shop", domain, "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}

	outcome := activity.OutcomeOK
	if topic == topicUninstalled {
		if err := h.registry.Deactivate(r.Context(), domain); err != nil {
			h.log.Errorw("uninstall deactivate", "shop", domain, "err", err)
			outcome = activity.OutcomeError
		}
		if _, err := h.store.DeleteByTenant(r.Context(), tenant.ID); err != nil {
			h.log.Warnw("uninstall registration cleanup", "shop", domain, "err", err)
		}
	}

	h.recorder.Write(r.Context(), activity.Record{
		TenantID:     tenant.ID,
		Action:       "webhook",
		ResourceType: topic,
		Outcome:      outcome,
		Detail:       map[string]any{"bytes": len(body)},
	})

	w.WriteHeader(http.StatusOK)
}
