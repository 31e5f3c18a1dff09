// internal/oauth/handler.go
package oauth

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"portalbridge/internal/activity"
	"portalbridge/internal/sessions"
	"portalbridge/internal/shopify"
	"portalbridge/internal/tenants"
	"portalbridge/internal/webhooks"
	"portalbridge/pkg/config"
	"portalbridge/pkg/httperr"
	"portalbridge/pkg/scopes"
)

// Handler drives the per-store install flow: consent redirect with a one-time
// state nonce, callback verification, token exchange, tenant upsert, webhook
// registration and session issuance.
type Handler struct {
	cfg      config.Config
	client   *shopify.Client
	registry *tenants.Registry
	nonces   NonceStore
	sessions *sessions.Manager
	hooks    *webhooks.Store
	recorder *activity.Recorder
	log      *zap.SugaredLogger
}

func NewHandler(cfg config.Config, client *shopify.Client, reg *tenants.Registry, nonces NonceStore,
	sess *sessions.Manager, hooks *webhooks.Store, rec *activity.Recorder, log *zap.SugaredLogger) *Handler {
	return &Handler{cfg: cfg, client: client, registry: reg, nonces: nonces,
		sessions: sess, hooks: hooks, recorder: rec, log: log}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/auth", h.install)
	r.Get("/auth/callback", h.callback)
}

func (h *Handler) redirectURI() string {
	return h.cfg.BaseURL + "/auth/callback"
}

// install starts the OAuth flow for ?shop=<domain>.
func (h *Handler) install(w http.ResponseWriter, r *http.Request) {
	shop := r.URL.Query().Get("shop")
	if !ValidShopDomain(shop) {
		httperr.Write(w, httperr.Validation("invalid shop domain"))
		return
	}
	nonce, err := NewNonce()
	if err != nil {
		h.log.Errorw("nonce generate", "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}
	if err := h.nonces.Put(r.Context(), shop, nonce); err != nil {
		h.log.Errorw("nonce store", "shop", shop, "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}
	http.Redirect(w, r, h.client.AuthorizeURL(shop, h.cfg.InstallScopes, h.redirectURI(), nonce), http.StatusFound)
}

// callback completes the flow. The steps after token exchange are best-effort
// sequential: a webhook registration failure is logged but never blocks the
// install.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	shop := q.Get("shop")
	code := q.Get("code")
	state := q.Get("state")
	if !ValidShopDomain(shop) || code == "" || state == "" {
		httperr.Write(w, httperr.Validation("missing callback parameters"))
		return
	}
	if !VerifyQueryMAC(q, h.cfg.ShopifySecret) {
		httperr.Write(w, httperr.Authentication("callback verification failed"))
		return
	}
	ok, err := h.nonces.Consume(r.Context(), shop, state)
	if err != nil {
		h.log.Errorw("nonce consume", "shop", shop, "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}
	if !ok {
		httperr.Write(w, httperr.Authentication("state mismatch"))
		return
	}

	token, grantedCSV, err := h.client.ExchangeCode(r.Context(), shop, code)
	if err != nil {
		h.log.Errorw("token exchange", "shop", shop, "err", err)
		httperr.Write(w, httperr.Upstream(http.StatusBadGateway, "token exchange failed"))
		return
	}
	tenant, err := h.registry.Upsert(r.Context(), shop, token, scopes.ParseList(grantedCSV))
	if err != nil {
		h.log.Errorw("tenant upsert", "shop", shop, "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}

	h.registerWebhooks(r, tenant)

	h.recorder.Write(r.Context(), activity.Record{
		TenantID:     tenant.ID,
		Action:       "install",
		ResourceType: "tenant",
		ResourceID:   tenant.ID,
		Outcome:      activity.OutcomeOK,
		Detail:       map[string]any{"scopes": tenant.Scopes.Sorted()},
	})

	session, err := h.sessions.Issue(tenant.ID, tenant.ShopDomain)
	if err != nil {
		h.log.Errorw("session issue", "shop", shop, "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}
	// Token-in-URL is a known-weak inherited behavior; the portal exchanges
	// it immediately. TODO(portal): move to a short-lived one-time code.
	dest := h.cfg.PortalURL + "?" + url.Values{"shop": {shop}, "token": {session}}.Encode()
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) registerWebhooks(r *http.Request, tenant tenants.Tenant) {
	address := h.cfg.BaseURL + "/webhooks"
	for _, topic := range h.cfg.WebhookTopics {
		id, err := h.client.RegisterWebhook(r.Context(), tenant.ShopDomain, tenant.AccessToken, topic, address+"/"+topic)
		if err != nil {
			h.log.Warnw("webhook register", "shop", tenant.ShopDomain, "topic", topic, "err", err)
			continue
		}
		if err := h.hooks.Save(r.Context(), tenant.ID, topic, id, address+"/"+topic); err != nil {
			h.log.Warnw("webhook save", "shop", tenant.ShopDomain, "topic", topic, "err", err)
		}
	}
}
