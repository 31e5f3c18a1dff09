// internal/portal/handler.go
package portal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"portalbridge/internal/activity"
	"portalbridge/internal/credentials"
	"portalbridge/internal/tenants"
	"portalbridge/pkg/httperr"
	"portalbridge/pkg/middleware"
)

// Handler serves the tenant-owner management surface: credential lifecycle,
// activity queries and the tenant profile. All routes sit behind SessionAuth.
type Handler struct {
	registry *tenants.Registry
	issuer   *credentials.Issuer
	recorder *activity.Recorder
	log      *zap.SugaredLogger
}

func NewHandler(reg *tenants.Registry, issuer *credentials.Issuer, rec *activity.Recorder, log *zap.SugaredLogger) *Handler {
	return &Handler{registry: reg, issuer: issuer, recorder: rec, log: log}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/me", h.me)
	r.Post("/keys", h.createKey)
	r.Get("/keys", h.listKeys)
	r.Delete("/keys/{id}", h.deleteKey)
	r.Post("/keys/{id}/deactivate", h.deactivateKey)
	r.Get("/activity", h.listActivity)
	r.Get("/activity/summary", h.summarizeActivity)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// tenant resolves the session's tenant, rejecting sessions whose store was
// uninstalled since issuance.
func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (tenants.Tenant, bool) {
	s := middleware.SessionFrom(r.Context())
	t, err := h.registry.GetByID(r.Context(), s.TenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			httperr.Write(w, httperr.NotFound("store is no longer installed"))
		} else {
			h.log.Errorw("session tenant load", "tenant", s.TenantID, "err", err)
			httperr.Write(w, httperr.Internal())
		}
		return tenants.Tenant{}, false
	}
	return t, true
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	t, ok := h.tenant(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{
		"shop":         t.ShopDomain,
		"scopes":       t.Scopes.Sorted(),
		"installed_at": t.InstalledAt,
	}, http.StatusOK)
}

type createKeyBody struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

func (h *Handler) createKey(w http.ResponseWriter, r *http.Request) {
	t, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var b createKeyBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		httperr.Write(w, httperr.Validation("bad json"))
		return
	}
	issued, err := h.issuer.Create(r.Context(), t, b.Name, b.Scopes)
	if err != nil {
		httperr.Write(w, httperr.Validation(err.Error()))
		return
	}
	h.recorder.Write(r.Context(), activity.Record{
		TenantID:     t.ID,
		Action:       "key_create",
		ResourceType: "credential",
		ResourceID:   issued.ID,
		Outcome:      activity.OutcomeOK,
		Detail:       map[string]any{"name": issued.Name, "scopes": issued.Scopes},
	})
	// The only response that ever carries the secret.
	writeJSON(w, issued, http.StatusCreated)
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	t, ok := h.tenant(w, r)
	if !ok {
		return
	}
	list, err := h.issuer.ListByTenant(r.Context(), t.ID)
	if err != nil {
		h.log.Errorw("list credentials", "tenant", t.ID, "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}
	writeJSON(w, map[string]any{"keys": list}, http.StatusOK)
}

func (h *Handler) deleteKey(w http.ResponseWriter, r *http.Request) {
	t, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	deleted, err := h.issuer.Delete(r.Context(), id, t.ID)
	if err != nil {
		h.log.Errorw("delete credential", "tenant", t.ID, "credential", id, "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}
	if deleted {
		h.recorder.Write(r.Context(), activity.Record{
			TenantID:     t.ID,
			Action:       "key_delete",
			ResourceType: "credential",
			ResourceID:   id,
			Outcome:      activity.OutcomeOK,
		})
	}
	writeJSON(w, map[string]any{"deleted": deleted}, http.StatusOK)
}

func (h *Handler) deactivateKey(w http.ResponseWriter, r *http.Request) {
	t, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	updated, err := h.issuer.Deactivate(r.Context(), id, t.ID)
	if err != nil {
		h.log.Errorw("deactivate credential", "tenant", t.ID, "credential", id, "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}
	writeJSON(w, map[string]any{"deactivated": updated}, http.StatusOK)
}

func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	t, ok := h.tenant(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	recs, err := h.recorder.Query(r.Context(), t.ID, limit, offset)
	if err != nil {
		h.log.Errorw("activity query", "tenant", t.ID, "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}
	writeJSON(w, map[string]any{"activity": recs}, http.StatusOK)
}

func (h *Handler) summarizeActivity(w http.ResponseWriter, r *http.Request) {
	t, ok := h.tenant(w, r)
	if !ok {
		return
	}
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
	sum, err := h.recorder.Summarize(r.Context(), t.ID, hours)
	if err != nil {
		h.log.Errorw("activity summary", "tenant", t.ID, "err", err)
		httperr.Write(w, httperr.Internal())
		return
	}
	writeJSON(w, map[string]any{"summary": sum}, http.StatusOK)
}
