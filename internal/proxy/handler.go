// internal/proxy/handler.go
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmespath/go-jmespath"
	"go.uber.org/zap"

	"portalbridge/internal/activity"
	"portalbridge/internal/policy"
	"portalbridge/internal/shopify"
	"portalbridge/pkg/httperr"
	"portalbridge/pkg/middleware"
	"portalbridge/pkg/scopes"
)

const maxProxyBody = 2 << 20

// Handler proxies authorized portal requests 1:1 to the upstream Admin API
// and records every operation.
type Handler struct {
	registry *Registry
	client   *shopify.Client
	gate     *policy.Gate
	recorder *activity.Recorder
	log      *zap.SugaredLogger
}

func NewHandler(reg *Registry, client *shopify.Client, gate *policy.Gate, rec *activity.Recorder, log *zap.SugaredLogger) *Handler {
	return &Handler{registry: reg, client: client, gate: gate, recorder: rec, log: log}
}

func (h *Handler) Register(r chi.Router) {
	// Fulfillments are the one nested surface; everything else is flat.
	r.HandleFunc("/orders/{order_id}/fulfillments", h.fulfillments)
	r.HandleFunc("/{resource}", h.dispatch)
	r.HandleFunc("/{resource}/{id}", h.dispatch)
}

func actionForMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}

func validMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	id := chi.URLParam(r, "id")
	res, listed := h.registry.Resolve(name)
	if !validMethod(r.Method) || (listed && !res.allows(r.Method)) {
		httperr.Write(w, httperr.NotFound(fmt.Sprintf("operation %s %s is not supported", r.Method, name)))
		return
	}
	if id == "" && (r.Method == http.MethodPut || r.Method == http.MethodDelete) {
		httperr.Write(w, httperr.Validation("resource id is required"))
		return
	}
	path := res.Path
	if id != "" {
		path = res.ItemPath(id)
	}
	h.proxy(w, r, res, path, id)
}

func (h *Handler) fulfillments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		httperr.Write(w, httperr.NotFound("operation not supported for fulfillments"))
		return
	}
	orderID := chi.URLParam(r, "order_id")
	res := withDefaults(Resource{Name: "fulfillments", IDExpr: "fulfillment.id"})
	h.proxy(w, r, res, "/orders/"+orderID+"/fulfillments.json", "")
}

// proxy runs the shared tail: scope check, policy gate, upstream call,
// pass-through and activity record.
func (h *Handler) proxy(w http.ResponseWriter, r *http.Request, res Resource, path, resourceID string) {
	ctx := r.Context()
	p := middleware.PrincipalFrom(ctx)
	action := actionForMethod(r.Method)

	record := func(outcome string, detail map[string]any) {
		h.recorder.Write(ctx, activity.Record{
			TenantID:     p.TenantID,
			CredentialID: p.CredentialID,
			Action:       action,
			ResourceType: res.Name,
			ResourceID:   resourceID,
			Outcome:      outcome,
			Detail:       detail,
		})
	}

	required := scopes.ForMethod(r.Method, res.ScopeResource)
	if !p.Scopes.Satisfies(required) {
		record(activity.OutcomeDenied, map[string]any{"required_scope": required})
		httperr.Write(w, httperr.Authorization(required, p.Scopes.Sorted()))
		return
	}
	if !h.gate.Allow(ctx, policy.Input{
		Shop:       p.ShopDomain,
		Resource:   res.Name,
		ResourceID: resourceID,
		Method:     r.Method,
		Scopes:     p.Scopes.Sorted(),
		Credential: p.CredentialName,
	}) {
		record(activity.OutcomeDenied, map[string]any{"policy": "denied"})
		httperr.Write(w, &httperr.Error{Status: http.StatusForbidden, Code: "policy_denied"})
		return
	}

	var body []byte
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBody))
		if err != nil {
			httperr.Write(w, httperr.Validation("body too large or unreadable"))
			return
		}
	}

	resp, err := h.client.Do(ctx, p.ShopDomain, p.AccessToken, r.Method, path, r.URL.Query(), body)
	if err != nil {
		h.log.Errorw("upstream call", "shop", p.ShopDomain, "path", path, "err", err)
		record(activity.OutcomeUpstream, map[string]any{"error": "unreachable"})
		httperr.Write(w, httperr.Upstream(http.StatusBadGateway, "upstream unreachable"))
		return
	}

	outcome := activity.OutcomeOK
	detail := map[string]any{"status": resp.Status}
	if resp.Status >= 400 {
		outcome = activity.OutcomeUpstream
	} else if resourceID == "" && res.IDExpr != "" {
		if id := extractID(res.IDExpr, resp.Body); id != "" {
			resourceID = id
		}
	}
	record(outcome, detail)

	if ct := resp.ContentType; ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// extractID pulls the created/updated resource id out of an upstream JSON
// response using the registry's jmespath expression.
func extractID(expr string, body []byte) string {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	v, err := jmespath.Search(expr, doc)
	if err != nil || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	}
	return fmt.Sprint(v)
}
