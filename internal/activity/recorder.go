// internal/activity/recorder.go
package activity

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"portalbridge/pkg/db"
)

// Outcome values recorded per proxied operation.
const (
	OutcomeOK       = "ok"
	OutcomeDenied   = "denied"
	OutcomeUpstream = "upstream_error"
	OutcomeError    = "error"
)

// Record is one append-only audit row. CredentialID is empty for
// tenant-internal actions (install, uninstall, key management).
type Record struct {
	ID           int64          `json:"id"`
	TenantID     string         `json:"-"`
	CredentialID string         `json:"credential_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Outcome      string         `json:"outcome"`
	Detail       map[string]any `json:"detail,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Summary is one grouped count bucket from Summarize.
type Summary struct {
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
	Outcome      string `json:"outcome"`
	Count        int64  `json:"count"`
}

// Recorder appends and queries the activity log. Recording is observability
// only: failures are logged and never surfaced to the operation being
// recorded.
type Recorder struct {
	db  db.Querier
	log *zap.SugaredLogger
}

func NewRecorder(q db.Querier, log *zap.SugaredLogger) *Recorder {
	return &Recorder{db: q, log: log}
}

// Write appends one row. Errors are swallowed after logging.
func (r *Recorder) Write(ctx context.Context, rec Record) {
	var detail any
	if rec.Detail != nil {
		b, err := json.Marshal(rec.Detail)
		if err == nil {
			detail = b
		}
	}
	var credID any
	if rec.CredentialID != "" {
		credID = rec.CredentialID
	}
	var resID any
	if rec.ResourceID != "" {
		resID = rec.ResourceID
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO activity_log(tenant_id, credential_id, action, resource_type, resource_id, outcome, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.TenantID, credID, rec.Action, rec.ResourceType, resID, rec.Outcome, detail)
	if err != nil {
		r.log.Warnw("activity record", "tenant", rec.TenantID, "action", rec.Action, "err", err)
	}
}

// Query returns a tenant's records, most recent first.
func (r *Recorder) Query(ctx context.Context, tenantID string, limit, offset int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, credential_id, action, resource_type, resource_id, outcome, detail, created_at
		FROM activity_log WHERE tenant_id=$1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		rec := Record{TenantID: tenantID}
		var credID, resID *string
		var detail []byte
		if err := rows.Scan(&rec.ID, &credID, &rec.Action, &rec.ResourceType, &resID, &rec.Outcome, &detail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if credID != nil {
			rec.CredentialID = *credID
		}
		if resID != nil {
			rec.ResourceID = *resID
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &rec.Detail)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summarize groups a recent window by resource, action and outcome.
func (r *Recorder) Summarize(ctx context.Context, tenantID string, windowHours int) ([]Summary, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	rows, err := r.db.Query(ctx, `
		SELECT resource_type, action, outcome, COUNT(*)
		FROM activity_log
		WHERE tenant_id=$1 AND created_at > NOW() - ($2 * INTERVAL '1 hour')
		GROUP BY resource_type, action, outcome
		ORDER BY resource_type, action, outcome`, tenantID, windowHours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ResourceType, &s.Action, &s.Outcome, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes records older than the retention window and returns
// the number removed. Intended for the periodic job, not the request path.
func (r *Recorder) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM activity_log WHERE created_at < NOW() - ($1 * INTERVAL '1 day')`, days)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
