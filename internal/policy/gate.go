// internal/policy/gate.go
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

// Gate evaluates an optional operator-supplied Rego policy after scope
// authorization. Entrypoint: data.gateway.allow. With no policy configured
// every request is allowed.
type Gate struct {
	query *rego.PreparedEvalQuery
	log   *zap.SugaredLogger
}

// Input is the document the policy sees for one proxied request.
type Input struct {
	Shop       string   `json:"shop"`
	Resource   string   `json:"resource"`
	ResourceID string   `json:"resource_id,omitempty"`
	Method     string   `json:"method"`
	Scopes     []string `json:"scopes"`
	Credential string   `json:"credential"`
}

// Load compiles the policy file once at startup. An empty path disables the
// gate.
func Load(path string, log *zap.SugaredLogger) (*Gate, error) {
	if path == "" {
		return &Gate{log: log}, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy read: %w", err)
	}
	q, err := rego.New(
		rego.Query("data.gateway.allow"),
		rego.Module("gateway.rego", string(src)),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("policy compile: %w", err)
	}
	log.Infow("gateway policy loaded", "file", path)
	return &Gate{query: &q, log: log}, nil
}

// Allow evaluates the policy. Evaluation errors deny: a broken policy must
// not silently open the gate.
func (g *Gate) Allow(ctx context.Context, in Input) bool {
	if g.query == nil {
		return true
	}
	rs, err := g.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		g.log.Errorw("policy eval", "err", err)
		return false
	}
	return rs.Allowed()
}
