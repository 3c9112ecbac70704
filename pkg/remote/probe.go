package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PromProbe issues a secondary, non-blocking verification query against
// Prometheus after a restart completes. It never influences the restart
// outcome; a failed or skipped probe is logged and otherwise ignored.
// promURL empty disables it entirely.
type PromProbe struct {
	promURL string
	secret  []byte
	client  *http.Client
	log     *slog.Logger
}

// NewPromProbe builds a probe against promURL, signing its bearer token
// with an ephemeral per-process HMAC secret (there is no shared identity
// provider in this deployment, so the token only needs to be
// well-formed, not independently verifiable).
func NewPromProbe(promURL string, log *slog.Logger) *PromProbe {
	if promURL == "" {
		return nil
	}
	return &PromProbe{
		promURL: promURL,
		secret:  []byte(fmt.Sprintf("xrootdrestart-probe-%d", time.Now().UnixNano())),
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

func (p *PromProbe) token(node string) (string, error) {
	claims := jwt.MapClaims{
		"node": node,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// VerifyUp queries Prometheus's instant-query endpoint for the node's
// `up` series and reports whether the query returned HTTP 200. The
// returned samples are not inspected, so a 200 response counts as up
// whatever value the series holds. Any error is logged at debug level
// and reported as false: callers must treat this as advisory only.
func (p *PromProbe) VerifyUp(ctx context.Context, node string) bool {
	if p == nil {
		return true
	}

	tok, err := p.token(node)
	if err != nil {
		p.log.Debug("prom probe: signing token failed", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.promURL+"/api/v1/query", nil)
	if err != nil {
		p.log.Debug("prom probe: building request failed", "error", err)
		return false
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	q := req.URL.Query()
	q.Set("query", fmt.Sprintf(`up{instance="%s"}`, node))
	req.URL.RawQuery = q.Encode()

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("prom probe: query failed", "node", node, "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
