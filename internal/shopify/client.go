// internal/shopify/client.go
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to the Shopify Admin REST API. It is stateless with respect to
// tenants: the shop domain and access token are passed per call.
type Client struct {
	apiKey  string
	secret  string
	version string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewClient(apiKey, secret, version string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		secret:  secret,
		version: version,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// WithTransport replaces the HTTP transport, keeping the timeout. Tests stub
// the platform this way.
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.http.Transport = rt
	return c
}

// Response is the raw upstream result; the proxy passes status and body
// through unchanged.
type Response struct {
	Status      int
	Body        []byte
	ContentType string
}

func (c *Client) adminURL(shop, path string) string {
	return "https://" + shop + "/admin/api/" + c.version + path
}

// Do performs one Admin API call with the tenant's token. Network failure is
// the only error; upstream 4xx/5xx are returned as a Response for
// pass-through.
func (c *Client) Do(ctx context.Context, shop, token, method, path string, query url.Values, body []byte) (Response, error) {
	full := c.adminURL(shop, path)
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, full, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("X-Shopify-Access-Token", token)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("upstream %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Response{}, fmt.Errorf("upstream read: %w", err)
	}
	return Response{Status: resp.StatusCode, Body: b, ContentType: resp.Header.Get("Content-Type")}, nil
}

// AuthorizeURL builds the consent redirect for the install flow.
func (c *Client) AuthorizeURL(shop, requestedScopes, redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", c.apiKey)
	q.Set("scope", requestedScopes)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return "https://" + shop + "/admin/oauth/authorize?" + q.Encode()
}

// ExchangeCode swaps an authorization code for a permanent access token.
// Returns the token and the scope list the merchant actually granted.
func (c *Client) ExchangeCode(ctx context.Context, shop, code string) (token, grantedScopes string, err error) {
	payload, _ := json.Marshal(map[string]string{
		"client_id":     c.apiKey,
		"client_secret": c.secret,
		"code":          code,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://"+shop+"/admin/oauth/access_token", bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("token exchange: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", "", fmt.Errorf("token exchange decode: %w", err)
	}
	if out.AccessToken == "" {
		return "", "", fmt.Errorf("token exchange: empty access_token")
	}
	return out.AccessToken, out.Scope, nil
}

// RegisterWebhook subscribes the given topic and returns the platform id.
func (c *Client) RegisterWebhook(ctx context.Context, shop, token, topic, address string) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"webhook": map[string]string{"topic": topic, "address": address, "format": "json"},
	})
	resp, err := c.Do(ctx, shop, token, http.MethodPost, "/webhooks.json", nil, payload)
	if err != nil {
		return "", err
	}
	if resp.Status != http.StatusCreated && resp.Status != http.StatusOK {
		return "", fmt.Errorf("register webhook %s: status %d: %s", topic, resp.Status, strings.TrimSpace(string(resp.Body)))
	}
	var out struct {
		Webhook struct {
			ID json.Number `json:"id"`
		} `json:"webhook"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("register webhook decode: %w", err)
	}
	return out.Webhook.ID.String(), nil
}

// DeleteWebhook removes a subscription by platform id. Missing subscriptions
// are treated as already gone.
func (c *Client) DeleteWebhook(ctx context.Context, shop, token, platformID string) error {
	resp, err := c.Do(ctx, shop, token, http.MethodDelete, "/webhooks/"+platformID+".json", nil, nil)
	if err != nil {
		return err
	}
	if resp.Status >= 400 && resp.Status != http.StatusNotFound {
		return fmt.Errorf("delete webhook %s: status %d", platformID, resp.Status)
	}
	return nil
}
