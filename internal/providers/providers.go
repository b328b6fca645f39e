// Package providers contains the per-provider OAuth adapters. Every adapter
// implements relay.Provider against one external dialect: classic OAuth2
// (github, google, facebook, qq, weibo), OAuth2 with PKCE (x), OAuth 1.0a
// (twitter), OIDC discovery (oidc), OAuth2 with local id_token decoding
// (huawei) and OpenID 2.0 (steam).
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/pkg/errors"
)

// outboundUserAgent identifies the relay on provider API calls. GitHub
// rejects requests without a User-Agent outright.
const outboundUserAgent = "@waline/oauth"

const defaultHTTPTimeout = 10 * time.Second

// Options bundles the process-wide collaborators shared by all adapters.
type Options struct {
	// HTTPClient is used for every outbound provider call. Its timeout bounds
	// token exchanges and profile fetches.
	HTTPClient *http.Client
	// Tokens is the request-token store for OAuth 1.0a continuations.
	Tokens *relay.TokenStore
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// BuildAll resolves the full provider map from configuration. Every adapter is
// registered regardless of whether its credentials are present; capability
// discovery reports the difference and a misconfigured adapter fails loudly on
// first use.
func BuildAll(cfg *app.Config, opts Options) map[string]relay.Provider {
	client := opts.client()
	tokens := opts.Tokens
	if tokens == nil {
		tokens = relay.NewTokenStore(cfg.Relay.RequestTokenTTL)
	}

	p := cfg.Providers
	return map[string]relay.Provider{
		"github":   NewGitHub(p.GitHub, client),
		"google":   NewGoogle(p.Google, client),
		"facebook": NewFacebook(p.Facebook, client),
		"qq":       NewQQ(p.QQ, client),
		"weibo":    NewWeibo(p.Weibo, client),
		"twitter":  NewTwitter(p.Twitter, client, tokens),
		"x":        NewX(p.Twitter, client),
		"oidc":     NewOIDC(p.OIDC, client),
		"huawei":   NewHuawei(p.Huawei, client),
		"steam":    NewSteam(p.Steam, client),
	}
}

// withClient attaches the shared HTTP client to oauth2 exchanges.
func withClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// stateContinuation recovers the caller context from the state parameter used
// by every OAuth2-dialect adapter.
func stateContinuation(q url.Values) (*relay.Continuation, error) {
	payload := relay.DecodeState(q.Get("state"))
	if payload == nil {
		return nil, errors.ErrInvalidState
	}
	return &relay.Continuation{
		Redirect: payload.Redirect,
		State:    payload.Nonce,
		Verifier: payload.Verifier,
	}, nil
}

// getJSON performs a GET against a provider endpoint and decodes the JSON body.
func getJSON(ctx context.Context, client *http.Client, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", outboundUserAgent)
	for key, values := range header {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}
	return json.Unmarshal(body, out)
}

// postForm performs a form POST against a provider endpoint and returns the
// raw body.
func postForm(ctx context.Context, client *http.Client, rawURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", outboundUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}
	return body, nil
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
