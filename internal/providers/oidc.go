package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/pkg/errors"
)

// oidcEndpoints is the resolved endpoint set, either configured explicitly or
// discovered via the issuer's well-known document.
type oidcEndpoints struct {
	authURL     string
	tokenURL    string
	userinfoURL string
}

// OIDC implements the generic OpenID Connect code flow. Endpoints come from
// explicit configuration when provided, otherwise from the issuer discovery
// document, fetched once and cached for the process lifetime. Concurrent
// discovery fetches may race harmlessly; last write wins and failures are not
// cached.
type OIDC struct {
	settings app.OIDCSettings
	client   *http.Client

	mu        sync.Mutex
	endpoints *oidcEndpoints
}

func NewOIDC(settings app.OIDCSettings, client *http.Client) *OIDC {
	return &OIDC{settings: settings, client: client}
}

func (p *OIDC) Metadata() relay.Metadata {
	origin := ""
	if u, err := url.Parse(firstNonEmpty(p.settings.Issuer, p.settings.AuthURL)); err == nil {
		origin = u.Hostname()
	}
	return relay.Metadata{Key: "oidc", DisplayName: "OpenID Connect", Origin: origin}
}

func (p *OIDC) Check() bool {
	if p.settings.ClientID == "" || p.settings.ClientSecret == "" {
		return false
	}
	if p.settings.Issuer != "" {
		return true
	}
	return p.settings.AuthURL != "" && p.settings.TokenURL != "" && p.settings.UserinfoURL != ""
}

func (p *OIDC) scopes() []string {
	scopes := strings.Fields(p.settings.Scopes)
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	return scopes
}

// discover resolves the endpoint set, populating the process-wide cache on
// first use.
func (p *OIDC) discover(ctx context.Context) (*oidcEndpoints, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.endpoints != nil {
		return p.endpoints, nil
	}

	if p.settings.AuthURL != "" && p.settings.TokenURL != "" && p.settings.UserinfoURL != "" {
		p.endpoints = &oidcEndpoints{
			authURL:     p.settings.AuthURL,
			tokenURL:    p.settings.TokenURL,
			userinfoURL: p.settings.UserinfoURL,
		}
		return p.endpoints, nil
	}

	issuer := strings.TrimRight(strings.TrimSpace(p.settings.Issuer), "/")
	if issuer == "" {
		return nil, errors.New(http.StatusInternalServerError, "OIDC issuer or explicit endpoints must be configured")
	}

	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, p.client), issuer)
	if err != nil {
		return nil, errors.TokenExchange(err)
	}

	var claims struct {
		UserinfoEndpoint string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return nil, errors.TokenExchange(err)
	}

	endpoint := provider.Endpoint()
	p.endpoints = &oidcEndpoints{
		authURL:     endpoint.AuthURL,
		tokenURL:    endpoint.TokenURL,
		userinfoURL: claims.UserinfoEndpoint,
	}
	return p.endpoints, nil
}

func (p *OIDC) config(callbackURL string, endpoints *oidcEndpoints) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.settings.ClientID,
		ClientSecret: p.settings.ClientSecret,
		RedirectURL:  callbackURL,
		Scopes:       p.scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:  endpoints.authURL,
			TokenURL: endpoints.tokenURL,
		},
	}
}

func (p *OIDC) Begin(ctx context.Context, req relay.BeginRequest) (string, error) {
	endpoints, err := p.discover(ctx)
	if err != nil {
		return "", err
	}

	state := relay.EncodeState(relay.StatePayload{Nonce: req.State, Redirect: req.Redirect})
	return p.config(req.CallbackURL, endpoints).AuthCodeURL(state), nil
}

func (p *OIDC) Continuation(q url.Values) (*relay.Continuation, error) {
	return stateContinuation(q)
}

func (p *OIDC) Exchange(ctx context.Context, req relay.ExchangeRequest) (*relay.Token, error) {
	endpoints, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := p.config(req.CallbackURL, endpoints).Exchange(withClient(ctx, p.client), req.Query.Get("code"))
	if err != nil {
		return nil, errors.TokenExchange(err)
	}
	return &relay.Token{AccessToken: tok.AccessToken}, nil
}

func (p *OIDC) Profile(ctx context.Context, token *relay.Token) (relay.Identity, error) {
	endpoints, err := p.discover(ctx)
	if err != nil {
		return relay.Identity{}, err
	}

	var claims struct {
		Sub               string `json:"sub"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
		Nickname          string `json:"nickname"`
		Email             string `json:"email"`
		Picture           string `json:"picture"`
		Avatar            string `json:"avatar"`
		Profile           string `json:"profile"`
		Website           string `json:"website"`
		URL               string `json:"url"`
	}
	if err := getJSON(ctx, p.client, endpoints.userinfoURL, bearer(token.AccessToken), &claims); err != nil {
		return relay.Identity{}, errors.ProfileFetch(err)
	}

	return relay.Identity{
		ID:     claims.Sub,
		Name:   firstNonEmpty(claims.Name, claims.PreferredUsername, claims.Nickname),
		Email:  claims.Email,
		URL:    firstNonEmpty(claims.Profile, claims.Website, claims.URL),
		Avatar: cleanAvatarClaim(firstNonEmpty(claims.Picture, claims.Avatar)),
	}, nil
}

// cleanAvatarClaim strips stray backticks and quotes some identity providers
// wrap around the picture claim.
func cleanAvatarClaim(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "`")
	v = strings.Trim(v, `"`)
	return v
}
