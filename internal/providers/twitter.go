package providers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dghubble/oauth1"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/pkg/errors"
)

const (
	twitterRequestTokenURL = "https://api.twitter.com/oauth/request_token"
	twitterAuthorizeURL    = "https://api.twitter.com/oauth/authorize"
	twitterAccessTokenURL  = "https://api.twitter.com/oauth/access_token"
	twitterVerifyURL       = "https://api.twitter.com/1.1/account/verify_credentials.json"
)

// Twitter implements the legacy three-legged OAuth 1.0a flow. The protocol
// has no room for an embedded state parameter, so the caller continuation and
// the request-token secret live in a server-side TTL store keyed by the
// request token. An entry is removed after its first successful exchange so a
// replayed callback fails.
type Twitter struct {
	creds  app.Credentials
	client *http.Client
	tokens *relay.TokenStore

	requestTokenURL string
	authorizeURL    string
	accessTokenURL  string
	verifyURL       string
}

func NewTwitter(creds app.Credentials, client *http.Client, tokens *relay.TokenStore) *Twitter {
	return &Twitter{
		creds:           creds,
		client:          client,
		tokens:          tokens,
		requestTokenURL: twitterRequestTokenURL,
		authorizeURL:    twitterAuthorizeURL,
		accessTokenURL:  twitterAccessTokenURL,
		verifyURL:       twitterVerifyURL,
	}
}

func (p *Twitter) Metadata() relay.Metadata {
	return relay.Metadata{Key: "twitter", DisplayName: "Twitter", Origin: "api.twitter.com"}
}

func (p *Twitter) Check() bool {
	return p.creds.ClientID != "" && p.creds.ClientSecret != ""
}

func (p *Twitter) config(callbackURL string) *oauth1.Config {
	return &oauth1.Config{
		ConsumerKey:    p.creds.ClientID,
		ConsumerSecret: p.creds.ClientSecret,
		CallbackURL:    callbackURL,
		// Without this the request-token and access-token calls fall back to
		// http.DefaultClient, which has no timeout.
		HTTPClient: p.client,
		Endpoint: oauth1.Endpoint{
			RequestTokenURL: p.requestTokenURL,
			AuthorizeURL:    p.authorizeURL,
			AccessTokenURL:  p.accessTokenURL,
		},
	}
}

func (p *Twitter) Begin(_ context.Context, req relay.BeginRequest) (string, error) {
	cfg := p.config(req.CallbackURL)

	requestToken, requestSecret, err := cfg.RequestToken()
	if err != nil {
		return "", errors.TokenExchange(err)
	}

	p.tokens.Put(requestToken, relay.RequestToken{
		Secret:   requestSecret,
		Redirect: req.Redirect,
		Nonce:    req.State,
	})

	authorizeURL, err := cfg.AuthorizationURL(requestToken)
	if err != nil {
		return "", errors.TokenExchange(err)
	}
	return authorizeURL.String(), nil
}

func (p *Twitter) Continuation(q url.Values) (*relay.Continuation, error) {
	entry, ok := p.tokens.Get(q.Get("oauth_token"))
	if !ok {
		return nil, errors.ErrInvalidState
	}
	return &relay.Continuation{Redirect: entry.Redirect, State: entry.Nonce}, nil
}

func (p *Twitter) Exchange(ctx context.Context, req relay.ExchangeRequest) (*relay.Token, error) {
	requestToken := req.Query.Get("oauth_token")
	verifier := req.Query.Get("oauth_verifier")

	entry, ok := p.tokens.Get(requestToken)
	if !ok {
		return nil, errors.ErrInvalidState
	}

	accessToken, accessSecret, err := p.config(req.CallbackURL).AccessToken(requestToken, entry.Secret, verifier)
	if err != nil {
		return nil, errors.TokenExchange(err)
	}

	// Single use: a replayed oauth_token/oauth_verifier pair must not succeed.
	p.tokens.Delete(requestToken)

	return &relay.Token{
		AccessToken: accessToken,
		Extra:       map[string]string{"oauth_token_secret": accessSecret},
	}, nil
}

func (p *Twitter) Profile(ctx context.Context, token *relay.Token) (relay.Identity, error) {
	// Profile fetches are themselves HMAC-SHA1 signed requests; there is no
	// bearer token in OAuth 1.0a.
	ctx = context.WithValue(ctx, oauth1.HTTPClient, p.client)
	signing := p.config("").Client(ctx, oauth1.NewToken(token.AccessToken, token.Extra["oauth_token_secret"]))

	var user struct {
		IDStr           string `json:"id_str"`
		ScreenName      string `json:"screen_name"`
		Name            string `json:"name"`
		URL             string `json:"url"`
		ProfileImageURL string `json:"profile_image_url_https"`
	}
	if err := getJSON(ctx, signing, p.verifyURL, nil, &user); err != nil {
		return relay.Identity{}, errors.ProfileFetch(err)
	}

	identity := relay.Identity{
		ID:     user.IDStr,
		Name:   firstNonEmpty(user.Name, user.ScreenName),
		URL:    user.URL,
		Avatar: user.ProfileImageURL,
	}
	if identity.URL == "" && user.ScreenName != "" {
		identity.URL = "https://twitter.com/" + user.ScreenName
	}
	return identity, nil
}
