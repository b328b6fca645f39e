package providers

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/pkg/errors"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// Google implements the classic OAuth2 code flow against Google accounts.
type Google struct {
	creds  app.Credentials
	client *http.Client

	authURL     string
	tokenURL    string
	userInfoURL string
}

func NewGoogle(creds app.Credentials, client *http.Client) *Google {
	return &Google{
		creds:       creds,
		client:      client,
		authURL:     googleAuthURL,
		tokenURL:    googleTokenURL,
		userInfoURL: googleUserInfoURL,
	}
}

func (p *Google) Metadata() relay.Metadata {
	return relay.Metadata{Key: "google", DisplayName: "Google", Origin: "accounts.google.com"}
}

func (p *Google) Check() bool {
	return p.creds.ClientID != "" && p.creds.ClientSecret != ""
}

func (p *Google) config(callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.creds.ClientID,
		ClientSecret: p.creds.ClientSecret,
		RedirectURL:  callbackURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.authURL,
			TokenURL: p.tokenURL,
		},
	}
}

func (p *Google) Begin(_ context.Context, req relay.BeginRequest) (string, error) {
	state := relay.EncodeState(relay.StatePayload{Nonce: req.State, Redirect: req.Redirect})
	return p.config(req.CallbackURL).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

func (p *Google) Continuation(q url.Values) (*relay.Continuation, error) {
	return stateContinuation(q)
}

func (p *Google) Exchange(ctx context.Context, req relay.ExchangeRequest) (*relay.Token, error) {
	tok, err := p.config(req.CallbackURL).Exchange(withClient(ctx, p.client), req.Query.Get("code"))
	if err != nil {
		return nil, errors.TokenExchange(err)
	}
	return &relay.Token{AccessToken: tok.AccessToken}, nil
}

func (p *Google) Profile(ctx context.Context, token *relay.Token) (relay.Identity, error) {
	var user struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, p.client, p.userInfoURL, bearer(token.AccessToken), &user); err != nil {
		return relay.Identity{}, errors.ProfileFetch(err)
	}

	return relay.Identity{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Avatar: user.Picture,
	}, nil
}
