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
	xAuthURL   = "https://x.com/i/oauth2/authorize"
	xTokenURL  = "https://api.x.com/2/oauth2/token"
	xUserMeURL = "https://api.x.com/2/users/me"

	xUserFields = "name,username,profile_image_url,url,confirmed_email"
)

// X implements the current X (Twitter v2) OAuth2 flow with PKCE. The token
// endpoint requires HTTP Basic client authentication plus the code verifier.
// No server-side session is assumed: the verifier, the caller redirect and
// the exact callback URL are all packed into the single state parameter.
type X struct {
	creds  app.Credentials
	client *http.Client

	authURL   string
	tokenURL  string
	userMeURL string
}

func NewX(creds app.Credentials, client *http.Client) *X {
	return &X{
		creds:     creds,
		client:    client,
		authURL:   xAuthURL,
		tokenURL:  xTokenURL,
		userMeURL: xUserMeURL,
	}
}

func (p *X) Metadata() relay.Metadata {
	return relay.Metadata{Key: "x", DisplayName: "X", Origin: "x.com"}
}

func (p *X) Check() bool {
	return p.creds.ClientID != "" && p.creds.ClientSecret != ""
}

func (p *X) config(callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.creds.ClientID,
		ClientSecret: p.creds.ClientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"tweet.read", "users.read", "offline.access", "users.email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.authURL,
			TokenURL:  p.tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (p *X) Begin(_ context.Context, req relay.BeginRequest) (string, error) {
	pkce, err := relay.GeneratePKCE()
	if err != nil {
		return "", err
	}

	state := relay.EncodeState(relay.StatePayload{
		Nonce:    req.State,
		Redirect: req.Redirect,
		Verifier: pkce.Verifier,
		Callback: req.CallbackURL,
	})

	return p.config(req.CallbackURL).AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

func (p *X) Continuation(q url.Values) (*relay.Continuation, error) {
	return stateContinuation(q)
}

func (p *X) Exchange(ctx context.Context, req relay.ExchangeRequest) (*relay.Token, error) {
	if req.Cont == nil || req.Cont.Verifier == "" {
		return nil, errors.ErrInvalidState
	}

	// The token endpoint enforces byte-identical redirect_uri values, so the
	// callback recorded at authorize time wins over the recomputed one.
	callbackURL := req.CallbackURL
	if payload := relay.DecodeState(req.Query.Get("state")); payload != nil && payload.Callback != "" {
		callbackURL = payload.Callback
	}

	tok, err := p.config(callbackURL).Exchange(withClient(ctx, p.client), req.Query.Get("code"),
		oauth2.SetAuthURLParam("code_verifier", req.Cont.Verifier),
	)
	if err != nil {
		return nil, errors.TokenExchange(err)
	}
	if tok.AccessToken == "" {
		return nil, errors.ErrTokenMissing
	}
	return &relay.Token{AccessToken: tok.AccessToken}, nil
}

func (p *X) Profile(ctx context.Context, token *relay.Token) (relay.Identity, error) {
	query := url.Values{"user.fields": {xUserFields}}

	var resp struct {
		Data struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			Email           string `json:"email"`
			ConfirmedEmail  string `json:"confirmed_email"`
			URL             string `json:"url"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	if err := getJSON(ctx, p.client, p.userMeURL+"?"+query.Encode(), bearer(token.AccessToken), &resp); err != nil {
		return relay.Identity{}, errors.ProfileFetch(err)
	}

	u := resp.Data
	identity := relay.Identity{
		ID:     u.ID,
		Name:   firstNonEmpty(u.Name, u.Username),
		Email:  firstNonEmpty(u.Email, u.ConfirmedEmail),
		URL:    u.URL,
		Avatar: u.ProfileImageURL,
	}
	if identity.URL == "" && u.Username != "" {
		identity.URL = "https://x.com/" + u.Username
	}
	return identity, nil
}
