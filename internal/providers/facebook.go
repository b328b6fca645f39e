package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/pkg/errors"
)

const (
	facebookAuthURL  = "https://www.facebook.com/v4.0/dialog/oauth"
	facebookTokenURL = "https://graph.facebook.com/v4.0/oauth/access_token"
	facebookUserURL  = "https://graph.facebook.com/me"
)

// Facebook implements the classic OAuth2 code flow against the Graph API.
// The picture field arrives either as a plain URL or as a nested
// {data:{url}} object; both forms are normalized.
type Facebook struct {
	creds  app.Credentials
	client *http.Client

	authURL  string
	tokenURL string
	userURL  string
}

func NewFacebook(creds app.Credentials, client *http.Client) *Facebook {
	return &Facebook{
		creds:    creds,
		client:   client,
		authURL:  facebookAuthURL,
		tokenURL: facebookTokenURL,
		userURL:  facebookUserURL,
	}
}

func (p *Facebook) Metadata() relay.Metadata {
	return relay.Metadata{Key: "facebook", DisplayName: "Facebook", Origin: "www.facebook.com"}
}

func (p *Facebook) Check() bool {
	return p.creds.ClientID != "" && p.creds.ClientSecret != ""
}

func (p *Facebook) config(callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.creds.ClientID,
		ClientSecret: p.creds.ClientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.authURL,
			TokenURL: p.tokenURL,
		},
	}
}

func (p *Facebook) Begin(_ context.Context, req relay.BeginRequest) (string, error) {
	state := relay.EncodeState(relay.StatePayload{Nonce: req.State, Redirect: req.Redirect})
	return p.config(req.CallbackURL).AuthCodeURL(state,
		oauth2.SetAuthURLParam("auth_type", "rerequest"),
		oauth2.SetAuthURLParam("display", "popup"),
	), nil
}

func (p *Facebook) Continuation(q url.Values) (*relay.Continuation, error) {
	return stateContinuation(q)
}

func (p *Facebook) Exchange(ctx context.Context, req relay.ExchangeRequest) (*relay.Token, error) {
	tok, err := p.config(req.CallbackURL).Exchange(withClient(ctx, p.client), req.Query.Get("code"))
	if err != nil {
		return nil, errors.TokenExchange(err)
	}
	return &relay.Token{AccessToken: tok.AccessToken}, nil
}

func (p *Facebook) Profile(ctx context.Context, token *relay.Token) (relay.Identity, error) {
	query := url.Values{
		"access_token": {token.AccessToken},
		"fields":       {"id,name,email,picture,link"},
	}

	var user struct {
		ID      string          `json:"id"`
		Name    string          `json:"name"`
		Email   string          `json:"email"`
		Link    string          `json:"link"`
		Picture json.RawMessage `json:"picture"`
	}
	if err := getJSON(ctx, p.client, p.userURL+"?"+query.Encode(), nil, &user); err != nil {
		return relay.Identity{}, errors.ProfileFetch(err)
	}

	return relay.Identity{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		URL:    user.Link,
		Avatar: extractAvatar(user.Picture),
	}, nil
}

// extractAvatar accepts the picture field in either of the Graph API shapes.
func extractAvatar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var nested struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return firstNonEmpty(nested.Data.URL, nested.URL)
	}
	return ""
}
