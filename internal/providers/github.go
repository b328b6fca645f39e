package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/pkg/errors"
)

const (
	githubAuthURL   = "https://github.com/login/oauth/authorize"
	githubTokenURL  = "https://github.com/login/oauth/access_token"
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHub implements the classic OAuth2 code flow against github.com. When the
// profile carries no public email, a second call to the emails endpoint fills
// it in.
type GitHub struct {
	creds  app.Credentials
	client *http.Client

	authURL   string
	tokenURL  string
	userURL   string
	emailsURL string
}

func NewGitHub(creds app.Credentials, client *http.Client) *GitHub {
	return &GitHub{
		creds:     creds,
		client:    client,
		authURL:   githubAuthURL,
		tokenURL:  githubTokenURL,
		userURL:   githubUserURL,
		emailsURL: githubEmailsURL,
	}
}

func (p *GitHub) Metadata() relay.Metadata {
	return relay.Metadata{Key: "github", DisplayName: "GitHub", Origin: "github.com"}
}

func (p *GitHub) Check() bool {
	return p.creds.ClientID != "" && p.creds.ClientSecret != ""
}

func (p *GitHub) config(callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.creds.ClientID,
		ClientSecret: p.creds.ClientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.authURL,
			TokenURL: p.tokenURL,
		},
	}
}

func (p *GitHub) Begin(_ context.Context, req relay.BeginRequest) (string, error) {
	state := relay.EncodeState(relay.StatePayload{Nonce: req.State, Redirect: req.Redirect})
	return p.config(req.CallbackURL).AuthCodeURL(state), nil
}

func (p *GitHub) Continuation(q url.Values) (*relay.Continuation, error) {
	return stateContinuation(q)
}

func (p *GitHub) Exchange(ctx context.Context, req relay.ExchangeRequest) (*relay.Token, error) {
	tok, err := p.config(req.CallbackURL).Exchange(withClient(ctx, p.client), req.Query.Get("code"))
	if err != nil {
		return nil, errors.TokenExchange(err)
	}
	return &relay.Token{AccessToken: tok.AccessToken}, nil
}

func (p *GitHub) Profile(ctx context.Context, token *relay.Token) (relay.Identity, error) {
	header := http.Header{"Authorization": {"token " + token.AccessToken}}

	var user struct {
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		Blog      string `json:"blog"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, p.client, p.userURL, header, &user); err != nil {
		return relay.Identity{}, errors.ProfileFetch(err)
	}

	email := user.Email
	if email == "" {
		email = p.lookupEmail(ctx, header)
	}

	return relay.Identity{
		ID:     user.Login,
		Name:   firstNonEmpty(user.Name, user.Login),
		Email:  email,
		URL:    firstNonEmpty(user.Blog, "https://github.com/"+user.Login),
		Avatar: user.AvatarURL,
	}, nil
}

// lookupEmail fetches the account emails and prefers a verified primary
// address. Failures leave the email absent rather than failing the profile.
func (p *GitHub) lookupEmail(ctx context.Context, header http.Header) string {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, p.client, p.emailsURL, header, &emails); err != nil {
		return ""
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	if len(emails) > 0 {
		return strings.TrimSpace(emails[0].Email)
	}
	return ""
}
