package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/pkg/errors"
)

const (
	weiboAuthURL      = "https://api.weibo.com/oauth2/authorize"
	weiboTokenURL     = "https://api.weibo.com/oauth2/access_token"
	weiboTokenInfoURL = "https://api.weibo.com/oauth2/get_token_info"
	weiboUserInfoURL  = "https://api.weibo.com/2/users/show.json"
)

// Weibo implements the two-step Weibo flow: the access token is resolved into
// a uid via the token-info endpoint before the profile can be fetched. The
// API never supplies an email.
type Weibo struct {
	creds  app.Credentials
	client *http.Client

	authURL      string
	tokenURL     string
	tokenInfoURL string
	userInfoURL  string
}

func NewWeibo(creds app.Credentials, client *http.Client) *Weibo {
	return &Weibo{
		creds:        creds,
		client:       client,
		authURL:      weiboAuthURL,
		tokenURL:     weiboTokenURL,
		tokenInfoURL: weiboTokenInfoURL,
		userInfoURL:  weiboUserInfoURL,
	}
}

func (p *Weibo) Metadata() relay.Metadata {
	return relay.Metadata{Key: "weibo", DisplayName: "Weibo", Origin: "api.weibo.com"}
}

func (p *Weibo) Check() bool {
	return p.creds.ClientID != "" && p.creds.ClientSecret != ""
}

func (p *Weibo) config(callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.creds.ClientID,
		ClientSecret: p.creds.ClientSecret,
		RedirectURL:  callbackURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.authURL,
			TokenURL: p.tokenURL,
		},
	}
}

func (p *Weibo) Begin(_ context.Context, req relay.BeginRequest) (string, error) {
	state := relay.EncodeState(relay.StatePayload{Nonce: req.State, Redirect: req.Redirect})
	return p.config(req.CallbackURL).AuthCodeURL(state), nil
}

func (p *Weibo) Continuation(q url.Values) (*relay.Continuation, error) {
	return stateContinuation(q)
}

func (p *Weibo) Exchange(ctx context.Context, req relay.ExchangeRequest) (*relay.Token, error) {
	tok, err := p.config(req.CallbackURL).Exchange(withClient(ctx, p.client), req.Query.Get("code"))
	if err != nil {
		return nil, errors.TokenExchange(err)
	}
	return &relay.Token{AccessToken: tok.AccessToken}, nil
}

func (p *Weibo) Profile(ctx context.Context, token *relay.Token) (relay.Identity, error) {
	uid, err := p.tokenUID(ctx, token.AccessToken)
	if err != nil {
		return relay.Identity{}, err
	}

	query := url.Values{
		"access_token": {token.AccessToken},
		"uid":          {uid},
	}

	var user struct {
		ID              int64  `json:"id"`
		IDStr           string `json:"idstr"`
		ScreenName      string `json:"screen_name"`
		Name            string `json:"name"`
		URL             string `json:"url"`
		AvatarLarge     string `json:"avatar_large"`
		ProfileImageURL string `json:"profile_image_url"`
	}
	if err := getJSON(ctx, p.client, p.userInfoURL+"?"+query.Encode(), nil, &user); err != nil {
		return relay.Identity{}, errors.ProfileFetch(err)
	}

	return relay.Identity{
		ID:     user.IDStr,
		Name:   firstNonEmpty(user.ScreenName, user.Name),
		URL:    firstNonEmpty(user.URL, fmt.Sprintf("https://weibo.com/u/%d", user.ID)),
		Avatar: firstNonEmpty(user.AvatarLarge, user.ProfileImageURL),
	}, nil
}

// tokenUID resolves the numeric account uid bound to an access token. Weibo
// returns the uid as a JSON number.
func (p *Weibo) tokenUID(ctx context.Context, accessToken string) (string, error) {
	body, err := postForm(ctx, p.client, p.tokenInfoURL, url.Values{"access_token": {accessToken}})
	if err != nil {
		return "", errors.ProfileFetch(err)
	}

	var info struct {
		UID json.Number `json:"uid"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", errors.ProfileFetch(err)
	}
	uid := info.UID.String()
	if uid == "" || uid == "0" {
		return "", errors.ProfileFetch(fmt.Errorf("missing uid in token info response"))
	}
	if _, err := strconv.ParseInt(uid, 10, 64); err != nil {
		return "", errors.ProfileFetch(fmt.Errorf("malformed uid %q", uid))
	}
	return uid, nil
}
