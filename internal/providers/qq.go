package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/pkg/errors"
)

const (
	qqAuthURL      = "https://graph.qq.com/oauth2.0/authorize"
	qqTokenURL     = "https://graph.qq.com/oauth2.0/token"
	qqTokenInfoURL = "https://graph.qq.com/oauth2.0/me"
	qqUserInfoURL  = "https://graph.qq.com/user/get_user_info"
)

// QQ implements the two-step QQ Connect flow: the access token is first
// resolved into an openid (and unionid when granted) via the token-info
// endpoint before the profile can be fetched. The unionid is preferred as the
// stable identity when present. QQ never supplies an email, so a
// deterministic placeholder is synthesized from the openid.
type QQ struct {
	creds  app.Credentials
	client *http.Client

	authURL      string
	tokenURL     string
	tokenInfoURL string
	userInfoURL  string
}

func NewQQ(creds app.Credentials, client *http.Client) *QQ {
	return &QQ{
		creds:        creds,
		client:       client,
		authURL:      qqAuthURL,
		tokenURL:     qqTokenURL,
		tokenInfoURL: qqTokenInfoURL,
		userInfoURL:  qqUserInfoURL,
	}
}

func (p *QQ) Metadata() relay.Metadata {
	return relay.Metadata{Key: "qq", DisplayName: "QQ", Origin: "graph.qq.com"}
}

func (p *QQ) Check() bool {
	return p.creds.ClientID != "" && p.creds.ClientSecret != ""
}

func (p *QQ) config(callbackURL string) *oauth2.Config {
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

func (p *QQ) Begin(_ context.Context, req relay.BeginRequest) (string, error) {
	state := relay.EncodeState(relay.StatePayload{Nonce: req.State, Redirect: req.Redirect})
	return p.config(req.CallbackURL).AuthCodeURL(state), nil
}

func (p *QQ) Continuation(q url.Values) (*relay.Continuation, error) {
	return stateContinuation(q)
}

func (p *QQ) Exchange(ctx context.Context, req relay.ExchangeRequest) (*relay.Token, error) {
	tok, err := p.config(req.CallbackURL).Exchange(withClient(ctx, p.client), req.Query.Get("code"),
		oauth2.SetAuthURLParam("fmt", "json"),
	)
	if err != nil {
		return nil, errors.TokenExchange(err)
	}
	return &relay.Token{AccessToken: tok.AccessToken}, nil
}

func (p *QQ) Profile(ctx context.Context, token *relay.Token) (relay.Identity, error) {
	info, err := p.tokenInfo(ctx, token.AccessToken)
	if err != nil {
		return relay.Identity{}, err
	}

	query := url.Values{
		"access_token":       {token.AccessToken},
		"openid":             {info.OpenID},
		"oauth_consumer_key": {firstNonEmpty(info.ClientID, p.creds.ClientID)},
		"format":             {"json"},
	}

	var user struct {
		Ret          int    `json:"ret"`
		Msg          string `json:"msg"`
		Nickname     string `json:"nickname"`
		FigureURLQQ2 string `json:"figureurl_qq_2"`
		FigureURLQQ1 string `json:"figureurl_qq_1"`
		FigureURLQQ  string `json:"figureurl_qq"`
		FigureURL2   string `json:"figureurl_2"`
		FigureURL1   string `json:"figureurl_1"`
		FigureURL    string `json:"figureurl"`
	}
	if err := getJSON(ctx, p.client, p.userInfoURL+"?"+query.Encode(), nil, &user); err != nil {
		return relay.Identity{}, errors.ProfileFetch(err)
	}
	if user.Ret != 0 {
		return relay.Identity{}, errors.ProfileFetch(fmt.Errorf("qq user info error %d: %s", user.Ret, user.Msg))
	}

	return relay.Identity{
		ID:    firstNonEmpty(info.UnionID, info.OpenID),
		Name:  firstNonEmpty(user.Nickname, "QQ User"),
		Email: info.OpenID + "@qq-uuid.com",
		Avatar: firstNonEmpty(
			user.FigureURLQQ2, user.FigureURLQQ1, user.FigureURLQQ,
			user.FigureURL2, user.FigureURL1, user.FigureURL,
		),
	}, nil
}

type qqTokenInfo struct {
	ClientID string `json:"client_id"`
	OpenID   string `json:"openid"`
	UnionID  string `json:"unionid"`
	ErrCode  int    `json:"error"`
	ErrMsg   string `json:"error_description"`
}

func (p *QQ) tokenInfo(ctx context.Context, accessToken string) (*qqTokenInfo, error) {
	query := url.Values{
		"access_token": {accessToken},
		"unionid":      {"1"},
		"fmt":          {"json"},
	}

	var info qqTokenInfo
	if err := getJSON(ctx, p.client, p.tokenInfoURL+"?"+query.Encode(), nil, &info); err != nil {
		return nil, errors.ProfileFetch(err)
	}
	if info.ErrCode != 0 {
		return nil, errors.ProfileFetch(fmt.Errorf("qq token info error %d: %s", info.ErrCode, info.ErrMsg))
	}
	if info.OpenID == "" {
		return nil, errors.Validation("missing openid in QQ token info response")
	}
	return &info, nil
}
