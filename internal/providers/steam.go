package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/pkg/errors"
)

const (
	steamOpenIDURL        = "https://steamcommunity.com/openid/login"
	steamPlayerSummaryURL = "https://api.steampowered.com/ISteamUser/GetPlayerSummaries/v2/"
)

// Steam implements OpenID 2.0, which issues no authorization code or token at
// all. The finish step replays the assertion back to Steam with mode
// check_authentication and extracts the numeric SteamID from the claimed_id.
// The caller continuation rides inside the openid.return_to URL, since
// OpenID performs no exact-match validation on it. Steam never exposes an
// email, so a deterministic placeholder is synthesized from the SteamID.
type Steam struct {
	apiKey string
	client *http.Client

	openIDURL        string
	playerSummaryURL string
}

func NewSteam(settings app.SteamSettings, client *http.Client) *Steam {
	return &Steam{
		apiKey:           settings.APIKey,
		client:           client,
		openIDURL:        steamOpenIDURL,
		playerSummaryURL: steamPlayerSummaryURL,
	}
}

func (p *Steam) Metadata() relay.Metadata {
	return relay.Metadata{Key: "steam", DisplayName: "Steam", Origin: "api.steampowered.com"}
}

func (p *Steam) Check() bool {
	return p.apiKey != ""
}

func (p *Steam) Begin(_ context.Context, req relay.BeginRequest) (string, error) {
	returnTo := req.CallbackURL
	continuation := url.Values{}
	if req.Redirect != "" {
		continuation.Set("redirect", req.Redirect)
	}
	if req.State != "" {
		continuation.Set("state", req.State)
	}
	if len(continuation) > 0 {
		returnTo += "?" + continuation.Encode()
	}

	realm := returnTo
	if u, err := url.Parse(req.CallbackURL); err == nil {
		realm = u.Scheme + "://" + u.Host
	}

	params := url.Values{
		"openid.ns":         {"http://specs.openid.net/auth/2.0"},
		"openid.mode":       {"checkid_setup"},
		"openid.return_to":  {returnTo},
		"openid.realm":      {realm},
		"openid.identity":   {"http://specs.openid.net/auth/2.0/identifier_select"},
		"openid.claimed_id": {"http://specs.openid.net/auth/2.0/identifier_select"},
	}
	return p.openIDURL + "?" + params.Encode(), nil
}

func (p *Steam) Continuation(q url.Values) (*relay.Continuation, error) {
	return &relay.Continuation{
		Redirect: q.Get("redirect"),
		State:    q.Get("state"),
	}, nil
}

func (p *Steam) Exchange(ctx context.Context, req relay.ExchangeRequest) (*relay.Token, error) {
	form := url.Values{}
	for key, values := range req.Query {
		if strings.HasPrefix(key, "openid.") {
			form[key] = values
		}
	}
	form.Set("openid.mode", "check_authentication")

	body, err := postForm(ctx, p.client, p.openIDURL, form)
	if err != nil {
		return nil, errors.TokenExchange(err)
	}
	if !strings.Contains(string(body), "is_valid:true") {
		return nil, errors.New(http.StatusUnauthorized, "Steam OpenID verification failed")
	}

	steamID := req.Query.Get("openid.claimed_id")
	if idx := strings.LastIndex(steamID, "/"); idx >= 0 {
		steamID = steamID[idx+1:]
	}
	if steamID == "" {
		return nil, errors.TokenExchange(fmt.Errorf("missing claimed_id in Steam assertion"))
	}

	return &relay.Token{Extra: map[string]string{"steam_id": steamID}}, nil
}

func (p *Steam) Profile(ctx context.Context, token *relay.Token) (relay.Identity, error) {
	steamID := token.Extra["steam_id"]
	query := url.Values{
		"key":      {p.apiKey},
		"steamids": {steamID},
	}

	var resp struct {
		Response struct {
			Players []struct {
				SteamID     string `json:"steamid"`
				PersonaName string `json:"personaname"`
				ProfileURL  string `json:"profileurl"`
				AvatarFull  string `json:"avatarfull"`
			} `json:"players"`
		} `json:"response"`
	}
	if err := getJSON(ctx, p.client, p.playerSummaryURL+"?"+query.Encode(), nil, &resp); err != nil {
		return relay.Identity{}, errors.ProfileFetch(err)
	}
	if len(resp.Response.Players) == 0 {
		return relay.Identity{}, errors.ProfileFetch(fmt.Errorf("no player summary for steamid %s", steamID))
	}

	player := resp.Response.Players[0]
	return relay.Identity{
		ID:     player.SteamID,
		Name:   player.PersonaName,
		Email:  player.SteamID + "@steam-uuid.com",
		URL:    player.ProfileURL,
		Avatar: player.AvatarFull,
	}, nil
}
