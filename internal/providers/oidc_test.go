package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
)

func TestOIDCCheck(t *testing.T) {
	cases := []struct {
		name     string
		settings app.OIDCSettings
		want     bool
	}{
		{"no credentials", app.OIDCSettings{Issuer: "https://id.example.com"}, false},
		{
			"issuer configured",
			app.OIDCSettings{
				Credentials: app.Credentials{ClientID: "cid", ClientSecret: "sec"},
				Issuer:      "https://id.example.com",
			},
			true,
		},
		{
			"explicit endpoints",
			app.OIDCSettings{
				Credentials: app.Credentials{ClientID: "cid", ClientSecret: "sec"},
				AuthURL:     "https://id.example.com/auth",
				TokenURL:    "https://id.example.com/token",
				UserinfoURL: "https://id.example.com/userinfo",
			},
			true,
		},
		{
			"incomplete endpoints",
			app.OIDCSettings{
				Credentials: app.Credentials{ClientID: "cid", ClientSecret: "sec"},
				AuthURL:     "https://id.example.com/auth",
			},
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewOIDC(tc.settings, http.DefaultClient)
			if got := p.Check(); got != tc.want {
				t.Fatalf("Check() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOIDCExplicitEndpointsSkipDiscovery(t *testing.T) {
	p := NewOIDC(app.OIDCSettings{
		Credentials: app.Credentials{ClientID: "cid", ClientSecret: "sec"},
		Issuer:      "https://never-fetched.example.com",
		AuthURL:     "https://id.example.com/auth",
		TokenURL:    "https://id.example.com/token",
		UserinfoURL: "https://id.example.com/userinfo",
	}, http.DefaultClient)

	endpoints, err := p.discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if endpoints.authURL != "https://id.example.com/auth" {
		t.Fatalf("authURL = %q", endpoints.authURL)
	}
	if endpoints.userinfoURL != "https://id.example.com/userinfo" {
		t.Fatalf("userinfoURL = %q", endpoints.userinfoURL)
	}
}

func TestOIDCDiscoveryIsCachedForProcessLifetime(t *testing.T) {
	fetches := 0
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"userinfo_endpoint":      srv.URL + "/userinfo",
			"jwks_uri":               srv.URL + "/jwks",
		})
	})

	p := NewOIDC(app.OIDCSettings{
		Credentials: app.Credentials{ClientID: "cid", ClientSecret: "sec"},
		Issuer:      srv.URL,
	}, srv.Client())

	first, err := p.discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if first.authURL != srv.URL+"/auth" || first.userinfoURL != srv.URL+"/userinfo" {
		t.Fatalf("unexpected endpoints: %+v", first)
	}

	second, err := p.discover(context.Background())
	if err != nil {
		t.Fatalf("second discover: %v", err)
	}
	if second != first {
		t.Fatal("second discover must return the cached endpoint set")
	}
	if fetches != 1 {
		t.Fatalf("discovery document fetched %d times, want 1", fetches)
	}
}

func TestOIDCDiscoveryMissingConfiguration(t *testing.T) {
	p := NewOIDC(app.OIDCSettings{
		Credentials: app.Credentials{ClientID: "cid", ClientSecret: "sec"},
	}, http.DefaultClient)

	if _, err := p.discover(context.Background()); err == nil {
		t.Fatal("expected error without issuer or explicit endpoints")
	}
}

func TestOIDCProfileFlexibleClaims(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer oidc-tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"sub":"sub-1",
			"preferred_username":"pref",
			"email":"oidc@example.com",
			"picture":"` + "`https://o.example.com/p.jpg`" + `",
			"website":"https://blog.example.com"
		}`))
	}))
	defer srv.Close()

	p := NewOIDC(app.OIDCSettings{
		Credentials: app.Credentials{ClientID: "cid", ClientSecret: "sec"},
		AuthURL:     "https://id.example.com/auth",
		TokenURL:    "https://id.example.com/token",
		UserinfoURL: srv.URL,
	}, srv.Client())

	identity, err := p.Profile(context.Background(), &relay.Token{AccessToken: "oidc-tok"})
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if identity.ID != "sub-1" {
		t.Fatalf("id = %q", identity.ID)
	}
	if identity.Name != "pref" {
		t.Fatalf("name = %q, want preferred_username fallback", identity.Name)
	}
	if identity.Avatar != "https://o.example.com/p.jpg" {
		t.Fatalf("avatar = %q, want backticks stripped", identity.Avatar)
	}
	if identity.URL != "https://blog.example.com" {
		t.Fatalf("url = %q", identity.URL)
	}
}

func TestCleanAvatarClaim(t *testing.T) {
	cases := map[string]string{
		"https://a.example.com/p.jpg":       "https://a.example.com/p.jpg",
		"`https://a.example.com/p.jpg`":     "https://a.example.com/p.jpg",
		`"https://a.example.com/p.jpg"`:     "https://a.example.com/p.jpg",
		"  https://a.example.com/p.jpg \t ": "https://a.example.com/p.jpg",
		"": "",
	}
	for in, want := range cases {
		if got := cleanAvatarClaim(in); got != want {
			t.Fatalf("cleanAvatarClaim(%q) = %q, want %q", in, got, want)
		}
	}
}
