package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
)

func TestGitHubBegin(t *testing.T) {
	p := NewGitHub(app.Credentials{ClientID: "cid", ClientSecret: "sec"}, http.DefaultClient)

	raw, err := p.Begin(context.Background(), relay.BeginRequest{
		CallbackURL: "https://relay.example.com/github",
		Redirect:    "https://caller.example.com/done",
		State:       "csrf",
	})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	q := u.Query()
	if got := q.Get("redirect_uri"); got != "https://relay.example.com/github" {
		t.Fatalf("redirect_uri = %q, want the relay callback", got)
	}
	if got := q.Get("client_id"); got != "cid" {
		t.Fatalf("client_id = %q", got)
	}

	payload := relay.DecodeState(q.Get("state"))
	if payload == nil {
		t.Fatal("state does not decode")
	}
	if payload.Redirect != "https://caller.example.com/done" || payload.Nonce != "csrf" {
		t.Fatalf("unexpected state payload: %+v", payload)
	}
}

func TestGitHubProfileEmailFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"login":"octo","name":"","email":"","blog":"","avatar_url":"https://a.example.com/octo.png"}`))
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"email":"old@example.com","primary":false,"verified":true},
			{"email":"main@example.com","primary":true,"verified":true}
		]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewGitHub(app.Credentials{ClientID: "cid", ClientSecret: "sec"}, srv.Client())
	p.userURL = srv.URL + "/user"
	p.emailsURL = srv.URL + "/emails"

	identity, err := p.Profile(context.Background(), &relay.Token{AccessToken: "tok-1"})
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}

	if identity.ID != "octo" {
		t.Fatalf("id = %q, want login", identity.ID)
	}
	if identity.Name != "octo" {
		t.Fatalf("name = %q, want login fallback", identity.Name)
	}
	if identity.Email != "main@example.com" {
		t.Fatalf("email = %q, want verified primary", identity.Email)
	}
	if identity.URL != "https://github.com/octo" {
		t.Fatalf("url = %q, want profile fallback", identity.URL)
	}
}

func TestGitHubProfileEmailLookupFailureIsNotFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"login":"octo","name":"Octo Cat"}`))
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewGitHub(app.Credentials{ClientID: "cid", ClientSecret: "sec"}, srv.Client())
	p.userURL = srv.URL + "/user"
	p.emailsURL = srv.URL + "/emails"

	identity, err := p.Profile(context.Background(), &relay.Token{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if identity.Email != "" {
		t.Fatalf("email = %q, want empty", identity.Email)
	}
	if identity.Name != "Octo Cat" {
		t.Fatalf("name = %q", identity.Name)
	}
}
