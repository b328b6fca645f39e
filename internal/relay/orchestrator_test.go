package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	meta      Metadata
	beginURL  string
	cont      *Continuation
	contErr   error
	token     *Token
	exchanged bool
	identity  Identity
}

func (p *fakeProvider) Metadata() Metadata { return p.meta }
func (p *fakeProvider) Check() bool        { return true }

func (p *fakeProvider) Begin(_ context.Context, req BeginRequest) (string, error) {
	return p.beginURL + "?redirect_uri=" + url.QueryEscape(req.CallbackURL), nil
}

func (p *fakeProvider) Continuation(url.Values) (*Continuation, error) {
	return p.cont, p.contErr
}

func (p *fakeProvider) Exchange(context.Context, ExchangeRequest) (*Token, error) {
	p.exchanged = true
	if p.token == nil {
		return &Token{AccessToken: "tok"}, nil
	}
	return p.token, nil
}

func (p *fakeProvider) Profile(context.Context, *Token) (Identity, error) {
	return p.identity, nil
}

type recordingSink struct {
	got chan Identity
	err error
}

func (s *recordingSink) Upsert(_ context.Context, identity Identity) error {
	s.got <- identity
	return s.err
}

func newTestRelay(p Provider, sink Sink) *Relay {
	return New(Options{
		Providers:        map[string]Provider{"fake": p},
		Sink:             sink,
		MachineUserAgent: "@waline",
		Logger:           zap.NewNop(),
	})
}

func TestFinishBrowserRelaysCodeWithoutExchange(t *testing.T) {
	p := &fakeProvider{
		meta: Metadata{Key: "fake"},
		cont: &Continuation{Redirect: "https://caller.example.com/auth", State: "csrf-9"},
	}
	r := newTestRelay(p, nil)

	q := url.Values{"code": {"abc123"}}
	outcome, err := r.Finish(context.Background(), p, "https://relay.example.com/fake", q, false)
	require.NoError(t, err)
	require.Nil(t, outcome.Identity)
	require.False(t, p.exchanged, "pass-through must not hit the token endpoint")

	parsed, err := url.Parse(outcome.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "caller.example.com", parsed.Host)
	require.Equal(t, "abc123", parsed.Query().Get("code"))
	require.Equal(t, "csrf-9", parsed.Query().Get("state"))
}

func TestFinishBrowserPreservesExistingQuery(t *testing.T) {
	p := &fakeProvider{
		meta: Metadata{Key: "fake"},
		cont: &Continuation{Redirect: "https://caller.example.com/auth?lang=en"},
	}
	r := newTestRelay(p, nil)

	outcome, err := r.Finish(context.Background(), p, "cb", url.Values{"code": {"c"}}, false)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(outcome.RedirectURL, "https://caller.example.com/auth?lang=en&"))
}

func TestFinishMachineExchangesLocally(t *testing.T) {
	p := &fakeProvider{
		meta:     Metadata{Key: "fake"},
		cont:     &Continuation{Redirect: "https://caller.example.com/auth"},
		identity: Identity{ID: "77", Name: "Bob"},
	}
	r := newTestRelay(p, nil)

	outcome, err := r.Finish(context.Background(), p, "cb", url.Values{"code": {"c"}}, true)
	require.NoError(t, err)
	require.Empty(t, outcome.RedirectURL)
	require.True(t, p.exchanged)
	require.NotNil(t, outcome.Identity)
	require.Equal(t, "77", outcome.Identity.ID)
	require.Equal(t, "fake", outcome.Identity.Platform)
}

func TestFinishNoRedirectExchangesLocally(t *testing.T) {
	p := &fakeProvider{
		meta:     Metadata{Key: "fake"},
		cont:     &Continuation{},
		identity: Identity{ID: "1", Name: "n"},
	}
	r := newTestRelay(p, nil)

	outcome, err := r.Finish(context.Background(), p, "cb", url.Values{"code": {"c"}}, false)
	require.NoError(t, err)
	require.True(t, p.exchanged)
	require.NotNil(t, outcome.Identity)
}

func TestFinishAssertionOnlyNeverRelays(t *testing.T) {
	// Steam-style callbacks carry no code; even with a recoverable redirect the
	// relay must complete the exchange itself.
	p := &fakeProvider{
		meta:     Metadata{Key: "fake"},
		cont:     &Continuation{Redirect: "https://caller.example.com/auth"},
		identity: Identity{ID: "sid", Name: "player"},
	}
	r := newTestRelay(p, nil)

	q := url.Values{"openid.mode": {"id_res"}}
	outcome, err := r.Finish(context.Background(), p, "cb", q, false)
	require.NoError(t, err)
	require.True(t, p.exchanged)
	require.NotNil(t, outcome.Identity)
}

func TestFinishPersistsAsync(t *testing.T) {
	sink := &recordingSink{got: make(chan Identity, 1)}
	p := &fakeProvider{
		meta:     Metadata{Key: "fake"},
		identity: Identity{ID: "5", Name: "Eve"},
	}
	r := newTestRelay(p, sink)

	_, err := r.Finish(context.Background(), p, "cb", url.Values{"code": {"c"}}, true)
	require.NoError(t, err)

	select {
	case got := <-sink.got:
		require.Equal(t, "5", got.ID)
		require.Equal(t, "fake", got.Platform)
	case <-time.After(time.Second):
		t.Fatal("sink was never invoked")
	}
}

func TestFinishSinkFailureDoesNotAffectOutcome(t *testing.T) {
	sink := &recordingSink{got: make(chan Identity, 1), err: context.DeadlineExceeded}
	p := &fakeProvider{
		meta:     Metadata{Key: "fake"},
		identity: Identity{ID: "5", Name: "Eve"},
	}
	r := newTestRelay(p, sink)

	outcome, err := r.Finish(context.Background(), p, "cb", url.Values{"code": {"c"}}, true)
	require.NoError(t, err)
	require.NotNil(t, outcome.Identity)

	select {
	case <-sink.got:
	case <-time.After(time.Second):
		t.Fatal("sink was never invoked")
	}
}

func TestCallbackURL(t *testing.T) {
	p := &fakeProvider{meta: Metadata{Key: "fake"}}

	t.Run("configured server url wins", func(t *testing.T) {
		r := New(Options{Providers: map[string]Provider{"fake": p}, ServerURL: "https://relay.example.com/"})
		req := httptest.NewRequest(http.MethodGet, "http://ignored.example.com/fake", nil)
		require.Equal(t, "https://relay.example.com/fake", r.CallbackURL(req, "fake"))
	})

	t.Run("forwarded headers", func(t *testing.T) {
		r := New(Options{Providers: map[string]Provider{"fake": p}})
		req := httptest.NewRequest(http.MethodGet, "http://internal:8000/fake", nil)
		req.Header.Set("x-forwarded-proto", "https")
		req.Header.Set("x-forwarded-host", "public.example.com")
		require.Equal(t, "https://public.example.com/fake", r.CallbackURL(req, "fake"))
	})

	t.Run("host fallback", func(t *testing.T) {
		r := New(Options{Providers: map[string]Provider{"fake": p}})
		req := httptest.NewRequest(http.MethodGet, "http://internal:8000/fake", nil)
		require.Equal(t, "http://internal:8000/fake", r.CallbackURL(req, "fake"))
	})
}

func TestIsMachine(t *testing.T) {
	r := New(Options{MachineUserAgent: "@waline"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.False(t, r.IsMachine(req))

	req.Header.Set("User-Agent", "@waline")
	require.True(t, r.IsMachine(req))

	req.Header.Set("User-Agent", "Mozilla/5.0")
	require.False(t, r.IsMachine(req))

	req.Header.Set("Accept", "application/json, text/plain")
	require.True(t, r.IsMachine(req))
}

func TestIsCallback(t *testing.T) {
	require.False(t, IsCallback(url.Values{}))
	require.False(t, IsCallback(url.Values{"redirect": {"/done"}}))
	require.True(t, IsCallback(url.Values{"code": {"abc"}}))
	require.True(t, IsCallback(url.Values{"oauth_token": {"t"}, "oauth_verifier": {"v"}}))
	require.False(t, IsCallback(url.Values{"oauth_token": {"t"}}))
	require.True(t, IsCallback(url.Values{"openid.mode": {"id_res"}}))
	require.False(t, IsCallback(url.Values{"openid.mode": {"cancel"}}))
}

func TestProviderLookupNormalizesKey(t *testing.T) {
	p := &fakeProvider{meta: Metadata{Key: "fake"}}
	r := New(Options{Providers: map[string]Provider{"Fake": p}})

	got, ok := r.Provider(" FAKE ")
	require.True(t, ok)
	require.Same(t, p, got.(*fakeProvider))

	_, ok = r.Provider("nope")
	require.False(t, ok)
}
