package relay

import (
	"context"
	"net/url"
)

// Metadata describes the static presentation details for a provider adapter.
type Metadata struct {
	// Key is the lower-case path segment the adapter is mounted under.
	Key string
	// DisplayName is a human readable provider name.
	DisplayName string
	// Origin is the provider hostname surfaced by capability discovery.
	Origin string
}

// BeginRequest captures the context required to start an external auth flow.
type BeginRequest struct {
	// CallbackURL is the relay's canonical callback for this provider. It is
	// always the value registered as redirect_uri with the external provider;
	// the caller's own redirect never appears there.
	CallbackURL string
	// Redirect is the caller's final destination, carried opaquely.
	Redirect string
	// State is the caller-supplied CSRF value, carried opaquely.
	State string
}

// Continuation is the caller context recovered at the finish step.
type Continuation struct {
	Redirect string
	State    string
	Verifier string
}

// ExchangeRequest bundles everything an adapter may need to turn a provider
// callback into token material.
type ExchangeRequest struct {
	CallbackURL string
	Query       url.Values
	Cont        *Continuation
}

// Token is the provider-agnostic result of a token exchange. Adapters stash
// dialect-specific material (id_token, OAuth1 secrets, SteamID) in the fields
// their Profile step reads back.
type Token struct {
	AccessToken string
	IDToken     string
	Extra       map[string]string
}

// Provider is the contract every adapter implements. Begin, Exchange and
// Profile map onto the three-step protocol shared by all dialects; the
// Continuation step recovers the caller context each dialect round-trips in
// its own way.
type Provider interface {
	Metadata() Metadata

	// Check reports whether the required credentials are configured. It is
	// consumed by capability discovery only; a misconfigured adapter still
	// attempts the flow and fails loudly on first use.
	Check() bool

	// Begin builds the provider authorization URL for a start-login request.
	Begin(ctx context.Context, req BeginRequest) (string, error)

	// Continuation recovers the caller redirect and CSRF value from the
	// provider callback query.
	Continuation(query url.Values) (*Continuation, error)

	// Exchange turns the provider callback into token material.
	Exchange(ctx context.Context, req ExchangeRequest) (*Token, error)

	// Profile retrieves and maps the provider profile. The result is a
	// provider-shaped Identity the Normalizer validates afterwards.
	Profile(ctx context.Context, token *Token) (Identity, error)
}
