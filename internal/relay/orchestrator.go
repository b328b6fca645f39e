package relay

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/commentd/oauth-relay/pkg/errors"
)

const defaultPersistTimeout = 1500 * time.Millisecond

// Sink receives normalized identities as a best-effort side effect. Failures
// are logged and must never reach the response path.
type Sink interface {
	Upsert(ctx context.Context, identity Identity) error
}

// Options configures a Relay.
type Options struct {
	// Providers maps provider key to adapter instance, resolved once at startup.
	Providers map[string]Provider
	// Sink is optional; a nil sink disables persistence.
	Sink Sink
	// MachineUserAgent identifies server-to-server callers. Requests carrying
	// this exact User-Agent never receive the relay redirect.
	MachineUserAgent string
	// ServerURL, when set, is the canonical base used for callback URLs instead
	// of forwarded headers.
	ServerURL string
	// PersistTimeout bounds how long the detached persistence task is observed
	// for logging purposes.
	PersistTimeout time.Duration

	Logger *zap.Logger
}

// Relay drives the per-request OAuth control flow: deciding between start-login
// and finish-login, and between handing the code back to the caller and
// completing the exchange locally.
type Relay struct {
	providers      map[string]Provider
	sink           Sink
	machineUA      string
	serverURL      string
	persistTimeout time.Duration
	log            *zap.Logger
}

// Outcome is the terminal result of a relay operation: exactly one of
// RedirectURL and Identity is set.
type Outcome struct {
	RedirectURL string
	Identity    *Identity
}

// Capability is the per-provider descriptor surfaced to capability discovery.
type Capability struct {
	Configured bool   `json:"configured"`
	Origin     string `json:"origin"`
}

// New constructs a Relay from resolved adapters.
func New(opts Options) *Relay {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.PersistTimeout
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}

	providers := make(map[string]Provider, len(opts.Providers))
	for key, p := range opts.Providers {
		providers[strings.ToLower(strings.TrimSpace(key))] = p
	}

	return &Relay{
		providers:      providers,
		sink:           opts.Sink,
		machineUA:      strings.TrimSpace(opts.MachineUserAgent),
		serverURL:      strings.TrimRight(strings.TrimSpace(opts.ServerURL), "/"),
		persistTimeout: timeout,
		log:            log,
	}
}

// Provider resolves an adapter by its key.
func (r *Relay) Provider(key string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(key))]
	return p, ok
}

// Capabilities lists every registered provider with its configuration status,
// ordered by key for stable output.
func (r *Relay) Capabilities() map[string]Capability {
	out := make(map[string]Capability, len(r.providers))
	keys := make([]string, 0, len(r.providers))
	for key := range r.providers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		p := r.providers[key]
		out[key] = Capability{
			Configured: p.Check(),
			Origin:     p.Metadata().Origin,
		}
	}
	return out
}

// CallbackURL builds the relay's canonical callback for a provider from the
// configured server URL, or from trusted forwarded headers when none is set.
// The caller's redirect parameter never participates here.
func (r *Relay) CallbackURL(req *http.Request, key string) string {
	base := r.serverURL
	if base == "" {
		proto := headerOr(req, "x-forwarded-proto", "http")
		host := headerOr(req, "x-forwarded-host", req.Host)
		base = proto + "://" + host
	}
	return base + "/" + strings.ToLower(strings.TrimSpace(key))
}

// IsMachine reports whether the request comes from a server-to-server caller:
// either the fixed machine User-Agent or an explicit JSON accept header.
func (r *Relay) IsMachine(req *http.Request) bool {
	if r.machineUA != "" && req.Header.Get("User-Agent") == r.machineUA {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// IsCallback reports whether the query belongs to a finish-login request.
func IsCallback(q url.Values) bool {
	if q.Get("code") != "" {
		return true
	}
	if q.Get("oauth_token") != "" && q.Get("oauth_verifier") != "" {
		return true
	}
	return q.Get("openid.mode") == "id_res"
}

// Start handles a start-login request and returns the provider authorize URL.
func (r *Relay) Start(ctx context.Context, p Provider, callbackURL, redirect, state string) (string, error) {
	authorizeURL, err := p.Begin(ctx, BeginRequest{
		CallbackURL: callbackURL,
		Redirect:    redirect,
		State:       state,
	})
	if err != nil {
		return "", errors.FromError(err)
	}
	return authorizeURL, nil
}

// Finish handles a finish-login request. When the caller looks like a browser
// and the original redirect is recoverable, the code is bounced back to the
// caller untouched; otherwise the relay completes the exchange itself and
// returns the normalized identity.
func (r *Relay) Finish(ctx context.Context, p Provider, callbackURL string, q url.Values, machine bool) (*Outcome, error) {
	key := p.Metadata().Key

	cont, err := p.Continuation(q)
	if err != nil {
		return nil, errors.FromError(err)
	}
	if cont == nil {
		cont = &Continuation{}
	}

	if !machine && cont.Redirect != "" {
		if params := relayParams(q, cont); params != nil {
			return &Outcome{RedirectURL: appendQuery(cont.Redirect, params)}, nil
		}
	}

	token, err := p.Exchange(ctx, ExchangeRequest{
		CallbackURL: callbackURL,
		Query:       q,
		Cont:        cont,
	})
	if err != nil {
		return nil, errors.FromError(err)
	}

	raw, err := p.Profile(ctx, token)
	if err != nil {
		return nil, errors.FromError(err)
	}

	identity, err := Normalize(raw, key)
	if err != nil {
		return nil, err
	}

	r.persistAsync(identity)

	return &Outcome{Identity: &identity}, nil
}

// relayParams builds the query parameters appended to the caller redirect in
// pass-through mode. Assertion-style providers with no code to hand over (such
// as Steam OpenID) return nil, forcing a local exchange instead.
func relayParams(q url.Values, cont *Continuation) url.Values {
	if token := q.Get("oauth_token"); token != "" && q.Get("oauth_verifier") != "" {
		return url.Values{
			"oauth_token":    {token},
			"oauth_verifier": {q.Get("oauth_verifier")},
		}
	}

	code := q.Get("code")
	if code == "" {
		return nil
	}
	params := url.Values{"code": {code}}
	if cont.State != "" {
		params.Set("state", cont.State)
	}
	return params
}

// persistAsync submits the identity to the sink as a detached task. The task
// is raced against a short timeout purely for logging; its outcome never
// alters the response already being sent.
func (r *Relay) persistAsync(identity Identity) {
	if r.sink == nil {
		return
	}

	taskID := uuid.NewString()
	log := r.log.With(
		zap.String("task", taskID),
		zap.String("platform", identity.Platform),
		zap.String("id", identity.ID),
	)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.persistTimeout)
		defer cancel()

		if err := r.sink.Upsert(ctx, identity); err != nil {
			log.Warn("identity persistence failed", zap.Error(err))
			return
		}
		log.Debug("identity persisted")
	}()
}

func appendQuery(target string, params url.Values) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + params.Encode()
}

func headerOr(req *http.Request, name, fallback string) string {
	if v := strings.TrimSpace(req.Header.Get(name)); v != "" {
		return v
	}
	return fallback
}
