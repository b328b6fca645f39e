package providers

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/relay"
	apperrors "github.com/commentd/oauth-relay/pkg/errors"
)

func TestBuildAllRegistersEveryProvider(t *testing.T) {
	cfg := &app.Config{}
	adapters := BuildAll(cfg, Options{})

	wantKeys := []string{
		"github", "google", "facebook", "qq", "weibo",
		"twitter", "x", "oidc", "huawei", "steam",
	}
	require.Len(t, adapters, len(wantKeys))
	for _, key := range wantKeys {
		p, ok := adapters[key]
		require.True(t, ok, "missing provider %q", key)
		require.Equal(t, key, p.Metadata().Key)
		require.False(t, p.Check(), "provider %q must report unconfigured without credentials", key)
	}
}

func TestBuildAllSharesTwitterCredentials(t *testing.T) {
	cfg := &app.Config{}
	cfg.Providers.Twitter = app.Credentials{ClientID: "ck", ClientSecret: "cs"}

	adapters := BuildAll(cfg, Options{})
	require.True(t, adapters["twitter"].Check())
	require.True(t, adapters["x"].Check(), "x reuses the twitter credentials")
}

func TestStateContinuation(t *testing.T) {
	state := relay.EncodeState(relay.StatePayload{
		Nonce:    "csrf",
		Redirect: "/done",
		Verifier: "ver",
	})

	cont, err := stateContinuation(url.Values{"state": {state}})
	require.NoError(t, err)
	require.Equal(t, "/done", cont.Redirect)
	require.Equal(t, "csrf", cont.State)
	require.Equal(t, "ver", cont.Verifier)

	_, err = stateContinuation(url.Values{"state": {"%%garbage%%"}})
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = stateContinuation(url.Values{})
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
	require.Equal(t, "", firstNonEmpty("", "   "))
}
