package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenStorePutGetDelete(t *testing.T) {
	store := NewTokenStore(time.Minute)

	entry := RequestToken{Secret: "s", Redirect: "/done", Nonce: "n"}
	store.Put("tok-1", entry)

	got, ok := store.Get("tok-1")
	require.True(t, ok)
	require.Equal(t, entry, got)

	store.Delete("tok-1")
	_, ok = store.Get("tok-1")
	require.False(t, ok)
}

func TestTokenStoreMiss(t *testing.T) {
	store := NewTokenStore(time.Minute)

	_, ok := store.Get("never-stored")
	require.False(t, ok)

	// Blank tokens are never stored.
	store.Put("", RequestToken{Secret: "s"})
	_, ok = store.Get("")
	require.False(t, ok)
}

func TestTokenStoreExpiry(t *testing.T) {
	store := NewTokenStore(20 * time.Millisecond)

	store.Put("tok-exp", RequestToken{Secret: "s"})
	time.Sleep(60 * time.Millisecond)

	_, ok := store.Get("tok-exp")
	require.False(t, ok)
}
