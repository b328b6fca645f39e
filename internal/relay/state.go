package relay

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// StatePayload carries the caller context that must survive the external
// provider hop inside the opaque `state` query parameter.
type StatePayload struct {
	// Nonce is the caller-supplied CSRF value, treated as opaque.
	Nonce string `json:"state,omitempty"`
	// Redirect is the caller's final destination after login completes.
	Redirect string `json:"redirect,omitempty"`
	// Verifier holds the PKCE code verifier for providers that have no
	// server-side continuation storage.
	Verifier string `json:"verifier,omitempty"`
	// Callback records the exact redirect_uri used at authorize time, for
	// token endpoints that enforce byte-identical redirect_uri values.
	Callback string `json:"callback,omitempty"`
}

// EncodeState serialises the payload as unpadded base64url JSON, safe to embed
// in a query parameter without escaping.
func EncodeState(p StatePayload) string {
	raw, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeState parses a state token produced by EncodeState. It returns nil on
// any malformed input so callers can map the failure to a clean 400 response.
func DecodeState(token string) *StatePayload {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	// Tolerate padded or standard-alphabet variants round-tripped by providers.
	token = strings.TrimRight(token, "=")
	token = strings.ReplaceAll(strings.ReplaceAll(token, "+", "-"), "/", "_")

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil
	}

	var p StatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return &p
}
