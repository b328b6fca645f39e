package relay

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCEPair represents the verifier/challenge material required for PKCE flows.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE produces a PKCE verifier and associated S256 challenge.
func GeneratePKCE() (PKCEPair, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return PKCEPair{}, fmt.Errorf("pkce: generate verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf)

	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	return PKCEPair{
		Verifier:  verifier,
		Challenge: challenge,
	}, nil
}
