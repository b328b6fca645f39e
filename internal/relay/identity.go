package relay

import (
	"strings"

	"github.com/commentd/oauth-relay/pkg/errors"
)

// Identity is the canonical user record produced by every provider adapter.
// Optional fields are omitted from JSON when blank so consumers can rely on
// present-xor-omitted semantics.
type Identity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	URL      string `json:"url,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Platform string `json:"platform"`
}

// Normalize validates and reshapes an adapter-supplied identity. The platform
// field is always overridden with the requested provider key, regardless of
// what the adapter set.
func Normalize(raw Identity, platform string) (Identity, error) {
	out := Identity{
		ID:       strings.TrimSpace(raw.ID),
		Name:     strings.TrimSpace(raw.Name),
		Email:    strings.TrimSpace(raw.Email),
		URL:      strings.TrimSpace(raw.URL),
		Avatar:   strings.TrimSpace(raw.Avatar),
		Platform: strings.TrimSpace(platform),
	}

	var missing []string
	if out.ID == "" {
		missing = append(missing, "id")
	}
	if out.Name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return Identity{}, errors.Validation("user data validation failed: missing " + strings.Join(missing, ", "))
	}

	return out, nil
}
