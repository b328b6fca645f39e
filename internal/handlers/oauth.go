package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/pkg/errors"
	"github.com/commentd/oauth-relay/pkg/response"
)

// OAuthHandler exposes the relay flow over HTTP. A single route serves both
// start-login and finish-login: the presence of a code (or an OAuth 1.0a
// verifier, or an OpenID assertion) decides which leg this request is.
type OAuthHandler struct {
	relay *relay.Relay
	log   *zap.Logger
}

func NewOAuthHandler(r *relay.Relay, log *zap.Logger) *OAuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OAuthHandler{relay: r, log: log}
}

// Flow handles GET|POST /:provider.
func (h *OAuthHandler) Flow(c *gin.Context) {
	key := strings.ToLower(strings.TrimSpace(c.Param("provider")))

	p, ok := h.relay.Provider(key)
	if !ok {
		response.Error(c, errors.ErrUnknownProvider)
		return
	}

	q := mergedParams(c)
	ctx := c.Request.Context()
	callbackURL := h.relay.CallbackURL(c.Request, key)

	if !relay.IsCallback(q) {
		authorizeURL, err := h.relay.Start(ctx, p, callbackURL, q.Get("redirect"), q.Get("state"))
		if err != nil {
			h.log.Warn("start login failed", zap.String("provider", key), zap.Error(err))
			response.Error(c, err)
			return
		}
		c.Redirect(http.StatusFound, authorizeURL)
		return
	}

	outcome, err := h.relay.Finish(ctx, p, callbackURL, q, h.relay.IsMachine(c.Request))
	if err != nil {
		h.log.Warn("finish login failed", zap.String("provider", key), zap.Error(err))
		response.Error(c, err)
		return
	}

	if outcome.RedirectURL != "" {
		c.Redirect(http.StatusFound, outcome.RedirectURL)
		return
	}
	response.JSON(c, http.StatusOK, outcome.Identity)
}

// Capabilities handles GET /, listing each registered provider with its
// configuration status for consumers that render login buttons.
func (h *OAuthHandler) Capabilities(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.relay.Capabilities())
}

// mergedParams merges query and form parameters; providers redirect back with
// GET but some callers finish the flow with a form POST.
func mergedParams(c *gin.Context) url.Values {
	q := url.Values{}
	for key, values := range c.Request.URL.Query() {
		q[key] = values
	}
	if err := c.Request.ParseForm(); err == nil {
		for key, values := range c.Request.PostForm {
			if _, exists := q[key]; !exists {
				q[key] = values
			}
		}
	}
	return q
}
