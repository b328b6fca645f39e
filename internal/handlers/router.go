package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commentd/oauth-relay/internal/relay"
)

// NewRouter assembles the HTTP surface: one route per provider flow, the
// capability listing at the root, and a health endpoint.
func NewRouter(r *relay.Relay, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())

	oauth := NewOAuthHandler(r, log)

	engine.GET("/healthz", Health())
	engine.GET("/", oauth.Capabilities)
	engine.GET("/:provider", oauth.Flow)
	engine.POST("/:provider", oauth.Flow)

	return engine
}
