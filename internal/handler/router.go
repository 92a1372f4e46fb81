package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kiwigeek/internal/config"
	"kiwigeek/internal/service"
)

// BuildInfo identifies the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// RouterDeps groups what the HTTP layer needs. Metrics and DatabasePing are
// optional.
type RouterDeps struct {
	Assistant    *service.AssistantService
	Server       config.ServerConfig
	Build        BuildInfo
	Provider     string
	Metrics      http.Handler
	DatabasePing func(ctx context.Context) error
	Logger       *zap.Logger
}

// NewRouter wires middleware and routes
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(cors.New(corsConfig(deps.Server)))

	chatHandler := NewChatHandler(deps.Assistant)
	validateHandler := NewValidateHandler(deps.Assistant)
	feedbackHandler := NewFeedbackHandler(deps.Assistant)

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{
			"status":    "healthy",
			"service":   "kiwigeek-quote-assistant",
			"generator": deps.Provider,
			"version":   deps.Build.Version,
			"database":  "disabled",
		}

		if deps.DatabasePing != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.DatabasePing(ctx); err != nil {
				body["database"] = "unreachable"
				body["status"] = "degraded"
			} else {
				body["database"] = "ok"
			}
		}

		c.JSON(status, body)
	})

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Build)
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	apiV1 := router.Group("/api/v1")
	{
		// Conversation endpoints
		apiV1.POST("/chat", chatHandler.Chat)
		apiV1.POST("/chat/stream", chatHandler.ChatStream)
		apiV1.GET("/sessions/:id", chatHandler.GetSession)
		apiV1.DELETE("/sessions/:id", chatHandler.ResetSession)
		apiV1.GET("/sessions/:id/turns", chatHandler.ListTurns)

		// Stateless validation
		apiV1.POST("/quotes/validate", validateHandler.Validate)

		// Feedback endpoint
		apiV1.POST("/feedback", feedbackHandler.Submit)
	}

	router.NoRoute(func(c *gin.Context) {
		RespondError(c, http.StatusNotFound, ErrCodeNotFound, "Endpoint not found")
	})

	return router
}

func corsConfig(server config.ServerConfig) cors.Config {
	corsConfig := cors.DefaultConfig()

	origins := splitList(server.AllowedOrigins)
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	if methods := splitList(server.AllowedMethods); len(methods) > 0 {
		corsConfig.AllowMethods = methods
	}
	if headers := splitList(server.AllowedHeaders); len(headers) > 0 {
		corsConfig.AllowHeaders = headers
	}
	return corsConfig
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
