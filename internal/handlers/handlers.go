package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tourbook/sessiond/internal/config"
	"tourbook/sessiond/internal/session"
)

// HandlerSet exposes one session manager over the local control API.
// db and cache are only used by the health endpoint and may be nil when
// the corresponding backend is not configured.
type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	manager *session.Manager
	cache   *redis.Client
	db      *pgxpool.Pool
}

func NewHandlerSet(log zerolog.Logger, manager *session.Manager, cache *redis.Client, db *pgxpool.Pool, cfg *config.AppConfig) HandlerSet {
	return HandlerSet{
		log:     log,
		cfg:     cfg,
		manager: manager,
		cache:   cache,
		db:      db,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		sess := v1.Group("/session")
		sess.POST("/login", h.Login)
		sess.POST("/logout", h.Logout)
		sess.POST("/refresh", h.Refresh)
		sess.POST("/activity", h.Activity)
		sess.GET("/me", h.Me)
		sess.GET("/token", h.Token)
	}
}
