package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Store       string `json:"store"`
	Environment string `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	storeStatus := "ok"
	switch {
	case h.cache != nil:
		if err := h.cache.Ping(ctx).Err(); err != nil {
			storeStatus = "error"
			h.log.Error().Err(err).Msg("redis ping failed")
		}
	case h.db != nil:
		if err := h.db.Ping(ctx); err != nil {
			storeStatus = "error"
			h.log.Error().Err(err).Msg("postgres ping failed")
		}
	default:
		storeStatus = "memory"
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Store:       storeStatus,
		Environment: h.cfg.Environment,
	})
}
