package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/h3poteto/livecamera/internal/app/session"
	"github.com/h3poteto/livecamera/internal/app/sink"
	"github.com/h3poteto/livecamera/internal/config"
	"github.com/rs/zerolog/log"
)

type SessionSource interface {
	Snapshot() session.Snapshot
}

type SinkSource interface {
	Stats() []sink.Stats
}

type SessionResponse struct {
	session.Snapshot
	Sinks []sink.Stats `json:"sinks"`
}

func SetupRouter(cfg *config.Config, sess SessionSource, sinks SinkSource) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api")

	api.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/session", func(c *gin.Context) {
		resp := SessionResponse{Snapshot: sess.Snapshot(), Sinks: []sink.Stats{}}
		if sinks != nil {
			if st := sinks.Stats(); st != nil {
				resp.Sinks = st
			}
		}
		c.JSON(http.StatusOK, resp)
	})

	log.Info().Str("module", "adapters.http").Str("addr", cfg.StatusAddr).Msg("router setup")
	return r
}
