package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"geminichat/internal/config"
	"geminichat/internal/microservices/http-api/handler"
	"geminichat/internal/microservices/http-api/middleware"
	"geminichat/internal/microservices/http-api/service"
	"geminichat/internal/microservices/storage"
	"geminichat/internal/microservices/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

type Deps struct {
	Config   *config.Config
	Sessions service.SessionService
	Hub      *websocket.Hub
	Logger   *slog.Logger
	Store    storage.Pinger // optional, checked by /check-conn
}

const pingTimeout = 2 * time.Second

// NewRouter wires the chat room REST API, the live stream and ops endpoints
func NewRouter(d Deps) http.Handler {
	if d.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.Metrics())

	r.GET("/check-conn", func(ctx *gin.Context) {
		if d.Store != nil {
			pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), pingTimeout)
			defer cancel()
			if err := d.Store.Ping(pingCtx); err != nil {
				d.Logger.Warn("store_ping_failed", "backend", d.Config.StoreBackend, "error", err)
				ctx.JSON(http.StatusServiceUnavailable, gin.H{
					"message": "store unreachable",
					"backend": d.Config.StoreBackend,
					"error":   err.Error(),
				})
				return
			}
		}
		ctx.JSON(http.StatusOK, gin.H{
			"message":  "API is alive",
			"backend":  d.Config.StoreBackend,
			"sessions": d.Sessions.Count(),
		})
	})
	if d.Config.PrometheusEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	limiter := middleware.NewIPRateLimiter(d.Config.SendRateLimit, d.Config.SendRateBurst)
	chatHandler := handler.NewChatroomHandler(d.Sessions, d.Logger)

	api := r.Group("/api")
	chatHandler.RegisterRoutes(api, middleware.RateLimit(limiter, "send_message"))

	r.GET("/ws/chatrooms/:id", websocket.WSHandler(d.Hub, d.Sessions))

	c := cors.New(cors.Options{
		AllowedOrigins: d.Config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:         300,
	})
	return c.Handler(r)
}
