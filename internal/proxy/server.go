package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mrorigo/stream-healer/internal/config"
	"github.com/mrorigo/stream-healer/internal/log"
)

// Server wraps a gin.Engine configured to proxy, heal, and re-emit
// OpenAI-compatible chat completions.
type Server struct {
	*gin.Engine

	config config.Config
	server *http.Server
}

// New builds a Server from cfg, wiring the Recovery/AccessLog/tracing
// middleware stack and the /v1/chat/completions route, the way the
// teacher's server.New + SetupRoutes do.
func New(cfg config.Config) *Server {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(Recovery())
	engine.Use(AccessLog())
	engine.Use(WithTracing(cfg.Trace))

	if cfg.Server.CORS.Enabled {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.Server.CORS.AllowedOrigins
		corsCfg.AllowMethods = cfg.Server.CORS.AllowedMethods
		corsCfg.AllowHeaders = cfg.Server.CORS.AllowedHeaders
		corsCfg.ExposeHeaders = cfg.Server.CORS.ExposedHeaders
		corsCfg.AllowCredentials = cfg.Server.CORS.AllowCredentials
		corsCfg.MaxAge = cfg.Server.CORS.MaxAge

		corsHandler := cors.New(corsCfg)
		engine.Use(corsHandler)
		engine.OPTIONS("/*any", corsHandler)
	}

	srv := &Server{Engine: engine, config: cfg}
	srv.registerRoutes()

	return srv
}

func (srv *Server) registerRoutes() {
	handlers := NewHandlers(NewUpstream(srv.config.Upstream))

	base := srv.config.Server.BasePath

	srv.GET(base+"/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	srv.POST(base+"/v1/chat/completions", handlers.ChatCompletion)
}

// Run starts the HTTP listener and blocks until it is closed.
func (srv *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", srv.config.Server.Host, srv.config.Server.Port)

	log.Info(context.Background(), "starting stream-healer proxy",
		log.String("addr", addr),
		log.String("upstream", srv.config.Upstream.BaseURL),
	)

	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.Engine,
		ReadTimeout:  srv.config.Server.ReadTimeout,
		WriteTimeout: srv.config.Server.RequestTimeout,
	}

	err := srv.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully stops the HTTP listener.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.server == nil {
		return nil
	}

	return srv.server.Shutdown(ctx)
}
