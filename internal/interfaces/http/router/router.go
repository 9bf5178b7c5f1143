// Package router 提供 HTTP 路由配置
package router

import (
	"project-context-api/internal/config"
	"project-context-api/internal/interfaces/http/handler"
	"project-context-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由所需的全部处理器
type Handlers struct {
	Health     *handler.HealthHandler
	Question   *handler.QuestionHandler
	Thread     *handler.ThreadHandler
	Event      *handler.EventHandler
	Ingest     *handler.IngestHandler
	Projection *handler.ProjectionHandler
}

// Router HTTP 路由器
type Router struct {
	engine    *gin.Engine
	cfg       *config.Config
	handlers  *Handlers
	rateLimit gin.HandlerFunc
}

// New 创建新的路由器
func New(cfg *config.Config, handlers *Handlers, rateLimit gin.HandlerFunc) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:    engine,
		cfg:       cfg,
		handlers:  handlers,
		rateLimit: rateLimit,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}

	r.engine.Use(middleware.Audit())
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	h := r.handlers

	// 系统端点
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	if r.rateLimit != nil {
		v1.Use(r.rateLimit)
	}

	projects := v1.Group("/projects/:project_id")
	{
		// 问答
		projects.POST("/questions", h.Question.Ask)

		// 线程与轮次
		projects.POST("/threads", h.Thread.Open)
		projects.GET("/threads/:thread_id", h.Thread.Get)
		projects.POST("/threads/:thread_id/close", h.Thread.Close)
		projects.GET("/threads/:thread_id/turns", h.Thread.ListTurns)

		// 事件日志
		projects.POST("/events", h.Event.Append)
		projects.GET("/events", h.Event.List)
		projects.GET("/events/cursor", h.Event.Cursor)

		// 文档摄取
		projects.POST("/documents", h.Ingest.Ingest)
		projects.POST("/chunks/remove", h.Ingest.Remove)

		// 检索调试
		projects.POST("/retrieval/search", h.Question.DebugSearch)

		// 投影运维
		projects.POST("/projection/rebuild", h.Projection.Rebuild)
		projects.GET("/projection/verify", h.Projection.Verify)
	}
}
