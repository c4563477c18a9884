package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/tasktrack-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tasktrack-api/internal/middleware"
	"github.com/noah-isme/tasktrack-api/internal/models"
	"github.com/noah-isme/tasktrack-api/internal/service"
	"github.com/noah-isme/tasktrack-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tasktrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tasktrack-api/pkg/middleware/requestid"
)

// Options carries everything the HTTP surface needs.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool

	Logger      *zap.Logger
	Metrics     *service.MetricsService
	Audit       internalmiddleware.AuditRecorder
	Tokens      internalmiddleware.TokenValidator
	AuthLimiter *internalmiddleware.IPRateLimiter

	Auth   *handler.AuthHandler
	Tasks  *handler.TaskHandler
	Users  *handler.UserHandler
	Health *handler.MetricsHandler
}

// New builds the gin engine with global middleware and every route.
func New(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(opts.Metrics))

	r.GET("/health", opts.Health.Health)
	r.GET("/ready", opts.Health.Ready)
	r.GET("/metrics", opts.Health.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())

	limit := internalmiddleware.RateLimit(opts.AuthLimiter, opts.Metrics, opts.Logger)
	requireAuth := internalmiddleware.JWT(opts.Tokens)

	auth := api.Group("/auth")
	auth.POST("/register", limit, opts.Auth.Register)
	auth.POST("/authenticate", limit, opts.Auth.Authenticate)
	auth.POST("/refresh-token", limit, opts.Auth.Refresh)
	auth.POST("/renew-token", limit, opts.Auth.Renew)
	auth.POST("/logout", opts.Auth.Logout)
	auth.POST("/logout-all", requireAuth, opts.Auth.LogoutAll)
	auth.GET("/me", requireAuth, opts.Auth.Me)

	tasks := api.Group("/tasks", requireAuth)
	tasks.GET("", internalmiddleware.RequirePermission(models.PermTaskRead), opts.Tasks.List)
	tasks.GET("/export", internalmiddleware.RequirePermission(models.PermTaskExport), opts.Tasks.Export)
	tasks.GET("/:id", internalmiddleware.RequirePermission(models.PermTaskRead), opts.Tasks.Get)
	tasks.POST("",
		internalmiddleware.RequirePermission(models.PermTaskWrite),
		internalmiddleware.Audit(opts.Audit, models.AuditActionTaskCreate, "tasks"),
		opts.Tasks.Create)
	tasks.PUT("/:id",
		internalmiddleware.RequirePermission(models.PermTaskWrite),
		internalmiddleware.Audit(opts.Audit, models.AuditActionTaskUpdate, "tasks"),
		opts.Tasks.Update)
	tasks.DELETE("/:id",
		internalmiddleware.RequirePermission(models.PermTaskDelete),
		internalmiddleware.Audit(opts.Audit, models.AuditActionTaskDelete, "tasks"),
		opts.Tasks.Delete)

	users := api.Group("/users", requireAuth)
	users.GET("", internalmiddleware.RequirePermission(models.PermUserRead), opts.Users.List)
	users.GET("/:id", internalmiddleware.RBAC(string(models.RoleManager), string(models.RoleAdmin), "SELF"), opts.Users.Get)
	users.PATCH("/:id/role", internalmiddleware.RequireRoles(models.RoleAdmin), opts.Users.UpdateRole)
	users.DELETE("/:id", internalmiddleware.RequireRoles(models.RoleAdmin), opts.Users.Delete)

	return r
}
