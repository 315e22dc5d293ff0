package http

import (
	"time"

	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/geocoder89/projecthub/internal/config"
	"github.com/geocoder89/projecthub/internal/http/handlers"
	"github.com/geocoder89/projecthub/internal/http/middlewares"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// IdentityService is everything the HTTP surface needs from the identity layer.
type IdentityService interface {
	handlers.AccountService
	handlers.MemberService
}

type RouterDeps struct {
	Cfg      config.Config
	Service  IdentityService
	Tokens   middlewares.TokenVerifier
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	// Ready lists the dependencies /readyz pings.
	Ready map[string]handlers.Pinger
}

func NewRouter(d RouterDeps) *gin.Engine {
	if !d.Cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("projecthub-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders(d.Cfg.CookieSecure()))
	r.Use(middlewares.CORSMiddleware(d.Cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(d.Cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	h := handlers.NewHealthHandler(d.Ready)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	gate := middlewares.NewAuthMiddleware(d.Tokens)

	authHandler := handlers.NewAuthHandler(d.Service, handlers.CookieConfig{
		Secure: d.Cfg.CookieSecure(),
		MaxAge: d.Cfg.SessionTTL,
	})
	membersHandler := handlers.NewMembersHandler(d.Service)

	// Routes
	authGroup := r.Group("/auth")
	if d.Cfg.AuthRateLimit > 0 {
		rl := middlewares.NewRateLimiter(d.Cfg.AuthRateLimit, time.Minute)
		authGroup.Use(rl.RateLimiterMiddleware(middlewares.KeyByIP))
	}
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/verify-email", authHandler.VerifyEmail)
		authGroup.POST("/resend-code", authHandler.ResendCode)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", gate.Identify(), authHandler.Logout)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/reset-password", authHandler.ResetPassword)

		authGroup.POST("/change-password", gate.RequireAuth(), gate.RequirePolicy(auth.OpChangePassword), authHandler.ChangePassword)
		authGroup.GET("/me", gate.RequireAuth(), gate.RequirePolicy(auth.OpMe), authHandler.Me)
	}

	team := r.Group("/team", gate.RequireAuth())
	{
		team.POST("/members", gate.RequirePolicy(auth.OpInviteMember), membersHandler.Invite)
		team.GET("/members", gate.RequirePolicy(auth.OpListMembers), membersHandler.List)
		team.PATCH("/members/:id/role", gate.RequirePolicy(auth.OpUpdateMemberRole), membersHandler.UpdateRole)
		team.DELETE("/members/:id", gate.RequirePolicy(auth.OpDeleteMember), membersHandler.Delete)
	}

	return r
}
