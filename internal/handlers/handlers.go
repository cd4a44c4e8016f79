package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medprep/api/internal/config"
	"medprep/api/internal/mail"
	"medprep/api/internal/middleware"
	"medprep/api/internal/models"
	"medprep/api/internal/repository"
	"medprep/api/internal/service"
	"medprep/api/internal/storage"
)

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     *service.AuthService
	users    *service.UserService
	db       *pgxpool.Pool
	cache    *redis.Client
	userRepo *repository.UserRepository
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, mailer *mail.Mailer, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	auth := service.NewAuthService(userRepo, sessionRepo, mailer, cache, cfg, log)
	users := service.NewUserService(userRepo, store, log)

	return HandlerSet{
		log:      log,
		cfg:      cfg,
		auth:     auth,
		users:    users,
		db:       db,
		cache:    cache,
		userRepo: userRepo,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/verify-email", h.VerifyEmail)
		auth.POST("/forgot-password", h.ForgotPassword)
		auth.POST("/reset-password", h.ResetPassword)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/resend-verification", h.ResendVerification)
		auth.POST("/resend-forgot-password", h.ResendForgotPassword)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.cfg, h.userRepo))
		protected.POST("/complete-profile", h.CompleteProfile)
		protected.POST("/logout", h.Logout)
		protected.POST("/logout/:sessionId", h.LogoutSession)
		protected.POST("/terminate-all-sessions", h.TerminateAllSessions)
		protected.POST("/session", h.CreateSession)
		protected.GET("/sessions", h.ListSessions)
	}

	users := v1.Group("/users")
	users.Use(middleware.Auth(h.cfg, h.userRepo))
	users.GET("/me", h.Me)
	users.PATCH("/me", h.UpdateMe)
	users.POST("/me/avatar", h.UploadAvatar)

	// Admin CRUD lives under its own prefix: gin's router cannot hold
	// /users/me and /users/:id side by side.
	admin := v1.Group("/admin/users")
	admin.Use(middleware.Auth(h.cfg, h.userRepo), middleware.RequireRoles(models.UserRoleAdmin))
	admin.GET("", h.AdminListUsers)
	admin.GET("/:id", h.AdminGetUser)
	admin.PATCH("/:id", h.AdminUpdateUser)
	admin.DELETE("/:id", h.AdminDeleteUser)
}
