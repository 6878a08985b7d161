package server

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/openfantasy/leagueserver/internal/config"
	"github.com/openfantasy/leagueserver/internal/handler"
	"github.com/openfantasy/leagueserver/internal/leaderboard"
	"github.com/openfantasy/leagueserver/internal/middleware"
	"github.com/openfantasy/leagueserver/internal/repository"
	"github.com/openfantasy/leagueserver/internal/service"
	"github.com/openfantasy/leagueserver/pkg/storage"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
}

func NewServer(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Server {
	userRepo := repository.NewUserRepository(db)

	var imageStorage storage.ImageStorage
	if os.Getenv("CLOUDINARY_URL") != "" || cfg.CloudinaryCloudName != "" {
		var err error
		imageStorage, err = storage.NewCloudinaryStorage()
		if err != nil {
			log.Fatalf("failed to initialize cloudinary storage: %v", err)
		}
	} else {
		log.Println("cloudinary not configured, avatar uploads disabled")
	}

	authSvc := service.NewAuthService(userRepo, imageStorage, cfg)
	authHandler := handler.NewAuthHandler(authSvc)

	profileHandler := handler.NewProfileHandler(userRepo)

	walletRepo := repository.NewWalletRepository(db)
	walletSvc := service.NewWalletService(walletRepo)
	walletHandler := handler.NewWalletHandler(walletSvc)

	leaderboardRepo := repository.NewLeaderboardRepository(db)
	leaderboardSvc := service.NewLeaderboardService(leaderboardRepo, redisClient, cfg.LeaderboardCacheTTL)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardSvc, leaderboard.Config{
		SearchDebounce:      cfg.SearchDebounce,
		AutoRefreshInterval: cfg.AutoRefreshInterval,
	})

	leagueRepo := repository.NewLeagueRepository(db)
	leagueSvc := service.NewLeagueService(leagueRepo, leaderboardRepo, walletSvc, redisClient, cfg.RateLimitCreateLeague)
	leagueHandler := handler.NewLeagueHandler(leagueSvc)

	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	authMiddleware := middleware.NewAuthMiddleware(userRepo, cfg.JWTSecret)

	api := router.Group("/api")

	// Public routes (no auth required)
	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// Protected routes (apply auth middleware explicitly)
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// League routes
		protected.POST("/leagues", leagueHandler.CreateLeague)
		protected.POST("/leagues/join", leagueHandler.JoinLeague)
		protected.GET("/leagues/mine", leagueHandler.MyLeagues)

		// Leaderboard routes
		protected.GET("/leagues/:id/leaderboard", leaderboardHandler.GetLeaderboard)
		protected.GET("/leagues/:id/leaderboard/live", leaderboardHandler.LiveLeaderboard)

		// Wallet routes
		protected.GET("/wallet", walletHandler.GetWallet)
		protected.POST("/wallet/deposit", walletHandler.Deposit)
		protected.POST("/wallet/withdraw", walletHandler.Withdraw)

		// Profile routes
		protected.GET("/profile/me", profileHandler.GetCurrentProfile)
	}

	// Admin-only operations
	admin := api.Group("/admin")
	admin.Use(authMiddleware.RequireAuth(), authMiddleware.RequireAdmin())
	{
		admin.POST("/leagues/:id/finalize", leagueHandler.FinalizeLeague)
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
	}
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
