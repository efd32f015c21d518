package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"invite-auth/internal/config"
	"invite-auth/internal/db"
	apihttp "invite-auth/internal/http"
	"invite-auth/internal/repository"
	"invite-auth/internal/service"
	"invite-auth/internal/sms"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	accountRepo := repository.NewPgAccountRepository(pool)

	var (
		otpStore   service.OTPStore
		otpLimiter service.OTPRateLimiter
		tokenStore service.RefreshTokenStore
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			otpStore = service.NewRedisOTPStore(redisClient)
			otpLimiter = service.NewRedisOTPRateLimiter(redisClient, 10*time.Minute, 5)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}
	if otpStore == nil {
		logger.Warn("redis not available, otp store runs in memory")
		otpStore = service.NewMemoryOTPStore()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	authSvc := service.NewAuthService(
		logger,
		accountRepo,
		otpStore,
		jwtSvc,
		sms.NewLogSender(logger),
		otpLimiter,
		service.AuthOptions{
			OTPTTL:        time.Duration(cfg.OTPTTLSeconds) * time.Second,
			SMSDelay:      time.Duration(cfg.SMSDelaySeconds) * time.Second,
			DefaultRegion: cfg.PhoneDefaultRegion,
		},
	)
	inviteSvc := service.NewInviteService(logger, accountRepo)

	authHandler := apihttp.NewAuthHandler(logger, authSvc, jwtSvc, cfg)
	profileHandler := apihttp.NewProfileHandler(logger, accountRepo, inviteSvc, cfg)
	router := apihttp.NewRouter(logger, authHandler, profileHandler, jwtSvc, func(ctx context.Context) error {
		return db.Ping(ctx, pool)
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
