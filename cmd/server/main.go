package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"shopassistant/internal/config"
	"shopassistant/internal/handler"
	"shopassistant/internal/lexicon"
	"shopassistant/internal/logger"
	"shopassistant/internal/nlu"
	"shopassistant/internal/repository"
	"shopassistant/internal/service"
	"shopassistant/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// backend is everything the chat service reads from and writes to
type backend interface {
	service.Catalog
	service.KnowledgeBase
	service.PreferenceStore
	service.ConversationLog
	lexicon.TermSource
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = log.Sync() }()

	log.Info("Shop assistant",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	gin.SetMode(cfg.Server.GinMode)

	repo, err := openBackend(cfg, log)
	if err != nil {
		log.Fatal("Failed to open catalog", zap.Error(err))
	}
	defer repo.Close()

	lex, err := loadLexicon(cfg, repo, log)
	if err != nil {
		log.Fatal("Failed to load lexicon", zap.Error(err))
	}

	store, closeStore, err := openSessionStore(cfg, log)
	if err != nil {
		log.Fatal("Failed to open session store", zap.Error(err))
	}
	defer closeStore()

	extractor := nlu.NewExtractor(lex, cfg.Chat.PriceTolerance)
	sessions := session.NewManager(store, lex, extractor,
		session.WithLimits(cfg.Chat.FlowLimit, cfg.Chat.SearchHistoryLimit),
	)
	chatService := service.NewChatService(repo, repo, sessions, lex, extractor, log,
		service.WithResultLimit(cfg.Chat.ResultLimit),
		service.WithPreferences(repo),
		service.WithConversationLog(repo),
	)

	log.Info("Services initialized",
		zap.Int("result_limit", cfg.Chat.ResultLimit),
		zap.Int64("price_tolerance", cfg.Chat.PriceTolerance),
		zap.Int("brands", len(lex.Brands)),
		zap.Int("categories", len(lex.Categories)),
	)

	chatHandler := handler.NewChatHandler(chatService, cfg.Chat.HistoryDefaultLimit, cfg.Chat.HistoryMaxLimit)
	recommendHandler := handler.NewRecommendHandler(chatService)
	feedbackHandler := handler.NewFeedbackHandler(chatService)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if origins := splitList(cfg.Server.AllowedOrigins); len(origins) == 0 || origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = splitList(cfg.Server.AllowedMethods)
	corsConfig.AllowHeaders = splitList(cfg.Server.AllowedHeaders)
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"service":    "shop-assistant",
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		// Chat endpoints
		apiV1.POST("/chat", chatHandler.Chat)
		apiV1.GET("/sessions/:session_id/context", chatHandler.SessionContext)
		apiV1.GET("/conversations/:session_id", chatHandler.Conversation)

		// Recommendation endpoints
		apiV1.POST("/recommendations/products", recommendHandler.Products)
		apiV1.POST("/recommendations/size", recommendHandler.Size)
		apiV1.GET("/preferences/:user_id", recommendHandler.GetPreferences)
		apiV1.PUT("/preferences/:user_id", recommendHandler.UpdatePreferences)

		// Feedback endpoint
		apiV1.POST("/feedback", feedbackHandler.Submit)
		apiV1.GET("/feedback/:session_id", feedbackHandler.List)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("Starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shut down", zap.Error(err))
	}
	log.Info("Server stopped")
}

func openBackend(cfg *config.Config, log *zap.Logger) (backend, error) {
	if cfg.Catalog.Backend == "memory" {
		seed, err := repository.LoadSeed(cfg.Catalog.SeedPath)
		if err != nil {
			return nil, err
		}
		log.Info("Using in-memory catalog",
			zap.String("seed", cfg.Catalog.SeedPath),
			zap.Int("products", len(seed.Products)),
		)
		return repository.NewMemoryRepository(seed), nil
	}

	repo, err := repository.NewPostgresRepository(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to PostgreSQL database")
	return repo, nil
}

// loadLexicon reads the static tables and extends them with the catalog's
// live brand and category titles. A catalog failure keeps the static tables.
func loadLexicon(cfg *config.Config, src lexicon.TermSource, log *zap.Logger) (*lexicon.Lexicon, error) {
	base := lexicon.Default()
	if cfg.Chat.LexiconPath != "" {
		var err error
		if base, err = lexicon.Load(cfg.Chat.LexiconPath); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	enriched, err := lexicon.Enrich(ctx, base, src)
	if err != nil {
		log.Warn("Catalog titles unavailable, using static lexicon", zap.Error(err))
		return base, nil
	}
	return enriched, nil
}

func openSessionStore(cfg *config.Config, log *zap.Logger) (session.Store, func(), error) {
	if cfg.Session.Backend != "redis" {
		log.Info("Using in-memory session store", zap.Duration("ttl", cfg.Session.TTL))
		return session.NewMemoryStore(cfg.Session.TTL, cfg.Session.CleanupInterval), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Session.TTL))
	return session.NewRedisStore(client, cfg.Session.TTL), func() { _ = client.Close() }, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
