package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"libro-backend/internal/catalog/books"
	"libro-backend/internal/catalog/users"
	"libro-backend/internal/lending/loans"
	"libro-backend/internal/platform/apperr"
	"libro-backend/internal/platform/auth"
	"libro-backend/internal/platform/cache"
	"libro-backend/internal/platform/config"
	"libro-backend/internal/platform/db"
	"libro-backend/internal/platform/memstore"
	"libro-backend/internal/platform/ratelimit"
)

func main() {
	// 設定読み込み
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	var cfg *config.Config
	if _, err := os.Stat(cfgPath); err == nil {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	} else {
		log.Printf("[INFO] no config file at %s, using defaults (memory store)", cfgPath)
		cfg = config.Default()
	}

	log.Printf("[INFO] mode:%s", cfg.Mode)

	// バックグラウンド処理（janitor等）はshutdownで止める
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// ストア構築
	var (
		bookStore books.Store
		userStore users.Store
		loanStore loans.Store
		authSvc   *auth.Service
	)

	switch cfg.Database.Driver {
	case "memory":
		mem := memstore.New()
		bookStore = mem.Books()
		userStore = mem.Users()
		loanStore = mem.Loans()
		log.Printf("[INFO] using in-memory store")
	case "mysql":
		conn, err := db.Connect(cfg.Database)
		if err != nil {
			panic(err)
		}
		defer conn.Close()
		log.Printf("[INFO] connected to DB: %s", cfg.Database.DBName)

		bookStore = books.NewSQLStore(conn)
		userStore = users.NewSQLStore(conn)
		loanStore = loans.NewSQLStore(conn)
		if cfg.Auth.Enabled {
			authSvc = auth.NewService(conn, cfg.Auth.Secret, time.Duration(cfg.Auth.TokenTTL)*time.Hour)
		}
	default:
		log.Fatalf("unknown database driver: %s", cfg.Database.Driver)
	}

	if cfg.Auth.Enabled && authSvc == nil {
		log.Printf("[WARN] auth requires the mysql driver, disabling")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to Libro API"})
	})

	// /api/v1
	api := r.Group("/api/v1")

	// 入場ゲート（リクエストがファサード/エンジンに届く前に弾く）
	if cfg.Rate.Enabled {
		rlStore := ratelimit.NewStore(cfg.Rate.RPS, cfg.Rate.Burst)
		rlStore.StartJanitor(bgCtx)
		api.Use(ratelimit.Middleware(ratelimit.Options{Store: rlStore}))
	}

	// 一覧GET用レスポンスキャッシュ
	var listMW []gin.HandlerFunc
	if cfg.Cache.Enabled {
		var store cache.Store
		switch cfg.Cache.Backend {
		case "redis":
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
			store = cache.NewRedisStore(rdb)
			log.Printf("[INFO] response cache: redis (%s)", cfg.Cache.RedisAddr)
		default:
			mem := cache.NewMemoryStore()
			mem.StartJanitor(bgCtx)
			store = mem
			log.Printf("[INFO] response cache: memory")
		}
		listMW = append(listMW, cache.Middleware(store, cfg.Cache.TTL()))
	}

	resources := api
	if authSvc != nil {
		auth.RegisterRoutes(api, authSvc)
		resources = api.Group("", auth.RequireAuth(authSvc.Secret()))
	}

	booksGrp := resources.Group("", requireEnabled(cfg.Features.Books))
	books.RegisterRoutes(booksGrp, books.NewService(bookStore), listMW...)

	usersGrp := resources.Group("", requireEnabled(cfg.Features.Users))
	users.RegisterRoutes(usersGrp, users.NewService(userStore), listMW...)

	// 原典通り、borrow/return の両方が有効な時だけ loans API を開く
	loansGrp := resources.Group("", requireEnabled(cfg.Features.Borrow && cfg.Features.Return))
	loans.RegisterRoutes(loansGrp, loans.NewService(loanStore), listMW...)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}

// requireEnabled はフィーチャーフラグが無効なリソースグループを404で閉じる
func requireEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.AbortWithStatusJSON(http.StatusNotFound,
				apperr.Body(apperr.CodeNotFound, "this API is disabled"))
			return
		}
		c.Next()
	}
}
