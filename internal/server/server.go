// Package server はtaskhubのHTTPサーバーを組み立てる。
//
// REST API、WebSocketエンドポイント、ヘルスチェックを1つのGinルーターに載せ、
// タスク変更サービスにはWebSocketハブを配信先として渡す。
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/taskhub/internal/auth"
	"github.com/nao1215/taskhub/internal/config"
	"github.com/nao1215/taskhub/internal/database"
	"github.com/nao1215/taskhub/internal/notification"
	"github.com/nao1215/taskhub/internal/realtime"
	"github.com/nao1215/taskhub/internal/task"
	"github.com/nao1215/taskhub/pkg/middleware"
)

// shutdownTimeout は停止時に処理中のリクエストを待つ時間。
const shutdownTimeout = 10 * time.Second

// Server はtaskhubのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// hub はWebSocket接続を管理する。
	hub *realtime.Hub
	// registry はユーザーIDと接続IDの対応表。
	registry *realtime.Registry
	// denylist はログアウト済みトークンの失効リスト。
	denylist auth.Denylist
}

// NewServer は設定からサーバーを組み立てる。
// データベースを開いてマイグレーションを適用し、すべてのルートを登録する。
func NewServer(ctx context.Context, cfg *config.Server) (*Server, error) {
	db, err := database.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}

	denylist, err := newDenylist(ctx, cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, cfg.CORSOrigins, cfg.WSSendBuffer)
	broadcaster := realtime.NewBroadcaster(registry, hub)

	notifications := notification.NewStore(db)
	tasks := task.NewService(task.NewStore(db), notifications, task.NewAuditStore(db), broadcaster)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.CORSOrigins))

	s := &Server{
		router:   router,
		port:     cfg.Port,
		db:       db,
		hub:      hub,
		registry: registry,
		denylist: denylist,
	}

	authRequired := middleware.JWTAuth(cfg.JWTSecret, denylist)
	limiter := middleware.NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)

	api := router.Group("/api/v1")
	protected := api.Group("")
	protected.Use(authRequired)

	auth.NewHandler(auth.NewStore(db), denylist, cfg.JWTSecret, cfg.JWTTTL).
		RegisterRoutes(api, protected, limiter.Middleware())
	task.NewHandler(tasks).RegisterRoutes(protected)
	notification.NewHandler(notifications).RegisterRoutes(protected)

	// WebSocketはブラウザからクッキーかクエリでトークンを受け取る
	router.GET("/ws", authRequired, hub.Handler())

	health := s.handleHealth()
	router.GET("/health", health)
	api.GET("/health", health)

	return s, nil
}

// newDenylist はRedis URLが設定されていればRedis、なければメモリ上の失効リストを返す。
func newDenylist(ctx context.Context, redisURL string) (auth.Denylist, error) {
	if redisURL == "" {
		log.Printf("[Server] REDIS_URLが未設定のため、トークン失効リストをメモリ上に保持します")
		return auth.NewMemoryDenylist(), nil
	}
	d, err := auth.NewRedisDenylist(ctx, redisURL)
	if err != nil {
		return nil, fmt.Errorf("トークン失効リストの初期化に失敗: %w", err)
	}
	return d, nil
}

// Handler はルーターをhttp.Handlerとして返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされたら穏やかに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[Server] taskhubを起動します: :%s", s.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("[Server] 停止しています")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Shutdownはハイジャック済みのWebSocketを待たないので先に閉じる
		s.hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close はWebSocket接続と外部リソースを閉じる。
func (s *Server) Close() error {
	s.hub.Close()

	var errs []error
	if c, ok := s.denylist.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("Redis接続の切断に失敗: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("データベースの切断に失敗: %w", err))
	}
	return errors.Join(errs...)
}

// handleHealth はヘルスチェックハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "taskhub"})
			log.Printf("[Server] データベースに接続できません: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "taskhub",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"connections": s.hub.Len(),
		})
	}
}
