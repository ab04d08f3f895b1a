package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/changefeed"
	"github.com/dinehall/dinehall/internal/config"
	notificationdomain "github.com/dinehall/dinehall/internal/notification/domain"
	"github.com/dinehall/dinehall/internal/providers/pdf"
	sessiondomain "github.com/dinehall/dinehall/internal/session/domain"
	"github.com/dinehall/dinehall/internal/session/live"
	settlementdomain "github.com/dinehall/dinehall/internal/settlement/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(
		NewEngine,
		NewServer,
	),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type ServerParams struct {
	fx.In

	Engine          *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	GenID           *snowflake.Node
	SessionSvc      sessiondomain.Service
	SettlementSvc   settlementdomain.Service
	NotificationSvc notificationdomain.Service
	Hub             *changefeed.Hub
	Tracker         *live.Tracker `optional:"true"`
	PDF             pdf.Provider  `optional:"true"`
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	genID           *snowflake.Node
	sessionSvc      sessiondomain.Service
	settlementSvc   settlementdomain.Service
	notificationSvc notificationdomain.Service
	hub             *changefeed.Hub
	tracker         *live.Tracker
	pdf             pdf.Provider
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Engine,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		genID:           p.GenID,
		sessionSvc:      p.SessionSvc,
		settlementSvc:   p.SettlementSvc,
		notificationSvc: p.NotificationSvc,
		hub:             p.Hub,
		tracker:         p.Tracker,
		pdf:             p.PDF,
	}
}

func registerRoutes(s *Server) {
	api := s.engine.Group("/api")
	api.Use(RestaurantContext(s.cfg))

	api.POST("/sessions", s.OpenSession)
	api.GET("/sessions/active", s.ListActiveSessions)
	api.GET("/sessions/live", s.LiveSessions)
	api.GET("/sessions/closed", s.ListClosedSessions)
	api.GET("/sessions/totals", s.PaymentMethodTotals)
	api.POST("/sessions/:id/items", s.AddItem)
	api.POST("/sessions/:id/bill", s.MarkBilled)
	api.POST("/sessions/:id/settle", s.Settle)
	api.PATCH("/items/:id/prep", s.UpdateItemPrep)
	api.DELETE("/items/:id", s.RemoveItem)

	api.POST("/notifications", s.SendNotification)
	api.GET("/notifications", s.ListNotifications)
	api.GET("/notifications/unread-count", s.UnreadCount)
	api.POST("/notifications/:id/read", s.MarkNotificationRead)
	api.POST("/notifications/read-all", s.MarkAllNotificationsRead)
	api.DELETE("/notifications/:id", s.DeleteNotification)
	api.DELETE("/notifications", s.ClearAllNotifications)

	api.GET("/feed", s.StreamRestaurantFeed)
	api.GET("/feed/notifications", s.StreamNotificationFeed)
}

func run(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
