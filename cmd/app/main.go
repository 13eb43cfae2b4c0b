package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"storehere/cmd/fx/aws_fx"
	"storehere/cmd/fx/billing_fx"
	"storehere/cmd/fx/config_fx"
	"storehere/cmd/fx/containers_fx"
	"storehere/cmd/fx/controllers_fx"
	"storehere/cmd/fx/logger_fx"
	"storehere/cmd/fx/mail_fx"
	"storehere/cmd/fx/memcache_fx"
	"storehere/cmd/fx/payment_service_fx"
	"storehere/cmd/fx/repositories_fx"
	"storehere/cmd/fx/storage_fx"
	"storehere/cmd/fx/webhook_fx"
	"storehere/internal/api/controllers"
	"storehere/pkg/config"
	"storehere/pkg/middleware"
)

func main() {
	app := fx.New(
		config_fx.Module,
		logger_fx.Module,
		aws_fx.Module,
		billing_fx.Module,
		repositories_fx.Module,
		memcache_fx.Module,
		mail_fx.Module,
		storage_fx.Module,
		payment_service_fx.Module,
		containers_fx.Module,
		webhook_fx.Module,
		controllers_fx.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartServer),
	)

	app.Run()
}

func StartServer(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			go func() {
				logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}

func ProvideRouter(cfg *config.Config, logger *zap.Logger, handlers controllers.Handlers) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceIDMiddleware())
	r.Use(middleware.RequestLogger(logger.Named("http")))
	r.Use(middleware.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	controllers.RegisterRoutes(r, []byte(cfg.JWTSecret), handlers)

	return r
}
