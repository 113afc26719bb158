package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"claude-relay/common/config"
	"claude-relay/common/logger"
	"claude-relay/controller"
	"claude-relay/middleware"
	"claude-relay/model"
	rcontroller "claude-relay/relay/controller"
	"claude-relay/relay/pool"
	"claude-relay/relay/toolresult"
	"claude-relay/router"
)

func main() {
	logger.Logger.Info("claude-relay starting")

	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	} else if !config.DebugEnabled {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := model.InitDB(); err != nil {
		logger.Logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := model.CloseDB(); err != nil {
			logger.Logger.Error("close database", zap.Error(err))
		}
	}()

	accountPool := pool.New(pool.DBStorage{})
	resultCache := toolresult.NewCache(config.ToolResultCacheSize)
	relayer := rcontroller.NewRelayer(accountPool, resultCache)
	controller.Setup(relayer, accountPool)

	logLevel := glog.LevelInfo
	if config.DebugEnabled {
		logLevel = glog.LevelDebug
	}

	server := gin.New()
	server.RedirectTrailingSlash = false
	server.Use(
		middleware.RelayPanicRecover(),
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(logLevel.String()),
			gmw.WithLogger(logger.Logger.Named("gin")),
		),
	)
	// Response compression breaks SSE; never add gzip here.
	server.Use(middleware.RequestId())

	if config.EnablePrometheusMetrics {
		server.GET("/metrics", middleware.AdminAuth(), gin.WrapH(promhttp.Handler()))
		logger.Logger.Info("prometheus metrics endpoint available at /metrics")
	}

	router.SetRouter(server)

	srv := &http.Server{
		Addr:    ":" + config.ServerPort,
		Handler: server,
	}
	go func() {
		logger.Logger.Info("server started", zap.String("address", "http://localhost:"+config.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("http server shutdown", zap.Error(err))
	}
	if err := accountPool.Shutdown(ctx); err != nil {
		logger.Logger.Error("account pool shutdown", zap.Error(err))
	}
}
