// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/config"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/nacos"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/tracing"
)

// AppCtx 是 Setup 阶段可用的公共组件。
type AppCtx struct {
	Config config.Config
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未配置 Nacos 时为 nil
	Tracer trace.Tracer

	ctx     context.Context
	closers []func(ctx context.Context) error
}

// Context 在收到退出信号时被取消，用于后台 goroutine。
func (a *AppCtx) Context() context.Context {
	return a.ctx
}

// OnShutdown 注册关停时执行的清理函数，按注册的逆序执行。
func (a *AppCtx) OnShutdown(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	Setup       func(app *AppCtx) error // 注册路由、启动消费者等
}

// StartService 封装了所有服务的通用启动和优雅关停逻辑，阻塞直到收到退出信号。
func StartService(info AppInfo, cfg config.Config) {
	logger.Init(info.ServiceName, cfg.LogLevel)
	log := logger.L()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &AppCtx{
		Config: cfg,
		Mux:    http.NewServeMux(),
		Tracer: otel.Tracer(info.ServiceName),
		ctx:    ctx,
	}

	// 2. Nacos，未配置地址时跳过注册
	var ip string
	if cfg.Infra.Nacos.ServerAddrs != "" {
		app.Nacos, err = nacos.NewClient(cfg.Infra.Nacos)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		if ip, err = nacos.OutboundIP(); err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
	}

	// 3. 公共路由 + 服务自己的组件
	app.Mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	app.Mux.Handle("GET /metrics", promhttp.Handler())
	if info.Setup != nil {
		if err := info.Setup(app); err != nil {
			log.Fatal().Err(err).Str("service", info.ServiceName).Msg("setup failed")
		}
	}

	// 4. HTTP Server
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: app.Mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Int("port", info.Port).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("addr", server.Addr).Msg("could not listen")
		}
	}()

	// 5. 服务注册
	if app.Nacos != nil {
		if err := app.Nacos.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 6. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msgf("Shutting down service %s...", info.ServiceName)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// 清理顺序：注销 -> HTTP -> 服务组件(后进先出) -> Tracer
	if app.Nacos != nil {
		if err := app.Nacos.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Error().Err(err).Msg("Error deregistering from Nacos")
		}
		app.Nacos.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}
	// 最后关闭 Tracer Provider，确保关停过程中的 span 也被发送出去
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer provider")
	}

	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}
