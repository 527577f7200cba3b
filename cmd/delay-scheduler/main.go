// cmd/delay-scheduler/main.go
package main

import (
	"context"
	"sync"

	"github.com/wangyingjie930/nexus-rules/internal/delayqueue"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/bootstrap"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/config"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
)

const serviceName = "delay-scheduler"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Rules.SchedulerHTTPPort,
		Setup:       setup,
	}, cfg)
}

// setup 为每个延迟级别启动一个独立的调度器 goroutine。
func setup(app *bootstrap.AppCtx) error {
	var wg sync.WaitGroup
	for level, delay := range app.Config.Rules.DelayLevels {
		s := delayqueue.NewScheduler(app.Config.Infra.Kafka.Brokers, serviceName+"-group", level, delay, app.Tracer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Run(app.Context())
		}()
	}
	app.OnShutdown(func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	logger.L().Info().Int("levels", len(app.Config.Rules.DelayLevels)).Msg("All delay schedulers are running.")
	return nil
}
