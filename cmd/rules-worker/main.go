// cmd/rules-worker/main.go
package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/bootstrap"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/config"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/httpclient"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/mq"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/redis"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/application"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/infrastructure"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/interfaces"
	"github.com/wangyingjie930/nexus-rules/internal/zookeeper"
)

const serviceName = "rules-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Rules.WorkerHTTPPort,
		Setup:       setup,
	}, cfg)
}

// setup 启动重算任务消费者与周期性全量重算。
func setup(app *bootstrap.AppCtx) error {
	cfg := app.Config

	db, err := infrastructure.OpenMySQL(cfg.Infra.MySQL)
	if err != nil {
		return err
	}
	rdb, err := redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		return err
	}
	slots, err := infrastructure.NewPendingSlots(rdb)
	if err != nil {
		return err
	}
	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
	if err != nil {
		return err
	}

	catalogURL := cfg.Infra.Catalog.BaseURL
	if name := cfg.Infra.Catalog.ServiceName; name != "" {
		if app.Nacos == nil {
			return errors.New("catalog.service_name requires nacos")
		}
		if catalogURL, err = app.Nacos.DiscoverServiceURL(name); err != nil {
			return err
		}
	}

	relations := infrastructure.NewGormRelationshipStore(db)
	rules := infrastructure.NewGormRuleRepository(db)
	catalog := infrastructure.NewHTTPEventCatalog(httpclient.NewClient(app.Tracer), catalogURL)
	dispatcher := infrastructure.NewKafkaDispatcher(cfg.Infra.Kafka.Brokers, cfg.Rules.JobTopic, cfg.Rules.DelayLevels, slots)

	resolver := domain.NewResolver(domain.NewScopeMatcher(domain.NewCriterionEvaluator(infrastructure.NewGormSeriesLookup(db))))
	reevaluator := application.NewReevaluator(relations, rules, catalog, resolver, dispatcher, app.Tracer,
		application.WithSweepLock(zookeeper.NewLocker(zkConn), cfg.Rules.SweepLockResource),
		application.WithParallelism(cfg.Rules.WorkerParallelism),
	)
	detector := application.NewDetector(relations, dispatcher, infrastructure.NewRedisCache(rdb),
		cfg.Rules.ReevaluationDelay, cfg.Rules.FingerprintTTL, app.Tracer)

	consumer := interfaces.NewJobConsumerAdapter(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Rules.JobTopic, cfg.Rules.JobGroupID),
		reevaluator,
	)
	if err := consumer.Start(app.Context()); err != nil {
		return err
	}
	go runSweeps(app.Context(), detector, cfg.Rules.SweepInterval)

	// 后进先出：先停消费者，再关闭它依赖的连接
	app.OnShutdown(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return errors.Wrap(sqlDB.Close(), "close mysql")
	})
	app.OnShutdown(func(ctx context.Context) error {
		return errors.Wrap(rdb.GetClient().Close(), "close redis")
	})
	app.OnShutdown(func(ctx context.Context) error {
		zkConn.Close()
		return nil
	})
	app.OnShutdown(func(ctx context.Context) error {
		return dispatcher.Close()
	})
	app.OnShutdown(func(ctx context.Context) error {
		consumer.Stop(ctx)
		return nil
	})
	return nil
}

// runSweeps 按固定周期投递全量重算任务，作为漏掉变更通知时的兜底。
func runSweeps(ctx context.Context, detector *application.Detector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := detector.ScheduleSweep(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("schedule sweep")
			}
		case <-ctx.Done():
			return
		}
	}
}
