// cmd/rules-service/main.go
package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/bootstrap"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/config"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/redis"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/application"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/infrastructure"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/interfaces"
)

const serviceName = "rules-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Rules.HTTPPort,
		Setup:       setup,
	}, cfg)
}

// setup 组装结账校验与变更检测：MySQL 保存规则与关系，Redis 保存快照与待执行槽位，Kafka 投递重算任务。
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

	relations := infrastructure.NewGormRelationshipStore(db)
	rules := infrastructure.NewGormRuleRepository(db)
	cache := infrastructure.NewRedisCache(rdb)
	dispatcher := infrastructure.NewKafkaDispatcher(cfg.Infra.Kafka.Brokers, cfg.Rules.JobTopic, cfg.Rules.DelayLevels, slots)

	snapshots := application.NewSnapshotStore(relations, rules, cache)
	checkout := application.NewCheckoutService(
		snapshots,
		application.NewValidator(snapshots, cfg.Rules.DefaultCartTTL, app.Tracer),
		application.NewDiscountCalculator(cache, cfg.Rules.DefaultCartTTL, app.Tracer),
		app.Tracer,
	)
	detector := application.NewDetector(relations, dispatcher, cache, cfg.Rules.ReevaluationDelay, cfg.Rules.FingerprintTTL, app.Tracer)

	interfaces.NewRuleHandler(checkout, detector).RegisterRoutes(app.Mux)

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
		return dispatcher.Close()
	})
	return nil
}
