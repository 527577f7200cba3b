// internal/pkg/config/config.go

// Package config 加载规则服务与 worker 的配置。
//
// 加载顺序：RULES_CONFIG 指向的 YAML 文件（可选）-> 环境变量覆盖 -> 默认值补齐。
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath 指定 YAML 配置文件路径的环境变量。
const EnvConfigPath = "RULES_CONFIG"

type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	Infra    Infra  `yaml:"infra"`
	Rules    Rules  `yaml:"rules" envPrefix:"RULES_"`
}

type Infra struct {
	Jaeger    Jaeger    `yaml:"jaeger"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	MySQL     MySQL     `yaml:"mysql"`
	Nacos     Nacos     `yaml:"nacos"`
	Zookeeper Zookeeper `yaml:"zookeeper"`
	Catalog   Catalog   `yaml:"catalog"`
}

type Jaeger struct {
	Endpoint    string  `yaml:"endpoint" env:"JAEGER_ENDPOINT"`
	SampleRatio float64 `yaml:"sample_ratio" env:"JAEGER_SAMPLE_RATIO"`
}

type Redis struct {
	Addrs    []string `yaml:"addrs" env:"REDIS_ADDRS"`
	Password string   `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int      `yaml:"db" env:"REDIS_DB"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
}

type MySQL struct {
	Addr     string `yaml:"addr" env:"MYSQL_ADDR"`
	User     string `yaml:"user" env:"MYSQL_USER"`
	Password string `yaml:"password" env:"MYSQL_PASSWORD"`
	Database string `yaml:"database" env:"MYSQL_DATABASE"`
}

type Nacos struct {
	ServerAddrs string `yaml:"server_addrs" env:"NACOS_SERVER_ADDRS"`
	Namespace   string `yaml:"namespace" env:"NACOS_NAMESPACE"`
	Group       string `yaml:"group" env:"NACOS_GROUP"`
}

type Zookeeper struct {
	Servers        []string      `yaml:"servers" env:"ZOOKEEPER_SERVERS"`
	SessionTimeout time.Duration `yaml:"session_timeout" env:"ZOOKEEPER_SESSION_TIMEOUT"`
}

// Catalog 指定活动目录服务的地址；ServiceName 非空时通过 Nacos 发现，忽略 BaseURL。
type Catalog struct {
	BaseURL     string `yaml:"base_url" env:"CATALOG_BASE_URL"`
	ServiceName string `yaml:"service_name" env:"CATALOG_SERVICE_NAME"`
}

// Rules 是规则引擎本身的运行参数。
type Rules struct {
	// ReevaluationDelay 是变更触发重算任务时的防抖延迟。
	ReevaluationDelay time.Duration `yaml:"reevaluation_delay" env:"REEVALUATION_DELAY"`

	// SweepInterval 是全量重算的周期，作为漏触发的兜底。
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`

	DefaultCartTTL time.Duration `yaml:"default_cart_ttl" env:"DEFAULT_CART_TTL"`

	// FingerprintTTL 是 StageBefore 暂存的变更前指纹的存活时间。
	FingerprintTTL time.Duration `yaml:"fingerprint_ttl" env:"FINGERPRINT_TTL"`

	JobTopic   string `yaml:"job_topic" env:"JOB_TOPIC"`
	JobGroupID string `yaml:"job_group_id" env:"JOB_GROUP_ID"`

	// DelayLevels 将延迟主题映射到其延迟时长，需与 delay-scheduler 一致。
	DelayLevels map[string]time.Duration `yaml:"delay_levels"`

	WorkerParallelism int    `yaml:"worker_parallelism" env:"WORKER_PARALLELISM"`
	HTTPPort          int    `yaml:"http_port" env:"HTTP_PORT"`
	WorkerHTTPPort    int    `yaml:"worker_http_port" env:"WORKER_HTTP_PORT"`
	SchedulerHTTPPort int    `yaml:"scheduler_http_port" env:"SCHEDULER_HTTP_PORT"`
	SweepLockResource string `yaml:"sweep_lock_resource" env:"SWEEP_LOCK_RESOURCE"`
}

// Default 返回所有字段都已填充默认值的配置。
func Default() Config {
	return Config{
		LogLevel: "info",
		Infra: Infra{
			Jaeger:    Jaeger{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
			Redis:     Redis{Addrs: []string{"localhost:6379"}},
			Kafka:     Kafka{Brokers: []string{"localhost:9092"}},
			MySQL:     MySQL{Addr: "localhost:3306", User: "root", Database: "nexus_rules"},
			Nacos:     Nacos{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
			Zookeeper: Zookeeper{Servers: []string{"localhost:2181"}, SessionTimeout: 10 * time.Second},
			Catalog:   Catalog{BaseURL: "http://localhost:8090"},
		},
		Rules: Rules{
			ReevaluationDelay: 5 * time.Second,
			SweepInterval:     12 * time.Hour,
			DefaultCartTTL:    30 * time.Minute,
			FingerprintTTL:    5 * time.Minute,
			JobTopic:          "rules-reevaluation",
			JobGroupID:        "rules-worker-group",
			DelayLevels: map[string]time.Duration{
				"delay_topic_5s":  5 * time.Second,
				"delay_topic_1m":  time.Minute,
				"delay_topic_10m": 10 * time.Minute,
			},
			WorkerParallelism: 8,
			HTTPPort:          8088,
			WorkerHTTPPort:    8089,
			SchedulerHTTPPort: 8087,
			SweepLockResource: "rules-sweep",
		},
	}
}

// Load 读取 YAML 文件（如果 RULES_CONFIG 已设置）并叠加环境变量。
func Load() (Config, error) {
	return LoadFile(os.Getenv(EnvConfigPath))
}

// LoadFile 与 Load 相同，但显式指定文件路径；path 为空时只使用默认值和环境变量。
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Rules.SweepInterval <= 0 {
		return errors.New("rules.sweep_interval must be positive")
	}
	if c.Rules.DefaultCartTTL <= 0 {
		return errors.New("rules.default_cart_ttl must be positive")
	}
	if c.Rules.ReevaluationDelay < 0 {
		return errors.New("rules.reevaluation_delay must not be negative")
	}
	if len(c.Rules.DelayLevels) == 0 {
		return errors.New("rules.delay_levels must not be empty")
	}
	if c.Rules.JobTopic == "" {
		return errors.New("rules.job_topic is required")
	}
	return nil
}
