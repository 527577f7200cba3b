// internal/delayqueue/scheduler.go

// Package delayqueue 把延迟主题中到期的消息转发到 real-topic 头指定的业务主题。
package delayqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/mq"
)

// Scheduler 负责一个延迟级别的转发。
type Scheduler struct {
	level   string        // 延迟级别名称, e.g., "delay_topic_5s"
	delay   time.Duration // 对应的延迟时长
	brokers []string
	reader  *kafka.Reader
	tracer  trace.Tracer

	mu      sync.Mutex
	writers map[string]*kafka.Writer // key: realTopic
}

func NewScheduler(brokers []string, groupPrefix, level string, delay time.Duration, tracer trace.Tracer) *Scheduler {
	return &Scheduler{
		level:   level,
		delay:   delay,
		brokers: brokers,
		reader:  mq.NewKafkaReader(brokers, level, groupPrefix+"-"+level),
		tracer:  tracer,
		writers: make(map[string]*kafka.Writer),
	}
}

// Run 逐条读取延迟消息，等到期后转发并提交 offset，直到 ctx 结束。
// 同一级别的消息按写入顺序到期，只需等待队头。
func (s *Scheduler) Run(ctx context.Context) {
	logger.Ctx(ctx).Info().Str("level", s.level).Dur("delay", s.delay).Msg("✅ Delay scheduler started")
	defer s.close()
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Str("level", s.level).Msg("🛑 Delay scheduler shutting down")
				return
			}
			logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Msg("fetch delayed message")
			time.Sleep(time.Second)
			continue
		}

		if wait := time.Until(DueTime(msg, s.delay)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
		// 转发失败时不提交，反复重试直到成功或退出
		for {
			if err := s.forward(ctx, msg); err == nil {
				break
			} else if ctx.Err() != nil {
				return
			} else {
				logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Msg("forward delayed message, retrying")
				time.Sleep(time.Second)
			}
		}
	}
}

func (s *Scheduler) forward(parent context.Context, msg kafka.Message) error {
	ctx, span := s.tracer.Start(mq.ExtractTraceContext(parent, msg.Headers), "scheduler.Forward", trace.WithAttributes(
		attribute.String("delay.level", s.level),
		attribute.String("msg.time", msg.Time.Format(time.DateTime)),
	))
	defer span.End()

	realTopic := mq.Header(msg.Headers, mq.HeaderRealTopic)
	if realTopic == "" {
		// 错误消息也需要提交，否则会一直被重复消费
		logger.Ctx(ctx).Error().Str("level", s.level).Msg("'real-topic' header missing, message skipped")
		span.AddEvent("MissingRealTopic")
		return s.commit(ctx, msg)
	}

	writer := s.writer(realTopic)
	if err := mq.ProduceMessage(ctx, writer, msg.Key, msg.Value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish to real topic failed")
		return errors.Wrapf(err, "publish to %s", realTopic)
	}
	span.AddEvent("MessagePublished", trace.WithAttributes(attribute.String("real.topic", realTopic)))
	logger.Ctx(ctx).Debug().Str("level", s.level).Str("real_topic", realTopic).Msg("delayed message forwarded")
	return s.commit(ctx, msg)
}

func (s *Scheduler) commit(ctx context.Context, msg kafka.Message) error {
	// 使用父 ctx 之外的超时，避免关停时已转发的消息无法提交
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return errors.Wrap(s.reader.CommitMessages(commitCtx, msg), "commit delayed message")
}

func (s *Scheduler) writer(topic string) *kafka.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.writers[topic]
	if !ok {
		w = mq.NewKafkaWriter(s.brokers, topic)
		s.writers[topic] = w
	}
	return w
}

func (s *Scheduler) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, w := range s.writers {
		if err := w.Close(); err != nil {
			logger.L().Error().Err(err).Str("topic", topic).Msg("close writer")
		}
	}
	if err := s.reader.Close(); err != nil {
		logger.L().Error().Err(err).Str("level", s.level).Msg("close reader")
	}
}

// DueTime 优先使用 delay-timestamp 头中的毫秒时间戳，否则按消息写入时间加上级别延迟计算。
func DueTime(msg kafka.Message, levelDelay time.Duration) time.Time {
	if raw := mq.Header(msg.Headers, mq.HeaderDelayTimestamp); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return msg.Time.Add(levelDelay)
}
