// internal/service/rule/interfaces/job_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/pkg/mq"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

// JobRunner 执行一个重算任务，由 application.Reevaluator 实现。
type JobRunner interface {
	Run(ctx context.Context, job domain.ReevaluationJob) error
}

// JobConsumerAdapter 监听重算任务主题并驱动 Reevaluator。
type JobConsumerAdapter struct {
	reader *kafka.Reader
	runner JobRunner
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewJobConsumerAdapter(reader *kafka.Reader, runner JobRunner) *JobConsumerAdapter {
	return &JobConsumerAdapter{reader: reader, runner: runner}
}

// Start 开始消费，直到 ctx 被取消或调用 Stop。
func (a *JobConsumerAdapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Re-evaluation job consumer started.")
		for {
			// 使用 FetchMessage 手动提交 offset
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Re-evaluation job consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(time.Second)
				continue
			}

			msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			a.processMessage(msgCtx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit message")
			}
		}
	}()
	return nil
}

func (a *JobConsumerAdapter) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.reader.Close(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("close job reader")
	}
	logger.Ctx(ctx).Info().Msg("✅ Re-evaluation job consumer stopped.")
}

// processMessage 解析任务并执行。失败的任务不会重试：
// 槽位已被占用，由周期性全量重算兜底。
func (a *JobConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) {
	var job domain.ReevaluationJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("key", string(msg.Key)).Msg("malformed re-evaluation job, skipped")
		return
	}
	if err := a.runner.Run(ctx, job); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("job_key", job.Key()).
			Str("job_id", job.ID).
			Msg("re-evaluation job failed")
	}
}
