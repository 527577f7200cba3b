// internal/service/rule/domain/port/dispatcher.go
package port

import (
	"context"
	"time"

	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

// JobDispatcher 是重算任务的出站端口，投递语义为至少一次、可能延迟。
type JobDispatcher interface {
	// Dispatch 在 delay 之后投递 job，并把它登记为 job.Key() 当前唯一的待执行任务。
	Dispatch(ctx context.Context, job domain.ReevaluationJob, delay time.Duration) error

	// Unschedule 取消 key 上的待执行任务；已经发出的消息在消费时会被判定为过期。
	Unschedule(ctx context.Context, key string) error

	// Claim 在 job 仍是其 key 的当前任务时占用并清除登记，返回 true；
	// 已被取消或被更新的任务取代时返回 false。
	Claim(ctx context.Context, job domain.ReevaluationJob) (bool, error)
}
