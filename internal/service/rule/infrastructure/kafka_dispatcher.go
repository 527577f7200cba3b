// internal/service/rule/infrastructure/kafka_dispatcher.go
package infrastructure

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/mq"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

// slotGrace 是槽位在预计投递时间之后的保留时长，防止延迟调度器积压时槽位先过期。
const slotGrace = 24 * time.Hour

type delayLevel struct {
	topic string
	delay time.Duration
}

// KafkaDispatcher 实现 port.JobDispatcher：延迟任务写入延迟主题，由 delay-scheduler
// 到期后转发到 real-topic 头指定的任务主题；立即执行的任务直接写入任务主题。
type KafkaDispatcher struct {
	jobTopic string
	levels   []delayLevel
	writers  map[string]*kafka.Writer
	slots    *PendingSlots
}

func NewKafkaDispatcher(brokers []string, jobTopic string, levels map[string]time.Duration, slots *PendingSlots) *KafkaDispatcher {
	d := &KafkaDispatcher{
		jobTopic: jobTopic,
		levels:   sortLevels(levels),
		writers:  map[string]*kafka.Writer{jobTopic: mq.NewKafkaWriter(brokers, jobTopic)},
		slots:    slots,
	}
	for _, l := range d.levels {
		d.writers[l.topic] = mq.NewKafkaWriter(brokers, l.topic)
	}
	return d
}

// Dispatch 先登记槽位再发送消息，保证任何被消费到的任务都已是当前任务。
func (d *KafkaDispatcher) Dispatch(ctx context.Context, job domain.ReevaluationJob, delay time.Duration) error {
	value, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encode job")
	}
	if err := d.slots.Set(ctx, job.Key(), job.ID, delay+slotGrace); err != nil {
		return err
	}

	topic := d.jobTopic
	headers := []kafka.Header{}
	if level, ok := selectLevel(d.levels, delay); ok {
		topic = level.topic
		headers = append(headers,
			kafka.Header{Key: mq.HeaderRealTopic, Value: []byte(d.jobTopic)},
			kafka.Header{Key: mq.HeaderDelayTimestamp, Value: []byte(strconv.FormatInt(job.ScheduledAt.UnixMilli(), 10))},
		)
	}
	if err := mq.ProduceMessage(ctx, d.writers[topic], []byte(job.Key()), value, headers...); err != nil {
		return errors.Wrapf(err, "produce job %s to %s", job.Key(), topic)
	}
	return nil
}

func (d *KafkaDispatcher) Unschedule(ctx context.Context, key string) error {
	return d.slots.Clear(ctx, key)
}

func (d *KafkaDispatcher) Claim(ctx context.Context, job domain.ReevaluationJob) (bool, error) {
	return d.slots.Claim(ctx, job.Key(), job.ID)
}

func (d *KafkaDispatcher) Close() error {
	var firstErr error
	for _, w := range d.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func sortLevels(levels map[string]time.Duration) []delayLevel {
	out := make([]delayLevel, 0, len(levels))
	for topic, delay := range levels {
		out = append(out, delayLevel{topic: topic, delay: delay})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].delay < out[j].delay })
	return out
}

// selectLevel 返回不小于 delay 的最小延迟级别；超过所有级别时使用最大的级别。
// delay 不大于 0 时不经过延迟主题。
func selectLevel(levels []delayLevel, delay time.Duration) (delayLevel, bool) {
	if delay <= 0 || len(levels) == 0 {
		return delayLevel{}, false
	}
	for _, l := range levels {
		if l.delay >= delay {
			return l, true
		}
	}
	return levels[len(levels)-1], true
}
