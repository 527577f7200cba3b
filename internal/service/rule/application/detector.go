// internal/service/rule/application/detector.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain/port"
)

// StagedKey 是 StageBefore 暂存变更前状态的缓存键。
func StagedKey(subject domain.SubjectType, id int64) string {
	return fmt.Sprintf("rules:before:%s:%d", subject, id)
}

// Detector 比较变更前后的指纹，决定是否需要重算活动与规则的适用关系。
// 能同步判断的情况（活动没有票、被删除）直接改写关系表，其余投递防抖后的重算任务。
type Detector struct {
	relations  domain.RelationshipStore
	dispatcher port.JobDispatcher
	cache      port.Cache
	delay      time.Duration
	stagedTTL  time.Duration
	tracer     trace.Tracer
	now        func() time.Time
}

func NewDetector(relations domain.RelationshipStore, dispatcher port.JobDispatcher, cache port.Cache, delay, stagedTTL time.Duration, tracer trace.Tracer) *Detector {
	return &Detector{
		relations:  relations,
		dispatcher: dispatcher,
		cache:      cache,
		delay:      delay,
		stagedTTL:  stagedTTL,
		tracer:     tracer,
		now:        time.Now,
	}
}

// StageBefore 在主体被修改之前暂存它的状态；随后不带 before 的 OnMutation 会读取并消费它。
// state 必须是与 subject 对应的 EventState、TicketState 或 RuleState。
func (d *Detector) StageBefore(ctx context.Context, subject domain.SubjectType, id int64, state interface{}) error {
	switch subject {
	case domain.SubjectEvent:
		if _, ok := state.(domain.EventState); !ok {
			return errors.Errorf("stage %s %d: want EventState, got %T", subject, id, state)
		}
	case domain.SubjectTicket:
		if _, ok := state.(domain.TicketState); !ok {
			return errors.Errorf("stage %s %d: want TicketState, got %T", subject, id, state)
		}
	case domain.SubjectRule:
		if _, ok := state.(domain.RuleState); !ok {
			return errors.Errorf("stage %s %d: want RuleState, got %T", subject, id, state)
		}
	default:
		return errors.Wrapf(domain.ErrUnknownSubject, "stage %s", subject)
	}
	data, err := encode(state)
	if err != nil {
		return err
	}
	return errors.Wrap(d.cache.Set(ctx, StagedKey(subject, id), data, d.stagedTTL), "stage before-state")
}

// OnMutation 处理一次变更通知。
func (d *Detector) OnMutation(ctx context.Context, m domain.Mutation) error {
	ctx, span := d.tracer.Start(ctx, "rules.OnMutation")
	defer span.End()
	span.SetAttributes(
		attribute.String("mutation.subject", string(m.Subject)),
		attribute.Int64("mutation.subject_id", m.SubjectID),
		attribute.Bool("mutation.deleted", m.Deleted),
	)

	var err error
	switch m.Subject {
	case domain.SubjectEvent:
		err = d.onEvent(ctx, m)
	case domain.SubjectTicket:
		err = d.onTicket(ctx, m)
	case domain.SubjectRule:
		err = d.onRule(ctx, m)
	case domain.SubjectCategory, domain.SubjectTag:
		if m.Deleted {
			err = d.schedule(ctx, domain.ReevaluationJob{Kind: domain.JobKindTerm, Taxonomy: domain.Term(m.Subject), SubjectID: m.SubjectID}, d.delay)
		}
	case domain.SubjectVenue:
		if m.Deleted {
			err = d.schedule(ctx, domain.ReevaluationJob{Kind: domain.JobKindVenue, SubjectID: m.SubjectID}, d.delay)
		}
	case domain.SubjectSeries:
		if m.Deleted {
			err = d.schedule(ctx, domain.ReevaluationJob{Kind: domain.JobKindSeries, SubjectID: m.SubjectID}, d.delay)
		}
	default:
		err = errors.Wrapf(domain.ErrUnknownSubject, "%q", m.Subject)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mutation handling failed")
	}
	return err
}

// ScheduleSweep 投递全量重算任务。
func (d *Detector) ScheduleSweep(ctx context.Context) error {
	return d.schedule(ctx, domain.ReevaluationJob{Kind: domain.JobKindSweep}, 0)
}

func (d *Detector) onEvent(ctx context.Context, m domain.Mutation) error {
	if m.Deleted {
		return d.clearEvent(ctx, m.SubjectID, "event deleted")
	}
	if m.EventAfter == nil {
		return errors.Wrapf(domain.ErrMissingState, "event %d", m.SubjectID)
	}
	before := m.EventBefore
	if before == nil {
		var staged domain.EventState
		ok, err := d.consumeStaged(ctx, domain.SubjectEvent, m.SubjectID, &staged)
		if err != nil {
			return err
		}
		if ok {
			before = &staged
		}
	}

	after := m.EventAfter
	// 没有票的活动不可能有适用规则，同步删除即可，不需要任务往返。
	if after.TicketCount == 0 {
		return d.clearEvent(ctx, m.SubjectID, "event has no tickets")
	}
	job := domain.ReevaluationJob{Kind: domain.JobKindEvent, SubjectID: m.SubjectID}
	switch {
	case before == nil:
		return d.schedule(ctx, job, d.delay)
	case before.TicketCount == 0:
		return d.schedule(ctx, job, d.delay)
	case before.Fingerprint() != after.Fingerprint():
		return d.schedule(ctx, job, d.delay)
	}
	return nil
}

// onTicket 把票种变更归到父活动上：任务键使用活动的键。
func (d *Detector) onTicket(ctx context.Context, m domain.Mutation) error {
	before := m.TicketBefore
	if before == nil {
		var staged domain.TicketState
		ok, err := d.consumeStaged(ctx, domain.SubjectTicket, m.SubjectID, &staged)
		if err != nil {
			return err
		}
		if ok {
			before = &staged
		}
	}

	if m.Deleted {
		if before == nil {
			return errors.Wrapf(domain.ErrMissingState, "deleted ticket %d has no parent event", m.SubjectID)
		}
		if m.RemainingTickets == 0 {
			return d.clearEvent(ctx, before.EventID, "last ticket deleted")
		}
		return d.schedule(ctx, domain.ReevaluationJob{Kind: domain.JobKindEvent, SubjectID: before.EventID}, d.delay)
	}

	if m.TicketAfter == nil {
		return errors.Wrapf(domain.ErrMissingState, "ticket %d", m.SubjectID)
	}
	after := m.TicketAfter
	if before == nil || before.Fingerprint() != after.Fingerprint() {
		return d.schedule(ctx, domain.ReevaluationJob{Kind: domain.JobKindEvent, SubjectID: after.EventID}, d.delay)
	}
	return nil
}

func (d *Detector) onRule(ctx context.Context, m domain.Mutation) error {
	if m.Deleted {
		if err := d.relations.DeleteRule(ctx, m.SubjectID); err != nil {
			return errors.Wrapf(err, "delete relationships of rule %d", m.SubjectID)
		}
		logger.Ctx(ctx).Info().Int64("rule_id", m.SubjectID).Msg("rule deleted, relationships removed")
		return errors.Wrap(d.dispatcher.Unschedule(ctx, domain.RuleJobKey(m.SubjectID)), "unschedule rule job")
	}
	if m.RuleAfter == nil {
		return errors.Wrapf(domain.ErrMissingState, "rule %d", m.SubjectID)
	}
	before := m.RuleBefore
	if before == nil {
		var staged domain.RuleState
		ok, err := d.consumeStaged(ctx, domain.SubjectRule, m.SubjectID, &staged)
		if err != nil {
			return err
		}
		if ok {
			before = &staged
		}
	}
	if before == nil || before.Fingerprint() != m.RuleAfter.Fingerprint() {
		return d.schedule(ctx, domain.ReevaluationJob{Kind: domain.JobKindRule, SubjectID: m.SubjectID}, d.delay)
	}
	return nil
}

// clearEvent 同步删除活动的关系行，并取消该活动尚未执行的重算任务。reason 只用于日志。
func (d *Detector) clearEvent(ctx context.Context, eventID int64, reason string) error {
	if err := d.relations.DeleteEvent(ctx, eventID); err != nil {
		return errors.Wrapf(err, "delete relationships of event %d", eventID)
	}
	logger.Ctx(ctx).Info().Int64("event_id", eventID).Str("reason", reason).Msg("event relationships removed")
	return errors.Wrap(d.dispatcher.Unschedule(ctx, domain.EventJobKey(eventID)), "unschedule event job")
}

// schedule 先取消同键的待执行任务再投递新任务，连续多次修改只留下一个任务。
func (d *Detector) schedule(ctx context.Context, job domain.ReevaluationJob, delay time.Duration) error {
	job.ID = uuid.NewString()
	job.ScheduledAt = d.now().Add(delay)
	key := job.Key()

	if err := d.dispatcher.Unschedule(ctx, key); err != nil {
		return errors.Wrapf(err, "unschedule %s", key)
	}
	if err := d.dispatcher.Dispatch(ctx, job, delay); err != nil {
		return errors.Wrapf(err, "dispatch %s", key)
	}
	jobsScheduled.WithLabelValues(string(job.Kind)).Inc()
	trace.SpanFromContext(ctx).AddEvent("re-evaluation scheduled", trace.WithAttributes(
		attribute.String("job.key", key),
		attribute.String("job.id", job.ID),
	))
	logger.Ctx(ctx).Info().Str("job_key", key).Str("job_id", job.ID).Dur("delay", delay).Msg("re-evaluation scheduled")
	return nil
}

func (d *Detector) consumeStaged(ctx context.Context, subject domain.SubjectType, id int64, out interface{}) (bool, error) {
	key := StagedKey(subject, id)
	data, ok, err := d.cache.Get(ctx, key)
	if err != nil {
		return false, errors.Wrap(err, "read staged before-state")
	}
	if !ok {
		return false, nil
	}
	if err := decode(data, out); err != nil {
		return false, err
	}
	if err := d.cache.Delete(ctx, key); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to clear staged before-state")
	}
	return true, nil
}
