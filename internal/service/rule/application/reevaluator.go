// internal/service/rule/application/reevaluator.go
package application

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain/port"
)

// Locker 是跨实例的互斥锁，用于串行化全量重算。
type Locker interface {
	Acquire(ctx context.Context, resource string) (release func() error, err error)
}

// Reevaluator 是重算任务的消费端：丢弃已被取代的任务，重新计算受影响活动的适用规则并改写关系表。
type Reevaluator struct {
	relations  domain.RelationshipStore
	rules      domain.RuleRepository
	catalog    domain.EventCatalog
	resolver   *domain.Resolver
	dispatcher port.JobDispatcher
	locker     Locker

	sweepLock   string
	parallelism int
	tracer      trace.Tracer
}

type ReevaluatorOption func(*Reevaluator)

// WithSweepLock 让全量重算在执行前先获取 resource 上的分布式锁。
func WithSweepLock(locker Locker, resource string) ReevaluatorOption {
	return func(r *Reevaluator) {
		r.locker = locker
		r.sweepLock = resource
	}
}

// WithParallelism 限制同一任务内并发重算的活动数。
func WithParallelism(n int) ReevaluatorOption {
	return func(r *Reevaluator) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

func NewReevaluator(relations domain.RelationshipStore, rules domain.RuleRepository, catalog domain.EventCatalog,
	resolver *domain.Resolver, dispatcher port.JobDispatcher, tracer trace.Tracer, opts ...ReevaluatorOption) *Reevaluator {
	r := &Reevaluator{
		relations:   relations,
		rules:       rules,
		catalog:     catalog,
		resolver:    resolver,
		dispatcher:  dispatcher,
		parallelism: 4,
		tracer:      tracer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 执行一个重算任务。任务已不是其键上的当前任务时直接丢弃。
func (r *Reevaluator) Run(ctx context.Context, job domain.ReevaluationJob) error {
	ctx, span := r.tracer.Start(ctx, "rules.Reevaluate", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.key", job.Key()),
	)
	kind := string(job.Kind)

	current, err := r.dispatcher.Claim(ctx, job)
	if err != nil {
		span.RecordError(err)
		jobsProcessed.WithLabelValues(kind, "failed").Inc()
		return errors.Wrapf(err, "claim job %s", job.Key())
	}
	if !current {
		span.AddEvent("stale job dropped")
		jobsProcessed.WithLabelValues(kind, "stale").Inc()
		logger.Ctx(ctx).Info().Str("job_key", job.Key()).Str("job_id", job.ID).Msg("job superseded, dropping")
		return nil
	}

	start := time.Now()
	switch job.Kind {
	case domain.JobKindEvent:
		err = r.RecomputeEvents(ctx, []int64{job.SubjectID})
	case domain.JobKindRule:
		err = r.recomputeRule(ctx, job.SubjectID)
	case domain.JobKindTerm:
		err = r.recomputeReferencing(ctx, job.Taxonomy, job.SubjectID)
	case domain.JobKindVenue:
		err = r.recomputeReferencing(ctx, domain.TermVenue, job.SubjectID)
	case domain.JobKindSeries:
		err = r.recomputeReferencing(ctx, domain.TermSeries, job.SubjectID)
	case domain.JobKindSweep:
		err = r.sweep(ctx)
	default:
		err = errors.Errorf("unknown job kind %q", job.Kind)
	}
	reevaluationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "re-evaluation failed")
		jobsProcessed.WithLabelValues(kind, "failed").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("job_key", job.Key()).Msg("re-evaluation failed")
		return err
	}
	jobsProcessed.WithLabelValues(kind, "done").Inc()
	return nil
}

// RecomputeEvents 用当前启用的全部规则重新计算每个活动的适用规则。
func (r *Reevaluator) RecomputeEvents(ctx context.Context, eventIDs []int64) error {
	if len(eventIDs) == 0 {
		return nil
	}
	rules, err := r.activeRules(ctx)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, id := range eventIDs {
		id := id
		g.Go(func() error {
			return r.recomputeEvent(gctx, id, rules)
		})
	}
	return g.Wait()
}

func (r *Reevaluator) recomputeEvent(ctx context.Context, eventID int64, rules []domain.Rule) error {
	event, err := r.catalog.GetEvent(ctx, eventID)
	if errors.Is(err, domain.ErrEventNotFound) {
		return errors.Wrapf(r.relations.DeleteEvent(ctx, eventID), "delete relationships of missing event %d", eventID)
	}
	if err != nil {
		return errors.Wrapf(err, "load event %d", eventID)
	}
	if len(event.Tickets) == 0 {
		return errors.Wrapf(r.relations.DeleteEvent(ctx, eventID), "delete relationships of event %d", eventID)
	}
	ids, err := r.resolver.ApplicableRules(ctx, rules, event)
	if err != nil {
		return errors.Wrapf(err, "resolve rules for event %d", eventID)
	}
	if err := r.relations.Replace(ctx, eventID, ids); err != nil {
		return errors.Wrapf(err, "replace relationships of event %d", eventID)
	}
	logger.Ctx(ctx).Debug().Int64("event_id", eventID).Int("rules", len(ids)).Msg("event relationships recomputed")
	return nil
}

// recomputeRule 只更新一条规则在各活动上的归属，其余规则的关系行保持不变。
func (r *Reevaluator) recomputeRule(ctx context.Context, ruleID int64) error {
	rule, err := r.rules.FindByID(ctx, ruleID)
	if errors.Is(err, domain.ErrRuleNotFound) || (err == nil && !rule.IsActive()) {
		return errors.Wrapf(r.relations.DeleteRule(ctx, ruleID), "delete relationships of rule %d", ruleID)
	}
	if err != nil {
		return errors.Wrapf(err, "load rule %d", ruleID)
	}
	eventIDs, err := r.catalog.ListEventIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "list events")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, id := range eventIDs {
		id := id
		g.Go(func() error {
			event, err := r.catalog.GetEvent(gctx, id)
			if errors.Is(err, domain.ErrEventNotFound) {
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "load event %d", id)
			}
			applies, err := r.resolver.Applies(gctx, *rule, event, event.Tickets)
			if err != nil {
				return errors.Wrapf(err, "resolve rule %d for event %d", ruleID, id)
			}
			// 只写本规则的那一行，并发的其他规则任务不会被覆盖。
			if applies {
				return errors.Wrapf(r.relations.AddRule(gctx, id, ruleID), "add rule %d to event %d", ruleID, id)
			}
			return errors.Wrapf(r.relations.RemoveRule(gctx, id, ruleID), "remove rule %d from event %d", ruleID, id)
		})
	}
	return g.Wait()
}

// recomputeReferencing 处理分类、标签、场馆或系列被删除：找出作用域引用了它的规则，
// 重新计算这些规则当前关联的所有活动。
func (r *Reevaluator) recomputeReferencing(ctx context.Context, term domain.Term, id int64) error {
	rules, err := r.activeRules(ctx)
	if err != nil {
		return err
	}
	value := strconv.FormatInt(id, 10)
	seen := make(map[int64]struct{})
	var eventIDs []int64
	for _, rule := range rules {
		if !rule.ReferencesTerm(term, value) {
			continue
		}
		related, err := r.relations.FindEventsForRule(ctx, rule.ID)
		if err != nil {
			return errors.Wrapf(err, "find events for rule %d", rule.ID)
		}
		for _, e := range related {
			if _, ok := seen[e]; !ok {
				seen[e] = struct{}{}
				eventIDs = append(eventIDs, e)
			}
		}
	}
	logger.Ctx(ctx).Info().Str("term", string(term)).Int64("id", id).Int("events", len(eventIDs)).Msg("recomputing events after deletion")
	return r.RecomputeEvents(ctx, eventIDs)
}

func (r *Reevaluator) sweep(ctx context.Context) error {
	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, r.sweepLock)
		if err != nil {
			return errors.Wrap(err, "acquire sweep lock")
		}
		defer func() {
			if err := release(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("release sweep lock")
			}
		}()
	}
	ids, err := r.catalog.ListEventIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "list events")
	}
	logger.Ctx(ctx).Info().Int("events", len(ids)).Msg("full sweep started")
	return r.RecomputeEvents(ctx, ids)
}

func (r *Reevaluator) activeRules(ctx context.Context) ([]domain.Rule, error) {
	rules, err := r.rules.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active rules")
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}
