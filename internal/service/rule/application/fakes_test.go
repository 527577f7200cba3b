package application

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

var testTracer trace.Tracer = noop.NewTracerProvider().Tracer("rules-test")

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	delete(c.ttls, key)
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type memRelations struct {
	mu       sync.Mutex
	byEvent  map[int64][]int64
	findHits int
}

func newMemRelations() *memRelations {
	return &memRelations{byEvent: map[int64][]int64{}}
}

func (s *memRelations) FindRulesForEvent(_ context.Context, eventID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findHits++
	return append([]int64(nil), s.byEvent[eventID]...), nil
}

func (s *memRelations) FindEventsForRule(_ context.Context, ruleID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for e, ids := range s.byEvent {
		for _, id := range ids {
			if id == ruleID {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (s *memRelations) Replace(_ context.Context, eventID int64, ruleIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ruleIDs) == 0 {
		delete(s.byEvent, eventID)
		return nil
	}
	s.byEvent[eventID] = append([]int64(nil), ruleIDs...)
	return nil
}

func (s *memRelations) AddRule(_ context.Context, eventID, ruleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byEvent[eventID]
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= ruleID })
	if i < len(ids) && ids[i] == ruleID {
		return nil
	}
	next := make([]int64, 0, len(ids)+1)
	next = append(next, ids[:i]...)
	next = append(next, ruleID)
	s.byEvent[eventID] = append(next, ids[i:]...)
	return nil
}

func (s *memRelations) RemoveRule(_ context.Context, eventID, ruleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []int64
	for _, id := range s.byEvent[eventID] {
		if id != ruleID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(s.byEvent, eventID)
	} else {
		s.byEvent[eventID] = kept
	}
	return nil
}

func (s *memRelations) DeleteEvent(_ context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byEvent, eventID)
	return nil
}

func (s *memRelations) DeleteRule(_ context.Context, ruleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for e, ids := range s.byEvent {
		var kept []int64
		for _, id := range ids {
			if id != ruleID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(s.byEvent, e)
		} else {
			s.byEvent[e] = kept
		}
	}
	return nil
}

func (s *memRelations) get(eventID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.byEvent[eventID]...)
}

func (s *memRelations) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findHits
}

type memRules struct {
	mu    sync.Mutex
	rules map[int64]domain.Rule
}

func newMemRules(rules ...domain.Rule) *memRules {
	m := &memRules{rules: map[int64]domain.Rule{}}
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return m
}

func (m *memRules) put(r domain.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
}

func (m *memRules) FindByID(_ context.Context, id int64) (*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	return &r, nil
}

func (m *memRules) FindByIDs(_ context.Context, ids []int64) ([]domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Rule
	for _, id := range ids {
		if r, ok := m.rules[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRules) ListActive(_ context.Context) ([]domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Rule
	for _, r := range m.rules {
		if r.IsActive() {
			out = append(out, r)
		}
	}
	return out, nil
}

type memCatalog struct {
	mu     sync.Mutex
	events map[int64]domain.Event
}

func newMemCatalog(events ...domain.Event) *memCatalog {
	c := &memCatalog{events: map[int64]domain.Event{}}
	for _, e := range events {
		c.events[e.ID] = e
	}
	return c
}

func (c *memCatalog) GetEvent(_ context.Context, id int64) (*domain.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return &e, nil
}

func (c *memCatalog) ListEventIDs(_ context.Context) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []int64
	for id := range c.events {
		ids = append(ids, id)
	}
	return ids, nil
}

// memDispatcher 模拟每个 key 一个待执行槽位的语义。
type memDispatcher struct {
	mu         sync.Mutex
	pending    map[string]string
	dispatched []domain.ReevaluationJob
}

func newMemDispatcher() *memDispatcher {
	return &memDispatcher{pending: map[string]string{}}
}

func (d *memDispatcher) Dispatch(_ context.Context, job domain.ReevaluationJob, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[job.Key()] = job.ID
	d.dispatched = append(d.dispatched, job)
	return nil
}

func (d *memDispatcher) Unschedule(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, key)
	return nil
}

func (d *memDispatcher) Claim(_ context.Context, job domain.ReevaluationJob) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[job.Key()] != job.ID {
		return false, nil
	}
	delete(d.pending, job.Key())
	return true, nil
}

func (d *memDispatcher) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *memDispatcher) last() domain.ReevaluationJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatched[len(d.dispatched)-1]
}

type memLocker struct {
	mu       sync.Mutex
	acquired []string
	released int
}

func (l *memLocker) Acquire(_ context.Context, resource string) (func() error, error) {
	l.mu.Lock()
	l.acquired = append(l.acquired, resource)
	l.mu.Unlock()
	return func() error {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
		return nil
	}, nil
}

func newRule(t *testing.T, id int64, typ domain.RuleType, cfg map[string]interface{}) domain.Rule {
	t.Helper()
	var raw json.RawMessage
	if cfg != nil {
		data, err := json.Marshal(cfg)
		if err != nil {
			t.Fatalf("marshal config: %v", err)
		}
		raw = data
	}
	return domain.Rule{
		ID:     id,
		Title:  string(typ),
		Type:   typ,
		Status: domain.RuleStatusActive,
		Scope:  domain.Scope{Connector: domain.ConnectorAll},
		Config: raw,
	}
}

func line(eventID, ticketID int64, name string, qty int, price string) domain.CartLineItem {
	return domain.CartLineItem{
		EventID:    eventID,
		TicketID:   ticketID,
		TicketName: name,
		Quantity:   qty,
		UnitPrice:  decimal.RequireFromString(price),
	}
}

func testCart(lines ...domain.CartLineItem) domain.Cart {
	return domain.Cart{
		Key:       "cart-1",
		TTL:       10 * time.Minute,
		Purchaser: domain.Purchaser{UserID: "u-1", Authenticated: true},
		Lines:     lines,
	}
}

// checkoutFixture 把规则直接挂到活动的关系表上，构造完整的结账链路。
type checkoutFixture struct {
	cache      *memCache
	relations  *memRelations
	rules      *memRules
	snapshots  *SnapshotStore
	validator  *Validator
	calculator *DiscountCalculator
	service    *CheckoutService
}

func newCheckoutFixture(relations map[int64][]domain.Rule) *checkoutFixture {
	f := &checkoutFixture{cache: newMemCache(), relations: newMemRelations(), rules: newMemRules()}
	for eventID, rules := range relations {
		ids := make([]int64, 0, len(rules))
		for _, r := range rules {
			f.rules.put(r)
			ids = append(ids, r.ID)
		}
		f.relations.byEvent[eventID] = ids
	}
	f.snapshots = NewSnapshotStore(f.relations, f.rules, f.cache)
	f.validator = NewValidator(f.snapshots, 30*time.Minute, testTracer)
	f.calculator = NewDiscountCalculator(f.cache, 30*time.Minute, testTracer)
	f.service = NewCheckoutService(f.snapshots, f.validator, f.calculator, testTracer)
	return f
}
