// internal/service/rule/application/snapshot.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain/port"
)

// SnapshotKey 是 (活动, 购物车) 规则快照的缓存键。
func SnapshotKey(eventID int64, cartKey string) string {
	return fmt.Sprintf("rules:snapshot:%d:%s", eventID, cartKey)
}

// SnapshotStore 为每个 (活动, 购物车) 冻结一份适用规则。
// 快照一旦写入，在购物车的生命周期内不会被重新计算，即使规则随后被修改。
type SnapshotStore struct {
	relations domain.RelationshipStore
	rules     domain.RuleRepository
	cache     port.Cache

	group singleflight.Group
}

func NewSnapshotStore(relations domain.RelationshipStore, rules domain.RuleRepository, cache port.Cache) *SnapshotStore {
	return &SnapshotStore{relations: relations, rules: rules, cache: cache}
}

// GetOrCreate 返回快照中的规则，按关系表的存储顺序排列。
// 每次调用都从缓存字节解码出新的切片，调用方修改返回值不会影响快照本身。
func (s *SnapshotStore) GetOrCreate(ctx context.Context, eventID int64, cartKey string, ttl time.Duration) ([]domain.Rule, error) {
	key := SnapshotKey(eventID, cartKey)

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "read snapshot %s", key)
	}
	if ok {
		snapshotLookups.WithLabelValues("hit").Inc()
		return decodeSnapshot(data)
	}

	// 同一进程内对同一个键的并发未命中只计算一次；跨进程则最后写入者生效，
	// 两边基于相同的持久化关系计算，结果一致。
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return data, nil
		}
		snapshotLookups.WithLabelValues("miss").Inc()
		rules, err := s.load(ctx, eventID)
		if err != nil {
			return nil, err
		}
		data, err := encode(rules)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, data, ttl); err != nil {
			return nil, errors.Wrapf(err, "write snapshot %s", key)
		}
		logger.Ctx(ctx).Debug().
			Int64("event_id", eventID).
			Str("cart_key", cartKey).
			Int("rules", len(rules)).
			Msg("rule snapshot created")
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(v.([]byte))
}

// Invalidate 删除快照，只在结账被规则拒绝后调用，使修正后的购物车按当前规则重新评估。
func (s *SnapshotStore) Invalidate(ctx context.Context, eventID int64, cartKey string) error {
	if err := s.cache.Delete(ctx, SnapshotKey(eventID, cartKey)); err != nil {
		return errors.Wrap(err, "invalidate snapshot")
	}
	return nil
}

// load 读取持久化的关系行而不是实时计算适用性，保持存储顺序并过滤停用的规则。
func (s *SnapshotStore) load(ctx context.Context, eventID int64) ([]domain.Rule, error) {
	ids, err := s.relations.FindRulesForEvent(ctx, eventID)
	if err != nil {
		return nil, errors.Wrapf(err, "find rules for event %d", eventID)
	}
	if len(ids) == 0 {
		return []domain.Rule{}, nil
	}
	found, err := s.rules.FindByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load rules")
	}
	byID := make(map[int64]domain.Rule, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	rules := make([]domain.Rule, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok || !r.IsActive() {
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func decodeSnapshot(data []byte) ([]domain.Rule, error) {
	var rules []domain.Rule
	if err := decode(data, &rules); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return rules, nil
}
