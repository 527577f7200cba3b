package application

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

func TestSnapshotFrozenForCartLifetime(t *testing.T) {
	ctx := context.Background()
	limit := newRule(t, 1, domain.RuleTypeEventPurchaseLimit, map[string]interface{}{"eventLimit": 4})
	f := newCheckoutFixture(map[int64][]domain.Rule{10: {limit}})

	first, err := f.snapshots.GetOrCreate(ctx, 10, "cart-1", time.Minute)
	if err != nil {
		t.Fatalf("first GetOrCreate: %v", err)
	}
	firstBytes, err := encode(first)
	if err != nil {
		t.Fatal(err)
	}

	// 修改底层规则和关系表，快照不能变化。
	changed := limit
	changed.Config = []byte(`{"eventLimit":1}`)
	changed.Title = "changed"
	f.rules.put(changed)
	f.rules.put(newRule(t, 2, domain.RuleTypeOrderDiscount, nil))
	f.relations.byEvent[10] = []int64{1, 2}

	second, err := f.snapshots.GetOrCreate(ctx, 10, "cart-1", time.Minute)
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	secondBytes, err := encode(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Fatalf("snapshot changed between calls:\n%x\n%x", firstBytes, secondBytes)
	}
	if f.cache.ttls[SnapshotKey(10, "cart-1")] != time.Minute {
		t.Fatalf("snapshot ttl = %v, want cart ttl", f.cache.ttls[SnapshotKey(10, "cart-1")])
	}

	// 另一个购物车看到的是当前规则。
	other, err := f.snapshots.GetOrCreate(ctx, 10, "cart-2", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 2 || other[0].Title != "changed" {
		t.Fatalf("fresh snapshot = %+v", other)
	}
}

func TestSnapshotCallersCannotMutateFrozenCopy(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(map[int64][]domain.Rule{10: {newRule(t, 1, domain.RuleTypeUserRole, nil)}})

	got, err := f.snapshots.GetOrCreate(ctx, 10, "cart-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	got[0].Type = domain.RuleTypeOrderDiscount

	again, err := f.snapshots.GetOrCreate(ctx, 10, "cart-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if again[0].Type != domain.RuleTypeUserRole {
		t.Fatalf("frozen rule type mutated to %s", again[0].Type)
	}
}

func TestSnapshotKeepsStorageOrderAndDropsInactive(t *testing.T) {
	ctx := context.Background()
	inactive := newRule(t, 2, domain.RuleTypeUserRole, nil)
	inactive.Status = domain.RuleStatusInactive
	f := newCheckoutFixture(map[int64][]domain.Rule{
		10: {
			newRule(t, 5, domain.RuleTypeOrderDiscount, nil),
			inactive,
			newRule(t, 1, domain.RuleTypeEventPurchaseLimit, nil),
		},
	})
	// 关系表引用了一条已经不存在的规则
	f.relations.byEvent[10] = append(f.relations.byEvent[10], 99)

	rules, err := f.snapshots.GetOrCreate(ctx, 10, "cart-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 || rules[0].ID != 5 || rules[1].ID != 1 {
		t.Fatalf("rules = %+v, want ids [5 1]", rules)
	}
}

func TestSnapshotInvalidateRecomputes(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(map[int64][]domain.Rule{10: {newRule(t, 1, domain.RuleTypeUserRole, nil)}})

	if _, err := f.snapshots.GetOrCreate(ctx, 10, "cart-1", time.Minute); err != nil {
		t.Fatal(err)
	}
	f.relations.byEvent[10] = nil
	if err := f.snapshots.Invalidate(ctx, 10, "cart-1"); err != nil {
		t.Fatal(err)
	}
	rules, err := f.snapshots.GetOrCreate(ctx, 10, "cart-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 0 {
		t.Fatalf("expected empty snapshot after invalidation, got %d rules", len(rules))
	}
}

func TestSnapshotConcurrentMissesComputeOnce(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(map[int64][]domain.Rule{10: {newRule(t, 1, domain.RuleTypeUserRole, nil)}})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.snapshots.GetOrCreate(ctx, 10, "cart-1", time.Minute); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := f.relations.calls(); n != 1 {
		t.Fatalf("relationship store read %d times, want 1", n)
	}
}
