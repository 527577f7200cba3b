package application

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestOrderPercentageDiscount(t *testing.T) {
	rule := newRule(t, 1, domain.RuleTypeOrderDiscount, map[string]interface{}{
		"discountType":     "percentage",
		"discountValue":    10,
		"requirement":      "quantity",
		"requirementValue": 5,
	})
	cart := testCart(line(10, 1, "General", 6, "20.00"))

	items := CalculateDiscounts(cart, []ScopedRule{{EventID: 10, Rule: rule}})
	if len(items) != 1 {
		t.Fatalf("items = %+v, want one line", items)
	}
	if !items[0].Amount.Equal(mustDecimal("12.00")) {
		t.Fatalf("amount = %s, want 12.00", items[0].Amount)
	}

	// 数量不足 5 张时不打折
	short := testCart(line(10, 1, "General", 4, "30.00"))
	if items := CalculateDiscounts(short, []ScopedRule{{EventID: 10, Rule: rule}}); len(items) != 0 {
		t.Fatalf("expected no discount below threshold, got %+v", items)
	}
}

func TestDiscountsAreAdditive(t *testing.T) {
	a := newRule(t, 1, domain.RuleTypeOrderDiscount, map[string]interface{}{"discountType": "percentage", "discountValue": 10})
	b := newRule(t, 2, domain.RuleTypeTicketDiscount, map[string]interface{}{
		"requirements":  []map[string]interface{}{{"ticket": "Adult", "quantity": 2}},
		"discountType":  "percentage",
		"discountValue": 25,
	})
	cart := testCart(line(10, 1, "Adult", 2, "40.00"), line(10, 2, "Child", 1, "20.00"))

	total := func(rules ...domain.Rule) decimal.Decimal {
		scoped := make([]ScopedRule, 0, len(rules))
		for _, r := range rules {
			scoped = append(scoped, ScopedRule{EventID: 10, Rule: r})
		}
		sum := decimal.Zero
		for _, it := range CalculateDiscounts(cart, scoped) {
			sum = sum.Add(it.Amount)
		}
		return sum
	}

	dA, dB, both := total(a), total(b), total(a, b)
	if !dA.Equal(mustDecimal("10")) || !dB.Equal(mustDecimal("20")) {
		t.Fatalf("dA = %s, dB = %s", dA, dB)
	}
	if !both.Equal(dA.Add(dB)) {
		t.Fatalf("combined = %s, want %s", both, dA.Add(dB))
	}
}

func TestTicketDiscount(t *testing.T) {
	tests := []struct {
		name  string
		cfg   map[string]interface{}
		lines []domain.CartLineItem
		want  string
	}{
		{
			name: "flat per matching unit",
			cfg: map[string]interface{}{
				"requirements": []map[string]interface{}{{"ticket": "Adult", "quantity": 2}},
				"discountType": "flat", "discountValue": 5,
			},
			lines: []domain.CartLineItem{line(10, 1, "Adult", 3, "40"), line(10, 2, "Child", 1, "20")},
			want:  "15",
		},
		{
			name: "every requirement must hold",
			cfg: map[string]interface{}{
				"requirements": []map[string]interface{}{{"ticket": "Adult", "quantity": 2}, {"ticket": "Child", "quantity": 2}},
				"discountType": "percentage", "discountValue": 50,
			},
			lines: []domain.CartLineItem{line(10, 1, "Adult", 2, "40"), line(10, 2, "Child", 1, "20")},
			want:  "0",
		},
		{
			name: "percentage of all matching lines",
			cfg: map[string]interface{}{
				"requirements": []map[string]interface{}{{"ticket": "Adult", "quantity": 1}, {"ticket": "Child", "quantity": 1}},
				"discountType": "percentage", "discountValue": 10,
			},
			lines: []domain.CartLineItem{line(10, 1, "Adult", 1, "40"), line(10, 2, "Child", 1, "20"), line(10, 3, "Parking", 1, "15")},
			want:  "6",
		},
		{
			name: "flat capped at matching price",
			cfg: map[string]interface{}{
				"requirements": []map[string]interface{}{{"ticket": "Child", "quantity": 1}},
				"discountType": "flat", "discountValue": 50,
			},
			lines: []domain.CartLineItem{line(10, 2, "Child", 1, "20")},
			want:  "20",
		},
		{
			name:  "missing config yields nothing",
			cfg:   nil,
			lines: []domain.CartLineItem{line(10, 2, "Child", 1, "20")},
			want:  "0",
		},
		{
			name: "other events' lines do not count",
			cfg: map[string]interface{}{
				"requirements": []map[string]interface{}{{"ticket": "Adult", "quantity": 2}},
				"discountType": "flat", "discountValue": 5,
			},
			lines: []domain.CartLineItem{line(10, 1, "Adult", 1, "40"), line(20, 4, "Adult", 1, "40")},
			want:  "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := newRule(t, 4, domain.RuleTypeTicketDiscount, tt.cfg)
			items := CalculateDiscounts(testCart(tt.lines...), []ScopedRule{{EventID: 10, Rule: rule}})
			got := decimal.Zero
			for _, it := range items {
				got = got.Add(it.Amount)
			}
			if !got.Equal(mustDecimal(tt.want)) {
				t.Fatalf("discount = %s, want %s", got, tt.want)
			}
			if tt.want == "0" && len(items) != 0 {
				t.Fatalf("zero discount must not produce a line item: %+v", items)
			}
		})
	}
}

func TestOrderDiscountAppliedOncePerRule(t *testing.T) {
	rule := newRule(t, 1, domain.RuleTypeOrderDiscount, map[string]interface{}{"discountType": "flat", "discountValue": 7.5})
	cart := testCart(line(10, 1, "A", 1, "30"), line(20, 2, "B", 1, "30"))

	items := CalculateDiscounts(cart, []ScopedRule{{EventID: 10, Rule: rule}, {EventID: 20, Rule: rule}})
	if len(items) != 1 || !items[0].Amount.Equal(mustDecimal("7.5")) || items[0].EventID != 10 {
		t.Fatalf("items = %+v", items)
	}
}

func TestDiscountRoundsHalfUpToCents(t *testing.T) {
	rule := newRule(t, 1, domain.RuleTypeOrderDiscount, map[string]interface{}{"discountType": "percentage", "discountValue": 12.5})
	cart := testCart(line(10, 1, "A", 1, "10.20"))

	items := CalculateDiscounts(cart, []ScopedRule{{EventID: 10, Rule: rule}})
	// 10.20 * 12.5% = 1.275
	if len(items) != 1 || !items[0].Amount.Equal(mustDecimal("1.28")) {
		t.Fatalf("items = %+v, want 1.28", items)
	}
}

func TestComputeCachesByCartContent(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	calc := NewDiscountCalculator(cache, 0, testTracer)
	rule := newRule(t, 1, domain.RuleTypeOrderDiscount, map[string]interface{}{"discountType": "flat", "discountValue": 5})
	rules := []ScopedRule{{EventID: 10, Rule: rule}}

	cart := testCart(line(10, 1, "A", 2, "10"))
	first, err := calc.Compute(ctx, cart, rules)
	if err != nil {
		t.Fatal(err)
	}
	hash, err := contentHash(cart.Lines, rules)
	if err != nil {
		t.Fatal(err)
	}
	key := DiscountKey(cart.Key, hash)
	if !cache.has(key) {
		t.Fatalf("expected cached result under %s", key)
	}
	if cache.ttls[key] != cart.TTL {
		t.Fatalf("cache ttl = %v, want %v", cache.ttls[key], cart.TTL)
	}

	second, err := calc.Compute(ctx, cart, rules)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 || !second[0].Amount.Equal(first[0].Amount) {
		t.Fatalf("cached result = %+v, want %+v", second, first)
	}

	// 购物车内容变化后得到新的键
	changed := testCart(line(10, 1, "A", 3, "10"))
	other, err := contentHash(changed.Lines, rules)
	if err != nil {
		t.Fatal(err)
	}
	if other == hash {
		t.Fatal("content hash did not change with cart contents")
	}
}
