package application

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

func TestCheckoutInvalidatesSnapshotOnViolation(t *testing.T) {
	ctx := context.Background()
	limit := newRule(t, 1, domain.RuleTypeTicketPurchaseLimit, map[string]interface{}{"ticketLimit": 3, "limitedTicket": "VIP"})
	f := newCheckoutFixture(map[int64][]domain.Rule{10: {limit}})

	resp, err := f.service.Checkout(ctx, testCart(line(10, 1, "VIP Pass", 4, "50")))
	if err != nil {
		t.Fatal(err)
	}
	if resp.OK || resp.Violation == nil || resp.Violation.RuleID != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if f.cache.has(SnapshotKey(10, "cart-1")) {
		t.Fatal("violating event's snapshot must be invalidated")
	}
}

func TestCheckoutAppliesDiscounts(t *testing.T) {
	ctx := context.Background()
	discount := newRule(t, 2, domain.RuleTypeOrderDiscount, map[string]interface{}{
		"discountType": "percentage", "discountValue": 10,
		"requirement": "quantity", "requirementValue": 5,
	})
	limit := newRule(t, 1, domain.RuleTypeEventPurchaseLimit, map[string]interface{}{"eventLimit": 10})
	f := newCheckoutFixture(map[int64][]domain.Rule{10: {limit, discount}})

	resp, err := f.service.Checkout(ctx, testCart(line(10, 1, "General", 6, "20.00")))
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK || len(resp.Discounts) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if !resp.Subtotal.Equal(mustDecimal("120")) || !resp.DiscountTotal.Equal(mustDecimal("12")) || !resp.Total.Equal(mustDecimal("108")) {
		t.Fatalf("totals = %s / %s / %s", resp.Subtotal, resp.DiscountTotal, resp.Total)
	}
	if !f.cache.has(SnapshotKey(10, "cart-1")) {
		t.Fatal("snapshot should persist after a successful checkout")
	}
}

func TestCheckoutRejectsInvalidCart(t *testing.T) {
	f := newCheckoutFixture(nil)
	tests := []domain.Cart{
		{Lines: []domain.CartLineItem{line(10, 1, "A", 1, "1")}},
		testCart(line(10, 1, "A", 0, "1")),
		testCart(line(0, 1, "A", 1, "1")),
		testCart(line(10, 1, "A", 1, "-1")),
	}
	for i, cart := range tests {
		if _, err := f.service.Checkout(context.Background(), cart); !errors.Is(err, ErrInvalidCart) {
			t.Fatalf("case %d: err = %v, want ErrInvalidCart", i, err)
		}
	}
}
