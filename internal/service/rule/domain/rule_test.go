package domain

import "testing"

func TestRuleKeywordsDerivedFromConfig(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want []Keyword
	}{
		{
			name: "explicit keywords win",
			rule: Rule{Type: RuleTypeTicketPurchaseLimit, TicketKeywords: []Keyword{"Gold"}, Config: []byte(`{"limitedTicket":"VIP"}`)},
			want: []Keyword{"Gold"},
		},
		{
			name: "limited ticket",
			rule: Rule{Type: RuleTypeTicketPurchaseLimit, Config: []byte(`{"ticketLimit":3,"limitedTicket":"VIP"}`)},
			want: []Keyword{"VIP"},
		},
		{
			name: "minimum ticket id",
			rule: Rule{Type: RuleTypeTicketPurchaseMin, Config: []byte(`{"minimum":2,"minimumTicket":55}`)},
			want: []Keyword{"55"},
		},
		{
			name: "restricted ticket",
			rule: Rule{Type: RuleTypeCombinedPurchase, Config: []byte(`{"restrictedTicket":"Addon"}`)},
			want: []Keyword{"Addon"},
		},
		{
			name: "ticket discount requirements",
			rule: Rule{Type: RuleTypeTicketDiscount, Config: []byte(`{"requirements":[{"ticket":"Adult","quantity":2},{"ticket":"Child","quantity":1}]}`)},
			want: []Keyword{"Adult", "Child"},
		},
		{
			name: "malformed config",
			rule: Rule{Type: RuleTypeTicketPurchaseLimit, Config: []byte(`{`)},
			want: nil,
		},
		{
			name: "order discount has none",
			rule: Rule{Type: RuleTypeOrderDiscount, Config: []byte(`{"discountValue":5}`)},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rule.Keywords()
			if len(got) != len(tt.want) {
				t.Fatalf("Keywords = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Keywords = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestRuleTypeClassification(t *testing.T) {
	if !RuleTypeOrderDiscount.IsDiscount() || RuleTypeOrderDiscount.IsTicketScoped() {
		t.Fatal("order-discount should be an order level discount")
	}
	if RuleTypeEventPurchaseLimit.IsTicketScoped() {
		t.Fatal("event-purchase-limit should not be ticket scoped")
	}
	if !RuleTypeCombinedPurchase.IsTicketScoped() || RuleTypeCombinedPurchase.IsDiscount() {
		t.Fatal("combined-purchase should be a ticket scoped restriction")
	}
	if RuleType("bogus").Valid() {
		t.Fatal("unknown type reported valid")
	}
}

func TestRuleReferencesTerm(t *testing.T) {
	r := Rule{Scope: Scope{Connector: ConnectorAny, Criteria: []Criterion{{Term: TermVenue, Value: "9"}}}}
	if !r.ReferencesTerm(TermVenue, "9") {
		t.Fatal("expected venue 9 reference")
	}
	if r.ReferencesTerm(TermCategory, "9") {
		t.Fatal("unexpected category reference")
	}
}
