package domain

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

var (
	hit  = Criterion{Term: TermVenue, Value: "7"}
	miss = Criterion{Term: TermVenue, Value: "8"}
	skip = Criterion{Term: TermTag, Value: "5"}
)

func TestScopeMatcherApplies(t *testing.T) {
	m := NewScopeMatcher(NewCriterionEvaluator(nil))
	tests := []struct {
		name  string
		scope Scope
		want  bool
	}{
		{name: "all without criteria", scope: Scope{Connector: ConnectorAll}, want: true},
		{name: "all ignores failing criteria", scope: Scope{Connector: ConnectorAll, Criteria: []Criterion{miss}}, want: true},
		{name: "none without criteria", scope: Scope{Connector: ConnectorNone}, want: false},
		{name: "none ignores matching criteria", scope: Scope{Connector: ConnectorNone, Criteria: []Criterion{hit}}, want: false},
		{name: "any one hit", scope: Scope{Connector: ConnectorAny, Criteria: []Criterion{miss, hit}}, want: true},
		{name: "any all miss", scope: Scope{Connector: ConnectorAny, Criteria: []Criterion{miss, miss}}, want: false},
		{name: "any skip only", scope: Scope{Connector: ConnectorAny, Criteria: []Criterion{skip}}, want: false},
		{name: "any skip and hit", scope: Scope{Connector: ConnectorAny, Criteria: []Criterion{skip, hit}}, want: true},
		{name: "any empty", scope: Scope{Connector: ConnectorAny}, want: false},
		{name: "every all hit", scope: Scope{Connector: ConnectorEvery, Criteria: []Criterion{hit, hit}}, want: true},
		{name: "every one miss", scope: Scope{Connector: ConnectorEvery, Criteria: []Criterion{hit, miss}}, want: false},
		{name: "every skip counts as miss", scope: Scope{Connector: ConnectorEvery, Criteria: []Criterion{hit, skip}}, want: false},
		{name: "every empty is vacuous", scope: Scope{Connector: ConnectorEvery}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Applies(context.Background(), tt.scope, testEvent())
			if err != nil {
				t.Fatalf("applies: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Applies = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScopeMatcherShortCircuits(t *testing.T) {
	m := NewScopeMatcher(NewCriterionEvaluator(nil))
	bad := Criterion{Term: "bogus"}

	// any 在第一个命中后不再求值后续条件
	ok, err := m.Applies(context.Background(), Scope{Connector: ConnectorAny, Criteria: []Criterion{hit, bad}}, testEvent())
	if err != nil || !ok {
		t.Fatalf("any short circuit: ok=%v err=%v", ok, err)
	}
	// every 在第一个未命中后不再求值后续条件
	ok, err = m.Applies(context.Background(), Scope{Connector: ConnectorEvery, Criteria: []Criterion{miss, bad}}, testEvent())
	if err != nil || ok {
		t.Fatalf("every short circuit: ok=%v err=%v", ok, err)
	}
}

func TestScopeMatcherConfigurationErrors(t *testing.T) {
	m := NewScopeMatcher(NewCriterionEvaluator(nil))
	_, err := m.Applies(context.Background(), Scope{Connector: ConnectorAny, Criteria: []Criterion{{Term: "bogus"}}}, testEvent())
	if !errors.Is(err, ErrUnknownCriterionTerm) {
		t.Fatalf("expected ErrUnknownCriterionTerm, got %v", err)
	}
	_, err = m.Applies(context.Background(), Scope{Connector: "some"}, testEvent())
	if !errors.Is(err, ErrUnknownConnector) {
		t.Fatalf("expected ErrUnknownConnector, got %v", err)
	}
}
