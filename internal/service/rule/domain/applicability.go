// internal/service/rule/domain/applicability.go
package domain

import "context"

// Resolver 判断一条规则是否适用于某个活动。
type Resolver struct {
	scope *ScopeMatcher
}

func NewResolver(scope *ScopeMatcher) *Resolver {
	return &Resolver{scope: scope}
}

// Applies 要求票种匹配与作用域匹配同时成立：
//  1. 活动没有任何票时，规则不可能生效；
//  2. 票种相关的规则至少要有一个关键字命中某张票，组合购买规则的每个必购票关键字也都要命中；
//  3. 规则作用域必须覆盖该活动。
func (r *Resolver) Applies(ctx context.Context, rule Rule, event *Event, tickets []Ticket) (bool, error) {
	if !rule.IsActive() || len(tickets) == 0 {
		return false, nil
	}
	if rule.Type.IsTicketScoped() {
		if !anyKeywordMatches(rule.Keywords(), tickets) {
			return false, nil
		}
		if rule.Type == RuleTypeCombinedPurchase {
			var cfg CombinedPurchaseConfig
			if err := rule.DecodeConfig(&cfg); err != nil {
				return false, nil
			}
			for _, kw := range cfg.RequiredTickets {
				if !kw.MatchesAny(tickets) {
					return false, nil
				}
			}
		}
	}
	return r.scope.Applies(ctx, rule.Scope, event)
}

// ApplicableRules 返回 rules 中适用于 event 的规则 ID，保持 rules 的顺序。
func (r *Resolver) ApplicableRules(ctx context.Context, rules []Rule, event *Event) ([]int64, error) {
	ids := make([]int64, 0, len(rules))
	for _, rule := range rules {
		ok, err := r.Applies(ctx, rule, event, event.Tickets)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, rule.ID)
		}
	}
	return ids, nil
}

func anyKeywordMatches(keywords []Keyword, tickets []Ticket) bool {
	for _, kw := range keywords {
		if kw.MatchesAny(tickets) {
			return true
		}
	}
	return false
}
