// internal/service/rule/domain/rule.go
package domain

import (
	"encoding/json"
)

// RuleType 决定规则在结账时由哪个处理器执行。
type RuleType string

const (
	RuleTypeTicketDiscount      RuleType = "ticket-discount"
	RuleTypeOrderDiscount       RuleType = "order-discount"
	RuleTypeEventPurchaseLimit  RuleType = "event-purchase-limit"
	RuleTypeTicketPurchaseLimit RuleType = "ticket-purchase-limit"
	RuleTypeEventPurchaseMin    RuleType = "event-purchase-min"
	RuleTypeTicketPurchaseMin   RuleType = "ticket-purchase-min"
	RuleTypeUserRole            RuleType = "user-role-restriction"
	RuleTypeCombinedPurchase    RuleType = "combined-purchase"
)

// IsDiscount 报告该类型是否为折扣规则（只影响价格，不会阻断结账）。
func (t RuleType) IsDiscount() bool {
	return t == RuleTypeTicketDiscount || t == RuleTypeOrderDiscount
}

// IsTicketScoped 报告该类型是否需要票种关键字匹配才能生效。
// 订单级折扣、活动级限购/起购以及角色限制针对整个活动，不看具体票种。
func (t RuleType) IsTicketScoped() bool {
	switch t {
	case RuleTypeTicketDiscount, RuleTypeTicketPurchaseLimit, RuleTypeTicketPurchaseMin, RuleTypeCombinedPurchase:
		return true
	}
	return false
}

// Valid 报告是否为已知类型。
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeTicketDiscount, RuleTypeOrderDiscount,
		RuleTypeEventPurchaseLimit, RuleTypeTicketPurchaseLimit,
		RuleTypeEventPurchaseMin, RuleTypeTicketPurchaseMin,
		RuleTypeUserRole, RuleTypeCombinedPurchase:
		return true
	}
	return false
}

type RuleStatus string

const (
	RuleStatusActive   RuleStatus = "active"
	RuleStatusInactive RuleStatus = "inactive"
)

// Connector 是作用域条件的聚合方式。
type Connector string

const (
	ConnectorAll   Connector = "all"   // 适用于所有活动
	ConnectorNone  Connector = "none"  // 不适用于任何活动
	ConnectorAny   Connector = "any"   // 任一条件命中
	ConnectorEvery Connector = "every" // 所有条件命中
)

// Term 是作用域条件比较的活动属性。
type Term string

const (
	TermCategory Term = "category"
	TermTag      Term = "tag"
	TermVenue    Term = "venue"
	TermSeries   Term = "series"
	TermTitle    Term = "title"
)

// Criterion 是一条作用域条件。一旦存入规则就不再单独修改，编辑作用域时整体替换。
type Criterion struct {
	Term  Term   `json:"term"`
	Value string `json:"value"`
}

type Scope struct {
	Connector Connector   `json:"connector"`
	Criteria  []Criterion `json:"criteria"`
}

// Rule 是管理员配置的一条购买规则。
type Rule struct {
	ID     int64      `json:"id"`
	Title  string     `json:"title"`
	Type   RuleType   `json:"type"`
	Status RuleStatus `json:"status"`
	Scope  Scope      `json:"scope"`

	// Config 按规则类型解析，见 config.go 中的各个 *Config 结构。
	Config json.RawMessage `json:"config,omitempty"`

	// TicketKeywords 用于选择规则管辖的票种；为空时从 Config 推导。
	TicketKeywords []Keyword `json:"ticket_keywords,omitempty"`
}

func (r Rule) IsActive() bool {
	return r.Status == RuleStatusActive
}

// Keywords 返回规则实际使用的票种关键字。
func (r Rule) Keywords() []Keyword {
	if len(r.TicketKeywords) > 0 {
		return r.TicketKeywords
	}
	switch r.Type {
	case RuleTypeTicketPurchaseLimit:
		var c LimitConfig
		if r.DecodeConfig(&c) == nil && !c.LimitedTicket.Empty() {
			return []Keyword{c.LimitedTicket}
		}
	case RuleTypeTicketPurchaseMin:
		var c MinimumConfig
		if r.DecodeConfig(&c) == nil && !c.MinimumTicket.Empty() {
			return []Keyword{c.MinimumTicket}
		}
	case RuleTypeCombinedPurchase:
		var c CombinedPurchaseConfig
		if r.DecodeConfig(&c) == nil && !c.RestrictedTicket.Empty() {
			return []Keyword{c.RestrictedTicket}
		}
	case RuleTypeTicketDiscount:
		var c TicketDiscountConfig
		if r.DecodeConfig(&c) == nil {
			kws := make([]Keyword, 0, len(c.Requirements))
			for _, req := range c.Requirements {
				if !req.Ticket.Empty() {
					kws = append(kws, req.Ticket)
				}
			}
			return kws
		}
	}
	return nil
}

// DecodeConfig 将 Config 解析到 v。Config 为空时 v 保持零值。
func (r Rule) DecodeConfig(v interface{}) error {
	if len(r.Config) == 0 {
		return nil
	}
	return json.Unmarshal(r.Config, v)
}

// ReferencesTerm 报告规则的作用域是否引用了指定的条件值，用于删除分类/场馆/系列后的反查。
func (r Rule) ReferencesTerm(term Term, value string) bool {
	for _, c := range r.Scope.Criteria {
		if c.Term == term && c.Value == value {
			return true
		}
	}
	return false
}
