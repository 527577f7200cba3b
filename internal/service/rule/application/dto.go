// internal/service/rule/application/dto.go
package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

// CheckoutRequest 是结账相关接口的请求体。
type CheckoutRequest struct {
	CartKey    string                `json:"cart_key"`
	TTLSeconds int                   `json:"ttl_seconds,omitempty"`
	Purchaser  domain.Purchaser      `json:"purchaser"`
	Lines      []domain.CartLineItem `json:"lines"`
}

func (r CheckoutRequest) ToCart() domain.Cart {
	return domain.Cart{
		Key:       r.CartKey,
		TTL:       time.Duration(r.TTLSeconds) * time.Second,
		Purchaser: r.Purchaser,
		Lines:     r.Lines,
	}
}

type ViolationDTO struct {
	RuleID    int64           `json:"rule_id"`
	RuleTitle string          `json:"rule_title"`
	RuleType  domain.RuleType `json:"rule_type"`
	EventID   int64           `json:"event_id"`
	Reason    string          `json:"reason"`
}

func NewViolationDTO(v *domain.Violation) *ViolationDTO {
	if v == nil {
		return nil
	}
	return &ViolationDTO{
		RuleID:    v.Rule.ID,
		RuleTitle: v.Rule.Title,
		RuleType:  v.Rule.Type,
		EventID:   v.EventID,
		Reason:    v.Reason,
	}
}

type ValidateResponse struct {
	OK            bool          `json:"ok"`
	Violation     *ViolationDTO `json:"violation,omitempty"`
	DiscountRules []ScopedRule  `json:"discount_rules,omitempty"`
}

type CheckoutResponse struct {
	OK            bool                      `json:"ok"`
	Violation     *ViolationDTO             `json:"violation,omitempty"`
	Discounts     []domain.DiscountLineItem `json:"discounts"`
	Subtotal      decimal.Decimal           `json:"subtotal"`
	DiscountTotal decimal.Decimal           `json:"discount_total"`
	Total         decimal.Decimal           `json:"total"`
}

// InvalidateSnapshotRequest 对应 DELETE /checkout/snapshot。
type InvalidateSnapshotRequest struct {
	EventID int64  `json:"event_id"`
	CartKey string `json:"cart_key"`
}

// StageRequest 对应 POST /mutations/stage：在修改主体之前暂存它当前的状态。
// Event、Ticket、Rule 中只需填写与 Subject 对应的一个。
type StageRequest struct {
	Subject   domain.SubjectType  `json:"subject"`
	SubjectID int64               `json:"subject_id"`
	Event     *domain.EventState  `json:"event,omitempty"`
	Ticket    *domain.TicketState `json:"ticket,omitempty"`
	Rule      *domain.RuleState   `json:"rule,omitempty"`
}

// State 返回与 Subject 对应的状态值，缺失时返回 nil。
func (r StageRequest) State() interface{} {
	switch r.Subject {
	case domain.SubjectEvent:
		if r.Event != nil {
			return *r.Event
		}
	case domain.SubjectTicket:
		if r.Ticket != nil {
			return *r.Ticket
		}
	case domain.SubjectRule:
		if r.Rule != nil {
			return *r.Rule
		}
	}
	return nil
}
