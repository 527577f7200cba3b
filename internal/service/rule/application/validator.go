// internal/service/rule/application/validator.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

// RestrictionInput 是限制类规则处理器看到的购物车视图：只包含当前活动的行。
type RestrictionInput struct {
	EventID   int64
	Purchaser domain.Purchaser
	Lines     []domain.CartLineItem
}

// RestrictionHandler 检查一条限制规则。satisfied 为 false 时 reason 说明原因。
// 规则配置缺失或无法解析时视为满足，不能因为配置不完整而阻断结账。
type RestrictionHandler func(rule domain.Rule, in RestrictionInput) (reason string, satisfied bool)

// ScopedRule 是在某个活动的快照中找到的规则。
type ScopedRule struct {
	EventID int64       `json:"event_id"`
	Rule    domain.Rule `json:"rule"`
}

// ValidationResult 是校验的两阶段输出：是否通过，以及交给折扣计算的折扣规则。
type ValidationResult struct {
	Violation     *domain.Violation
	DiscountRules []ScopedRule
}

func (r *ValidationResult) OK() bool {
	return r.Violation == nil
}

// Validator 按活动在购物车中首次出现的顺序、快照的存储顺序检查限制规则，
// 遇到第一条不满足的规则立即返回。
type Validator struct {
	snapshots  *SnapshotStore
	handlers   map[domain.RuleType]RestrictionHandler
	defaultTTL time.Duration
	tracer     trace.Tracer
}

func NewValidator(snapshots *SnapshotStore, defaultTTL time.Duration, tracer trace.Tracer) *Validator {
	return &Validator{
		snapshots:  snapshots,
		handlers:   DefaultRestrictionHandlers(),
		defaultTTL: defaultTTL,
		tracer:     tracer,
	}
}

// DefaultRestrictionHandlers 返回每种限制类规则对应的处理器。
func DefaultRestrictionHandlers() map[domain.RuleType]RestrictionHandler {
	return map[domain.RuleType]RestrictionHandler{
		domain.RuleTypeEventPurchaseLimit:  checkEventLimit,
		domain.RuleTypeTicketPurchaseLimit: checkTicketLimit,
		domain.RuleTypeEventPurchaseMin:    checkEventMinimum,
		domain.RuleTypeTicketPurchaseMin:   checkTicketMinimum,
		domain.RuleTypeUserRole:            checkUserRole,
		domain.RuleTypeCombinedPurchase:    checkCombinedPurchase,
	}
}

func (v *Validator) Validate(ctx context.Context, cart domain.Cart) (*ValidationResult, error) {
	ctx, span := v.tracer.Start(ctx, "rules.Validate")
	defer span.End()
	span.SetAttributes(
		attribute.String("cart.key", cart.Key),
		attribute.Int("cart.lines", len(cart.Lines)),
	)

	ttl := cart.TTL
	if ttl <= 0 {
		ttl = v.defaultTTL
	}

	result := &ValidationResult{}
	for _, eventID := range cart.EventIDs() {
		rules, err := v.snapshots.GetOrCreate(ctx, eventID, cart.Key, ttl)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "snapshot lookup failed")
			return nil, err
		}
		in := RestrictionInput{EventID: eventID, Purchaser: cart.Purchaser, Lines: cart.LinesFor(eventID)}
		for _, rule := range rules {
			if rule.Type.IsDiscount() {
				result.DiscountRules = append(result.DiscountRules, ScopedRule{EventID: eventID, Rule: rule})
				continue
			}
			handler, ok := v.handlers[rule.Type]
			if !ok {
				err := errors.Wrapf(domain.ErrUnknownRuleType, "rule %d has type %q", rule.ID, rule.Type)
				logger.Ctx(ctx).Error().Err(err).Int64("rule_id", rule.ID).Msg("rule configuration error")
				span.RecordError(err)
				span.SetStatus(codes.Error, "unknown rule type")
				return nil, err
			}
			if reason, satisfied := handler(rule, in); !satisfied {
				result.Violation = &domain.Violation{Rule: rule, EventID: eventID, Reason: reason}
				result.DiscountRules = nil
				span.AddEvent("cart violates rule", trace.WithAttributes(
					attribute.Int64("rule.id", rule.ID),
					attribute.String("rule.type", string(rule.Type)),
					attribute.Int64("event.id", eventID),
				))
				return result, nil
			}
		}
	}
	span.SetAttributes(attribute.Int("rules.discounts", len(result.DiscountRules)))
	return result, nil
}

func checkEventLimit(rule domain.Rule, in RestrictionInput) (string, bool) {
	var cfg domain.LimitConfig
	if err := rule.DecodeConfig(&cfg); err != nil || !cfg.EventLimit.Valid {
		return "", true
	}
	qty := domain.TotalQuantity(in.Lines)
	if decimal.NewFromInt(int64(qty)).GreaterThan(cfg.EventLimit.Decimal) {
		return fmt.Sprintf("at most %s tickets may be purchased for this event, cart has %d", cfg.EventLimit.Decimal, qty), false
	}
	return "", true
}

func checkTicketLimit(rule domain.Rule, in RestrictionInput) (string, bool) {
	var cfg domain.LimitConfig
	if err := rule.DecodeConfig(&cfg); err != nil || !cfg.TicketLimit.Valid {
		return "", true
	}
	for _, kw := range constrainedKeywords(cfg.LimitedTicket, rule) {
		matched := domain.MatchingLines(in.Lines, kw)
		qty := domain.TotalQuantity(matched)
		if decimal.NewFromInt(int64(qty)).GreaterThan(cfg.TicketLimit.Decimal) {
			return fmt.Sprintf("at most %s %q tickets may be purchased, cart has %d", cfg.TicketLimit.Decimal, string(kw), qty), false
		}
	}
	return "", true
}

func checkEventMinimum(rule domain.Rule, in RestrictionInput) (string, bool) {
	var cfg domain.MinimumConfig
	if err := rule.DecodeConfig(&cfg); err != nil || !cfg.Minimum.Valid {
		return "", true
	}
	return meetsMinimum(cfg, in.Lines, "this event")
}

// checkTicketMinimum 只在购物车中出现了受约束的票种时才要求起购量。
func checkTicketMinimum(rule domain.Rule, in RestrictionInput) (string, bool) {
	var cfg domain.MinimumConfig
	if err := rule.DecodeConfig(&cfg); err != nil || !cfg.Minimum.Valid {
		return "", true
	}
	for _, kw := range constrainedKeywords(cfg.MinimumTicket, rule) {
		matched := domain.MatchingLines(in.Lines, kw)
		if len(matched) == 0 {
			continue
		}
		if reason, ok := meetsMinimum(cfg, matched, fmt.Sprintf("%q tickets", string(kw))); !ok {
			return reason, false
		}
	}
	return "", true
}

// constrainedKeywords 配置里指定了票种时只约束它，否则使用规则的票种关键字。
func constrainedKeywords(configured domain.Keyword, rule domain.Rule) []domain.Keyword {
	if !configured.Empty() {
		return []domain.Keyword{configured}
	}
	return rule.Keywords()
}

func meetsMinimum(cfg domain.MinimumConfig, lines []domain.CartLineItem, what string) (string, bool) {
	if cfg.Requirement == domain.RequirementSubtotal {
		subtotal := domain.Subtotal(lines)
		if subtotal.LessThan(cfg.Minimum.Decimal) {
			return fmt.Sprintf("a minimum spend of %s is required for %s, cart has %s", cfg.Minimum.Decimal.StringFixed(2), what, subtotal.StringFixed(2)), false
		}
		return "", true
	}
	qty := domain.TotalQuantity(lines)
	if decimal.NewFromInt(int64(qty)).LessThan(cfg.Minimum.Decimal) {
		return fmt.Sprintf("at least %s tickets are required for %s, cart has %d", cfg.Minimum.Decimal, what, qty), false
	}
	return "", true
}

func checkUserRole(rule domain.Rule, in RestrictionInput) (string, bool) {
	if !in.Purchaser.Authenticated {
		return "you must be logged in to purchase these tickets", false
	}
	var cfg domain.RoleRestrictionConfig
	if err := rule.DecodeConfig(&cfg); err != nil || len(cfg.AllowedRoles) == 0 {
		return "", true
	}
	held := make(map[string]struct{}, len(in.Purchaser.Roles))
	for _, r := range in.Purchaser.Roles {
		held[r] = struct{}{}
	}
	for _, allowed := range cfg.AllowedRoles {
		if allowed == domain.RoleNotGuest {
			return "", true
		}
		if _, ok := held[allowed]; ok {
			return "", true
		}
	}
	return "your account is not allowed to purchase these tickets", false
}

// checkCombinedPurchase 在购物车包含受限票时，要求每一种必购票都满足数量约束。
// matched 模式逐对比较每一行受限票与每一行必购票，任意一对数量不等即失败。
func checkCombinedPurchase(rule domain.Rule, in RestrictionInput) (string, bool) {
	var cfg domain.CombinedPurchaseConfig
	if err := rule.DecodeConfig(&cfg); err != nil {
		return "", true
	}
	restrictedKw := cfg.RestrictedTicket
	if restrictedKw.Empty() {
		kws := rule.Keywords()
		if len(kws) == 0 {
			return "", true
		}
		restrictedKw = kws[0]
	}
	restricted := domain.MatchingLines(in.Lines, restrictedKw)
	if len(restricted) == 0 {
		return "", true
	}
	restrictedIDs := make(map[int64]struct{}, len(restricted))
	for _, l := range restricted {
		restrictedIDs[l.TicketID] = struct{}{}
	}

	for _, kw := range cfg.RequiredTickets {
		var required []domain.CartLineItem
		for _, l := range domain.MatchingLines(in.Lines, kw) {
			if _, self := restrictedIDs[l.TicketID]; !self {
				required = append(required, l)
			}
		}

		if cfg.RequiredQuantity == domain.QuantitySpecific {
			if !cfg.SpecificQuantity.Valid {
				continue
			}
			qty := domain.TotalQuantity(required)
			if decimal.NewFromInt(int64(qty)).LessThan(cfg.SpecificQuantity.Decimal) {
				return fmt.Sprintf("%q tickets require at least %s %q tickets, cart has %d",
					string(restrictedKw), cfg.SpecificQuantity.Decimal, string(kw), qty), false
			}
			continue
		}

		if len(required) == 0 {
			return fmt.Sprintf("%q tickets require %q tickets in the same quantity", string(restrictedKw), string(kw)), false
		}
		for _, r := range restricted {
			for _, q := range required {
				if q.Quantity != r.Quantity {
					return fmt.Sprintf("%q tickets (%d) must be purchased with the same number of %q tickets (%d)",
						r.TicketName, r.Quantity, q.TicketName, q.Quantity), false
				}
			}
		}
	}
	return "", true
}
