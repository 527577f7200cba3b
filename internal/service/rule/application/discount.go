// internal/service/rule/application/discount.go
package application

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain/port"
)

var hundred = decimal.NewFromInt(100)

// DiscountCalculator 计算折扣明细。结果只取决于购物车内容和折扣规则，
// 以 (购物车 key, 内容哈希) 为键缓存，缓存失效或读写失败时直接重算。
type DiscountCalculator struct {
	cache      port.Cache
	defaultTTL time.Duration
	tracer     trace.Tracer
}

func NewDiscountCalculator(cache port.Cache, defaultTTL time.Duration, tracer trace.Tracer) *DiscountCalculator {
	return &DiscountCalculator{cache: cache, defaultTTL: defaultTTL, tracer: tracer}
}

// DiscountKey 是折扣结果的缓存键。
func DiscountKey(cartKey, contentHash string) string {
	return fmt.Sprintf("rules:discounts:%s:%s", cartKey, contentHash)
}

// Compute 对 rules 中的每条折扣规则独立计算优惠，均基于原价，结果可以直接相加。
func (c *DiscountCalculator) Compute(ctx context.Context, cart domain.Cart, rules []ScopedRule) ([]domain.DiscountLineItem, error) {
	ctx, span := c.tracer.Start(ctx, "rules.ComputeDiscounts")
	defer span.End()
	span.SetAttributes(attribute.String("cart.key", cart.Key), attribute.Int("rules.discounts", len(rules)))

	if len(rules) == 0 {
		return []domain.DiscountLineItem{}, nil
	}

	var key string
	if cart.Key != "" {
		hash, err := contentHash(cart.Lines, rules)
		if err != nil {
			return nil, err
		}
		key = DiscountKey(cart.Key, hash)
		if data, ok, err := c.cache.Get(ctx, key); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("discount cache read failed, recomputing")
		} else if ok {
			var items []domain.DiscountLineItem
			if err := decode(data, &items); err == nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return items, nil
			}
		}
	}

	items := CalculateDiscounts(cart, rules)
	for _, it := range items {
		span.AddEvent("discount applied", trace.WithAttributes(
			attribute.Int64("rule.id", it.RuleID),
			attribute.String("amount", it.Amount.StringFixed(2)),
		))
	}

	if key != "" {
		ttl := cart.TTL
		if ttl <= 0 {
			ttl = c.defaultTTL
		}
		if data, err := encode(items); err == nil {
			if err := c.cache.Set(ctx, key, data, ttl); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("discount cache write failed")
			}
		}
	}
	return items, nil
}

// CalculateDiscounts 是不带缓存的纯计算。订单级折扣即使出现在多个活动的快照中也只计算一次。
func CalculateDiscounts(cart domain.Cart, rules []ScopedRule) []domain.DiscountLineItem {
	items := make([]domain.DiscountLineItem, 0, len(rules))
	orderApplied := make(map[int64]struct{})
	for _, sr := range rules {
		var amount decimal.Decimal
		switch sr.Rule.Type {
		case domain.RuleTypeOrderDiscount:
			if _, done := orderApplied[sr.Rule.ID]; done {
				continue
			}
			orderApplied[sr.Rule.ID] = struct{}{}
			amount = orderDiscount(sr.Rule, cart.Lines)
		case domain.RuleTypeTicketDiscount:
			amount = ticketDiscount(sr.Rule, cart.LinesFor(sr.EventID))
		default:
			continue
		}
		amount = amount.Round(2)
		if !amount.IsPositive() {
			continue
		}
		discountsIssued.WithLabelValues(string(sr.Rule.Type)).Inc()
		items = append(items, domain.DiscountLineItem{
			RuleID:  sr.Rule.ID,
			EventID: sr.EventID,
			Amount:  amount,
			Summary: discountSummary(sr.Rule),
		})
	}
	return items
}

func orderDiscount(rule domain.Rule, lines []domain.CartLineItem) decimal.Decimal {
	var cfg domain.OrderDiscountConfig
	if err := rule.DecodeConfig(&cfg); err != nil || !cfg.DiscountValue.Valid {
		return decimal.Zero
	}
	subtotal := domain.Subtotal(lines)
	if cfg.RequirementValue.Valid {
		var reached decimal.Decimal
		if cfg.Requirement == domain.RequirementSubtotal {
			reached = subtotal
		} else {
			reached = decimal.NewFromInt(int64(domain.TotalQuantity(lines)))
		}
		if reached.LessThan(cfg.RequirementValue.Decimal) {
			return decimal.Zero
		}
	}
	var amount decimal.Decimal
	if cfg.DiscountType == domain.DiscountPercentage {
		amount = subtotal.Mul(cfg.DiscountValue.Decimal).Div(hundred)
	} else {
		amount = cfg.DiscountValue.Decimal
	}
	return capAt(amount, subtotal)
}

// ticketDiscount 要求每个条件（票种关键字 + 最少数量）都在该活动的行中满足。
func ticketDiscount(rule domain.Rule, lines []domain.CartLineItem) decimal.Decimal {
	var cfg domain.TicketDiscountConfig
	if err := rule.DecodeConfig(&cfg); err != nil || !cfg.DiscountValue.Valid || len(cfg.Requirements) == 0 {
		return decimal.Zero
	}
	seen := make(map[int64]struct{})
	var matched []domain.CartLineItem
	for _, req := range cfg.Requirements {
		need := decimal.NewFromInt(1)
		if req.Quantity.Valid {
			need = req.Quantity.Decimal
		}
		reqLines := domain.MatchingLines(lines, req.Ticket)
		if decimal.NewFromInt(int64(domain.TotalQuantity(reqLines))).LessThan(need) {
			return decimal.Zero
		}
		for _, l := range reqLines {
			if _, ok := seen[l.TicketID]; ok {
				continue
			}
			seen[l.TicketID] = struct{}{}
			matched = append(matched, l)
		}
	}
	base := domain.Subtotal(matched)
	var amount decimal.Decimal
	if cfg.DiscountType == domain.DiscountPercentage {
		amount = base.Mul(cfg.DiscountValue.Decimal).Div(hundred)
	} else {
		units := decimal.NewFromInt(int64(domain.TotalQuantity(matched)))
		amount = cfg.DiscountValue.Decimal.Mul(units)
	}
	return capAt(amount, base)
}

func capAt(amount, limit decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, limit)
}

func discountSummary(rule domain.Rule) string {
	if rule.Title != "" {
		return rule.Title
	}
	return fmt.Sprintf("%s #%d", rule.Type, rule.ID)
}

// contentHash 对行项目和折扣规则的确定性编码做 BLAKE3 摘要。
func contentHash(lines []domain.CartLineItem, rules []ScopedRule) (string, error) {
	data, err := encode(struct {
		Lines []domain.CartLineItem
		Rules []ScopedRule
	}{lines, rules})
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}
