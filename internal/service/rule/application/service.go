// internal/service/rule/application/service.go
package application

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

// ErrInvalidCart 表示请求中的购物车本身不合法（缺少 key、数量非正数等）。
var ErrInvalidCart = errors.New("invalid cart")

// CheckoutService 编排一次结账：校验 -> 失败时作废快照 -> 计算折扣。
type CheckoutService struct {
	snapshots  *SnapshotStore
	validator  *Validator
	calculator *DiscountCalculator
	tracer     trace.Tracer
}

func NewCheckoutService(snapshots *SnapshotStore, validator *Validator, calculator *DiscountCalculator, tracer trace.Tracer) *CheckoutService {
	return &CheckoutService{snapshots: snapshots, validator: validator, calculator: calculator, tracer: tracer}
}

// Validate 校验购物车。购物车违反规则时，作废对应活动的快照，
// 修正后的购物车将按当前规则重新评估，而不是沿用旧的冻结集合。
func (s *CheckoutService) Validate(ctx context.Context, cart domain.Cart) (*ValidationResult, error) {
	if err := checkCart(cart); err != nil {
		return nil, err
	}
	result, err := s.validator.Validate(ctx, cart)
	if err != nil {
		return nil, err
	}
	if v := result.Violation; v != nil {
		violationsTotal.WithLabelValues(string(v.Rule.Type)).Inc()
		logger.Ctx(ctx).Info().
			Str("cart_key", cart.Key).
			Int64("event_id", v.EventID).
			Int64("rule_id", v.Rule.ID).
			Str("reason", v.Reason).
			Msg("cart rejected by purchase rule")
		if err := s.snapshots.Invalidate(ctx, v.EventID, cart.Key); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *CheckoutService) Checkout(ctx context.Context, cart domain.Cart) (*CheckoutResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.Checkout")
	defer span.End()
	span.SetAttributes(
		attribute.String("cart.key", cart.Key),
		attribute.Bool("purchaser.authenticated", cart.Purchaser.Authenticated),
	)

	result, err := s.Validate(ctx, cart)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}
	subtotal := domain.Subtotal(cart.Lines)
	resp := &CheckoutResponse{
		OK:            result.OK(),
		Violation:     NewViolationDTO(result.Violation),
		Discounts:     []domain.DiscountLineItem{},
		Subtotal:      subtotal,
		DiscountTotal: decimal.Zero,
		Total:         subtotal,
	}
	if !result.OK() {
		span.AddEvent("checkout blocked by purchase rule")
		return resp, nil
	}

	items, err := s.calculator.Compute(ctx, cart, result.DiscountRules)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discount computation failed")
		return nil, err
	}
	discount := decimal.Zero
	for _, it := range items {
		discount = discount.Add(it.Amount)
	}
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	resp.Discounts = items
	resp.DiscountTotal = discount
	resp.Total = total
	span.SetAttributes(attribute.String("checkout.total", total.StringFixed(2)))
	return resp, nil
}

func (s *CheckoutService) InvalidateSnapshot(ctx context.Context, eventID int64, cartKey string) error {
	if cartKey == "" || eventID <= 0 {
		return errors.Wrap(ErrInvalidCart, "event_id and cart_key are required")
	}
	return s.snapshots.Invalidate(ctx, eventID, cartKey)
}

func checkCart(cart domain.Cart) error {
	if cart.Key == "" {
		return errors.Wrap(ErrInvalidCart, "cart key is required")
	}
	for i, l := range cart.Lines {
		if l.Quantity <= 0 {
			return errors.Wrapf(ErrInvalidCart, "line %d has non-positive quantity", i)
		}
		if l.EventID <= 0 {
			return errors.Wrapf(ErrInvalidCart, "line %d has no event", i)
		}
		if l.UnitPrice.IsNegative() {
			return errors.Wrapf(ErrInvalidCart, "line %d has a negative price", i)
		}
	}
	return nil
}
