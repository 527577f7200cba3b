// internal/service/rule/domain/config.go
package domain

import "github.com/shopspring/decimal"

// Requirement 指定起购或折扣门槛比较的是数量还是金额。
type Requirement string

const (
	RequirementQuantity Requirement = "quantity"
	RequirementSubtotal Requirement = "subtotal"
)

// DiscountKind 指定折扣是固定金额还是百分比。
type DiscountKind string

const (
	DiscountFlat       DiscountKind = "flat"
	DiscountPercentage DiscountKind = "percentage"
)

// QuantityMode 是组合购买规则对必购票数量的要求方式。
type QuantityMode string

const (
	QuantityMatched  QuantityMode = "matched"  // 必购票数量必须等于受限票数量
	QuantitySpecific QuantityMode = "specific" // 必购票数量至少为指定值
)

// RoleNotGuest 出现在 allowedRoles 中时，只要求购买者已登录。
const RoleNotGuest = "not-guest"

// LimitConfig 用于 event-purchase-limit 与 ticket-purchase-limit。
type LimitConfig struct {
	EventLimit    decimal.NullDecimal `json:"eventLimit"`
	TicketLimit   decimal.NullDecimal `json:"ticketLimit"`
	LimitedTicket Keyword             `json:"limitedTicket"`
}

// MinimumConfig 用于 event-purchase-min 与 ticket-purchase-min。
type MinimumConfig struct {
	Minimum       decimal.NullDecimal `json:"minimum"`
	Requirement   Requirement         `json:"requirement"`
	MinimumTicket Keyword             `json:"minimumTicket"`
}

type RoleRestrictionConfig struct {
	AllowedRoles []string `json:"allowedRoles"`
}

type CombinedPurchaseConfig struct {
	RestrictedTicket Keyword             `json:"restrictedTicket"`
	RequiredTickets  []Keyword           `json:"requiredTickets"`
	RequiredQuantity QuantityMode        `json:"requiredQuantity"`
	SpecificQuantity decimal.NullDecimal `json:"specificQuantity"`
}

type OrderDiscountConfig struct {
	Requirement      Requirement         `json:"requirement"`
	RequirementValue decimal.NullDecimal `json:"requirementValue"`
	DiscountType     DiscountKind        `json:"discountType"`
	DiscountValue    decimal.NullDecimal `json:"discountValue"`
}

// TicketRequirement 要求购物车中匹配 Ticket 的票至少有 Quantity 张。
type TicketRequirement struct {
	Ticket   Keyword             `json:"ticket"`
	Quantity decimal.NullDecimal `json:"quantity"`
}

type TicketDiscountConfig struct {
	Requirements  []TicketRequirement `json:"requirements"`
	DiscountType  DiscountKind        `json:"discountType"`
	DiscountValue decimal.NullDecimal `json:"discountValue"`
}
