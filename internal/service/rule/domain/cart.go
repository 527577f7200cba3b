// internal/service/rule/domain/cart.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Purchaser struct {
	UserID        string   `json:"user_id"`
	Authenticated bool     `json:"authenticated"`
	Roles         []string `json:"roles"`
}

type CartLineItem struct {
	TicketID   int64           `json:"ticket_id"`
	EventID    int64           `json:"event_id"`
	TicketName string          `json:"ticket_name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// Ticket 返回用于关键字匹配的票种视图。
func (l CartLineItem) Ticket() Ticket {
	return Ticket{ID: l.TicketID, Name: l.TicketName, EventID: l.EventID, Price: l.UnitPrice}
}

func (l CartLineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart 是一次结账的购物车。Key 在购物车的整个生命周期内保持不变。
type Cart struct {
	Key       string         `json:"key"`
	TTL       time.Duration  `json:"ttl"`
	Purchaser Purchaser      `json:"purchaser"`
	Lines     []CartLineItem `json:"lines"`
}

// EventIDs 按首次出现的顺序返回购物车涉及的活动。
func (c Cart) EventIDs() []int64 {
	seen := make(map[int64]struct{}, len(c.Lines))
	ids := make([]int64, 0, len(c.Lines))
	for _, l := range c.Lines {
		if _, ok := seen[l.EventID]; ok {
			continue
		}
		seen[l.EventID] = struct{}{}
		ids = append(ids, l.EventID)
	}
	return ids
}

func (c Cart) LinesFor(eventID int64) []CartLineItem {
	var lines []CartLineItem
	for _, l := range c.Lines {
		if l.EventID == eventID {
			lines = append(lines, l)
		}
	}
	return lines
}

// MatchingLines 返回 lines 中票种被 kw 匹配的行。
func MatchingLines(lines []CartLineItem, kw Keyword) []CartLineItem {
	var out []CartLineItem
	for _, l := range lines {
		if kw.Matches(l.Ticket()) {
			out = append(out, l)
		}
	}
	return out
}

func TotalQuantity(lines []CartLineItem) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func Subtotal(lines []CartLineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// DiscountLineItem 是一条折扣明细，Amount 总是非负数，表示从总价中减去的金额。
type DiscountLineItem struct {
	RuleID  int64           `json:"rule_id"`
	EventID int64           `json:"event_id"`
	Amount  decimal.Decimal `json:"amount"`
	Summary string          `json:"summary"`
}
