// internal/service/rule/domain/event.go
package domain

import "github.com/shopspring/decimal"

// Event 是来自活动目录的只读数据，只包含规则匹配需要的属性。
type Event struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`

	// CategoryIDs / TagIDs 为空表示分类信息缺失或尚未确定。
	CategoryIDs []int64 `json:"category_ids"`
	TagIDs      []int64 `json:"tag_ids"`

	VenueIDs []int64  `json:"venue_ids"`
	SeriesID int64    `json:"series_id"`
	Tickets  []Ticket `json:"tickets"`
}

type Ticket struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	EventID int64           `json:"event_id"`
	Price   decimal.Decimal `json:"price"`
}
