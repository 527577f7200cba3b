// internal/service/rule/infrastructure/gorm_model.go
package infrastructure

import (
	"time"
)

// EventRuleModel 对应 event_rule 表：活动与适用规则的关系行。
// 快照按 uk_event_rule 的 (event_id, rule_id) 顺序读取。
type EventRuleModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	EventID   int64  `gorm:"not null;uniqueIndex:uk_event_rule,priority:1"`
	RuleID    int64  `gorm:"not null;uniqueIndex:uk_event_rule,priority:2;index:idx_rule"`
	CreatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (EventRuleModel) TableName() string {
	return "event_rule"
}

// PurchaseRuleModel 对应 purchase_rule 表。作用域条件、配置和关键字以 JSON 列存储。
type PurchaseRuleModel struct {
	ID             int64  `gorm:"primaryKey"`
	Title          string `gorm:"size:255"`
	Type           string `gorm:"size:32;not null"`
	Status         string `gorm:"size:16;not null;index"`
	Connector      string `gorm:"size:16;not null"`
	Criteria       string `gorm:"type:json"`
	Config         string `gorm:"type:json"`
	TicketKeywords string `gorm:"type:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (PurchaseRuleModel) TableName() string {
	return "purchase_rule"
}

// EventSeriesModel 对应 event_series 表：活动与系列的持久化关系。
type EventSeriesModel struct {
	EventID  int64 `gorm:"primaryKey"`
	SeriesID int64 `gorm:"primaryKey;index"`
}

func (EventSeriesModel) TableName() string {
	return "event_series"
}
