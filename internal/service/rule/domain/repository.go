// internal/service/rule/domain/repository.go
package domain

import "context"

// RelationshipStore 持久化活动与规则的适用关系，由重算任务写入、结账时读取。
type RelationshipStore interface {
	// FindRulesForEvent 按规则 ID 升序返回适用于活动的规则 ID。
	FindRulesForEvent(ctx context.Context, eventID int64) ([]int64, error)
	FindEventsForRule(ctx context.Context, ruleID int64) ([]int64, error)
	// Replace 用 ruleIDs 整体替换活动的关系行。
	Replace(ctx context.Context, eventID int64, ruleIDs []int64) error
	// AddRule 与 RemoveRule 只改动一条关系行，已存在或不存在时不报错。
	AddRule(ctx context.Context, eventID, ruleID int64) error
	RemoveRule(ctx context.Context, eventID, ruleID int64) error
	DeleteEvent(ctx context.Context, eventID int64) error
	DeleteRule(ctx context.Context, ruleID int64) error
}

// RuleRepository 读取管理员配置的规则。
type RuleRepository interface {
	FindByID(ctx context.Context, id int64) (*Rule, error)
	// FindByIDs 返回存在的规则，顺序不保证。
	FindByIDs(ctx context.Context, ids []int64) ([]Rule, error)
	ListActive(ctx context.Context) ([]Rule, error)
}

// EventCatalog 是活动目录的只读端口。
type EventCatalog interface {
	GetEvent(ctx context.Context, id int64) (*Event, error)
	ListEventIDs(ctx context.Context) ([]int64, error)
}

// SeriesLookup 查询活动与系列的持久化关系。
type SeriesLookup interface {
	InSeries(ctx context.Context, eventID, seriesID int64) (bool, error)
}
