// internal/service/rule/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/config"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

// MySQLDSN 用 go-sql-driver 的配置结构拼接 DSN，避免手写转义。
func MySQLDSN(c config.MySQL) string {
	mc := mysqldriver.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = c.Addr
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// OpenMySQL 打开数据库连接并迁移规则相关的表。
func OpenMySQL(c config.MySQL) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(MySQLDSN(c)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if err := db.AutoMigrate(&EventRuleModel{}, &PurchaseRuleModel{}, &EventSeriesModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate rule tables")
	}
	return db, nil
}

// GormRelationshipStore 是 RelationshipStore 的 GORM 实现
type GormRelationshipStore struct {
	db *gorm.DB
}

func NewGormRelationshipStore(db *gorm.DB) *GormRelationshipStore {
	return &GormRelationshipStore{db: db}
}

func (s *GormRelationshipStore) FindRulesForEvent(ctx context.Context, eventID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&EventRuleModel{}).
		Where("event_id = ?", eventID).
		Order("rule_id ASC").
		Pluck("rule_id", &ids).Error
	return ids, err
}

func (s *GormRelationshipStore) FindEventsForRule(ctx context.Context, ruleID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&EventRuleModel{}).
		Where("rule_id = ?", ruleID).
		Order("event_id ASC").
		Pluck("event_id", &ids).Error
	return ids, err
}

// Replace 在一个事务里删除活动的旧关系行并写入新的，读取方看不到中间状态。
func (s *GormRelationshipStore) Replace(ctx context.Context, eventID int64, ruleIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", eventID).Delete(&EventRuleModel{}).Error; err != nil {
			return err
		}
		if len(ruleIDs) == 0 {
			return nil
		}
		rows := make([]EventRuleModel, 0, len(ruleIDs))
		for _, id := range ruleIDs {
			rows = append(rows, EventRuleModel{EventID: eventID, RuleID: id})
		}
		return tx.CreateInBatches(rows, 100).Error
	})
}

// AddRule 依赖 uk_event_rule 唯一索引，行已存在时什么都不做。
func (s *GormRelationshipStore) AddRule(ctx context.Context, eventID, ruleID int64) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "rule_id"}},
			DoNothing: true,
		}).
		Create(&EventRuleModel{EventID: eventID, RuleID: ruleID}).Error
}

func (s *GormRelationshipStore) RemoveRule(ctx context.Context, eventID, ruleID int64) error {
	return s.db.WithContext(ctx).
		Where("event_id = ? AND rule_id = ?", eventID, ruleID).
		Delete(&EventRuleModel{}).Error
}

func (s *GormRelationshipStore) DeleteEvent(ctx context.Context, eventID int64) error {
	return s.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&EventRuleModel{}).Error
}

func (s *GormRelationshipStore) DeleteRule(ctx context.Context, ruleID int64) error {
	return s.db.WithContext(ctx).Where("rule_id = ?", ruleID).Delete(&EventRuleModel{}).Error
}

// GormRuleRepository 是 RuleRepository 的 GORM 实现
type GormRuleRepository struct {
	db *gorm.DB
}

func NewGormRuleRepository(db *gorm.DB) *GormRuleRepository {
	return &GormRuleRepository{db: db}
}

func (r *GormRuleRepository) FindByID(ctx context.Context, id int64) (*domain.Rule, error) {
	var model PurchaseRuleModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	rule, err := ToDomainRule(&model)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *GormRuleRepository) FindByIDs(ctx context.Context, ids []int64) ([]domain.Rule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []PurchaseRuleModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainRules(models)
}

func (r *GormRuleRepository) ListActive(ctx context.Context) ([]domain.Rule, error) {
	var models []PurchaseRuleModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.RuleStatusActive)).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainRules(models)
}

func toDomainRules(models []PurchaseRuleModel) ([]domain.Rule, error) {
	rules := make([]domain.Rule, 0, len(models))
	for i := range models {
		rule, err := ToDomainRule(&models[i])
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// GormSeriesLookup 是 SeriesLookup 的 GORM 实现
type GormSeriesLookup struct {
	db *gorm.DB
}

func NewGormSeriesLookup(db *gorm.DB) *GormSeriesLookup {
	return &GormSeriesLookup{db: db}
}

func (l *GormSeriesLookup) InSeries(ctx context.Context, eventID, seriesID int64) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&EventSeriesModel{}).
		Where("event_id = ? AND series_id = ?", eventID, seriesID).
		Count(&n).Error
	return n > 0, err
}
