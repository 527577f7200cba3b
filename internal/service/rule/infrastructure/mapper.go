// internal/service/rule/infrastructure/mapper.go
package infrastructure

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

// ToDomainRule 将数据库模型转换为领域模型
func ToDomainRule(model *PurchaseRuleModel) (domain.Rule, error) {
	rule := domain.Rule{
		ID:     model.ID,
		Title:  model.Title,
		Type:   domain.RuleType(model.Type),
		Status: domain.RuleStatus(model.Status),
		Scope:  domain.Scope{Connector: domain.Connector(model.Connector)},
	}
	if model.Criteria != "" {
		if err := json.Unmarshal([]byte(model.Criteria), &rule.Scope.Criteria); err != nil {
			return domain.Rule{}, errors.Wrapf(err, "rule %d: decode criteria", model.ID)
		}
	}
	if model.Config != "" && model.Config != "null" {
		rule.Config = json.RawMessage(model.Config)
	}
	if model.TicketKeywords != "" {
		if err := json.Unmarshal([]byte(model.TicketKeywords), &rule.TicketKeywords); err != nil {
			return domain.Rule{}, errors.Wrapf(err, "rule %d: decode ticket keywords", model.ID)
		}
	}
	return rule, nil
}
