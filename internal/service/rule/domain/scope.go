// internal/service/rule/domain/scope.go
package domain

import (
	"context"

	"github.com/pkg/errors"
)

// ScopeMatcher 按 connector 聚合各条件的求值结果。
type ScopeMatcher struct {
	criteria *CriterionEvaluator
}

func NewScopeMatcher(criteria *CriterionEvaluator) *ScopeMatcher {
	return &ScopeMatcher{criteria: criteria}
}

// Applies 报告 scope 是否覆盖 event。
// any 在第一个命中时返回 true；every 在第一个未命中（含 Skip）时返回 false，空条件列表视为 true。
func (m *ScopeMatcher) Applies(ctx context.Context, scope Scope, event *Event) (bool, error) {
	switch scope.Connector {
	case ConnectorAll:
		return true, nil
	case ConnectorNone:
		return false, nil
	case ConnectorAny:
		for _, c := range scope.Criteria {
			out, err := m.criteria.Evaluate(ctx, c, event)
			if err != nil {
				return false, err
			}
			if out == Match {
				return true, nil
			}
		}
		return false, nil
	case ConnectorEvery:
		for _, c := range scope.Criteria {
			out, err := m.criteria.Evaluate(ctx, c, event)
			if err != nil {
				return false, err
			}
			if out != Match {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, errors.Wrapf(ErrUnknownConnector, "connector %q", scope.Connector)
	}
}
