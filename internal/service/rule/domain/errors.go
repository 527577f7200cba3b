// internal/service/rule/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	// ErrUnknownCriterionTerm 表示规则数据损坏：作用域中出现了未知的条件类型。
	// 这是配置错误，调用方必须向上返回，不能降级为"不匹配"。
	ErrUnknownCriterionTerm = errors.New("unknown criterion term")
	ErrUnknownConnector     = errors.New("unknown scope connector")
	ErrUnknownRuleType      = errors.New("unknown rule type")

	ErrRuleNotFound  = errors.New("rule not found")
	ErrEventNotFound = errors.New("event not found")

	ErrUnknownSubject = errors.New("unknown mutation subject")
	ErrMissingState   = errors.New("mutation is missing its after-state")
)
