// internal/service/rule/domain/violation.go
package domain

import "fmt"

// Violation 是购物车未满足某条限制规则时的结果。它是预期内的业务结果，
// 同时实现 error 以便调用方直接返回。
type Violation struct {
	Rule    Rule   `json:"rule"`
	EventID int64  `json:"event_id"`
	Reason  string `json:"reason"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("rule %d (%s) not satisfied for event %d: %s", v.Rule.ID, v.Rule.Type, v.EventID, v.Reason)
}
