// internal/service/rule/domain/criterion.go
package domain

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Outcome 是单个作用域条件的求值结果。
type Outcome int

const (
	NoMatch Outcome = iota
	Match
	// Skip 表示活动的对应属性缺失：对 any 不计入，对 every 视为未命中。
	Skip
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case Skip:
		return "skip"
	default:
		return "no_match"
	}
}

// CriterionEvaluator 对单条作用域条件求值。
type CriterionEvaluator struct {
	// Series 为 nil 表示平台未启用系列活动功能，series 条件一律不匹配。
	Series SeriesLookup
}

func NewCriterionEvaluator(series SeriesLookup) *CriterionEvaluator {
	return &CriterionEvaluator{Series: series}
}

// Evaluate 对 event 求值 c。只有未知条件类型和系列查询的 I/O 失败会返回错误。
func (e *CriterionEvaluator) Evaluate(ctx context.Context, c Criterion, event *Event) (Outcome, error) {
	switch c.Term {
	case TermCategory:
		return termOutcome(c.Value, event.CategoryIDs), nil
	case TermTag:
		return termOutcome(c.Value, event.TagIDs), nil
	case TermVenue:
		id, ok := parseID(c.Value)
		if !ok {
			return NoMatch, nil
		}
		if containsID(event.VenueIDs, id) {
			return Match, nil
		}
		return NoMatch, nil
	case TermSeries:
		id, ok := parseID(c.Value)
		if !ok || e.Series == nil {
			return NoMatch, nil
		}
		in, err := e.Series.InSeries(ctx, event.ID, id)
		if err != nil {
			return NoMatch, errors.Wrapf(err, "series lookup event=%d series=%d", event.ID, id)
		}
		if in {
			return Match, nil
		}
		return NoMatch, nil
	case TermTitle:
		v := strings.TrimSpace(c.Value)
		if v != "" && strings.Contains(strings.ToLower(event.Title), strings.ToLower(v)) {
			return Match, nil
		}
		return NoMatch, nil
	default:
		return NoMatch, errors.Wrapf(ErrUnknownCriterionTerm, "term %q", c.Term)
	}
}

func termOutcome(value string, ids []int64) Outcome {
	if len(ids) == 0 {
		return Skip
	}
	id, ok := parseID(value)
	if ok && containsID(ids, id) {
		return Match
	}
	return NoMatch
}

func parseID(v string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	return id, err == nil
}

func containsID(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
