// internal/service/rule/domain/mutation.go
package domain

import (
	"sort"
	"strconv"
	"strings"
)

// SubjectType 是变更通知的主体类型。
type SubjectType string

const (
	SubjectEvent    SubjectType = "event"
	SubjectTicket   SubjectType = "ticket"
	SubjectRule     SubjectType = "rule"
	SubjectCategory SubjectType = "category"
	SubjectTag      SubjectType = "tag"
	SubjectVenue    SubjectType = "venue"
	SubjectSeries   SubjectType = "series"
)

// EventState 是活动中与规则匹配相关的属性。
type EventState struct {
	CategoryIDs []int64 `json:"category_ids"`
	TagIDs      []int64 `json:"tag_ids"`
	VenueIDs    []int64 `json:"venue_ids"`
	SeriesID    int64   `json:"series_id"`
	Title       string  `json:"title"`
	TicketCount int     `json:"ticket_count"`
}

// Fingerprint 不包含票数：票数变化由"首张票/最后一张票"单独处理。
func (s EventState) Fingerprint() string {
	var b strings.Builder
	b.WriteString("c=")
	writeSortedIDs(&b, s.CategoryIDs)
	b.WriteString("|t=")
	writeSortedIDs(&b, s.TagIDs)
	b.WriteString("|v=")
	writeSortedIDs(&b, s.VenueIDs)
	b.WriteString("|s=")
	b.WriteString(strconv.FormatInt(s.SeriesID, 10))
	b.WriteString("|title=")
	b.WriteString(s.Title)
	return b.String()
}

type TicketState struct {
	EventID int64  `json:"event_id"`
	Name    string `json:"name"`
}

func (s TicketState) Fingerprint() string {
	return s.Name
}

// RuleState 是规则中影响适用关系的部分。
type RuleState struct {
	Type     RuleType   `json:"type"`
	Status   RuleStatus `json:"status"`
	Scope    Scope      `json:"scope"`
	Keywords []Keyword  `json:"keywords"`
}

// StateOf 提取 r 的 RuleState，关键字使用规则实际生效的关键字。
func StateOf(r Rule) RuleState {
	return RuleState{Type: r.Type, Status: r.Status, Scope: r.Scope, Keywords: r.Keywords()}
}

func (s RuleState) Fingerprint() string {
	var b strings.Builder
	b.WriteString(string(s.Type))
	b.WriteString("|")
	b.WriteString(string(s.Status))
	b.WriteString("|")
	b.WriteString(string(s.Scope.Connector))
	for _, c := range s.Scope.Criteria {
		b.WriteString("|")
		b.WriteString(string(c.Term))
		b.WriteString("=")
		b.WriteString(strconv.Quote(c.Value))
	}
	b.WriteString("|k")
	for _, k := range s.Keywords {
		b.WriteString("|")
		b.WriteString(strconv.Quote(string(k)))
	}
	return b.String()
}

// Mutation 是一次变更通知，显式携带变更前后的状态。
// Before 为 nil 且没有暂存状态时，主体视为新建。
type Mutation struct {
	Subject   SubjectType `json:"subject"`
	SubjectID int64       `json:"subject_id"`
	Deleted   bool        `json:"deleted"`

	EventBefore *EventState `json:"event_before,omitempty"`
	EventAfter  *EventState `json:"event_after,omitempty"`

	TicketBefore *TicketState `json:"ticket_before,omitempty"`
	TicketAfter  *TicketState `json:"ticket_after,omitempty"`

	RuleBefore *RuleState `json:"rule_before,omitempty"`
	RuleAfter  *RuleState `json:"rule_after,omitempty"`

	// RemainingTickets 只用于删除票种：删除后父活动剩余的票数。
	RemainingTickets int `json:"remaining_tickets"`
}

func writeSortedIDs(b *strings.Builder, ids []int64) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
}
