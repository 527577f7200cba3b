// internal/service/rule/domain/job.go
package domain

import (
	"fmt"
	"time"
)

// JobKind 标识重算任务的主体。
type JobKind string

const (
	JobKindEvent  JobKind = "event"
	JobKindRule   JobKind = "rule"
	JobKindTerm   JobKind = "term"   // 分类或标签被删除
	JobKindVenue  JobKind = "venue"  // 场馆被删除
	JobKindSeries JobKind = "series" // 系列被删除
	JobKindSweep  JobKind = "sweep"  // 周期性全量重算
)

// ReevaluationJob 是一个待执行的关系重算任务。同一个 Key 同一时刻最多只有一个待执行任务。
type ReevaluationJob struct {
	ID        string  `json:"id"`
	Kind      JobKind `json:"kind"`
	SubjectID int64   `json:"subject_id,omitempty"`

	// Taxonomy 只用于 term 任务，值为 category 或 tag。
	Taxonomy Term `json:"taxonomy,omitempty"`

	ScheduledAt time.Time `json:"scheduled_at"`
}

// Key 是任务的去重键。
func (j ReevaluationJob) Key() string {
	switch j.Kind {
	case JobKindSweep:
		return string(JobKindSweep)
	case JobKindTerm:
		return fmt.Sprintf("term:%s:%d", j.Taxonomy, j.SubjectID)
	default:
		return fmt.Sprintf("%s:%d", j.Kind, j.SubjectID)
	}
}

func EventJobKey(eventID int64) string {
	return ReevaluationJob{Kind: JobKindEvent, SubjectID: eventID}.Key()
}

func RuleJobKey(ruleID int64) string {
	return ReevaluationJob{Kind: JobKindRule, SubjectID: ruleID}.Key()
}
