package interfaces

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

type recordingRunner struct {
	jobs []domain.ReevaluationJob
	err  error
}

func (r *recordingRunner) Run(_ context.Context, job domain.ReevaluationJob) error {
	r.jobs = append(r.jobs, job)
	return r.err
}

func TestJobConsumerProcessMessage(t *testing.T) {
	job := domain.ReevaluationJob{ID: "job-1", Kind: domain.JobKindRule, SubjectID: 3}
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		value    []byte
		runErr   error
		wantRuns int
	}{
		{name: "valid job", value: payload, wantRuns: 1},
		{name: "runner failure is swallowed", value: payload, runErr: errors.New("db down"), wantRuns: 1},
		{name: "malformed payload skipped", value: []byte("{not json"), wantRuns: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{err: tt.runErr}
			a := NewJobConsumerAdapter(nil, runner)
			a.processMessage(context.Background(), kafka.Message{Key: []byte(job.Key()), Value: tt.value})
			if len(runner.jobs) != tt.wantRuns {
				t.Fatalf("runs = %d, want %d", len(runner.jobs), tt.wantRuns)
			}
			if tt.wantRuns == 1 && (runner.jobs[0].ID != "job-1" || runner.jobs[0].Key() != "rule:3") {
				t.Fatalf("job = %+v", runner.jobs[0])
			}
		})
	}
}
