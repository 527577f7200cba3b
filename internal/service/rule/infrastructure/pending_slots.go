// internal/service/rule/infrastructure/pending_slots.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/redis"
)

const claimSlotScriptName = "rules_claim_slot"

// 只有槽位中仍是本任务的 ID 时才删除，返回 1；否则返回 0。
const claimSlotScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// PendingSlots 为每个任务键维护一个待执行槽位，槽位里存放当前任务的 ID。
// 重复投递直接覆盖槽位，旧任务在消费时因为 ID 不匹配被丢弃。
type PendingSlots struct {
	client *redis.Client
}

func NewPendingSlots(client *redis.Client) (*PendingSlots, error) {
	if err := client.LoadScriptFromContent(claimSlotScriptName, claimSlotScript); err != nil {
		return nil, err
	}
	return &PendingSlots{client: client}, nil
}

func pendingKey(jobKey string) string {
	return "rules:pending:" + jobKey
}

func (p *PendingSlots) Set(ctx context.Context, jobKey, jobID string, ttl time.Duration) error {
	return errors.Wrapf(p.client.GetClient().Set(ctx, pendingKey(jobKey), jobID, ttl).Err(), "set pending slot %s", jobKey)
}

func (p *PendingSlots) Clear(ctx context.Context, jobKey string) error {
	return errors.Wrapf(p.client.GetClient().Del(ctx, pendingKey(jobKey)).Err(), "clear pending slot %s", jobKey)
}

// Claim 原子地比较并删除槽位。
func (p *PendingSlots) Claim(ctx context.Context, jobKey, jobID string) (bool, error) {
	res, err := p.client.RunScript(ctx, claimSlotScriptName, []string{pendingKey(jobKey)}, jobID)
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}
