// internal/zookeeper/locker.go
package zookeeper

import "context"

// Locker 按资源名获取分布式锁，供全量重算这类需要全局互斥的任务使用。
type Locker struct {
	conn *Conn
}

func NewLocker(conn *Conn) *Locker {
	return &Locker{conn: conn}
}

// Acquire 阻塞直到持有 resource 的锁，返回释放函数。
func (l *Locker) Acquire(ctx context.Context, resource string) (func() error, error) {
	lock, err := NewDistributedLock(l.conn, resource)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return lock.Unlock, nil
}
