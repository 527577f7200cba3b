// internal/zookeeper/conn.go
package zookeeper

import (
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/logger"
)

// Conn 封装 ZooKeeper 会话。
type Conn struct {
	*zk.Conn
}

// Connect 建立会话并等待首次连接成功。
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	if len(servers) == 0 {
		return nil, errors.New("zookeeper: no server configured")
	}
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrap(err, "zookeeper: connect")
	}
	deadline := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.L().Info().Strs("servers", servers).Msg("✅ Connected to ZooKeeper.")
				go drain(events)
				return &Conn{Conn: conn}, nil
			}
		case <-deadline:
			conn.Close()
			return nil, errors.Errorf("zookeeper: no session within %s", sessionTimeout)
		}
	}
}

// drain 持续读取会话事件，只记录会话过期。
func drain(events <-chan zk.Event) {
	for ev := range events {
		if ev.State == zk.StateExpired {
			logger.L().Warn().Msg("zookeeper session expired")
		}
	}
}

// ensurePath 逐级创建持久节点，已存在的节点忽略。
func (c *Conn) ensurePath(path string) error {
	exists, _, err := c.Exists(path)
	if err != nil {
		return errors.Wrapf(err, "zookeeper: check %s", path)
	}
	if exists {
		return nil
	}
	_, err = c.Create(path, nil, 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return errors.Wrapf(err, "zookeeper: create %s", path)
	}
	return nil
}
