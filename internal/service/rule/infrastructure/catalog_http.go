// internal/service/rule/infrastructure/catalog_http.go
package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/wangyingjie930/nexus-rules/internal/pkg/httpclient"
	"github.com/wangyingjie930/nexus-rules/internal/service/rule/domain"
)

// HTTPEventCatalog 通过活动目录服务的 HTTP 接口读取活动。
type HTTPEventCatalog struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTTPEventCatalog(client *httpclient.Client, baseURL string) *HTTPEventCatalog {
	return &HTTPEventCatalog{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *HTTPEventCatalog) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	var event domain.Event
	err := c.client.GetJSON(ctx, fmt.Sprintf("%s/events/%d", c.baseURL, id), nil, &event)
	if httpclient.IsNotFound(err) {
		return nil, errors.Wrapf(domain.ErrEventNotFound, "event %d", id)
	}
	if err != nil {
		return nil, err
	}
	for i := range event.Tickets {
		if event.Tickets[i].EventID == 0 {
			event.Tickets[i].EventID = event.ID
		}
	}
	return &event, nil
}

type eventIDList struct {
	IDs []int64 `json:"ids"`
}

func (c *HTTPEventCatalog) ListEventIDs(ctx context.Context) ([]int64, error) {
	var list eventIDList
	if err := c.client.GetJSON(ctx, c.baseURL+"/events", nil, &list); err != nil {
		return nil, err
	}
	return list.IDs, nil
}
