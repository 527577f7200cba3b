// internal/service/rule/domain/keyword.go
package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Keyword 是票种关键字：既可以是票种 ID，也可以是票名中的一段文字。
// JSON 中数字和字符串两种写法都接受。
type Keyword string

func (k *Keyword) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = Keyword(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*k = Keyword(n.String())
	return nil
}

func (k Keyword) Empty() bool {
	return strings.TrimSpace(string(k)) == ""
}

// Matches 当票种 ID 等于关键字的数字形式，或关键字（忽略大小写）是票名的子串时返回 true。
// 空关键字永远不匹配。
func (k Keyword) Matches(t Ticket) bool {
	kw := strings.TrimSpace(string(k))
	if kw == "" {
		return false
	}
	if id, err := strconv.ParseInt(kw, 10, 64); err == nil && id == t.ID {
		return true
	}
	return strings.Contains(strings.ToLower(t.Name), strings.ToLower(kw))
}

// MatchesAny 报告关键字是否匹配 tickets 中的任意一张。
func (k Keyword) MatchesAny(tickets []Ticket) bool {
	for _, t := range tickets {
		if k.Matches(t) {
			return true
		}
	}
	return false
}
