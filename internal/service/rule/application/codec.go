// internal/service/rule/application/codec.go
package application

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// 快照与折扣结果都以 CBOR 写入缓存。编码使用确定性模式（键排序、最短整数编码），
// 相同内容永远得到相同字节，购物车内容哈希也依赖这一点。
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("rule codec: init cbor encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic("rule codec: init cbor decoder: " + err.Error())
	}
}

func encode(v interface{}) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "cbor encode")
	}
	return data, nil
}

func decode(data []byte, v interface{}) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "cbor decode")
	}
	return nil
}
