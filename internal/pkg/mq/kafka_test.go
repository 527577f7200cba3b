package mq

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestKafkaHeaderCarrierSetOverwrites(t *testing.T) {
	carrier := KafkaHeaderCarrier{{Key: HeaderRealTopic, Value: []byte("a")}}
	carrier.Set(HeaderRealTopic, "b")
	carrier.Set("traceparent", "00-abc")

	if got := carrier.Get(HeaderRealTopic); got != "b" {
		t.Fatalf("real-topic = %q, want b", got)
	}
	if len(carrier.Keys()) != 2 {
		t.Fatalf("keys = %v, want 2 entries", carrier.Keys())
	}
}

func TestHeaderMissing(t *testing.T) {
	if got := Header([]kafka.Header{{Key: "x", Value: []byte("1")}}, HeaderRealTopic); got != "" {
		t.Fatalf("missing header = %q, want empty", got)
	}
}
